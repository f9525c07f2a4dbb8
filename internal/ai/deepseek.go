package ai

import (
	"context"
	"fmt"
	"strings"

	. "github.com/thehoang-x-five/Rag-OCR/internal/logging"
)

// ProviderDeepSeek is the canonical DeepSeek provider name.
const ProviderDeepSeek = "deepseek"

// deepseekOutputCeiling caps derived max_tokens for DeepSeek models.
const deepseekOutputCeiling = 8192

// codeIndicators are substrings that mark content as code-like. Two or
// more hits switch DeepSeek to its coder model.
var codeIndicators = []string{
	"function", "class", "import", "def ", "var ", "let ", "const ",
	"public ", "private ", "static ", "void ", "struct ", "typedef ",
	"#!/", "<?php", "<html>", "<script>", "select ", "insert ",
	"create table", "git ", "npm ", "pip ", "docker ",
	"```", "console.log", "print(", "system.out", "printf(",
	"#include", "#define",
}

// DeepSeekProvider speaks DeepSeek's OpenAI-shaped chat-completion API.
// It has no vision model; its one specialization is switching between the
// general chat model and a code-tuned model based on the document hint.
type DeepSeekProvider struct {
	*oaiCompat
}

// NewDeepSeekProvider creates a DeepSeek adapter from its config.
func NewDeepSeekProvider(cfg ProviderConfig) (*DeepSeekProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("deepseek: API key not configured")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.deepseek.com/v1"
	}

	L_debug("deepseek provider created", "baseURL", cfg.BaseURL, "model", cfg.Model, "coderModel", cfg.CoderModel)
	return &DeepSeekProvider{oaiCompat: newOAICompat(ProviderDeepSeek, cfg, deepseekOutputCeiling)}, nil
}

func (p *DeepSeekProvider) Name() string { return ProviderDeepSeek }

// Model resolves the model for a document hint: the coder model for code
// documents when one is configured, the chat model otherwise.
func (p *DeepSeekProvider) Model(hint DocumentHint) string {
	if hint == HintCode && p.cfg.CoderModel != "" {
		return p.cfg.CoderModel
	}
	return p.cfg.Model
}

func (p *DeepSeekProvider) SupportsVision() bool { return false }

func (p *DeepSeekProvider) CompleteText(ctx context.Context, messages []Message, opts CompleteOptions) (string, error) {
	model := opts.Model
	if model == "" {
		hint := opts.DocumentHint
		if hint == HintNone && looksLikeCode(messages) {
			hint = HintCode
		}
		model = p.Model(hint)
		if model == p.cfg.CoderModel && p.cfg.CoderModel != "" {
			L_debug("deepseek: selected coder model", "model", model)
		}
	}
	return p.completeText(ctx, model, messages, opts)
}

func (p *DeepSeekProvider) Health(ctx context.Context) error {
	return p.health(ctx)
}

// looksLikeCode counts code indicators across all message content.
func looksLikeCode(messages []Message) bool {
	var b strings.Builder
	for _, m := range messages {
		b.WriteString(m.Content)
		b.WriteString(" ")
	}
	full := strings.ToLower(b.String())

	hits := 0
	for _, indicator := range codeIndicators {
		if strings.Contains(full, indicator) {
			hits++
			if hits >= 2 {
				return true
			}
		}
	}
	return false
}
