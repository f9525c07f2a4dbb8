package ai

import (
	"context"
	"encoding/base64"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	. "github.com/thehoang-x-five/Rag-OCR/internal/logging"
	"github.com/thehoang-x-five/Rag-OCR/internal/tokens"
)

// ProviderGroq is the canonical Groq provider name.
const ProviderGroq = "groq"

// groqOutputCeiling caps derived max_tokens for Groq models.
const groqOutputCeiling = 8192

// GroqProvider speaks Groq's OpenAI-shaped chat-completion API.
// Vision requests use the OpenAI multi-content image format against the
// configured vision model.
type GroqProvider struct {
	*oaiCompat
}

// NewGroqProvider creates a Groq adapter from its config.
func NewGroqProvider(cfg ProviderConfig) (*GroqProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("groq: API key not configured")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.groq.com/openai/v1"
	}

	L_debug("groq provider created", "baseURL", cfg.BaseURL, "model", cfg.Model, "visionModel", cfg.VisionModel)
	return &GroqProvider{oaiCompat: newOAICompat(ProviderGroq, cfg, groqOutputCeiling)}, nil
}

func (p *GroqProvider) Name() string { return ProviderGroq }

func (p *GroqProvider) Model(hint DocumentHint) string { return p.cfg.Model }

func (p *GroqProvider) SupportsVision() bool { return p.cfg.VisionModel != "" }

func (p *GroqProvider) CompleteText(ctx context.Context, messages []Message, opts CompleteOptions) (string, error) {
	model := opts.Model
	if model == "" {
		model = p.cfg.Model
	}
	return p.completeText(ctx, model, messages, opts)
}

// CompleteVision sends the prompt plus image as OpenAI multi-content parts
// with a base64 data URL.
func (p *GroqProvider) CompleteVision(ctx context.Context, prompt string, image []byte, opts CompleteOptions) (string, error) {
	if p.cfg.VisionModel == "" {
		return "", badResponseError(ProviderGroq, "vision model not configured")
	}

	model := opts.Model
	if model == "" {
		model = p.cfg.VisionModel
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s", sniffImageMime(image), base64.StdEncoding.EncodeToString(image))
	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: prompt},
				{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL:    dataURL,
						Detail: openai.ImageURLDetailAuto,
					},
				},
			},
		}},
		Temperature: DefaultTemperature,
		MaxTokens:   tokens.MaxOutputFor(prompt, groqOutputCeiling),
	}

	L_debug("llm: sending vision completion", "provider", ProviderGroq, "model", model, "imageBytes", len(image))
	return withRetry(ctx, ProviderGroq, p.cfg.MaxRetries, func() (string, error) {
		return p.complete(ctx, req)
	})
}

func (p *GroqProvider) Health(ctx context.Context) error {
	return p.health(ctx)
}
