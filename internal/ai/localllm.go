package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	. "github.com/thehoang-x-five/Rag-OCR/internal/logging"
	"github.com/thehoang-x-five/Rag-OCR/internal/tokens"
)

// ProviderLocalLLM is the canonical local model-server provider name.
const ProviderLocalLLM = "localllm"

// localOutputCeiling caps derived num_predict for local models, which are
// usually smaller than the hosted ones.
const localOutputCeiling = 4096

// LocalLLMProvider speaks the Ollama-style local chat endpoint. There is
// no credential; the base URL is host-provided. Vision requests embed
// base64 image bytes alongside the text prompt.
type LocalLLMProvider struct {
	cfg    ProviderConfig
	client *http.Client
}

type localChatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"` // base64
}

type localChatOptions struct {
	Temperature float32 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type localChatRequest struct {
	Model    string             `json:"model"`
	Messages []localChatMessage `json:"messages"`
	Stream   bool               `json:"stream"`
	Options  localChatOptions   `json:"options"`
}

type localChatResponse struct {
	Message localChatMessage `json:"message"`
	Done    bool             `json:"done"`
}

// NewLocalLLMProvider creates a local model-server adapter from its config.
func NewLocalLLMProvider(cfg ProviderConfig) (*LocalLLMProvider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("localllm: base URL not configured")
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	L_debug("localllm provider created", "baseURL", cfg.BaseURL, "model", cfg.Model, "visionModel", cfg.VisionModel)
	return &LocalLLMProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (p *LocalLLMProvider) Name() string { return ProviderLocalLLM }

func (p *LocalLLMProvider) Model(hint DocumentHint) string { return p.cfg.Model }

func (p *LocalLLMProvider) SupportsVision() bool { return p.cfg.VisionModel != "" }

func (p *LocalLLMProvider) CompleteText(ctx context.Context, messages []Message, opts CompleteOptions) (string, error) {
	model := opts.Model
	if model == "" {
		model = p.cfg.Model
	}

	temperature := opts.Temperature
	if temperature == 0 {
		temperature = DefaultTemperature
	}

	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		var input strings.Builder
		for _, m := range messages {
			input.WriteString(m.Content)
		}
		maxTokens = tokens.MaxOutputFor(input.String(), localOutputCeiling)
	}

	chatMessages := make([]localChatMessage, 0, len(messages))
	for _, m := range messages {
		chatMessages = append(chatMessages, localChatMessage{Role: m.Role, Content: m.Content})
	}

	req := localChatRequest{
		Model:    model,
		Messages: chatMessages,
		Stream:   false,
		Options:  localChatOptions{Temperature: temperature, NumPredict: maxTokens},
	}

	L_debug("llm: sending completion", "provider", ProviderLocalLLM, "model", model, "maxTokens", maxTokens)
	return withRetry(ctx, ProviderLocalLLM, p.cfg.MaxRetries, func() (string, error) {
		return p.chat(ctx, req)
	})
}

// CompleteVision sends the prompt with the image attached as base64 in the
// user message.
func (p *LocalLLMProvider) CompleteVision(ctx context.Context, prompt string, image []byte, opts CompleteOptions) (string, error) {
	if p.cfg.VisionModel == "" {
		return "", badResponseError(ProviderLocalLLM, "vision model not configured")
	}

	model := opts.Model
	if model == "" {
		model = p.cfg.VisionModel
	}

	req := localChatRequest{
		Model: model,
		Messages: []localChatMessage{{
			Role:    RoleUser,
			Content: prompt,
			Images:  []string{base64.StdEncoding.EncodeToString(image)},
		}},
		Stream:  false,
		Options: localChatOptions{Temperature: DefaultTemperature},
	}

	L_debug("llm: sending vision completion", "provider", ProviderLocalLLM, "model", model, "imageBytes", len(image))
	return withRetry(ctx, ProviderLocalLLM, p.cfg.MaxRetries, func() (string, error) {
		return p.chat(ctx, req)
	})
}

func (p *LocalLLMProvider) Health(ctx context.Context) error {
	req := localChatRequest{
		Model:    p.cfg.Model,
		Messages: []localChatMessage{{Role: RoleUser, Content: "test"}},
		Stream:   false,
		Options:  localChatOptions{NumPredict: 5},
	}
	_, err := p.chat(ctx, req)
	return err
}

// chat performs one /api/chat round-trip.
func (p *LocalLLMProvider) chat(ctx context.Context, reqBody localChatRequest) (string, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", badResponseError(ProviderLocalLLM, "marshal request: "+err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/chat", bytes.NewReader(jsonData))
	if err != nil {
		return "", badResponseError(ProviderLocalLLM, "create request: "+err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", transportError(ProviderLocalLLM, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", transportError(ProviderLocalLLM, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", statusError(ProviderLocalLLM, resp.StatusCode, body, resp.Header.Get("Retry-After"))
	}

	var result localChatResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", badResponseError(ProviderLocalLLM, "decode response: "+err.Error())
	}

	if strings.TrimSpace(result.Message.Content) == "" {
		return "", badResponseError(ProviderLocalLLM, "empty message content")
	}
	return result.Message.Content, nil
}
