package ai

import (
	"context"
	"errors"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	. "github.com/thehoang-x-five/Rag-OCR/internal/logging"
	"github.com/thehoang-x-five/Rag-OCR/internal/tokens"
)

// oaiCompat is the shared core for vendors speaking the OpenAI-shaped
// chat-completion API (Groq, DeepSeek). Each adapter owns its client and
// connection pool; pools are not shared across adapters.
type oaiCompat struct {
	name          string
	client        *openai.Client
	cfg           ProviderConfig
	outputCeiling int
}

func newOAICompat(name string, cfg ProviderConfig, outputCeiling int) *oaiCompat {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &oaiCompat{
		name:          name,
		client:        openai.NewClientWithConfig(clientCfg),
		cfg:           cfg,
		outputCeiling: outputCeiling,
	}
}

// toOpenAIMessages translates the neutral form into go-openai messages.
func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case RoleSystem:
			role = openai.ChatMessageRoleSystem
		case RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}

// classifyOpenAIError maps go-openai client errors onto the closed taxonomy.
func (c *oaiCompat) classifyOpenAIError(err error) *Error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		body := []byte(apiErr.Message)
		return &Error{
			Provider: c.name,
			Kind:     ClassifyStatus(apiErr.HTTPStatusCode, body),
			Status:   apiErr.HTTPStatusCode,
			Message:  apiErr.Message,
			Err:      err,
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &Error{
			Provider: c.name,
			Kind:     ClassifyStatus(reqErr.HTTPStatusCode, nil),
			Status:   reqErr.HTTPStatusCode,
			Message:  reqErr.Error(),
			Err:      err,
		}
	}
	return transportError(c.name, err)
}

// complete sends one chat completion and returns the message content.
func (c *oaiCompat) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", c.classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", badResponseError(c.name, "no choices in response")
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", badResponseError(c.name, "empty message content")
	}
	return content, nil
}

// completeText runs the retry-wrapped text completion for a resolved model.
func (c *oaiCompat) completeText(ctx context.Context, model string, messages []Message, opts CompleteOptions) (string, error) {
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
		maxTokens = tokens.MaxOutputFor(input.String(), c.outputCeiling)
	}

	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    toOpenAIMessages(messages),
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}

	L_debug("llm: sending completion", "provider", c.name, "model", model, "maxTokens", maxTokens)
	return withRetry(ctx, c.name, c.cfg.MaxRetries, func() (string, error) {
		return c.complete(ctx, req)
	})
}

// health probes the vendor with a minimal single-token request.
func (c *oaiCompat) health(ctx context.Context) error {
	_, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.cfg.Model,
		Messages:  []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: "test"}},
		MaxTokens: 5,
	})
	if err != nil {
		return c.classifyOpenAIError(err)
	}
	return nil
}
