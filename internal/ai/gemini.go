package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	. "github.com/thehoang-x-five/Rag-OCR/internal/logging"
	"github.com/thehoang-x-five/Rag-OCR/internal/tokens"
)

// ProviderGemini is the canonical Gemini provider name.
const ProviderGemini = "gemini"

// geminiOutputCeiling caps derived maxOutputTokens for Gemini models.
const geminiOutputCeiling = 8192

// GeminiProvider speaks the Google AI generateContent API. The wire shape
// is Gemini's own: a contents array of role-tagged parts, inline_data for
// images, and the API key as a URL query parameter.
type GeminiProvider struct {
	cfg    ProviderConfig
	client *http.Client
}

// geminiPart is one element of a content's parts array.
type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"` // base64
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float32 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// NewGeminiProvider creates a Gemini adapter from its config.
func NewGeminiProvider(cfg ProviderConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key not configured")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	L_debug("gemini provider created", "baseURL", cfg.BaseURL, "model", cfg.Model)
	return &GeminiProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (p *GeminiProvider) Name() string { return ProviderGemini }

func (p *GeminiProvider) Model(hint DocumentHint) string { return p.cfg.Model }

// SupportsVision is always true: Gemini models are natively multimodal.
func (p *GeminiProvider) SupportsVision() bool { return true }

// toGeminiContents translates the neutral form. Gemini has no system role;
// a system turn is folded into the following user turn.
func toGeminiContents(messages []Message) []geminiContent {
	var contents []geminiContent
	var pendingSystem string

	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			pendingSystem = m.Content
		case RoleAssistant:
			contents = append(contents, geminiContent{
				Role:  "model",
				Parts: []geminiPart{{Text: m.Content}},
			})
		default:
			text := m.Content
			if pendingSystem != "" {
				text = pendingSystem + "\n\n" + text
				pendingSystem = ""
			}
			contents = append(contents, geminiContent{
				Role:  "user",
				Parts: []geminiPart{{Text: text}},
			})
		}
	}

	if pendingSystem != "" {
		contents = append(contents, geminiContent{
			Role:  "user",
			Parts: []geminiPart{{Text: pendingSystem}},
		})
	}
	return contents
}

func (p *GeminiProvider) CompleteText(ctx context.Context, messages []Message, opts CompleteOptions) (string, error) {
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
		maxTokens = tokens.MaxOutputFor(input.String(), geminiOutputCeiling)
	}

	req := geminiRequest{
		Contents: toGeminiContents(messages),
		GenerationConfig: geminiGenerationConfig{
			Temperature:     temperature,
			MaxOutputTokens: maxTokens,
		},
	}

	L_debug("llm: sending completion", "provider", ProviderGemini, "model", model, "maxTokens", maxTokens)
	return withRetry(ctx, ProviderGemini, p.cfg.MaxRetries, func() (string, error) {
		return p.generateContent(ctx, model, req)
	})
}

// CompleteVision sends the prompt plus the image as inline_data in one
// user content.
func (p *GeminiProvider) CompleteVision(ctx context.Context, prompt string, image []byte, opts CompleteOptions) (string, error) {
	model := opts.Model
	if model == "" {
		model = p.cfg.VisionModel
	}
	if model == "" {
		model = p.cfg.Model
	}

	req := geminiRequest{
		Contents: []geminiContent{{
			Role: "user",
			Parts: []geminiPart{
				{Text: prompt},
				{InlineData: &geminiInlineData{
					MimeType: sniffImageMime(image),
					Data:     base64.StdEncoding.EncodeToString(image),
				}},
			},
		}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     DefaultTemperature,
			MaxOutputTokens: tokens.MaxOutputFor(prompt, geminiOutputCeiling),
		},
	}

	L_debug("llm: sending vision completion", "provider", ProviderGemini, "model", model, "imageBytes", len(image))
	return withRetry(ctx, ProviderGemini, p.cfg.MaxRetries, func() (string, error) {
		return p.generateContent(ctx, model, req)
	})
}

func (p *GeminiProvider) Health(ctx context.Context) error {
	req := geminiRequest{
		Contents:         []geminiContent{{Role: "user", Parts: []geminiPart{{Text: "test"}}}},
		GenerationConfig: geminiGenerationConfig{MaxOutputTokens: 5},
	}
	_, err := p.generateContent(ctx, p.cfg.Model, req)
	return err
}

// generateContent performs one generateContent round-trip.
func (p *GeminiProvider) generateContent(ctx context.Context, model string, reqBody geminiRequest) (string, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", badResponseError(ProviderGemini, "marshal request: "+err.Error())
	}

	// Auth rides as a query parameter, not a header.
	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		p.cfg.BaseURL, model, url.QueryEscape(p.cfg.APIKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return "", badResponseError(ProviderGemini, "create request: "+err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", transportError(ProviderGemini, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", transportError(ProviderGemini, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", statusError(ProviderGemini, resp.StatusCode, body, resp.Header.Get("Retry-After"))
	}

	var result geminiResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", badResponseError(ProviderGemini, "decode response: "+err.Error())
	}

	if len(result.Candidates) == 0 {
		return "", badResponseError(ProviderGemini, "no candidates in response")
	}

	var content strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		content.WriteString(part.Text)
	}
	if strings.TrimSpace(content.String()) == "" {
		return "", badResponseError(ProviderGemini, "no text content in response")
	}
	return content.String(), nil
}
