// Package ai provides the multi-provider text-enhancement core: vendor
// adapters behind one capability-typed contract, a registry of adapter
// status, and a manager that drives priority-ordered dispatch with
// quota detection and cooldowns.
package ai

import (
	"context"
	"time"
)

// Message roles for the neutral chat form. Adapters translate these into
// their vendor wire format; vendor keywords never leak out of an adapter.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single role-tagged turn in the neutral chat form.
type Message struct {
	Role    string
	Content string
}

// CompleteOptions carries per-call overrides for a completion request.
type CompleteOptions struct {
	Model        string       // override the configured model ("" = default)
	Temperature  float32      // 0 = use DefaultTemperature
	MaxTokens    int          // 0 = derive from input estimate
	DocumentHint DocumentHint // lets adapters pick specialized models
}

// DocumentHint is the document-type hint threaded from the orchestrator
// through the manager into adapters.
type DocumentHint string

const (
	HintNone DocumentHint = ""
	HintCode DocumentHint = "code"
)

// DefaultTemperature is used when no temperature override is given.
// Text correction is a low-creativity task.
const DefaultTemperature = 0.1

// Provider is the contract every vendor adapter implements.
type Provider interface {
	// Name returns the provider name ("groq", "deepseek", "gemini", "localllm").
	Name() string

	// Model returns the model that CompleteText will use for the given hint.
	Model(hint DocumentHint) string

	// SupportsVision reports whether the adapter accepts image attachments.
	// When true the adapter also implements VisionProvider.
	SupportsVision() bool

	// CompleteText sends the neutral messages and returns the response text.
	// Failures are always *Error values.
	CompleteText(ctx context.Context, messages []Message, opts CompleteOptions) (string, error)

	// Health probes the vendor with a minimal request.
	Health(ctx context.Context) error
}

// VisionProvider is implemented only by adapters whose config carries a
// vision model, so image completion cannot be called on a text-only adapter.
type VisionProvider interface {
	Provider

	// CompleteVision sends a text prompt plus image bytes and returns the
	// response text.
	CompleteVision(ctx context.Context, prompt string, image []byte, opts CompleteOptions) (string, error)
}

// ProviderConfig is the immutable configuration for a single provider.
// Built once by the config resolver, never mutated afterwards.
type ProviderConfig struct {
	Name        string        `json:"name"`
	Enabled     bool          `json:"enabled"`
	APIKey      string        `json:"apiKey"`
	BaseURL     string        `json:"baseURL"`
	Model       string        `json:"model"`
	VisionModel string        `json:"visionModel,omitempty"` // empty = vision unsupported
	CoderModel  string        `json:"coderModel,omitempty"`  // DeepSeek only
	Priority    int           `json:"priority"`              // lower = preferred
	Timeout     time.Duration `json:"timeout"`
	MaxRetries  int           `json:"maxRetries"`
}

// AsVision returns the adapter as a VisionProvider if it is one.
func AsVision(p Provider) (VisionProvider, bool) {
	vp, ok := p.(VisionProvider)
	return vp, ok && p.SupportsVision()
}
