package enhance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/thehoang-x-five/Rag-OCR/internal/ai"
	logging "github.com/thehoang-x-five/Rag-OCR/internal/logging"
)

// Dispatcher is what the orchestrator needs from the provider manager.
type Dispatcher interface {
	Enhance(ctx context.Context, req ai.DispatchRequest) (*ai.Dispatch, error)
}

// Config tunes the orchestrator.
type Config struct {
	// Enabled is the master switch; when false every request passes
	// through untouched.
	Enabled bool
	// UseVisionWhenAvailable routes image-bearing requests to
	// vision-capable adapters first.
	UseVisionWhenAvailable bool
	// TargetLanguage selects the language instruction: "auto", "vi", "en".
	TargetLanguage string
	// PromptOverrides replaces built-in templates per document type.
	PromptOverrides map[DocumentType]Template
}

// Request is one enhancement request.
type Request struct {
	Text            string
	DocumentType    string
	Image           []byte
	PreferVision    bool
	AlreadyEnhanced bool
	// TargetLanguage overrides the configured one when non-empty.
	TargetLanguage string
}

// Result always carries the original text, even on total failure.
// EnhancedText is set iff a provider succeeded.
type Result struct {
	RequestID        string        `json:"requestId"`
	OriginalText     string        `json:"originalText"`
	EnhancedText     string        `json:"enhancedText,omitempty"`
	DocumentType     DocumentType  `json:"documentType"`
	ProviderUsed     string        `json:"providerUsed,omitempty"`
	ModelUsed        string        `json:"modelUsed,omitempty"`
	Elapsed          time.Duration `json:"-"`
	ElapsedMs        int64         `json:"elapsedMs"`
	Improvements     []string      `json:"improvements,omitempty"`
	FallbackOccurred bool          `json:"fallbackOccurred"`
	Cancelled        bool          `json:"cancelled,omitempty"`
	ErrorMessage     string        `json:"errorMessage,omitempty"`
	// Notes carries advisory metadata like classification outcomes.
	Notes []string `json:"notes,omitempty"`
}

// Orchestrator is the single entry point for text enhancement. It never
// returns an error: every outcome, including total provider failure, is a
// Result that preserves the input text.
type Orchestrator struct {
	dispatcher Dispatcher
	catalog    *Catalog
	cfg        Config
}

// NewOrchestrator builds an orchestrator over a dispatcher.
func NewOrchestrator(dispatcher Dispatcher, cfg Config) (*Orchestrator, error) {
	catalog, err := NewCatalog(cfg.PromptOverrides)
	if err != nil {
		return nil, err
	}
	if cfg.TargetLanguage == "" {
		cfg.TargetLanguage = "auto"
	}
	return &Orchestrator{dispatcher: dispatcher, catalog: catalog, cfg: cfg}, nil
}

// Enhance runs one request through classification, prompt rendering,
// dispatch, and validation.
func (o *Orchestrator) Enhance(ctx context.Context, req Request) Result {
	start := time.Now()
	res := Result{
		RequestID:    uuid.NewString(),
		OriginalText: req.Text,
	}

	finish := func(res Result) Result {
		res.Elapsed = time.Since(start)
		res.ElapsedMs = res.Elapsed.Milliseconds()
		return res
	}

	if strings.TrimSpace(req.Text) == "" {
		res.ErrorMessage = "empty input text"
		return finish(res)
	}

	if req.AlreadyEnhanced {
		logging.L_debug("enhance: skipping already-enhanced text", "requestId", res.RequestID)
		res.ErrorMessage = "text already enhanced, skipping"
		res.DocumentType = ParseDocumentType(req.DocumentType)
		return finish(res)
	}

	if !o.cfg.Enabled {
		res.ErrorMessage = "enhancement disabled"
		res.DocumentType = ParseDocumentType(req.DocumentType)
		return finish(res)
	}

	docType := ParseDocumentType(req.DocumentType)
	if docType == DocUnknown {
		docType = ClassifyDocument(req.Text)
		res.Notes = append(res.Notes, fmt.Sprintf("document type classified as %s", docType))
	}
	res.DocumentType = docType

	lang := req.TargetLanguage
	if lang == "" {
		lang = o.cfg.TargetLanguage
	}

	tpl, fellBack := o.catalog.Lookup(docType)
	if fellBack {
		res.Notes = append(res.Notes, "no prompt template for type, using general")
	}
	tpl = tpl.WithLanguage(lang)
	rendered := tpl.Render(req.Text)

	preferVision := req.PreferVision && o.cfg.UseVisionWhenAvailable && len(req.Image) > 0

	logging.L_debug("enhance: dispatching", "requestId", res.RequestID, "documentType", docType,
		"chars", len(req.Text), "vision", preferVision)

	dispatch, err := o.dispatcher.Enhance(ctx, ai.DispatchRequest{
		Messages: []ai.Message{
			{Role: ai.RoleSystem, Content: tpl.Preamble},
			{Role: ai.RoleUser, Content: rendered},
		},
		VisionPrompt: VisionPrompt(lang),
		Hint:         docType.Hint(),
		Image:        req.Image,
		PreferVision: preferVision,
	})

	if err != nil {
		if ctx.Err() != nil {
			res.Cancelled = true
			res.ErrorMessage = "cancelled: " + ctx.Err().Error()
			return finish(res)
		}
		// The walk exhausted every provider. The original text still
		// flows downstream as a plain OCR pass.
		res.FallbackOccurred = true
		res.ErrorMessage = err.Error()
		logging.L_warn("enhance: no provider succeeded", "requestId", res.RequestID, "error", err)
		return finish(res)
	}

	res.ProviderUsed = dispatch.Provider
	res.ModelUsed = dispatch.Model
	res.FallbackOccurred = dispatch.Attempts > 1

	enhanced := strings.TrimSpace(dispatch.Text)
	if msg := validateEnhanced(req.Text, rendered, enhanced); msg != "" {
		res.ErrorMessage = msg
		logging.L_warn("enhance: response rejected", "requestId", res.RequestID,
			"provider", dispatch.Provider, "reason", msg)
		return finish(res)
	}

	res.EnhancedText = enhanced
	res.Improvements = DetectImprovements(req.Text, enhanced)

	logging.L_info("enhance: done", "requestId", res.RequestID, "provider", dispatch.Provider,
		"model", dispatch.Model, "elapsed", time.Since(start).Round(time.Millisecond),
		"fallback", res.FallbackOccurred)
	return finish(res)
}

// validateEnhanced applies the response sanity checks: non-empty, not an
// echo of the prompt, and bounded against runaway repetition. Returns a
// reason string, "" when the response is acceptable.
func validateEnhanced(original, rendered, enhanced string) string {
	if enhanced == "" {
		return "provider returned empty text"
	}
	if enhanced == rendered || enhanced == strings.TrimSpace(rendered) {
		return "provider echoed the prompt"
	}
	if len(enhanced) > 10*len(original) {
		return fmt.Sprintf("enhanced text suspiciously long: %d chars vs %d input", len(enhanced), len(original))
	}
	return ""
}
