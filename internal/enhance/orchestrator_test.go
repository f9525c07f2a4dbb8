package enhance

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thehoang-x-five/Rag-OCR/internal/ai"
)

// spyDispatcher records dispatches and returns a scripted outcome.
type spyDispatcher struct {
	calls    int
	lastReq  ai.DispatchRequest
	dispatch *ai.Dispatch
	err      error
}

func (s *spyDispatcher) Enhance(ctx context.Context, req ai.DispatchRequest) (*ai.Dispatch, error) {
	s.calls++
	s.lastReq = req
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.dispatch, nil
}

func newTestOrchestrator(t *testing.T, spy *spyDispatcher, cfg Config) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(spy, cfg)
	require.NoError(t, err)
	return o
}

func enabledConfig() Config {
	return Config{Enabled: true, UseVisionWhenAvailable: true, TargetLanguage: "auto"}
}

func TestEnhanceHappyPath(t *testing.T) {
	spy := &spyDispatcher{dispatch: &ai.Dispatch{
		Provider: "groq",
		Model:    "llama-3.3-70b-versatile",
		Text:     "Trường Đại học Bách Khoa Hà Nội",
		Attempts: 1,
	}}
	o := newTestOrchestrator(t, spy, enabledConfig())

	res := o.Enhance(context.Background(), Request{
		Text:         "Truong Dai hoc Bach Khoa Ha Noi",
		DocumentType: "general",
	})

	assert.Equal(t, "Truong Dai hoc Bach Khoa Ha Noi", res.OriginalText)
	assert.Equal(t, "Trường Đại học Bách Khoa Hà Nội", res.EnhancedText)
	assert.Equal(t, "groq", res.ProviderUsed)
	assert.Equal(t, "llama-3.3-70b-versatile", res.ModelUsed)
	assert.False(t, res.FallbackOccurred)
	assert.Empty(t, res.ErrorMessage)
	assert.NotEmpty(t, res.RequestID)
	assert.Contains(t, res.Improvements, TagDiacritics)

	// System turn carries the instructions, user turn the rendered text.
	require.Len(t, spy.lastReq.Messages, 2)
	assert.Equal(t, ai.RoleSystem, spy.lastReq.Messages[0].Role)
	assert.Equal(t, ai.RoleUser, spy.lastReq.Messages[1].Role)
	assert.Contains(t, spy.lastReq.Messages[1].Content, "Truong Dai hoc Bach Khoa Ha Noi")
}

func TestEnhanceDisabledPassThrough(t *testing.T) {
	spy := &spyDispatcher{dispatch: &ai.Dispatch{Text: "never"}}
	cfg := enabledConfig()
	cfg.Enabled = false
	o := newTestOrchestrator(t, spy, cfg)

	res := o.Enhance(context.Background(), Request{Text: "raw text"})
	assert.Equal(t, "raw text", res.OriginalText)
	assert.Empty(t, res.EnhancedText)
	assert.Equal(t, 0, spy.calls, "no adapter may be contacted when disabled")
}

func TestEnhanceAlreadyEnhancedGuard(t *testing.T) {
	spy := &spyDispatcher{dispatch: &ai.Dispatch{Text: "never"}}
	o := newTestOrchestrator(t, spy, enabledConfig())

	res := o.Enhance(context.Background(), Request{Text: "done already", AlreadyEnhanced: true})
	assert.Equal(t, "done already", res.OriginalText)
	assert.Empty(t, res.EnhancedText)
	assert.Contains(t, res.ErrorMessage, "already enhanced")
	assert.Equal(t, 0, spy.calls)
}

func TestEnhanceEmptyText(t *testing.T) {
	spy := &spyDispatcher{}
	o := newTestOrchestrator(t, spy, enabledConfig())

	res := o.Enhance(context.Background(), Request{Text: "   "})
	assert.Empty(t, res.EnhancedText)
	assert.Contains(t, res.ErrorMessage, "empty input")
	assert.Equal(t, 0, spy.calls)
}

func TestEnhanceAllFailedPreservesOriginal(t *testing.T) {
	spy := &spyDispatcher{err: &ai.AllFailedError{Failures: []ai.AttemptFailure{
		{Provider: "groq", Cause: ai.KindTransport},
		{Provider: "deepseek", Cause: ai.KindQuotaExceeded},
	}}}
	o := newTestOrchestrator(t, spy, enabledConfig())

	res := o.Enhance(context.Background(), Request{Text: "raw ocr text here"})
	assert.Equal(t, "raw ocr text here", res.OriginalText)
	assert.Empty(t, res.EnhancedText)
	assert.True(t, res.FallbackOccurred)
	assert.Contains(t, res.ErrorMessage, "groq")
	assert.Contains(t, res.ErrorMessage, "deepseek")
}

func TestEnhanceCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	spy := &spyDispatcher{dispatch: &ai.Dispatch{Text: "never"}}
	o := newTestOrchestrator(t, spy, enabledConfig())

	res := o.Enhance(ctx, Request{Text: "some text"})
	assert.True(t, res.Cancelled)
	assert.Equal(t, "some text", res.OriginalText)
	assert.Empty(t, res.EnhancedText)
}

func TestEnhanceFallbackFlagFromAttempts(t *testing.T) {
	spy := &spyDispatcher{dispatch: &ai.Dispatch{
		Provider: "deepseek", Model: "deepseek-chat", Text: "fixed words", Attempts: 2,
	}}
	o := newTestOrchestrator(t, spy, enabledConfig())

	res := o.Enhance(context.Background(), Request{Text: "fi xed words"})
	assert.True(t, res.FallbackOccurred)
	assert.Equal(t, "deepseek", res.ProviderUsed)
}

func TestEnhanceRejectsEcho(t *testing.T) {
	spy := &spyDispatcher{}
	o := newTestOrchestrator(t, spy, enabledConfig())

	// Make the provider echo the rendered prompt back verbatim.
	tpl, _ := o.catalog.Lookup(DocGeneral)
	rendered := tpl.Render("some input")
	spy.dispatch = &ai.Dispatch{Provider: "groq", Model: "m", Text: rendered, Attempts: 1}

	res := o.Enhance(context.Background(), Request{Text: "some input", DocumentType: "general"})
	assert.Empty(t, res.EnhancedText)
	assert.Contains(t, res.ErrorMessage, "echo")
}

func TestEnhanceRejectsRunawayOutput(t *testing.T) {
	spy := &spyDispatcher{dispatch: &ai.Dispatch{
		Provider: "groq", Model: "m",
		Text:     strings.Repeat("spam ", 200),
		Attempts: 1,
	}}
	o := newTestOrchestrator(t, spy, enabledConfig())

	res := o.Enhance(context.Background(), Request{Text: "tiny"})
	assert.Empty(t, res.EnhancedText)
	assert.Contains(t, res.ErrorMessage, "suspiciously long")
}

func TestEnhanceClassifiesUnknownType(t *testing.T) {
	spy := &spyDispatcher{dispatch: &ai.Dispatch{Provider: "groq", Model: "m", Text: "fixed", Attempts: 1}}
	o := newTestOrchestrator(t, spy, enabledConfig())

	res := o.Enhance(context.Background(), Request{
		Text: "import os\ndef main():\n    print('hello')",
	})
	assert.Equal(t, DocCode, res.DocumentType)
	require.NotEmpty(t, res.Notes)
	assert.Contains(t, res.Notes[0], "classified as code")
	assert.Equal(t, ai.HintCode, spy.lastReq.Hint)
}

func TestEnhanceVisionRouting(t *testing.T) {
	spy := &spyDispatcher{dispatch: &ai.Dispatch{Provider: "gemini", Model: "m", Text: "page text", Attempts: 1}}
	o := newTestOrchestrator(t, spy, enabledConfig())

	image := []byte{0xff, 0xd8}
	res := o.Enhance(context.Background(), Request{
		Text:         "blurry scan",
		Image:        image,
		PreferVision: true,
	})
	require.Empty(t, res.ErrorMessage)
	assert.True(t, spy.lastReq.PreferVision)
	assert.Equal(t, image, spy.lastReq.Image)
	assert.NotEmpty(t, spy.lastReq.VisionPrompt)
}

func TestEnhanceVisionSuppressedByConfig(t *testing.T) {
	spy := &spyDispatcher{dispatch: &ai.Dispatch{Provider: "groq", Model: "m", Text: "fixed", Attempts: 1}}
	cfg := enabledConfig()
	cfg.UseVisionWhenAvailable = false
	o := newTestOrchestrator(t, spy, cfg)

	res := o.Enhance(context.Background(), Request{
		Text:         "scan",
		Image:        []byte{1},
		PreferVision: true,
	})
	require.Empty(t, res.ErrorMessage)
	assert.False(t, spy.lastReq.PreferVision)
}

func TestEnhanceVietnameseLanguageInstruction(t *testing.T) {
	spy := &spyDispatcher{dispatch: &ai.Dispatch{Provider: "groq", Model: "m", Text: "Hà Nội", Attempts: 1}}
	o := newTestOrchestrator(t, spy, enabledConfig())

	res := o.Enhance(context.Background(), Request{Text: "Ha Noi", TargetLanguage: "vi"})
	require.Empty(t, res.ErrorMessage)
	assert.Contains(t, spy.lastReq.Messages[0].Content, "dấu thanh")
	assert.Contains(t, spy.lastReq.VisionPrompt, "dấu thanh")
}
