package ai

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProvider is a scriptable adapter for manager tests. Vision support
// is a flag so the same type covers both partitions.
type stubProvider struct {
	mu          sync.Mutex
	name        string
	vision      bool
	reply       string
	err         error
	calls       int
	visionCalls int
	healthErr   error
}

func (s *stubProvider) Name() string                   { return s.name }
func (s *stubProvider) Model(hint DocumentHint) string { return s.name + "-model" }
func (s *stubProvider) SupportsVision() bool           { return s.vision }

func (s *stubProvider) CompleteText(ctx context.Context, messages []Message, opts CompleteOptions) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func (s *stubProvider) CompleteVision(ctx context.Context, prompt string, image []byte, opts CompleteOptions) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visionCalls++
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func (s *stubProvider) Health(ctx context.Context) error { return s.healthErr }

func (s *stubProvider) textCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newTestManager(t *testing.T, stubs ...*stubProvider) (*Manager, *Registry) {
	t.Helper()
	reg := NewRegistry()
	for i, s := range stubs {
		require.NoError(t, reg.Register(s, ProviderConfig{Name: s.name, Enabled: true, Priority: i + 1}))
	}
	return NewManager(reg, ManagerConfig{}), reg
}

func textRequest() DispatchRequest {
	return DispatchRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: "fix the text"},
			{Role: RoleUser, Content: "Truong Dai hoc"},
		},
	}
}

func TestEnhanceFirstProviderSucceeds(t *testing.T) {
	a := &stubProvider{name: "a", reply: "corrected"}
	b := &stubProvider{name: "b", reply: "never"}
	m, _ := newTestManager(t, a, b)

	d, err := m.Enhance(context.Background(), textRequest())
	require.NoError(t, err)
	assert.Equal(t, "a", d.Provider)
	assert.Equal(t, "a-model", d.Model)
	assert.Equal(t, "corrected", d.Text)
	assert.Equal(t, 1, d.Attempts)
	assert.Equal(t, 0, b.textCalls())
	assert.Equal(t, "a", m.Preferred())
}

func TestEnhanceQuotaFallback(t *testing.T) {
	a := &stubProvider{name: "groq", err: statusError("groq", 429, []byte(`{"error":"rate limit exceeded"}`), "")}
	b := &stubProvider{name: "deepseek", reply: "clean correction"}
	m, reg := newTestManager(t, a, b)

	d, err := m.Enhance(context.Background(), textRequest())
	require.NoError(t, err)
	assert.Equal(t, "deepseek", d.Provider)
	assert.Equal(t, 2, d.Attempts)
	assert.Equal(t, "deepseek", m.Preferred())

	status, ok := reg.Status("groq")
	require.True(t, ok)
	assert.False(t, status.Available)
	assert.Equal(t, KindRateLimited, status.LastErrorCause)
	assert.True(t, status.InCooldown(time.Now()))
}

func TestEnhanceAllFail(t *testing.T) {
	names := []string{"groq", "deepseek", "gemini", "localllm"}
	var stubs []*stubProvider
	for _, n := range names {
		stubs = append(stubs, &stubProvider{name: n, err: transportError(n, errors.New("unreachable"))})
	}
	m, reg := newTestManager(t, stubs...)

	_, err := m.Enhance(context.Background(), textRequest())
	var allFailed *AllFailedError
	require.ErrorAs(t, err, &allFailed)
	require.Len(t, allFailed.Failures, 4)
	for _, n := range names {
		assert.Contains(t, err.Error(), n)
		status, _ := reg.Status(n)
		assert.False(t, status.Available)
		assert.Equal(t, KindTransport, status.LastErrorCause)
	}
}

func TestCooldownSkipsProvider(t *testing.T) {
	a := &stubProvider{name: "a", err: statusError("a", 403, []byte("quota exceeded"), "")}
	b := &stubProvider{name: "b", reply: "ok"}
	m, reg := newTestManager(t, a, b)

	_, err := m.Enhance(context.Background(), textRequest())
	require.NoError(t, err)
	assert.Equal(t, 1, a.textCalls())

	status, _ := reg.Status("a")
	assert.Equal(t, KindQuotaExceeded, status.LastErrorCause)
	assert.True(t, status.CooldownRemaining(time.Now()) > 50*time.Minute)

	// Second call must not touch the cooled-down provider.
	_, err = m.Enhance(context.Background(), textRequest())
	require.NoError(t, err)
	assert.Equal(t, 1, a.textCalls())
}

func TestCooldownExpiryReenables(t *testing.T) {
	a := &stubProvider{name: "a", err: transportError("a", errors.New("down"))}
	b := &stubProvider{name: "b", reply: "ok"}
	m, reg := newTestManager(t, a, b)

	_, err := m.Enhance(context.Background(), textRequest())
	require.NoError(t, err)
	require.Equal(t, 1, a.textCalls())

	// Expire the cooldown by hand, then recover the stub.
	reg.update("a", func(s *Status) { s.CooldownUntil = time.Now().Add(-time.Second) })
	a.mu.Lock()
	a.err = nil
	a.reply = "back"
	a.mu.Unlock()

	// b is sticky preferred, so a is attempted only after b. Fail b to
	// force the walk past it.
	b.mu.Lock()
	b.err = transportError("b", errors.New("down"))
	b.mu.Unlock()

	d, err := m.Enhance(context.Background(), textRequest())
	require.NoError(t, err)
	assert.Equal(t, "a", d.Provider)
	assert.Equal(t, 2, a.textCalls())
}

func TestStickyPreferredMovesToFront(t *testing.T) {
	a := &stubProvider{name: "a", err: transportError("a", errors.New("flaky"))}
	b := &stubProvider{name: "b", reply: "ok"}
	m, reg := newTestManager(t, a, b)

	_, err := m.Enhance(context.Background(), textRequest())
	require.NoError(t, err)
	require.Equal(t, "b", m.Preferred())

	// Recover a and expire its cooldown; b must still be tried first.
	reg.update("a", func(s *Status) { s.CooldownUntil = time.Now().Add(-time.Second) })
	a.mu.Lock()
	a.err = nil
	a.reply = "a wins"
	a.mu.Unlock()

	d, err := m.Enhance(context.Background(), textRequest())
	require.NoError(t, err)
	assert.Equal(t, "b", d.Provider)
	assert.Equal(t, 1, d.Attempts)
}

func TestStickyClearedOnPreferredFailure(t *testing.T) {
	a := &stubProvider{name: "a", reply: "ok"}
	b := &stubProvider{name: "b", reply: "backup"}
	m, _ := newTestManager(t, a, b)

	_, err := m.Enhance(context.Background(), textRequest())
	require.NoError(t, err)
	require.Equal(t, "a", m.Preferred())

	a.mu.Lock()
	a.err = transportError("a", errors.New("down"))
	a.mu.Unlock()

	d, err := m.Enhance(context.Background(), textRequest())
	require.NoError(t, err)
	assert.Equal(t, "b", d.Provider)
	assert.Equal(t, "b", m.Preferred())
}

func TestInvalidAuthDisablesForSession(t *testing.T) {
	a := &stubProvider{name: "a", err: statusError("a", 401, []byte("invalid key"), "")}
	b := &stubProvider{name: "b", reply: "ok"}
	m, reg := newTestManager(t, a, b)

	_, err := m.Enhance(context.Background(), textRequest())
	require.NoError(t, err)

	status, _ := reg.Status("a")
	assert.Equal(t, KindInvalidAuth, status.LastErrorCause)
	assert.True(t, status.DisabledForSession())
	assert.Equal(t, "unavailable", status.StateLabel(time.Now()))
}

func TestVisionPartitionComesFirst(t *testing.T) {
	textOnly := &stubProvider{name: "text", reply: "text answer"}
	visual := &stubProvider{name: "visual", vision: true, reply: "vision answer"}
	m, _ := newTestManager(t, textOnly, visual) // text has priority 1

	req := textRequest()
	req.Image = []byte{0xff, 0xd8, 0x01}
	req.PreferVision = true
	req.VisionPrompt = "read this page"

	d, err := m.Enhance(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "visual", d.Provider)
	assert.Equal(t, 1, visual.visionCalls)
	assert.Equal(t, 0, textOnly.textCalls())
}

func TestVisionFallsBackToText(t *testing.T) {
	visual := &stubProvider{name: "visual", vision: true, err: transportError("visual", errors.New("down"))}
	textOnly := &stubProvider{name: "text", reply: "text answer"}
	m, _ := newTestManager(t, visual, textOnly)

	req := textRequest()
	req.Image = []byte{0x89, 'P', 'N', 'G'}
	req.PreferVision = true
	req.VisionPrompt = "read this page"

	d, err := m.Enhance(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "text", d.Provider)
	assert.Equal(t, 1, textOnly.textCalls())
}

func TestCancellationDoesNotUpdateStatus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	a := &stubProvider{name: "a"}
	m, reg := newTestManager(t, a)

	// The adapter cancels mid-call and reports transport; the manager must
	// attribute it to the caller, not the provider.
	a.err = transportError("a", context.Canceled)
	cancel()

	_, err := m.Enhance(ctx, textRequest())
	assert.ErrorIs(t, err, context.Canceled)

	status, _ := reg.Status("a")
	assert.True(t, status.Available)
	assert.Equal(t, KindNone, status.LastErrorCause)
	assert.Equal(t, 0, a.textCalls())
}

func TestNoEligibleProviders(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.Enhance(context.Background(), textRequest())
	var allFailed *AllFailedError
	require.ErrorAs(t, err, &allFailed)
	assert.Empty(t, allFailed.Failures)
	assert.Contains(t, err.Error(), "no providers available")
}

func TestProbeSidelinedRecoversProvider(t *testing.T) {
	a := &stubProvider{name: "a", err: transportError("a", errors.New("down"))}
	m, reg := newTestManager(t, a)

	_, err := m.Enhance(context.Background(), textRequest())
	var allFailed *AllFailedError
	require.ErrorAs(t, err, &allFailed)

	a.mu.Lock()
	a.err = nil
	a.reply = "back"
	a.mu.Unlock()

	m.probeSidelined(context.Background())

	status, _ := reg.Status("a")
	assert.True(t, status.Available)
	assert.Equal(t, KindNone, status.LastErrorCause)
}

func TestProbeSkipsSessionDisabled(t *testing.T) {
	a := &stubProvider{name: "a", err: statusError("a", 401, []byte("bad key"), "")}
	m, reg := newTestManager(t, a)

	_, err := m.Enhance(context.Background(), textRequest())
	var allFailed *AllFailedError
	require.ErrorAs(t, err, &allFailed)

	a.mu.Lock()
	a.err = nil
	a.healthErr = nil
	a.mu.Unlock()

	m.probeSidelined(context.Background())

	status, _ := reg.Status("a")
	assert.False(t, status.Available)
	assert.True(t, status.DisabledForSession())
}

func TestRetryAfterHintShortensCooldown(t *testing.T) {
	a := &stubProvider{name: "a", err: statusError("a", 429, []byte("busy"), "5")}
	b := &stubProvider{name: "b", reply: "ok"}
	m, reg := newTestManager(t, a, b)

	_, err := m.Enhance(context.Background(), textRequest())
	require.NoError(t, err)

	status, _ := reg.Status("a")
	remaining := status.CooldownRemaining(time.Now())
	assert.Greater(t, remaining, time.Duration(0))
	assert.LessOrEqual(t, remaining, 5*time.Second)
}
