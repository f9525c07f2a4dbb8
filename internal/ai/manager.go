package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/thehoang-x-five/Rag-OCR/internal/logging"
)

// Cooldown defaults. Quota exhaustion is a daily-scale condition; rate
// limits clear in seconds; transient faults get a middle ground.
const (
	DefaultQuotaCooldown     = time.Hour
	DefaultRateCooldown      = time.Minute
	DefaultTransientCooldown = 5 * time.Minute
	DefaultHealthInterval    = 10 * time.Minute
)

// ManagerConfig tunes cooldown windows and the background health probe.
// Zero values take the defaults above.
type ManagerConfig struct {
	QuotaCooldown     time.Duration
	RateCooldown      time.Duration
	TransientCooldown time.Duration
	HealthInterval    time.Duration
}

func (c *ManagerConfig) applyDefaults() {
	if c.QuotaCooldown <= 0 {
		c.QuotaCooldown = DefaultQuotaCooldown
	}
	if c.RateCooldown <= 0 {
		c.RateCooldown = DefaultRateCooldown
	}
	if c.TransientCooldown <= 0 {
		c.TransientCooldown = DefaultTransientCooldown
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = DefaultHealthInterval
	}
}

// Manager drives priority-ordered dispatch across the registry: it picks
// adapters, interprets their errors into status updates and cooldowns,
// and keeps the sticky preferred provider.
type Manager struct {
	reg *Registry
	cfg ManagerConfig

	// preferred holds the name of the last adapter that succeeded.
	// Single atomically swapped value; last success wins.
	preferred atomic.Value
}

// NewManager creates a manager over a registry.
func NewManager(reg *Registry, cfg ManagerConfig) *Manager {
	cfg.applyDefaults()
	m := &Manager{reg: reg, cfg: cfg}
	m.preferred.Store("")
	return m
}

// Registry exposes the underlying registry for status snapshots.
func (m *Manager) Registry() *Registry {
	return m.reg
}

// Preferred returns the sticky preferred provider name, "" if none.
func (m *Manager) Preferred() string {
	s, _ := m.preferred.Load().(string)
	return s
}

// DispatchRequest is one enhancement dispatch through the fallback chain.
type DispatchRequest struct {
	Messages     []Message
	VisionPrompt string // used instead of Messages on vision-capable adapters
	Hint         DocumentHint
	Image        []byte
	PreferVision bool
}

// Dispatch is a successful dispatch outcome.
type Dispatch struct {
	Provider string
	Model    string
	Text     string
	Latency  time.Duration
	Attempts int
}

// AttemptFailure records why one adapter in the chain failed.
type AttemptFailure struct {
	Provider string
	Cause    Kind
	Message  string
}

// AllFailedError reports that the walk exhausted every eligible adapter.
type AllFailedError struct {
	Failures []AttemptFailure
}

func (e *AllFailedError) Error() string {
	if len(e.Failures) == 0 {
		return "no providers available"
	}
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Provider, f.Cause))
	}
	return "all providers failed: " + strings.Join(parts, "; ")
}

// Enhance walks the eligible adapters in selection order and returns the
// first successful completion. Every adapter error updates that
// provider's status; none of them reach the caller directly. The only
// outcomes are success, *AllFailedError, or the context's error when the
// caller cancels.
func (m *Manager) Enhance(ctx context.Context, req DispatchRequest) (*Dispatch, error) {
	candidates := m.selectCandidates(req)
	if len(candidates) == 0 {
		L_warn("llm: no eligible providers")
		return nil, &AllFailedError{}
	}

	var failures []AttemptFailure
	for i, adapter := range candidates {
		if err := ctx.Err(); err != nil {
			// Cancellation is not evidence of provider failure.
			return nil, err
		}

		name := adapter.Name()
		useVision := req.Image != nil && req.PreferVision
		vp, isVision := AsVision(adapter)
		useVision = useVision && isVision

		model := adapter.Model(req.Hint)
		L_debug("llm: attempting provider", "provider", name, "model", model, "vision", useVision, "position", i+1)

		start := time.Now()
		var text string
		var err error
		if useVision {
			text, err = vp.CompleteVision(ctx, req.VisionPrompt, req.Image, CompleteOptions{})
		} else {
			text, err = adapter.CompleteText(ctx, req.Messages, CompleteOptions{DocumentHint: req.Hint})
		}
		latency := time.Since(start)

		if err == nil {
			m.recordSuccess(name, latency)
			if i > 0 {
				L_info("llm: using fallback provider", "provider", name, "position", i+1)
			}
			return &Dispatch{
				Provider: name,
				Model:    model,
				Text:     text,
				Latency:  latency,
				Attempts: i + 1,
			}, nil
		}

		if ctx.Err() != nil {
			// The adapter failed because the caller went away.
			return nil, ctx.Err()
		}

		kind := KindOf(err)
		m.recordFailure(name, kind, err)
		failures = append(failures, AttemptFailure{Provider: name, Cause: kind, Message: err.Error()})
		L_warn("llm: provider failed, trying next", "provider", name, "cause", kind, "error", err)
	}

	L_error("llm: all providers failed", "attempts", len(failures))
	return nil, &AllFailedError{Failures: failures}
}

// selectCandidates builds the ordered attempt list: eligible adapters,
// sticky preferred first, vision-capable partitioned to the front when an
// image rides along.
func (m *Manager) selectCandidates(req DispatchRequest) []Provider {
	now := time.Now()

	var eligible []Provider
	for _, adapter := range m.reg.ByPriority() {
		status, ok := m.reg.Status(adapter.Name())
		if !ok {
			continue
		}
		// A cooldown expiry automatically re-enables trial.
		if status.Available || !status.InCooldown(now) {
			eligible = append(eligible, adapter)
		}
	}

	if preferred := m.Preferred(); preferred != "" {
		for i, adapter := range eligible {
			if adapter.Name() == preferred && i > 0 {
				eligible = append([]Provider{adapter}, append(eligible[:i:i], eligible[i+1:]...)...)
				break
			}
		}
	}

	if req.PreferVision && req.Image != nil {
		var vision, textOnly []Provider
		for _, adapter := range eligible {
			if _, ok := AsVision(adapter); ok {
				vision = append(vision, adapter)
			} else {
				textOnly = append(textOnly, adapter)
			}
		}
		eligible = append(vision, textOnly...)
	}

	return eligible
}

// recordSuccess clears error state, stores the latency, and makes this
// adapter the sticky preferred one.
func (m *Manager) recordSuccess(name string, latency time.Duration) {
	now := time.Now()
	m.reg.update(name, func(s *Status) {
		s.Available = true
		s.LastChecked = now
		s.LastLatency = latency
		s.LastErrorCause = KindNone
		s.LastErrorMessage = ""
		s.CooldownUntil = time.Time{}
	})
	m.preferred.Store(name)
}

// recordFailure applies the cooldown table for the error kind and clears
// the sticky preferred if it pointed at this adapter.
func (m *Manager) recordFailure(name string, kind Kind, err error) {
	now := time.Now()
	cooldownUntil := m.cooldownFor(now, kind, RetryAfterOf(err))

	m.reg.update(name, func(s *Status) {
		s.Available = false
		s.LastChecked = now
		s.LastErrorCause = kind
		s.LastErrorMessage = err.Error()
		s.CooldownUntil = cooldownUntil
	})

	if m.Preferred() == name {
		m.preferred.Store("")
	}

	if cooldownUntil.Equal(foreverCooldown) {
		L_warn("llm: provider disabled for session", "provider", name, "cause", kind)
	} else {
		L_warn("llm: provider cooldown", "provider", name, "cause", kind,
			"until", cooldownUntil.Format("15:04:05"))
	}
}

// cooldownFor maps an error kind onto its cooldown deadline. A vendor
// reset hint overrides the default window for quota and rate errors.
func (m *Manager) cooldownFor(now time.Time, kind Kind, hint time.Duration) time.Time {
	switch kind {
	case KindQuotaExceeded:
		if hint > 0 {
			return now.Add(hint)
		}
		return now.Add(m.cfg.QuotaCooldown)
	case KindRateLimited:
		if hint > 0 {
			return now.Add(hint)
		}
		return now.Add(m.cfg.RateCooldown)
	case KindInvalidAuth, KindFatal:
		return foreverCooldown
	default:
		return now.Add(m.cfg.TransientCooldown)
	}
}

// StartHealthLoop runs the periodic re-probe of sidelined providers until
// ctx is cancelled. Probes run in parallel; none hold the registry lock
// across I/O.
func (m *Manager) StartHealthLoop(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.cfg.HealthInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.probeSidelined(ctx)
			}
		}
	}()
}

// probeSidelined health-checks every unavailable adapter whose cooldown
// has expired or expires before the next tick, so the next Enhance sees
// fresh eligibility without a trial call.
func (m *Manager) probeSidelined(ctx context.Context) {
	now := time.Now()
	horizon := now.Add(m.cfg.HealthInterval)

	var wg sync.WaitGroup
	for _, adapter := range m.reg.ByPriority() {
		status, ok := m.reg.Status(adapter.Name())
		if !ok || status.Available || status.DisabledForSession() {
			continue
		}
		if status.CooldownUntil.After(horizon) {
			continue
		}

		wg.Add(1)
		go func(adapter Provider) {
			defer wg.Done()
			m.probe(ctx, adapter)
		}(adapter)
	}
	wg.Wait()
}

// probe runs one health check and folds the result into the status table.
func (m *Manager) probe(ctx context.Context, adapter Provider) {
	name := adapter.Name()
	start := time.Now()
	err := adapter.Health(ctx)
	latency := time.Since(start)

	if ctx.Err() != nil {
		return
	}

	if err != nil {
		kind := KindOf(err)
		L_debug("llm: health probe failed", "provider", name, "cause", kind)
		m.recordProbeFailure(name, kind, err)
		return
	}

	L_info("llm: provider recovered", "provider", name, "latency", latency.Round(time.Millisecond))
	now := time.Now()
	m.reg.update(name, func(s *Status) {
		s.Available = true
		s.LastChecked = now
		s.LastLatency = latency
		s.LastErrorCause = KindNone
		s.LastErrorMessage = ""
		s.CooldownUntil = time.Time{}
	})
}

// recordProbeFailure is recordFailure without touching the sticky
// preferred: a background probe must not disturb live dispatch ordering
// beyond the cooldown itself.
func (m *Manager) recordProbeFailure(name string, kind Kind, err error) {
	now := time.Now()
	cooldownUntil := m.cooldownFor(now, kind, RetryAfterOf(err))
	m.reg.update(name, func(s *Status) {
		s.Available = false
		s.LastChecked = now
		s.LastErrorCause = kind
		s.LastErrorMessage = err.Error()
		s.CooldownUntil = cooldownUntil
	})
}
