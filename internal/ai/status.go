package ai

import "time"

// foreverCooldown is the sentinel for providers disabled for the rest of
// the session (invalid credentials, fatally rejected requests).
var foreverCooldown = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)

// Status is the mutable health record for one adapter. Owned exclusively
// by the Manager; everyone else sees defensive copies.
type Status struct {
	Name             string        `json:"name"`
	Available        bool          `json:"available"`
	LastChecked      time.Time     `json:"lastChecked"`
	LastLatency      time.Duration `json:"lastLatency"`
	LastErrorCause   Kind          `json:"lastErrorCause,omitempty"`
	LastErrorMessage string        `json:"lastErrorMessage,omitempty"`
	CooldownUntil    time.Time     `json:"cooldownUntil"`
	SupportsVision   bool          `json:"supportsVision"`
}

// InCooldown reports whether the provider is inside its cooldown window.
func (s Status) InCooldown(now time.Time) bool {
	return !s.CooldownUntil.IsZero() && now.Before(s.CooldownUntil)
}

// CooldownRemaining returns the time left in the cooldown window, 0 if none.
func (s Status) CooldownRemaining(now time.Time) time.Duration {
	if !s.InCooldown(now) {
		return 0
	}
	return s.CooldownUntil.Sub(now)
}

// DisabledForSession reports whether the provider needs a restart to
// re-enter rotation.
func (s Status) DisabledForSession() bool {
	return s.CooldownUntil.Equal(foreverCooldown)
}

// StateLabel maps the status onto the coarse labels the health endpoint
// serves: available | quota_exceeded | rate_limited | unavailable.
func (s Status) StateLabel(now time.Time) string {
	if s.Available {
		return "available"
	}
	switch s.LastErrorCause {
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "unavailable"
	}
}
