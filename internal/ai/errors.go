package ai

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Kind categorizes provider errors for failover and cooldown decisions.
// The taxonomy is closed: adapters map every failure onto one of these.
type Kind string

const (
	KindNone          Kind = ""               // no error
	KindInvalidAuth   Kind = "invalid_auth"   // 401 or vendor "invalid key" signal
	KindQuotaExceeded Kind = "quota_exceeded" // quota/credits exhausted
	KindRateLimited   Kind = "rate_limited"   // 429, or 403 mentioning rates
	KindTransport     Kind = "transport"      // network, DNS, TLS, timeout
	KindBadResponse   Kind = "bad_response"   // 5xx, unparseable or empty body
	KindFatal         Kind = "fatal"          // other 4xx: misconfigured request
)

// Error is the single escape hatch adapters surface to the manager.
type Error struct {
	Provider   string
	Kind       Kind
	Status     int           // HTTP status, 0 for transport failures
	Message    string
	RetryAfter time.Duration // rate-limit reset hint, 0 if none
	Err        error         // underlying cause, may be nil
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: %s (HTTP %d): %s", e.Provider, e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the error kind, returning KindNone for nil and
// KindBadResponse for foreign errors that slipped through.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindBadResponse
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// RetryAfterOf returns the rate-limit reset hint attached to err, if any.
func RetryAfterOf(err error) time.Duration {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.RetryAfter
	}
	return 0
}

// quotaMarkers are the 403 body keywords that mean exhausted credits
// rather than a rejected request.
var quotaMarkers = []string{"quota", "credits", "exhausted", "daily limit"}

// ClassifyStatus maps an HTTP status plus response body onto an error kind.
//
//	401            -> InvalidAuth
//	403 + quota    -> QuotaExceeded
//	403 + "rate"   -> RateLimited
//	429            -> RateLimited
//	other 4xx      -> Fatal
//	everything else-> BadResponse
func ClassifyStatus(status int, body []byte) Kind {
	lower := strings.ToLower(string(body))

	switch {
	case status == http.StatusUnauthorized:
		return KindInvalidAuth
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusForbidden:
		for _, marker := range quotaMarkers {
			if strings.Contains(lower, marker) {
				return KindQuotaExceeded
			}
		}
		if strings.Contains(lower, "rate") {
			return KindRateLimited
		}
		return KindFatal
	case status >= 400 && status < 500:
		return KindFatal
	default:
		return KindBadResponse
	}
}

// ParseRetryAfter reads a Retry-After header value: either delta-seconds
// or an HTTP date. Returns 0 if absent or unparseable.
func ParseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// statusError builds an *Error from a non-2xx vendor response.
func statusError(provider string, status int, body []byte, retryAfter string) *Error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 300 {
		msg = msg[:300]
	}
	return &Error{
		Provider:   provider,
		Kind:       ClassifyStatus(status, body),
		Status:     status,
		Message:    msg,
		RetryAfter: ParseRetryAfter(retryAfter),
	}
}

// transportError wraps a network-level failure (includes timeouts).
func transportError(provider string, err error) *Error {
	return &Error{
		Provider: provider,
		Kind:     KindTransport,
		Message:  err.Error(),
		Err:      err,
	}
}

// badResponseError flags a 2xx response whose body was unusable.
func badResponseError(provider, msg string) *Error {
	return &Error{
		Provider: provider,
		Kind:     KindBadResponse,
		Status:   http.StatusOK,
		Message:  msg,
	}
}
