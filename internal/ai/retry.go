package ai

import (
	"context"
	"math/rand"
	"time"
)

// Adapter-side retry policy: transport errors are retried under the
// configured budget with exponential backoff and full jitter. A rate
// limit with a short reset hint is retried once in place; longer hints
// propagate to the manager, which owns cooldown decisions.
const (
	retryBaseDelay      = 500 * time.Millisecond
	retryMaxDelay       = 4 * time.Second
	retryRateLimitGrace = 2 * time.Second
)

// backoffDelay returns the full-jitter delay for the given attempt (0-based).
func backoffDelay(attempt int) time.Duration {
	d := retryBaseDelay << attempt
	if d > retryMaxDelay || d <= 0 {
		d = retryMaxDelay
	}
	return time.Duration(rand.Int63n(int64(d) + 1))
}

// withRetry runs fn under the adapter retry policy. maxRetries counts
// additional attempts after the first.
func withRetry(ctx context.Context, provider string, maxRetries int, fn func() (string, error)) (string, error) {
	rateLimitRetried := false

	for attempt := 0; ; attempt++ {
		text, err := fn()
		if err == nil {
			return text, nil
		}

		var delay time.Duration
		switch KindOf(err) {
		case KindTransport:
			if attempt >= maxRetries {
				return "", err
			}
			delay = backoffDelay(attempt)
		case KindRateLimited:
			hint := RetryAfterOf(err)
			if rateLimitRetried || hint == 0 || hint > retryRateLimitGrace {
				return "", err
			}
			rateLimitRetried = true
			delay = hint
		default:
			return "", err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", transportError(provider, ctx.Err())
		case <-timer.C:
		}
	}
}
