package retriever

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy bounds how often a single-item protocol is re-attempted and
// how long to wait between attempts. The whole protocol sequence retries as
// a unit; delays grow exponentially and are clamped to [MinDelay, MaxDelay].
type RetryPolicy struct {
	MaxAttempts int
	MinDelay    time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy returns the production policy: two total attempts with
// a base-2 exponential delay clamped between 2s and 5s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 2,
		MinDelay:    2 * time.Second,
		MaxDelay:    5 * time.Second,
	}
}

// ShouldRetry decides whether another attempt is allowed after the given
// number of completed attempts. Context cancellation is never retried.
func (p RetryPolicy) ShouldRetry(err error, attempts int) bool {
	if err == nil {
		return false
	}
	if attempts >= p.MaxAttempts {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// Backoff returns the wait before the next attempt, given the number of
// attempts already made.
func (p RetryPolicy) Backoff(attempts int) time.Duration {
	d := time.Second
	for i := 0; i < attempts; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d < p.MinDelay {
		return p.MinDelay
	}
	return d
}
