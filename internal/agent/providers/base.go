package providers

import (
	"context"
	"time"
)

// RetryPolicy controls in-adapter retries for transient failures.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy returns the adapter retry policy: exponential
// backoff from 500ms capped at 4s, at most 3 attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    4 * time.Second,
	}
}

// Delay returns the backoff before the given retry (attempt is 0-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	delay := p.BaseDelay << uint(attempt)
	if delay > p.MaxDelay || delay <= 0 {
		delay = p.MaxDelay
	}
	return delay
}

// Do runs op, retrying while the returned ProviderError is retryable and
// attempts remain. Context cancellation aborts the wait immediately.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.Delay(attempt - 1)):
			}
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}
		pe, ok := IsProviderError(lastErr)
		if !ok || !pe.Retryable() {
			return lastErr
		}
	}
	return lastErr
}
