package queue

import (
	"context"
	"time"
)

// RetryPolicy describes a bounded retry loop: how many attempts and how
// long to back off between them.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
}

// ExponentialBackoff returns a backoff function doubling from base:
// base, 2*base, 4*base, ...
func ExponentialBackoff(base time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		d := base
		for i := 1; i < attempt; i++ {
			d *= 2
		}
		return d
	}
}

// DefaultWriteRetry is the send retry policy: 3 attempts backed off
// 2s, 4s, 8s.
func DefaultWriteRetry() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     ExponentialBackoff(2 * time.Second),
	}
}

// Do runs op until it succeeds or attempts are exhausted, sleeping the
// backoff between attempts. beforeRetry, if non-nil, runs before each
// retry (not before the first attempt) and may perform recovery work;
// its error aborts the loop.
func (p RetryPolicy) Do(ctx context.Context, op func() error, beforeRetry func(attempt int) error) error {
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := time.Duration(0)
			if p.Backoff != nil {
				delay = p.Backoff(attempt - 1)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			if beforeRetry != nil {
				if err := beforeRetry(attempt); err != nil {
					return err
				}
			}
		}

		if err := op(); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}
