package llm

import (
	"context"
	"fmt"
	"time"
)

// RetryPolicy describes bounded exponential backoff for transient provider
// failures.
type RetryPolicy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Deadline     time.Duration // overall budget across all attempts
}

// DefaultRetryPolicy matches the provider guidance: start at 60s, double,
// cap at 600s, give up after 5 minutes total.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialDelay: 60 * time.Second,
		MaxDelay:     600 * time.Second,
		Multiplier:   2,
		Deadline:     300 * time.Second,
	}
}

// Retry runs fn, backing off and retrying while the failure is transient
// and the deadline has not expired. Non-transient errors return
// immediately.
func Retry(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) error) error {
	if policy.Multiplier < 1 {
		policy.Multiplier = 2
	}

	deadline := time.Now().Add(policy.Deadline)
	delay := policy.InitialDelay

	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		if time.Now().Add(delay).After(deadline) {
			return fmt.Errorf("retry deadline exhausted after %d attempts: %w", attempt+1, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * policy.Multiplier)
		if delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}
}
