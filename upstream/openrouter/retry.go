package openrouter

import (
	"context"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
)

// RetryPolicy is the explicit retry state machine for one logical call:
// a fixed attempt budget with exponential backoff between retryable failures.
// Inject a zero-delay policy in tests.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Retryable    map[int]bool
}

// Statuses that must return immediately without consuming retry budget.
// Disjoint from the retryable set; the send loop consults this to flag a
// definitive upstream rejection in the logs.
var nonRetryableStatuses = map[int]bool{
	400: true,
	401: true,
	403: true,
	413: true,
	422: true,
}

// DefaultRetryPolicy mirrors the upstream contract: 3 attempts, 1s initial
// delay, ×2 per attempt, capped at 10s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Retryable: map[int]bool{
			429: true,
			500: true,
			502: true,
			503: true,
			504: true,
		},
	}
}

// delays returns the deterministic delay schedule for one call.
// RandomizationFactor is zeroed so attempt N always waits
// InitialDelay × Multiplier^(N-1), capped at MaxDelay.
func (p RetryPolicy) delays() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.InitialDelay
	bo.Multiplier = p.Multiplier
	bo.MaxInterval = p.MaxDelay
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

// sleepCtx waits for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
