// Package retry wraps cenkalti/backoff behind a small bounded-attempt
// policy that the translation pipeline injects instead of ad hoc loops.
// Attempts run sequentially, never fanned out, so a degraded downstream is
// not amplified.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy is a bounded, sequential retry policy with exponential backoff.
// The zero value performs exactly one attempt.
type Policy struct {
	// Retries is the number of additional attempts after the first failure.
	Retries int
	// InitialInterval seeds the exponential backoff (default 500ms).
	InitialInterval time.Duration
}

// New returns a policy with the given retry budget.
func New(retries int) Policy {
	return Policy{Retries: retries, InitialInterval: 500 * time.Millisecond}
}

// Permanent marks err as non-retryable: Do returns it immediately without
// consuming further attempts. Used for rate limits and invalid input.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op until it succeeds, the attempt budget is exhausted, err is
// permanent, or ctx is done. The last error is returned on exhaustion.
func (p Policy) Do(ctx context.Context, op func() error) error {
	interval := p.InitialInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = interval

	wrapped := func() (struct{}, error) {
		return struct{}{}, op()
	}
	_, err := backoff.Retry(ctx, wrapped,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(p.Retries+1)),
	)
	return err
}
