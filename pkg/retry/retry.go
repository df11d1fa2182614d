// Package retry wraps an operation with bounded retries, exponential
// backoff with optional jitter, and an overall wall-clock budget. A Config
// holds no per-call state, so one config may be shared by many concurrent
// callers.
package retry

import (
	"context"
	"math/rand"
	"time"

	"ufmedic/pkg/errs"
)

// Config controls retry behavior for a class of operations.
type Config struct {
	// MaxRetries is the number of retries after the first attempt, so an
	// operation runs at most MaxRetries+1 times. Must be >= 0.
	MaxRetries int

	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration

	// MaxDelay caps the computed backoff delay.
	MaxDelay time.Duration

	// BackoffFactor multiplies the delay per attempt (delay = base * factor^attempt).
	BackoffFactor float64

	// Jitter scales each delay by a uniform factor in [0.5, 1.0) to avoid
	// synchronized retry storms across concurrent callers.
	Jitter bool

	// Timeout bounds total wall time across attempts. Checked before each
	// attempt; it does not abort an attempt already in flight. Zero means
	// no budget.
	Timeout time.Duration

	// Retryable classifies errors. A nil func means every error is
	// retryable. Non-retryable errors propagate after a single attempt.
	Retryable func(error) bool
}

// sleep is context-aware and replaceable in tests.
var sleep = func(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do runs op up to cfg.MaxRetries+1 times. The name identifies the
// operation in timeout errors. It returns nil on the first success, the
// final error once attempts are exhausted, a TimeoutError when the
// wall-clock budget runs out between attempts, or the original error
// immediately when it is classified non-retryable.
func Do(ctx context.Context, cfg Config, name string, op func(ctx context.Context) error) error {
	var lastErr error
	start := time.Now()

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if cfg.Timeout > 0 {
			if elapsed := time.Since(start); elapsed >= cfg.Timeout {
				return &errs.TimeoutError{Operation: name, Elapsed: elapsed, Limit: cfg.Timeout}
			}
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if cfg.Retryable != nil && !cfg.Retryable(err) {
			return err
		}
		if attempt == cfg.MaxRetries {
			break
		}

		if err := sleep(ctx, Delay(cfg, attempt)); err != nil {
			return err
		}
	}

	return lastErr
}

// Delay computes the backoff delay for the given zero-based attempt index.
func Delay(cfg Config, attempt int) time.Duration {
	factor := cfg.BackoffFactor
	if factor <= 0 {
		factor = 2.0
	}

	d := float64(cfg.BaseDelay)
	for i := 0; i < attempt; i++ {
		d *= factor
	}
	if cfg.MaxDelay > 0 && d > float64(cfg.MaxDelay) {
		d = float64(cfg.MaxDelay)
	}

	if cfg.Jitter {
		d *= 0.5 + rand.Float64()*0.5
	}

	return time.Duration(d)
}
