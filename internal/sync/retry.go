package sync

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RetryConfiguration controls how a failed operation is retried.
//
// Configurations are immutable values created once per environment and
// never mutated: production uses long delays for resilience, the test
// environment uses near-zero delays to keep tests fast.
type RetryConfiguration struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Must be at least 1.
	MaxAttempts int

	// BaseDelay is the delay before the second attempt.
	BaseDelay time.Duration

	// MaxDelay caps the exponential backoff. Must be >= BaseDelay.
	MaxDelay time.Duration

	// BackoffMultiplier grows the delay between attempts. A multiplier
	// of 1 or less disables backoff and every delay equals BaseDelay.
	BackoffMultiplier float64

	// OperationTimeout bounds the whole retry loop, delays included.
	// Zero means no timeout.
	OperationTimeout time.Duration
}

// Validate checks the configuration invariants.
func (c RetryConfiguration) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1 (got %d)", c.MaxAttempts)
	}
	if c.BaseDelay < 0 {
		return fmt.Errorf("base delay must not be negative (got %v)", c.BaseDelay)
	}
	if c.MaxDelay < c.BaseDelay {
		return fmt.Errorf("max delay %v must be >= base delay %v", c.MaxDelay, c.BaseDelay)
	}
	if c.BackoffMultiplier < 0 {
		return fmt.Errorf("backoff multiplier must not be negative (got %v)", c.BackoffMultiplier)
	}
	return nil
}

// DelayForAttempt returns the delay inserted after the given attempt.
// Attempt numbering starts at 1. The function is pure: identical inputs
// always yield identical output, which keeps it unit-testable without
// timing flakiness.
func DelayForAttempt(attempt int, cfg RetryConfiguration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if cfg.BackoffMultiplier <= 1 {
		return cfg.BaseDelay
	}

	delay := float64(cfg.BaseDelay)
	for i := 1; i < attempt; i++ {
		delay *= cfg.BackoffMultiplier
		if time.Duration(delay) >= cfg.MaxDelay {
			return cfg.MaxDelay
		}
	}
	d := time.Duration(delay)
	if d > cfg.MaxDelay {
		return cfg.MaxDelay
	}
	return d
}

// RunWithRetry executes op up to cfg.MaxAttempts times, sleeping
// DelayForAttempt between attempts. The final attempt's error is returned
// when all attempts fail; the operation is never retried beyond
// MaxAttempts.
//
// When cfg.OperationTimeout is set, the whole loop (attempts and delays)
// is bounded by it. On expiry RunWithRetry returns an operationTimeout
// error and any in-flight operation is abandoned: op receives a cancelled
// context but best-effort cancellation is all that is guaranteed.
func RunWithRetry[T any](ctx context.Context, cfg RetryConfiguration, op func(context.Context) (T, error)) (T, error) {
	var zero T

	if err := cfg.Validate(); err != nil {
		return zero, newError(KindUnknown, "invalid retry configuration", err)
	}

	if cfg.OperationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.OperationTimeout)
		defer cancel()
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if timeoutErr := timeoutError(ctx, err); timeoutErr != nil {
			return zero, timeoutErr
		}

		// No delay after the final attempt.
		if attempt == cfg.MaxAttempts {
			break
		}

		if err := sleepContext(ctx, DelayForAttempt(attempt, cfg)); err != nil {
			if timeoutErr := timeoutError(ctx, err); timeoutErr != nil {
				return zero, timeoutErr
			}
			return zero, err
		}
	}

	return zero, lastErr
}

// timeoutError converts a deadline expiry into the operationTimeout error
// kind. Returns nil when the context is still live or was cancelled for
// another reason.
func timeoutError(ctx context.Context, cause error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return newError(KindOperationTimeout, "operation timed out", cause)
	}
	return nil
}

// sleepContext pauses for d or until ctx is done, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
