package errors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chemagent/internal/logging"
)

// RetryConfig bounds Retry. MaxAttempts counts retries after the first try;
// the delay doubles from BaseDelay up to MaxDelay.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// FixedDelayConfig makes attempts total tries separated by a constant delay.
func FixedDelayConfig(attempts int, delay time.Duration) RetryConfig {
	if attempts < 1 {
		attempts = 1
	}
	return RetryConfig{MaxAttempts: attempts - 1, BaseDelay: delay, MaxDelay: delay}
}

// Retry calls fn until it succeeds, fails with a non-transient error, or the
// attempts run out. A TransientError's RetryAfter extends the wait.
func Retry[T any](ctx context.Context, cfg RetryConfig, logger logging.Logger, fn func(ctx context.Context) (T, error)) (T, error) {
	logger = logging.OrNop(logger)
	var zero T
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("context cancelled: %w", err)
		}
		v, err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				logger.Info("Succeeded on attempt %d", attempt+1)
			}
			return v, nil
		}
		lastErr = err
		if !IsTransient(err) {
			return zero, err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		wait := backoff(attempt, cfg)
		var transient *TransientError
		if errors.As(err, &transient) && transient.RetryAfter > wait {
			wait = transient.RetryAfter
		}
		logger.Debug("Attempt %d/%d failed, retrying in %v: %v", attempt+1, cfg.MaxAttempts+1, wait, err)

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		}
	}
	logger.Warn("Giving up after %d attempts: %v", cfg.MaxAttempts+1, lastErr)
	return zero, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func backoff(attempt int, cfg RetryConfig) time.Duration {
	d := cfg.BaseDelay << attempt
	if d < cfg.BaseDelay || (cfg.MaxDelay > 0 && d > cfg.MaxDelay) {
		d = cfg.MaxDelay
	}
	return d
}
