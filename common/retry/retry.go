// Package retry re-runs operations that fail with transient errors, backing
// off exponentially between attempts.
//
// Kioku uses it around SQLite writes, where a concurrent reader holding the
// database lock surfaces as SQLITE_BUSY:
//
//	err := retry.Do(ctx, retry.Config{ShouldRetry: isBusy}, func() error {
//	    _, err := db.ExecContext(ctx, query, args...)
//	    return err
//	})
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Config controls attempts and pacing.
type Config struct {
	// MaxAttempts is the total number of calls including the first.
	// Zero or negative means DefaultConfig.MaxAttempts.
	MaxAttempts int
	// InitialDelay is the pause before the second call; later pauses double
	// up to MaxDelay.
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// ShouldRetry classifies errors. Nil retries every error.
	ShouldRetry func(err error) bool
}

// DefaultConfig suits local storage contention: short waits, a handful of
// attempts.
var DefaultConfig = Config{
	MaxAttempts:  5,
	InitialDelay: 25 * time.Millisecond,
	MaxDelay:     500 * time.Millisecond,
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultConfig.MaxAttempts
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = DefaultConfig.InitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultConfig.MaxDelay
	}
	if c.MaxDelay < c.InitialDelay {
		c.MaxDelay = c.InitialDelay
	}
	if c.ShouldRetry == nil {
		c.ShouldRetry = func(error) bool { return true }
	}
	return c
}

// Do calls fn until it succeeds, returns a non-retryable error, the attempts
// are exhausted, or ctx is done. The last error from fn is returned, joined
// with the context error when cancellation cut the loop short.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	cfg = cfg.withDefaults()

	delay := cfg.InitialDelay
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Join(lastErr, err)
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !cfg.ShouldRetry(lastErr) || attempt == cfg.MaxAttempts {
			return lastErr
		}

		slog.Debug("retry: transient failure",
			"attempt", attempt, "max", cfg.MaxAttempts, "delay", delay, "err", lastErr)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(lastErr, ctx.Err())
		case <-timer.C:
		}

		delay *= 2
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return lastErr
}
