// Package retry provides the context-aware retry engine used by the
// fetch layer. Backoff is exponential with a hard cap and ±25% jitter,
// so a burst of rate-limited workers does not re-synchronize.
//
// Usage:
//
//	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
//	    return fetchPage()
//	})
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// Config controls retry behaviour.
type Config struct {
	MaxAttempts int           // Total attempts including the first. 0 means no-op.
	BaseDelay   time.Duration // Delay before the first retry.
	MaxDelay    time.Duration // Upper bound on any single delay.
	Jitter      bool          // Add ±25% random jitter to each delay.
}

// DefaultConfig matches the upstream API's documented retry budget:
// 8 attempts, doubling from 1s and capped at 64s, with jitter.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 8,
		BaseDelay:   1 * time.Second,
		MaxDelay:    64 * time.Second,
		Jitter:      true,
	}
}

// StopError wraps an error that must not be retried, such as a 4xx
// response to a malformed query.
type StopError struct {
	Err error
}

func (e *StopError) Error() string { return e.Err.Error() }
func (e *StopError) Unwrap() error { return e.Err }

// Stop wraps err so that Do returns it without further attempts.
func Stop(err error) error {
	return &StopError{Err: err}
}

// sleeper abstracts waiting so tests can run without real delays.
type sleeper interface {
	sleep(ctx context.Context, d time.Duration) error
}

type realSleeper struct{}

func (realSleeper) sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs fn up to cfg.MaxAttempts times, backing off between
// failures. It returns nil on the first success, the wrapped error
// immediately when fn returns a StopError, and otherwise the last
// error. Context cancellation wins over any pending sleep.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	return doWithSleeper(ctx, cfg, fn, realSleeper{})
}

func doWithSleeper(ctx context.Context, cfg Config, fn func() error, s sleeper) error {
	if cfg.MaxAttempts <= 0 {
		return nil
	}

	var lastErr error
	for attempt := range cfg.MaxAttempts {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		var stop *StopError
		if errors.As(lastErr, &stop) {
			return stop.Err
		}

		if attempt < cfg.MaxAttempts-1 {
			if err := s.sleep(ctx, Delay(cfg, attempt)); err != nil {
				return err
			}
		}
	}
	return lastErr
}

// Delay computes the backoff for a given attempt (0-indexed).
func Delay(cfg Config, attempt int) time.Duration {
	delay := cfg.BaseDelay
	for range attempt {
		delay *= 2
		if delay >= cfg.MaxDelay {
			delay = cfg.MaxDelay
			break
		}
	}
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	if cfg.Jitter && delay > 0 {
		quarter := int64(delay) / 4
		if quarter > 0 {
			j := time.Duration(rand.Int64N(quarter))
			if rand.IntN(2) == 0 {
				delay += j
			} else {
				delay -= j
			}
		}
	}
	return delay
}
