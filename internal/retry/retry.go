// Package retry provides an explicit retry policy executed by a generic
// combinator, so backoff behavior is testable with fake operations.
package retry

import (
	"context"
	"errors"
	"log"
	"time"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
)

// Policy describes how an operation is retried. Backoff is linear:
// attempt N waits N times the base delay before running again.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	IsRetryable func(error) bool

	// sleep is swapped out in tests
	sleep func(context.Context, time.Duration) error
}

// Default returns the standard policy used for remote chunk processing.
func Default() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		IsRetryable: IsTransient,
	}
}

// IsTransient reports whether an error is worth retrying. Cancellation
// is never retried: the user asked for the whole pipeline to stop.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// Do executes fn under the policy, returning the last error when all
// attempts fail.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	p = p.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if lastErr = fn(ctx); lastErr == nil {
			return nil
		}
		if !p.IsRetryable(lastErr) || attempt == p.MaxAttempts {
			return lastErr
		}

		delay := time.Duration(attempt) * p.BaseDelay
		log.Printf("retry: attempt %d/%d failed, next in %v: %v", attempt, p.MaxAttempts, delay, lastErr)
		if err := p.sleep(ctx, delay); err != nil {
			return err
		}
	}
	return lastErr
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.IsRetryable == nil {
		p.IsRetryable = IsTransient
	}
	if p.sleep == nil {
		p.sleep = sleepCtx
	}
	return p
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// WithSleep returns a copy of the policy using the given sleeper. Tests
// use this to avoid real delays.
func (p Policy) WithSleep(sleep func(context.Context, time.Duration) error) Policy {
	p.sleep = sleep
	return p
}
