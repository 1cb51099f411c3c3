package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// DefaultMaxAttempts bounds how many times a fetch is tried.
const DefaultMaxAttempts = 4

// ErrPermanent marks failures that retrying cannot fix.
var ErrPermanent = errors.New("permanent failure")

// Permanent wraps err so Retryable reports false.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// Retryable decides whether the error is transient.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrPermanent) {
		return false
	}
	return true
}

// RetryPolicy retries transient failures with a uniformly random delay in
// [DelayMin, DelayMax] between attempts.
type RetryPolicy struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	DelayMin    time.Duration `mapstructure:"retry_delay_min"`
	DelayMax    time.Duration `mapstructure:"retry_delay_max"`

	// Sleep defaults to SleepContext.
	Sleep Sleeper `mapstructure:"-"`
}

// Attempts returns the effective ceiling.
func (p RetryPolicy) Attempts() int {
	if p.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return p.MaxAttempts
}

// Backoff draws the delay before the next attempt.
func (p RetryPolicy) Backoff() time.Duration {
	delay := p.DelayMin
	if span := p.DelayMax - p.DelayMin; span > 0 {
		delay += time.Duration(rand.Int64N(int64(span) + 1)) //nolint:gosec // jitter only
	}
	return delay
}

// Do runs op until it succeeds, returns a non-retryable error, or the ceiling
// is reached. onRetry runs before each backoff sleep.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error, onRetry func(attempt int, err error)) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	maxAttempts := p.Attempts()
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if !Retryable(err) || attempt == maxAttempts {
			break
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}
		if serr := sleep(ctx, p.Backoff()); serr != nil {
			return fmt.Errorf("retry backoff: %w", serr)
		}
	}
	return err
}
