// Package retry runs node and facilitator calls with exponential backoff.
// Only errors the caller classifies as transient are retried; everything else
// is returned on the first failure.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/algox402/x402-go"
)

// Config holds retry configuration.
type Config struct {
	MaxAttempts  int           // Maximum number of attempts (including initial attempt)
	InitialDelay time.Duration // Delay before the first retry
	MaxDelay     time.Duration // Upper bound on any single delay
	Multiplier   float64       // Backoff growth factor
}

// DefaultConfig is used for simulation and remote facilitator calls.
var DefaultConfig = Config{
	MaxAttempts:  3,
	InitialDelay: 100 * time.Millisecond,
	MaxDelay:     2 * time.Second,
	Multiplier:   2.0,
}

// IsRetryable determines if an error should trigger a retry.
type IsRetryable func(error) bool

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err so that no predicate retries it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Transient retries unavailable nodes and facilitators and network-level
// failures such as timeouts and refused connections.
func Transient(err error) bool {
	if err == nil || IsPermanent(err) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, x402.ErrFacilitatorUnavailable) || errors.Is(err, x402.ErrNodeUnavailable) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// WithRetry calls fn until it succeeds, returns an error isRetryable rejects,
// attempts run out, or ctx is done.
func WithRetry[T any](
	ctx context.Context,
	config Config,
	isRetryable IsRetryable,
	fn func() (T, error),
) (T, error) {
	var zero T
	attempts := config.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := config.InitialDelay

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("context cancelled: %w", err)
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if IsPermanent(err) || !isRetryable(err) {
			return zero, err
		}
		if attempt == attempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		}
		delay = next(delay, config)
	}

	return zero, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func next(delay time.Duration, config Config) time.Duration {
	mult := config.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := time.Duration(float64(delay) * mult)
	if config.MaxDelay > 0 && d > config.MaxDelay {
		d = config.MaxDelay
	}
	return d
}

// WithSimpleRetry retries fn with DefaultConfig.
func WithSimpleRetry[T any](
	ctx context.Context,
	fn func() (T, error),
	isRetryable IsRetryable,
) (T, error) {
	return WithRetry(ctx, DefaultConfig, isRetryable, fn)
}

// Do is WithRetry for calls that return only an error.
func Do(ctx context.Context, config Config, isRetryable IsRetryable, fn func() error) error {
	_, err := WithRetry(ctx, config, isRetryable, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
