// Package retry centralizes the bounded retry-with-backoff policy used for
// every store and event-log call, replacing per-endpoint ad-hoc retries.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Default policy constants: a handful of quick attempts, never a long stall.
const (
	defaultMaxAttempts     = 3
	defaultInitialInterval = 50 * time.Millisecond
	defaultMaxInterval     = 500 * time.Millisecond
)

// Policy is a reusable bounded retry configuration. The zero value is not
// usable; construct with NewPolicy.
type Policy struct {
	maxAttempts     int
	initialInterval time.Duration
	maxInterval     time.Duration
}

// Option applies a configuration option to the Policy.
type Option func(*Policy)

// WithMaxAttempts sets the total attempt bound (first try included).
func WithMaxAttempts(n int) Option {
	return func(p *Policy) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithInterval sets the initial and maximum backoff intervals.
func WithInterval(initial, max time.Duration) Option {
	return func(p *Policy) {
		if initial > 0 {
			p.initialInterval = initial
		}
		if max >= initial {
			p.maxInterval = max
		}
	}
}

// NewPolicy builds a Policy from defaults plus options.
func NewPolicy(opts ...Option) Policy {
	p := Policy{
		maxAttempts:     defaultMaxAttempts,
		initialInterval: defaultInitialInterval,
		maxInterval:     defaultMaxInterval,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// Permanent marks err as non-retryable: Do returns it immediately.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op up to the attempt bound with exponential backoff between
// failures. Context cancellation and Permanent errors stop immediately.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.initialInterval
	b.MaxInterval = p.maxInterval

	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		var perm *backoff.PermanentError
		if errors.As(lastErr, &perm) {
			return perm.Unwrap()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt == p.maxAttempts {
			break
		}

		select {
		case <-time.After(b.NextBackOff()):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("retries exhausted after %d attempts: %w", p.maxAttempts, lastErr)
}
