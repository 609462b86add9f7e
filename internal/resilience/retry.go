// Package resilience provides the retry helper for transient external
// failures: dial rejections, webhook timeouts, flaky transcription and model
// calls. Attempts are spaced by capped exponential backoff with seeded
// jitter so replays under a fixed seed reproduce the same schedule.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Default retry parameters.
const (
	defaultMaxAttempts = 3
	defaultBackoff     = 1 * time.Second
	defaultMaxBackoff  = 30 * time.Second
)

// Permanent wraps err to stop a retry loop immediately. Retry returns the
// wrapped error without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Retrier runs operations with capped exponential backoff. The zero value is
// not usable; construct with New.
//
// Safe for concurrent use; concurrent Retry calls share the seeded jitter
// source under a mutex.
type Retrier struct {
	maxAttempts int
	backoff     time.Duration
	maxBackoff  time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures a [Retrier].
type Option func(*Retrier)

// WithMaxAttempts sets the total number of attempts (first try included).
// Defaults to 3.
func WithMaxAttempts(n int) Option {
	return func(r *Retrier) { r.maxAttempts = n }
}

// WithBackoff sets the initial delay between attempts. Doubles per attempt
// up to the cap. Defaults to 1s.
func WithBackoff(d time.Duration) Option {
	return func(r *Retrier) { r.backoff = d }
}

// WithMaxBackoff sets the upper limit on the delay. Defaults to 30s.
func WithMaxBackoff(d time.Duration) Option {
	return func(r *Retrier) { r.maxBackoff = d }
}

// New creates a Retrier. seed fixes the jitter sequence; pass the run's
// random seed so retry timing is reproducible.
func New(seed int64, opts ...Option) *Retrier {
	r := &Retrier{
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
		maxBackoff:  defaultMaxBackoff,
		rng:         rand.New(rand.NewSource(seed)),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Retry invokes fn until it succeeds, returns a Permanent error, the attempt
// budget is spent, or ctx is cancelled. The returned error is the last
// failure, wrapped with the attempt count when the budget ran out.
func (r *Retrier) Retry(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}
		if attempt == r.maxAttempts {
			break
		}

		select {
		case <-time.After(r.delay(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("resilience: %d attempts failed: %w", r.maxAttempts, lastErr)
}

// delay computes the wait before the next attempt: backoff doubled per
// completed attempt, capped, with up to 25% added jitter.
func (r *Retrier) delay(attempt int) time.Duration {
	d := r.backoff << (attempt - 1)
	if d > r.maxBackoff || d <= 0 {
		d = r.maxBackoff
	}

	r.mu.Lock()
	jitter := time.Duration(r.rng.Int63n(int64(d)/4 + 1))
	r.mu.Unlock()

	return d + jitter
}
