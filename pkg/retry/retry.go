// Package retry implements the policy-driven retry/backoff engine used by the
// transport and request layers.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"thordata-sdk/pkg/thorerr"
)

// Config is an immutable retry policy, safe to share across calls.
type Config struct {
	MaxRetries   int
	Backoff      time.Duration // base delay, doubled per attempt
	MaxBackoff   time.Duration // cap applied before jitter
	Jitter       bool
	JitterFactor float64
}

// DefaultConfig returns the policy used when callers pass nothing: three
// retries, 1s base doubling to a 30s cap, 25% jitter.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   3,
		Backoff:      time.Second,
		MaxBackoff:   30 * time.Second,
		Jitter:       true,
		JitterFactor: 0.25,
	}
}

// Delay computes the backoff for a zero-based attempt: Backoff * 2^attempt,
// capped at MaxBackoff. With jitter the result is perturbed within
// JitterFactor of the base delay and kept strictly positive so callers never
// busy-loop.
func (c Config) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := float64(c.Backoff) * math.Pow(2, float64(attempt))
	if base > float64(c.MaxBackoff) {
		base = float64(c.MaxBackoff)
	}
	if !c.Jitter {
		return time.Duration(base)
	}

	// Uniform in [base*(1-f), base*(1+f)).
	d := time.Duration(base * (1 - c.JitterFactor + 2*c.JitterFactor*rand.Float64()))
	if d <= 0 {
		d = time.Millisecond
	}
	return d
}

// ShouldRetry decides whether another attempt is warranted. Once attempt
// reaches MaxRetries the answer is no regardless of the error. Otherwise the
// status code is checked against the retryable set, then the error
// classification.
func (c Config) ShouldRetry(err error, attempt, statusCode int) bool {
	if attempt >= c.MaxRetries {
		return false
	}
	if thorerr.RetryableStatus(statusCode) {
		return true
	}
	return thorerr.Retryable(err)
}

// OnRetry observes each retry decision before the backoff sleep.
type OnRetry func(attempt int, err error, delay time.Duration)

// Do invokes fn until it succeeds or the policy gives up, sleeping between
// attempts. A rate-limit wait hint on the error overrides the computed
// backoff. The sleep is cancellable through ctx; on cancellation the context
// error is returned. After exhausting retries the original error is returned
// unchanged.
func Do[T any](ctx context.Context, cfg Config, fn func() (T, error), onRetry OnRetry) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		if !cfg.ShouldRetry(err, attempt, thorerr.StatusCode(err)) {
			return zero, err
		}

		delay := cfg.Delay(attempt)
		if hint := thorerr.RetryAfter(err); hint > 0 {
			delay = hint
		}
		if onRetry != nil {
			onRetry(attempt, err, delay)
		}
		if werr := wait(ctx, delay); werr != nil {
			return zero, werr
		}
	}
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Request is the scoped controller for call sites that drive retries
// manually instead of wrapping a callable.
type Request struct {
	cfg     Config
	attempt int
	lastErr error
}

func NewRequest(cfg Config) *Request {
	return &Request{cfg: cfg}
}

// Attempt reports how many failures have been recorded so far.
func (r *Request) Attempt() int {
	return r.attempt
}

// ShouldContinue records a failure and reports whether the policy allows
// another attempt.
func (r *Request) ShouldContinue(err error) bool {
	r.lastErr = err
	ok := r.cfg.ShouldRetry(err, r.attempt, thorerr.StatusCode(err))
	r.attempt++
	return ok
}

// Wait sleeps for the computed backoff (or the rate-limit hint from the last
// recorded error) and returns the delay actually used.
func (r *Request) Wait(ctx context.Context) (time.Duration, error) {
	attempt := r.attempt - 1
	if attempt < 0 {
		attempt = 0
	}
	delay := r.cfg.Delay(attempt)
	if hint := thorerr.RetryAfter(r.lastErr); hint > 0 {
		delay = hint
	}
	if err := wait(ctx, delay); err != nil {
		return 0, err
	}
	return delay, nil
}
