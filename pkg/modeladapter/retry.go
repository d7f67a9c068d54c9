package modeladapter

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/germanamz/shrub/pkg/chats/chat"
	"github.com/germanamz/shrub/pkg/chats/message"
	"github.com/germanamz/shrub/pkg/modeladapter/usage"
)

var _ Executor = (*RetryingExecutor)(nil)

// RetryOpts configures the RetryingExecutor.
type RetryOpts struct {
	MaxRetries int           // Max retries on 429 (default 3).
	BaseDelay  time.Duration // Initial backoff delay (default 1s).
}

// RetryingExecutor wraps an Executor with reactive 429 retry using exponential
// backoff and jitter. Only RateLimitErrors are retried; every other error is
// returned as is. For streams only opening the stream is retried.
type RetryingExecutor struct {
	inner      Executor
	maxRetries int
	baseDelay  time.Duration

	fallbackTracker usage.Tracker

	// sleepFunc is used for testing; defaults to a context-aware sleep.
	sleepFunc func(ctx context.Context, d time.Duration) error
	// randFunc returns a random float64 in [0,1); used for jitter. Defaults to rand.Float64.
	randFunc func() float64
}

// NewRetryingExecutor wraps inner with 429 retry.
func NewRetryingExecutor(inner Executor, opts RetryOpts) *RetryingExecutor {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}

	return &RetryingExecutor{
		inner:      inner,
		maxRetries: opts.MaxRetries,
		baseDelay:  opts.BaseDelay,
		sleepFunc:  contextSleep,
		randFunc:   rand.Float64,
	}
}

// SetSleepFunc overrides the sleep function (for testing).
func (r *RetryingExecutor) SetSleepFunc(fn func(ctx context.Context, d time.Duration) error) {
	r.sleepFunc = fn
}

// SetRandFunc overrides the random number generator (for testing).
func (r *RetryingExecutor) SetRandFunc(fn func() float64) { r.randFunc = fn }

// contextSleep sleeps for d or until ctx is cancelled.
func contextSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// jitter applies ±25% random jitter to a duration.
func (r *RetryingExecutor) jitter(d time.Duration) time.Duration {
	factor := 0.75 + r.randFunc()*0.5 //nolint:mnd // jitter range: ±25%
	return time.Duration(float64(d) * factor)
}

// backoff returns the delay before retry number attempt: baseDelay * 2^attempt,
// or RetryAfter if larger, with jitter applied.
func (r *RetryingExecutor) backoff(attempt int, rle *RateLimitError) time.Duration {
	return r.jitter(max(
		r.baseDelay*time.Duration(math.Pow(2, float64(attempt))), //nolint:mnd // exponential backoff formula
		rle.RetryAfter,
	))
}

// retry runs fn until it succeeds, fails with a non-429 error, or retries run out.
func retry[T any](ctx context.Context, r *RetryingExecutor, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := range r.maxRetries + 1 {
		v, err := fn()
		if err == nil {
			return v, nil
		}

		var rle *RateLimitError
		if !errors.As(err, &rle) {
			return zero, err
		}

		lastErr = err

		if attempt >= r.maxRetries {
			break
		}

		if err := r.sleepFunc(ctx, r.backoff(attempt, rle)); err != nil {
			return zero, err
		}
	}

	if lastErr == nil {
		lastErr = errors.New("rate limit: exhausted retries without a successful call")
	}

	return zero, lastErr
}

// Complete implements Completer with 429 retry.
func (r *RetryingExecutor) Complete(ctx context.Context, c *chat.Chat) (message.Message, error) {
	return retry(ctx, r, func() (message.Message, error) {
		return r.inner.Complete(ctx, c)
	})
}

// Stream implements Streamer with 429 retry on stream setup.
func (r *RetryingExecutor) Stream(ctx context.Context, c *chat.Chat) (Stream, error) {
	return retry(ctx, r, func() (Stream, error) {
		return r.inner.Stream(ctx, c)
	})
}

// UsageTracker forwards to the inner executor if it implements UsageReporter.
func (r *RetryingExecutor) UsageTracker() *usage.Tracker {
	if ur, ok := r.inner.(UsageReporter); ok {
		return ur.UsageTracker()
	}
	return &r.fallbackTracker
}
