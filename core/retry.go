package core

import (
	"context"
	"time"
)

const (
	DefaultRetryMaxAttempts = 3
	DefaultRetryBaseDelay   = time.Second
)

type SleepFunc func(ctx context.Context, delay time.Duration) error

type RetryOptions struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Operation   string
	Logger      Logger
	Sleep       SleepFunc
}

func (o RetryOptions) normalized() RetryOptions {
	if o.MaxAttempts < 1 {
		o.MaxAttempts = DefaultRetryMaxAttempts
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = DefaultRetryBaseDelay
	}
	if o.Sleep == nil {
		o.Sleep = waitWithContext
	}
	if o.Operation == "" {
		o.Operation = "operation"
	}
	return o
}

// LinearBackoff is the wait before the attempt following the given one.
func LinearBackoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base * time.Duration(attempt)
}

// Retry runs op until it succeeds, fails with a non-retriable error, or the
// attempt budget is spent. Failures are returned classified.
func Retry[T any](ctx context.Context, op func(context.Context) (T, error), options RetryOptions) (T, error) {
	options = options.normalized()
	var zero T
	var lastErr *TypedError
	for attempt := 1; attempt <= options.MaxAttempts; attempt++ {
		out, err := op(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = ClassifyError(err)
		if !lastErr.Retriable() || attempt == options.MaxAttempts {
			break
		}
		delay := LinearBackoff(options.BaseDelay, attempt)
		if options.Logger != nil {
			options.Logger.Warn("retrying after failure",
				"operation", options.Operation,
				"attempt", attempt,
				"max_attempts", options.MaxAttempts,
				"delay_ms", delay.Milliseconds(),
				"kind", string(lastErr.Kind()),
				"error", lastErr.Error(),
			)
		}
		if err := options.Sleep(ctx, delay); err != nil {
			return zero, ClassifyError(err)
		}
	}
	return zero, lastErr
}

// WithRetry wraps op so every invocation runs under the retry policy.
func WithRetry[I any, O any](op func(context.Context, I) (O, error), options RetryOptions) func(context.Context, I) (O, error) {
	return func(ctx context.Context, input I) (O, error) {
		return Retry(ctx, func(ctx context.Context) (O, error) {
			return op(ctx, input)
		}, options)
	}
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
