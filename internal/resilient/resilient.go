// Package resilient wraps remote operations with retry-with-backoff and
// ordered fallback chains. Every component that talks to a remote service
// goes through this layer.
package resilient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

const (
	// DefaultMaxAttempts is the default number of attempts per call.
	DefaultMaxAttempts = 3

	// DefaultInitialDelay is the backoff base: attempt n waits
	// initialDelay * 2^(n-1).
	DefaultInitialDelay = time.Second
)

// RateLimitError is returned by providers when a service reports 429.
// It is always classified retryable.
type RateLimitError struct {
	Message    string
	RetryAfter time.Duration
	StatusCode int
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry after %s)", e.Message, e.RetryAfter)
	}
	return e.Message
}

// CallOptions configures CallWithRetries.
type CallOptions struct {
	MaxAttempts  uint
	InitialDelay time.Duration
}

func (o CallOptions) withDefaults() CallOptions {
	if o.MaxAttempts == 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.InitialDelay == 0 {
		o.InitialDelay = DefaultInitialDelay
	}
	return o
}

// CallWithRetries invokes op, retrying on retryable failures with
// exponential backoff. Non-retryable errors return immediately without
// any delay.
func CallWithRetries[T any](ctx context.Context, op func(context.Context) (T, error), opts CallOptions) (T, error) {
	opts = opts.withDefaults()

	result, err := retry.DoWithData(
		func() (T, error) { return op(ctx) },
		retry.Context(ctx),
		retry.Attempts(opts.MaxAttempts),
		retry.Delay(opts.InitialDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.MaxJitter(0),
		retry.RetryIf(IsRetryable),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return result, fmt.Errorf("call failed after retries: %w", err)
	}
	return result, nil
}

// Call is CallWithRetries for operations without a result value.
func Call(ctx context.Context, op func(context.Context) error, opts CallOptions) error {
	_, err := CallWithRetries(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, opts)
	return err
}

// WithFallback retries the primary operation and, once its retries are
// exhausted, swaps to the secondary. A combined error is surfaced only
// when both are exhausted.
func WithFallback[T any](ctx context.Context, primary, secondary func(context.Context) (T, error), opts CallOptions) (T, error) {
	result, primaryErr := CallWithRetries(ctx, primary, opts)
	if primaryErr == nil {
		return result, nil
	}
	if ctx.Err() != nil {
		return result, primaryErr
	}

	result, secondaryErr := CallWithRetries(ctx, secondary, opts)
	if secondaryErr == nil {
		return result, nil
	}

	var zero T
	return zero, fmt.Errorf("primary and fallback both failed: primary: %v; fallback: %w", primaryErr, secondaryErr)
}

// retryableSubstrings are error-text signals for transient remote failures.
var retryableSubstrings = []string{
	"rate limit",
	"rate_limit",
	"too many requests",
	"overloaded",
	"service unavailable",
	"service_unavailable",
	"temporarily",
	"timeout",
	"timed out",
	"connection reset",
	"try again",
	"status 429",
	"status 500",
	"status 502",
	"status 503",
	"status 504",
}

// IsRetryable classifies an error as a transient remote failure.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var rateLimited *RateLimitError
	if errors.As(err, &rateLimited) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, s := range retryableSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
