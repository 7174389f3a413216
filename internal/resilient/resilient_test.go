package resilient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestCallWithRetries_RetryableSucceedsWithinAttempts(t *testing.T) {
	attempts := 0
	start := time.Now()

	result, err := CallWithRetries(context.Background(), func(ctx context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("service unavailable")
		}
		return "ok", nil
	}, CallOptions{MaxAttempts: 3, InitialDelay: 10 * time.Millisecond})

	if err != nil {
		t.Fatalf("CallWithRetries() error = %v", err)
	}
	if result != "ok" {
		t.Errorf("result = %q, want %q", result, "ok")
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}

	// Backoff is initialDelay * 2^(attempt-1): 10ms + 20ms before success.
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("elapsed = %v, want >= 30ms of backoff", elapsed)
	}
}

func TestCallWithRetries_NonRetryableFailsImmediately(t *testing.T) {
	attempts := 0
	start := time.Now()

	_, err := CallWithRetries(context.Background(), func(ctx context.Context) (string, error) {
		attempts++
		return "", errors.New("invalid request: malformed prompt")
	}, CallOptions{MaxAttempts: 3, InitialDelay: 100 * time.Millisecond})

	if err == nil {
		t.Fatal("CallWithRetries() expected error")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("elapsed = %v, non-retryable errors must not wait", elapsed)
	}
}

func TestCallWithRetries_ExhaustsAttempts(t *testing.T) {
	attempts := 0

	_, err := CallWithRetries(context.Background(), func(ctx context.Context) (int, error) {
		attempts++
		return 0, fmt.Errorf("upstream overloaded (attempt %d)", attempts)
	}, CallOptions{MaxAttempts: 3, InitialDelay: time.Millisecond})

	if err == nil {
		t.Fatal("CallWithRetries() expected error")
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if !strings.Contains(err.Error(), "overloaded") {
		t.Errorf("error %q does not name the underlying cause", err)
	}
}

func TestCallWithRetries_RateLimitErrorIsRetryable(t *testing.T) {
	attempts := 0

	_, err := CallWithRetries(context.Background(), func(ctx context.Context) (string, error) {
		attempts++
		if attempts == 1 {
			return "", &RateLimitError{Message: "slow down", StatusCode: 429}
		}
		return "ok", nil
	}, CallOptions{MaxAttempts: 2, InitialDelay: time.Millisecond})

	if err != nil {
		t.Fatalf("CallWithRetries() error = %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestWithFallback_SecondaryUsedAfterPrimaryExhausts(t *testing.T) {
	primaryCalls, secondaryCalls := 0, 0

	result, err := WithFallback(context.Background(),
		func(ctx context.Context) (string, error) {
			primaryCalls++
			return "", errors.New("status 503: overloaded")
		},
		func(ctx context.Context) (string, error) {
			secondaryCalls++
			return "from-secondary", nil
		},
		CallOptions{MaxAttempts: 2, InitialDelay: time.Millisecond},
	)

	if err != nil {
		t.Fatalf("WithFallback() error = %v", err)
	}
	if result != "from-secondary" {
		t.Errorf("result = %q, want from-secondary", result)
	}
	if primaryCalls != 2 {
		t.Errorf("primary calls = %d, want 2", primaryCalls)
	}
	if secondaryCalls != 1 {
		t.Errorf("secondary calls = %d, want 1", secondaryCalls)
	}
}

func TestWithFallback_BothExhaustedCombinedError(t *testing.T) {
	_, err := WithFallback(context.Background(),
		func(ctx context.Context) (string, error) { return "", errors.New("primary down for timeout") },
		func(ctx context.Context) (string, error) { return "", errors.New("secondary rejected: bad key") },
		CallOptions{MaxAttempts: 1, InitialDelay: time.Millisecond},
	)

	if err == nil {
		t.Fatal("WithFallback() expected error")
	}
	for _, want := range []string{"primary down", "secondary rejected"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("combined error %q missing %q", err, want)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limit text", errors.New("rate limit exceeded"), true},
		{"overloaded", errors.New("model is overloaded"), true},
		{"service unavailable", errors.New("503 Service Unavailable"), true},
		{"timeout", errors.New("context deadline exceeded (Client.Timeout)"), true},
		{"typed rate limit", &RateLimitError{Message: "429"}, true},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"bad request", errors.New("invalid request payload"), false},
		{"parse failure", errors.New("failed to parse structured JSON"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
