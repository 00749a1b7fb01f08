package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

type transientError struct{ msg string }

func (e *transientError) Error() string   { return e.msg }
func (e *transientError) Retryable() bool { return true }

type permanentError struct{ msg string }

func (e *permanentError) Error() string   { return e.msg }
func (e *permanentError) Retryable() bool { return false }

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestDoStopsAtMaxAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(5), "place_order", func(context.Context) error {
		calls++
		return &transientError{msg: "timeout"}
	})

	if err == nil {
		t.Fatal("expected the last error returned")
	}
	if calls != 5 {
		t.Fatalf("expected exactly 5 attempts, got %d", calls)
	}
}

func TestDoNonRetryableFailsImmediately(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(5), "place_order", func(context.Context) error {
		calls++
		return &permanentError{msg: "invalid quantity"}
	})

	var perm *permanentError
	if !errors.As(err, &perm) {
		t.Fatalf("expected the permanent error back, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestDoSucceedsMidway(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(5), "get_order", func(context.Context) error {
		calls++
		if calls < 3 {
			return &transientError{msg: "rate limited"}
		}
		return nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected success on attempt 3, got %d attempts", calls)
	}
}

func TestDoContextCancelStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := Do(ctx, Policy{MaxAttempts: 10, BaseDelay: 50 * time.Millisecond}, "open_orders", func(context.Context) error {
		calls++
		cancel()
		return &transientError{msg: "timeout"}
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected no further attempts after cancel, got %d", calls)
	}
}

func TestIsRetryableClassification(t *testing.T) {
	if IsRetryable(nil) {
		t.Fatal("nil is not retryable")
	}
	if !IsRetryable(&transientError{msg: "x"}) {
		t.Fatal("transient error should be retryable")
	}
	if IsRetryable(&permanentError{msg: "x"}) {
		t.Fatal("permanent error must not be retryable")
	}
	if IsRetryable(errors.New("plain")) {
		t.Fatal("unclassified errors must not be retryable")
	}
	if IsRetryable(context.DeadlineExceeded) {
		t.Fatal("deadline exceeded must never be retried")
	}

	wrapped := errors.Join(errors.New("outer"), &transientError{msg: "inner"})
	if !IsRetryable(wrapped) {
		t.Fatal("classification must unwrap")
	}
}
