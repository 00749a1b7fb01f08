package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"

	logger "github.com/sirupsen/logrus"
)

// Policy bounds a retried external call.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy mirrors the limits used for exchange calls.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    8 * time.Second,
	}
}

// retryable is implemented by errors that may succeed on a later attempt
// (timeouts, 5xx-equivalents, rate limits). Validation and authentication
// errors do not implement it and fail immediately.
type retryable interface {
	Retryable() bool
}

// IsRetryable classifies an error. Context cancellation is never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var r retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}

// Do runs fn up to MaxAttempts times with exponential backoff and jitter.
// Only retryable errors trigger another attempt. The last error is returned
// when all attempts exhaust. Callers own the overall timeout via ctx.
func Do(ctx context.Context, policy Policy, name string, fn func(ctx context.Context) error) error {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == policy.MaxAttempts {
			break
		}

		delay := backoffDelay(policy, attempt)
		logger.WithFields(map[string]interface{}{
			"call":    name,
			"attempt": attempt,
			"delay":   delay,
		}).WithError(lastErr).Warn("retryable error, backing off")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return lastErr
}

// backoffDelay doubles the base delay per attempt, caps it at MaxDelay and
// adds up to 25% random jitter.
func backoffDelay(policy Policy, attempt int) time.Duration {
	delay := policy.BaseDelay << (attempt - 1)
	if policy.MaxDelay > 0 && delay > policy.MaxDelay {
		delay = policy.MaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/4 + 1))
	return delay + jitter
}
