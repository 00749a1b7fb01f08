package retry

import (
	"context"
	"fmt"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"
)

// BreakerState is the circuit breaker state machine position.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half_open"
)

// ErrBreakerOpen is returned without invoking the wrapped call while the
// breaker is open.
type BreakerOpenError struct {
	Dependency string
}

func (e *BreakerOpenError) Error() string {
	return fmt.Sprintf("circuit breaker open for %s", e.Dependency)
}

// Breaker is a per-dependency circuit breaker: after FailureThreshold
// failures inside the rolling Window it opens and fails fast for Cooldown,
// then half-opens to probe recovery with a single call.
type Breaker struct {
	name             string
	failureThreshold int
	window           time.Duration
	cooldown         time.Duration

	// onStateChange fires outside critical sections so the orchestrator can
	// append BREAKER_OPENED / BREAKER_CLOSED lifecycle events.
	onStateChange func(name string, from, to BreakerState)

	mu       sync.Mutex
	state    BreakerState
	failures []time.Time
	openedAt time.Time
	probing  bool

	now func() time.Time
}

func NewBreaker(name string, failureThreshold int, window, cooldown time.Duration, onStateChange func(name string, from, to BreakerState)) *Breaker {
	return &Breaker{
		name:             name,
		failureThreshold: failureThreshold,
		window:           window,
		cooldown:         cooldown,
		onStateChange:    onStateChange,
		state:            StateClosed,
		now:              time.Now,
	}
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Execute runs fn through the breaker. While open, it fails fast with
// *BreakerOpenError. In half-open state one probe call is let through; its
// outcome closes or re-opens the breaker.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if transition, err := b.allow(); err != nil {
		return err
	} else if transition != nil {
		transition()
	}

	err := fn(ctx)
	if notify := b.record(err); notify != nil {
		notify()
	}
	return err
}

// allow decides whether a call may proceed. Returns a deferred state-change
// notification when the breaker moved open -> half_open.
func (b *Breaker) allow() (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil, nil

	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return nil, &BreakerOpenError{Dependency: b.name}
		}
		b.setState(StateHalfOpen)
		b.probing = true
		return b.notifyFn(StateOpen, StateHalfOpen), nil

	case StateHalfOpen:
		if b.probing {
			return nil, &BreakerOpenError{Dependency: b.name}
		}
		b.probing = true
		return nil, nil
	}

	return nil, nil
}

// record registers the call outcome and returns a deferred state-change
// notification when the state moved.
func (b *Breaker) record(err error) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()

	if err == nil {
		switch b.state {
		case StateHalfOpen:
			from := b.state
			b.setState(StateClosed)
			b.failures = nil
			b.probing = false
			return b.notifyFn(from, StateClosed)
		case StateClosed:
			b.pruneFailures(now)
		}
		return nil
	}

	if b.state == StateHalfOpen {
		from := b.state
		b.setState(StateOpen)
		b.openedAt = now
		b.probing = false
		return b.notifyFn(from, StateOpen)
	}

	b.failures = append(b.failures, now)
	b.pruneFailures(now)

	if b.state == StateClosed && len(b.failures) >= b.failureThreshold {
		from := b.state
		b.setState(StateOpen)
		b.openedAt = now
		return b.notifyFn(from, StateOpen)
	}

	return nil
}

func (b *Breaker) pruneFailures(now time.Time) {
	cutoff := now.Add(-b.window)
	kept := b.failures[:0]
	for _, t := range b.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.failures = kept
}

func (b *Breaker) setState(state BreakerState) {
	logger.WithFields(map[string]interface{}{
		"dependency": b.name,
		"from":       b.state,
		"to":         state,
	}).Warn("circuit breaker state change")
	b.state = state
}

func (b *Breaker) notifyFn(from, to BreakerState) func() {
	if b.onStateChange == nil {
		return func() {}
	}
	name := b.name
	cb := b.onStateChange
	return func() { cb(name, from, to) }
}
