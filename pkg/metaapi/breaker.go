package metaapi

import (
	"context"
	"sync"
	"time"
)

// BreakerState enumerates circuit breaker states.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "OPEN"
	case BreakerHalfOpen:
		return "HALF_OPEN"
	default:
		return "CLOSED"
	}
}

// CircuitBreaker trips open after failureThreshold consecutive failures and
// recovers through a single half-open probe once resetTimeout has elapsed.
// Transitions depend only on the failure counter and elapsed time. Use one
// instance per logical resource, never a process-wide singleton.
type CircuitBreaker struct {
	mu               sync.Mutex
	state            BreakerState
	failures         int
	lastFailure      time.Time
	failureThreshold int
	resetTimeout     time.Duration

	now func() time.Time
}

// NewCircuitBreaker creates a closed breaker. Zero arguments fall back to the
// defaults of 5 failures and a 60s reset timeout.
func NewCircuitBreaker(failureThreshold int, resetTimeout time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if resetTimeout <= 0 {
		resetTimeout = 60 * time.Second
	}
	return &CircuitBreaker{
		state:            BreakerClosed,
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		now:              time.Now,
	}
}

// Execute runs op through the breaker. While OPEN it fails immediately with
// ErrCircuitOpen unless the reset timeout has elapsed, in which case exactly
// one probe call is let through. A half-open success closes the breaker and
// resets the counter; a half-open failure reopens it and restarts the clock.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := cb.beforeCall(); err != nil {
		return err
	}

	err := op(ctx)
	cb.afterCall(err)
	return err
}

func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerOpen:
		if cb.now().Sub(cb.lastFailure) > cb.resetTimeout {
			cb.state = BreakerHalfOpen
			return nil
		}
		return ErrCircuitOpen
	case BreakerHalfOpen:
		// Only one probe at a time; concurrent callers are rejected until it
		// resolves.
		return ErrCircuitOpen
	default:
		return nil
	}
}

func (cb *CircuitBreaker) afterCall(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.failures = 0
		cb.state = BreakerClosed
		return
	}

	cb.lastFailure = cb.now()
	if cb.state == BreakerHalfOpen {
		cb.state = BreakerOpen
		return
	}

	cb.failures++
	if cb.failures >= cb.failureThreshold {
		cb.state = BreakerOpen
	}
}

// State returns the current state, accounting for an elapsed reset timeout.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == BreakerOpen && cb.now().Sub(cb.lastFailure) > cb.resetTimeout {
		return BreakerHalfOpen
	}
	return cb.state
}

// Failures returns the consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}
