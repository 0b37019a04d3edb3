package metaapi

import (
	"context"
	"sync"
	"time"
)

// LimiterPolicy selects how Acquire behaves when the window is full.
type LimiterPolicy int

const (
	// FailFast rejects the call with a RateLimitError carrying a retry-after
	// hint. Composes best with the circuit breaker; default for the client.
	FailFast LimiterPolicy = iota
	// Wait blocks until the oldest timestamp leaves the window or the context
	// is cancelled. Used by background jobs that prefer pacing over errors.
	Wait
)

// RateLimiter bounds outbound call rate with a sliding window of request
// timestamps. Safe for concurrent use; one instance is shared by every
// operation of a client.
type RateLimiter struct {
	mu          sync.Mutex
	timestamps  []time.Time
	maxRequests int
	window      time.Duration
	policy      LimiterPolicy

	now func() time.Time
}

// NewRateLimiter creates a limiter admitting at most maxRequests per window.
func NewRateLimiter(maxRequests int, window time.Duration, policy LimiterPolicy) *RateLimiter {
	return &RateLimiter{
		timestamps:  make([]time.Time, 0, maxRequests),
		maxRequests: maxRequests,
		window:      window,
		policy:      policy,
		now:         time.Now,
	}
}

// Acquire admits one request or refuses it according to the policy. Under
// FailFast a full window yields a RateLimitError; under Wait the call sleeps
// until a slot frees up or ctx is done.
func (rl *RateLimiter) Acquire(ctx context.Context) error {
	for {
		retryAfter, ok := rl.tryAcquire()
		if ok {
			return nil
		}
		if rl.policy == FailFast {
			return &RateLimitError{RetryAfter: retryAfter}
		}

		timer := time.NewTimer(retryAfter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// tryAcquire purges expired timestamps and either records a new one or
// returns how long until the oldest entry leaves the window.
func (rl *RateLimiter) tryAcquire() (time.Duration, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-rl.window)

	kept := rl.timestamps[:0]
	for _, ts := range rl.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	rl.timestamps = kept

	if len(rl.timestamps) >= rl.maxRequests {
		oldest := rl.timestamps[0]
		return oldest.Sub(cutoff), false
	}

	rl.timestamps = append(rl.timestamps, now)
	return 0, true
}

// Usage returns how many slots are currently occupied.
func (rl *RateLimiter) Usage() (used, limit int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.window)
	used = 0
	for _, ts := range rl.timestamps {
		if ts.After(cutoff) {
			used++
		}
	}
	return used, rl.maxRequests
}
