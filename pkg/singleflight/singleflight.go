// Package singleflight coalesces concurrent calls for the same key into one
// underlying operation. All waiters receive the same result.
package singleflight

import (
	"context"
	"sync"
)

type call[V any] struct {
	done chan struct{}
	val  V
	err  error
}

// Group deduplicates in-flight work by key. The zero value is not usable;
// construct with NewGroup.
type Group[V any] struct {
	mu    sync.Mutex
	calls map[string]*call[V]
}

// NewGroup creates an empty group.
func NewGroup[V any]() *Group[V] {
	return &Group[V]{calls: make(map[string]*call[V])}
}

// Do runs fn once per key at a time. Concurrent callers for the same key
// block until the first call finishes and share its result. The context only
// cancels the wait of the individual caller; the underlying fn keeps running
// for the remaining waiters.
func (g *Group[V]) Do(ctx context.Context, key string, fn func() (V, error)) (V, error) {
	g.mu.Lock()
	if c, ok := g.calls[key]; ok {
		g.mu.Unlock()
		select {
		case <-c.done:
			return c.val, c.err
		case <-ctx.Done():
			var zero V
			return zero, ctx.Err()
		}
	}

	c := &call[V]{done: make(chan struct{})}
	g.calls[key] = c
	g.mu.Unlock()

	c.val, c.err = fn()

	g.mu.Lock()
	delete(g.calls, key)
	g.mu.Unlock()
	close(c.done)

	return c.val, c.err
}

// Forget drops the in-flight record for key so the next Do starts fresh.
// Waiters already attached to the old call still get its result.
func (g *Group[V]) Forget(key string) {
	g.mu.Lock()
	delete(g.calls, key)
	g.mu.Unlock()
}
