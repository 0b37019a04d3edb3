// Package cache provides a small TTL key/value cache with lazy eviction.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value      V
	insertedAt time.Time
}

// Cache stores values with a per-cache TTL. Entries are evicted lazily on
// read; no background sweeper runs. Each cache owns its own key namespace,
// so unrelated domains (server lists, account stats, broker info) get their
// own instance.
type Cache[V any] struct {
	mu    sync.RWMutex
	items map[string]entry[V]
	ttl   time.Duration

	now func() time.Time // overridable in tests
}

// New creates a cache whose entries expire ttl after insertion.
func New[V any](ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		items: make(map[string]entry[V]),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Set stores value under key with the current timestamp.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	c.items[key] = entry[V]{value: value, insertedAt: c.now()}
	c.mu.Unlock()
}

// Get returns the value if present and still fresh. A stale entry is removed
// and reported as a miss.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()

	var zero V
	if !ok {
		return zero, false
	}
	if c.now().Sub(e.insertedAt) > c.ttl {
		c.mu.Lock()
		// Re-check under the write lock; another goroutine may have replaced it.
		if cur, ok := c.items[key]; ok && cur.insertedAt.Equal(e.insertedAt) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		return zero, false
	}
	return e.value, true
}

// GetWithAge returns the value, its age, and whether it was fresh.
func (c *Cache[V]) GetWithAge(key string) (V, time.Duration, bool) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()

	var zero V
	if !ok {
		return zero, 0, false
	}
	age := c.now().Sub(e.insertedAt)
	if age > c.ttl {
		return zero, age, false
	}
	return e.value, age, true
}

// Delete removes a key regardless of freshness.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// Len returns the number of stored entries, stale ones included.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Cleanup removes every stale entry and returns how many were dropped.
// Callers with long-lived caches may run this from their own ticker.
func (c *Cache[V]) Cleanup() int {
	cutoff := c.now().Add(-c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, e := range c.items {
		if e.insertedAt.Before(cutoff) {
			delete(c.items, k)
			removed++
		}
	}
	return removed
}
