// Package cache provides a small TTL cache used for market regime, sector,
// and price lookups. Staleness is an explicit parameter of Get so callers
// can be tested against a fake clock.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	fetchedAt time.Time
}

// TTLCache stores values with their fetch time. An entry is fresh while
// now - fetchedAt < ttl, where ttl is supplied per lookup.
type TTLCache[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]entry[V]
	now     func() time.Time
}

// New creates an empty TTLCache using the wall clock.
func New[K comparable, V any]() *TTLCache[K, V] {
	return &TTLCache[K, V]{
		entries: make(map[K]entry[V]),
		now:     time.Now,
	}
}

// NewWithClock creates a TTLCache using the given clock. Used by tests.
func NewWithClock[K comparable, V any](now func() time.Time) *TTLCache[K, V] {
	return &TTLCache[K, V]{
		entries: make(map[K]entry[V]),
		now:     now,
	}
}

// Get returns the cached value for key and whether it is still fresh with
// respect to ttl. A missing key returns the zero value and fresh=false.
func (c *TTLCache[K, V]) Get(key K, ttl time.Duration) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if c.now().Sub(e.fetchedAt) >= ttl {
		return e.value, false
	}
	return e.value, true
}

// Put stores value for key, stamped with the current clock time.
func (c *TTLCache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: value, fetchedAt: c.now()}
}

// Purge removes every entry. The coordinator calls this between validation
// batches so per-batch price and sector entries never leak across cycles.
func (c *TTLCache[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[K]entry[V])
}

// Len returns the number of stored entries, fresh or not.
func (c *TTLCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
