package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTTLCache_MissOnEmptyCache(t *testing.T) {
	c := New[string, int]()
	v, fresh := c.Get("a", time.Minute)
	assert.False(t, fresh)
	assert.Zero(t, v)
}

func TestTTLCache_FreshWithinTTL(t *testing.T) {
	now := time.Now()
	c := NewWithClock[string, int](func() time.Time { return now })

	c.Put("a", 42)
	now = now.Add(59 * time.Second)

	v, fresh := c.Get("a", time.Minute)
	assert.True(t, fresh)
	assert.Equal(t, 42, v)
}

func TestTTLCache_StaleAtTTLBoundary(t *testing.T) {
	now := time.Now()
	c := NewWithClock[string, int](func() time.Time { return now })

	c.Put("a", 42)
	now = now.Add(time.Minute)

	// Exactly at the TTL the entry is stale, but its value is still returned.
	v, fresh := c.Get("a", time.Minute)
	assert.False(t, fresh)
	assert.Equal(t, 42, v)
}

func TestTTLCache_PerLookupTTL(t *testing.T) {
	now := time.Now()
	c := NewWithClock[string, int](func() time.Time { return now })

	c.Put("a", 42)
	now = now.Add(30 * time.Second)

	_, fresh := c.Get("a", time.Minute)
	assert.True(t, fresh)
	_, fresh = c.Get("a", 10*time.Second)
	assert.False(t, fresh, "the same entry can be stale for a tighter TTL")
}

func TestTTLCache_PurgeDropsEverything(t *testing.T) {
	c := New[string, int]()
	c.Put("a", 1)
	c.Put("b", 2)
	assert.Equal(t, 2, c.Len())

	c.Purge()
	assert.Equal(t, 0, c.Len())
	_, fresh := c.Get("a", time.Hour)
	assert.False(t, fresh)
}

func TestTTLCache_PutOverwrites(t *testing.T) {
	now := time.Now()
	c := NewWithClock[string, int](func() time.Time { return now })

	c.Put("a", 1)
	now = now.Add(2 * time.Minute)
	c.Put("a", 2)

	v, fresh := c.Get("a", time.Minute)
	assert.True(t, fresh, "re-putting refreshes the fetch time")
	assert.Equal(t, 2, v)
}
