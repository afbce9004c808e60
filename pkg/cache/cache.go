// Package cache provides a bounded TTL cache restricted to idempotent,
// side-effect-free lookups. Absence is not an error.
package cache

import (
	"sync"
	"time"
)

// Clamp bounds for cache configuration.
const (
	MinTTL        = time.Second
	MaxTTL        = 60 * time.Second
	MinEntries    = 10
	MaxEntries    = 1000
	DefaultTTL    = 30 * time.Second
	DefaultMaxLen = 100
)

type entry[T any] struct {
	value     T
	createdAt time.Time
	expiresAt time.Time
}

// ReadOnly is a bounded TTL cache. At capacity, the oldest-created
// entry is evicted (creation-time eviction, not LRU). Expired entries
// are evicted lazily on read and counted as misses.
type ReadOnly[T any] struct {
	mu      sync.Mutex
	entries map[string]entry[T]
	ttl     time.Duration
	max     int
	clock   func() time.Time
}

// New creates a cache with ttl clamped to [1s,60s] and maxEntries
// clamped to [10,1000].
func New[T any](ttl time.Duration, maxEntries int) *ReadOnly[T] {
	if ttl < MinTTL {
		ttl = MinTTL
	}
	if ttl > MaxTTL {
		ttl = MaxTTL
	}
	if maxEntries < MinEntries {
		maxEntries = MinEntries
	}
	if maxEntries > MaxEntries {
		maxEntries = MaxEntries
	}
	return &ReadOnly[T]{
		entries: make(map[string]entry[T]),
		ttl:     ttl,
		max:     maxEntries,
		clock:   time.Now,
	}
}

// WithClock overrides the clock for deterministic testing.
func (c *ReadOnly[T]) WithClock(clock func() time.Time) *ReadOnly[T] {
	c.clock = clock
	return c
}

// Get returns the cached value for key. An expired entry is evicted
// and reported as a miss.
func (c *ReadOnly[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if c.clock().After(e.expiresAt) {
		delete(c.entries, key)
		return zero, false
	}
	return e.value, true
}

// Set stores value under key. At capacity, the oldest-created entry is
// evicted first; the cache never exceeds its max size.
func (c *ReadOnly[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.max {
		c.evictOldestLocked()
	}
	c.entries[key] = entry[T]{
		value:     value,
		createdAt: now,
		expiresAt: now.Add(c.ttl),
	}
}

func (c *ReadOnly[T]) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	first := true
	for k, e := range c.entries {
		if first || e.createdAt.Before(oldest) {
			oldestKey = k
			oldest = e.createdAt
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}

// Cleanup removes all currently-expired entries and returns the count
// removed.
func (c *ReadOnly[T]) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	removed := 0
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries currently stored, including any
// not-yet-swept expired ones.
func (c *ReadOnly[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// StartSweeper runs Cleanup on a periodic timer. The returned stop
// function cancels the sweep; the sweeper goroutine never keeps the
// process alive past stop.
func (c *ReadOnly[T]) StartSweeper(interval time.Duration) (stop func()) {
	if interval <= 0 {
		interval = c.ttl
	}
	done := make(chan struct{})
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.Cleanup()
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}
