package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClamping(t *testing.T) {
	c := New[string](time.Millisecond, 5)
	assert.Equal(t, MinTTL, c.ttl)
	assert.Equal(t, MinEntries, c.max)

	c = New[string](10*time.Minute, 100000)
	assert.Equal(t, MaxTTL, c.ttl)
	assert.Equal(t, MaxEntries, c.max)
}

func TestGetSetRoundTrip(t *testing.T) {
	c := New[int](time.Second, 10)
	c.Set("a", 1)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestLazyExpiryOnRead(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := New[string](time.Second, 10).WithClock(func() time.Time { return now })

	c.Set("a", "v")
	_, ok := c.Get("a")
	require.True(t, ok)

	now = now.Add(1100 * time.Millisecond)
	_, ok = c.Get("a")
	assert.False(t, ok, "expired entry is a miss")
	assert.Equal(t, 0, c.Len(), "expired entry evicted on read")
}

func TestEvictsExactlyOneOldest(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := New[int](30*time.Second, 10).WithClock(func() time.Time { return now })

	for i := 0; i < 10; i++ {
		c.Set(fmt.Sprintf("key-%d", i), i)
		now = now.Add(time.Millisecond)
	}
	require.Equal(t, 10, c.Len())

	c.Set("key-10", 10)
	assert.Equal(t, 10, c.Len(), "cache never exceeds max entries")

	_, ok := c.Get("key-0")
	assert.False(t, ok, "oldest-created entry was evicted")
	for i := 1; i <= 10; i++ {
		_, ok := c.Get(fmt.Sprintf("key-%d", i))
		assert.True(t, ok, "key-%d should survive", i)
	}
}

func TestSetExistingKeyDoesNotEvict(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := New[int](30*time.Second, 10).WithClock(func() time.Time { return now })

	for i := 0; i < 10; i++ {
		c.Set(fmt.Sprintf("key-%d", i), i)
		now = now.Add(time.Millisecond)
	}

	c.Set("key-5", 50)
	assert.Equal(t, 10, c.Len())
	v, ok := c.Get("key-0")
	require.True(t, ok)
	assert.Equal(t, 0, v)
}

func TestCleanupReturnsCount(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := New[int](time.Second, 10).WithClock(func() time.Time { return now })

	c.Set("a", 1)
	c.Set("b", 2)
	now = now.Add(500 * time.Millisecond)
	c.Set("c", 3)

	now = now.Add(700 * time.Millisecond) // a,b expired; c still live
	assert.Equal(t, 2, c.Cleanup())
	assert.Equal(t, 1, c.Len())
}

func TestSweeperStops(t *testing.T) {
	c := New[int](time.Second, 10)
	stop := c.StartSweeper(10 * time.Millisecond)

	c.Set("a", 1)
	time.Sleep(30 * time.Millisecond)

	stop()
	stop() // idempotent
}
