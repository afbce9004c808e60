package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Requires a live redis; set REDIS_ADDR to run.
func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestReadThroughRoundTrip(t *testing.T) {
	client := redisClient(t)
	local := New[string](5*time.Second, 100)
	tier := NewReadThrough(local, client, "cache-test")

	ctx := context.Background()
	tier.Set(ctx, "k1", "v1")

	got, ok := tier.Get(ctx, "k1")
	require.True(t, ok)
	assert.Equal(t, "v1", got)
}

func TestReadThroughFallsBackToRedisOnLocalMiss(t *testing.T) {
	client := redisClient(t)
	ctx := context.Background()

	writer := NewReadThrough(New[string](5*time.Second, 100), client, "cache-test-fb")
	writer.Set(ctx, "shared", "from-redis")

	// Fresh local tier: the hit must come from redis.
	reader := NewReadThrough(New[string](5*time.Second, 100), client, "cache-test-fb")
	got, ok := reader.Get(ctx, "shared")
	require.True(t, ok)
	assert.Equal(t, "from-redis", got)
}

func TestReadThroughDegradesToMissWithoutRedis(t *testing.T) {
	// Unreachable redis: errors must read as cache misses.
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond})
	defer client.Close()

	tier := NewReadThrough(New[string](5*time.Second, 100), client, "cache-test-down")
	_, ok := tier.Get(context.Background(), "missing")
	assert.False(t, ok)
}
