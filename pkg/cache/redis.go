package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReadThrough layers a shared Redis tier behind the local cache for
// side-effect-free lookups. The Redis tier is best-effort: any error
// there degrades to a plain miss.
type ReadThrough[T any] struct {
	local  *ReadOnly[T]
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewReadThrough wraps local with a Redis second level. The Redis TTL
// follows the local cache's clamp bounds.
func NewReadThrough[T any](local *ReadOnly[T], client *redis.Client, prefix string) *ReadThrough[T] {
	ttl := local.ttl
	return &ReadThrough[T]{local: local, client: client, prefix: prefix, ttl: ttl}
}

func (r *ReadThrough[T]) key(k string) string {
	return r.prefix + ":" + k
}

// Get checks the local tier, then Redis. A Redis hit repopulates the
// local tier.
func (r *ReadThrough[T]) Get(ctx context.Context, key string) (T, bool) {
	if v, ok := r.local.Get(key); ok {
		return v, true
	}

	var zero T
	raw, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		return zero, false // redis.Nil and transport errors are both misses
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, false
	}
	r.local.Set(key, v)
	return v, true
}

// Set writes both tiers. The Redis write is best-effort.
func (r *ReadThrough[T]) Set(ctx context.Context, key string, value T) {
	r.local.Set(key, value)
	if raw, err := json.Marshal(value); err == nil {
		_ = r.client.Set(ctx, r.key(key), raw, r.ttl).Err()
	}
}
