package cache

import (
	"context"
	"time"
)

// LayeredOption configures the two-level cache.
type LayeredOption func(*layeredConfig)

type layeredConfig struct {
	memoryMaxEntries int
}

// WithLayeredMemorySize caps the L1 memory layer.
func WithLayeredMemorySize(n int) LayeredOption {
	return func(c *layeredConfig) {
		c.memoryMaxEntries = n
	}
}

// LayeredCache fronts Redis with a small in-process layer. Reads hit
// memory first; writes go through to Redis.
type LayeredCache struct {
	memory *MemoryCache
	redis  *RedisCache
}

// NewLayeredCache builds the two-level cache around an existing Redis
// client.
func NewLayeredCache(redisCache *RedisCache, opts ...LayeredOption) *LayeredCache {
	cfg := &layeredConfig{memoryMaxEntries: 1000}
	for _, opt := range opts {
		opt(cfg)
	}

	return &LayeredCache{
		memory: NewMemoryCache(WithMemoryMaxSize(cfg.memoryMaxEntries)),
		redis:  redisCache,
	}
}

func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if err := lc.redis.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	_ = lc.memory.Set(ctx, key, value, ttl)
	return nil
}

func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	if err := lc.memory.Get(ctx, key, dest); err == nil {
		return nil
	}
	if err := lc.redis.Get(ctx, key, dest); err != nil {
		return err
	}
	// Promote the Redis hit into the memory layer.
	_ = lc.memory.Set(ctx, key, dest, 0)
	return nil
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.memory.Delete(ctx, keys...)
	return lc.redis.Delete(ctx, keys...)
}

func (lc *LayeredCache) Exists(ctx context.Context, keys ...string) (bool, error) {
	return lc.redis.Exists(ctx, keys...)
}

// Close shuts down both layers.
func (lc *LayeredCache) Close() error {
	_ = lc.memory.Close()
	return lc.redis.Close()
}
