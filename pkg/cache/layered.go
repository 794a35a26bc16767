package cache

import (
	"context"
	"time"
)

// LayeredOption configures a LayeredCache.
type LayeredOption func(*LayeredConfig)

// LayeredConfig collects the layered cache settings.
type LayeredConfig struct {
	MemorySize int
	MemoryTTL  time.Duration
}

// WithLayeredMemorySize caps the L1 entry count. Non-positive values
// keep the default.
func WithLayeredMemorySize(size int) LayeredOption {
	return func(c *LayeredConfig) {
		if size > 0 {
			c.MemorySize = size
		}
	}
}

// LayeredCache stacks a process-local L1 on top of Redis. Reads served
// from L1 skip the network; L1 entries carry a short TTL so replicas
// converge on Redis within that window.
type LayeredCache struct {
	memory *MemoryCache
	redis  *RedisCache
	memTTL time.Duration
}

var _ Service = (*LayeredCache)(nil)

// NewLayeredCache builds the two-level cache over an existing Redis
// connection.
func NewLayeredCache(redisCache *RedisCache, opts ...LayeredOption) *LayeredCache {
	cfg := &LayeredConfig{
		MemorySize: 1000,
		MemoryTTL:  time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &LayeredCache{
		memory: NewMemoryCache(WithMemoryMaxSize(cfg.MemorySize)),
		redis:  redisCache,
		memTTL: cfg.MemoryTTL,
	}
}

// Set writes through to Redis first so a failed write never leaves L1
// ahead of L2.
func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if err := lc.redis.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	_ = lc.memory.Set(ctx, key, value, lc.layerTTL(ttl))
	return nil
}

func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	if err := lc.memory.Get(ctx, key, dest); err == nil {
		return nil
	}
	if err := lc.redis.Get(ctx, key, dest); err != nil {
		return err
	}
	_ = lc.memory.Set(ctx, key, dest, lc.memTTL)
	return nil
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.memory.Delete(ctx, keys...)
	return lc.redis.Delete(ctx, keys...)
}

// TryLock always goes to Redis so the lock holds across replicas.
func (lc *LayeredCache) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return lc.redis.TryLock(ctx, key, ttl)
}

func (lc *LayeredCache) Unlock(ctx context.Context, key string) error {
	return lc.redis.Unlock(ctx, key)
}

// Close shuts down both layers.
func (lc *LayeredCache) Close() error {
	_ = lc.memory.Close()
	return lc.redis.Close()
}

// layerTTL bounds an entry's L1 lifetime by the layer TTL so stale
// reads are limited even when the Redis TTL is long or absent.
func (lc *LayeredCache) layerTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 || ttl > lc.memTTL {
		return lc.memTTL
	}
	return ttl
}
