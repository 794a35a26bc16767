package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryOption configures a MemoryCache.
type MemoryOption func(*MemoryConfig)

// MemoryConfig collects the in-memory cache settings.
type MemoryConfig struct {
	MaxEntries      int
	CleanupInterval time.Duration
}

// WithMemoryMaxSize caps the number of entries held before the least
// recently used one is evicted. Non-positive values keep the default.
func WithMemoryMaxSize(size int) MemoryOption {
	return func(c *MemoryConfig) {
		if size > 0 {
			c.MaxEntries = size
		}
	}
}

// WithMemoryCleanup sets how often expired entries are swept out.
func WithMemoryCleanup(interval time.Duration) MemoryOption {
	return func(c *MemoryConfig) {
		if interval > 0 {
			c.CleanupInterval = interval
		}
	}
}

// memoryEntry is one cached value. A zero expiresAt means the entry
// never expires; usedAt drives LRU eviction.
type memoryEntry struct {
	value     interface{}
	expiresAt time.Time
	usedAt    time.Time
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryCache implements Service with a process-local map. It backs
// the cache layer when Redis is disabled and serves as the L1 of the
// layered cache.
type MemoryCache struct {
	mu       sync.Mutex
	entries  map[string]*memoryEntry
	maxSize  int
	stop     chan struct{}
	stopOnce sync.Once
}

var _ Service = (*MemoryCache)(nil)

// NewMemoryCache builds an in-memory cache and starts its background
// sweeper.
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := &MemoryConfig{
		MaxEntries:      1000,
		CleanupInterval: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	mc := &MemoryCache{
		entries: make(map[string]*memoryEntry),
		maxSize: cfg.MaxEntries,
		stop:    make(chan struct{}),
	}
	go mc.sweep(cfg.CleanupInterval)
	return mc
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	now := time.Now()
	entry := &memoryEntry{value: value, usedAt: now}
	if ttl > 0 {
		entry.expiresAt = now.Add(ttl)
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()
	if _, ok := mc.entries[key]; !ok && len(mc.entries) >= mc.maxSize {
		mc.evictOldestLocked()
	}
	mc.entries[key] = entry
	return nil
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	now := time.Now()

	mc.mu.Lock()
	entry, ok := mc.entries[key]
	if ok && entry.expired(now) {
		delete(mc.entries, key)
		ok = false
	}
	if !ok {
		mc.mu.Unlock()
		return ErrCacheMiss
	}
	entry.usedAt = now
	value := entry.value
	mc.mu.Unlock()

	if s, ok := dest.(*string); ok {
		if str, ok := value.(string); ok {
			*s = str
			return nil
		}
	}

	// A JSON round trip lets dest be any pointer type, the same way
	// the Redis implementation decodes stored values.
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, key := range keys {
		delete(mc.entries, key)
	}
	return nil
}

func (mc *MemoryCache) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	now := time.Now()

	mc.mu.Lock()
	defer mc.mu.Unlock()
	if entry, ok := mc.entries[key]; ok && !entry.expired(now) {
		return false, nil
	}
	entry := &memoryEntry{value: "locked", usedAt: now}
	if ttl > 0 {
		entry.expiresAt = now.Add(ttl)
	}
	mc.entries[key] = entry
	return true, nil
}

func (mc *MemoryCache) Unlock(ctx context.Context, key string) error {
	return mc.Delete(ctx, key)
}

// Close stops the background sweeper.
func (mc *MemoryCache) Close() error {
	mc.stopOnce.Do(func() { close(mc.stop) })
	return nil
}

// evictOldestLocked drops the least recently used entry. Callers must
// hold mc.mu.
func (mc *MemoryCache) evictOldestLocked() {
	var (
		oldestKey string
		oldestAt  time.Time
	)
	for key, entry := range mc.entries {
		if oldestKey == "" || entry.usedAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = entry.usedAt
		}
	}
	if oldestKey != "" {
		delete(mc.entries, oldestKey)
	}
}

func (mc *MemoryCache) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-mc.stop:
			return
		case <-ticker.C:
		}

		now := time.Now()
		mc.mu.Lock()
		for key, entry := range mc.entries {
			if entry.expired(now) {
				delete(mc.entries, key)
			}
		}
		mc.mu.Unlock()
	}
}
