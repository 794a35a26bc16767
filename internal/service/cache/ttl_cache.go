package cache

import (
	"sync"
	"time"
)

type ttlEntry struct {
	value     any
	expiresAt time.Time
}

func (e ttlEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// TTLCache is the per-process fallback used when Redis is disabled. Expired
// entries are dropped lazily on read, which is enough for the small key
// space of response caching.
type TTLCache struct {
	mu      sync.RWMutex
	entries map[string]ttlEntry
}

func NewTTLCache() *TTLCache {
	return &TTLCache{entries: make(map[string]ttlEntry)}
}

var _ BytesCache = (*TTLCache)(nil)

func (c *TTLCache) Get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	now := time.Now()
	if !e.expired(now) {
		return e.value, true
	}
	// Re-check under the write lock: a concurrent Set may have replaced
	// the entry since the read lock was released.
	c.mu.Lock()
	if cur, live := c.entries[key]; live && cur.expired(now) {
		delete(c.entries, key)
	}
	c.mu.Unlock()
	return nil, false
}

// Set stores v under key. A non-positive ttl means the entry never expires.
func (c *TTLCache) Set(key string, v any, ttl time.Duration) {
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = ttlEntry{value: v, expiresAt: exp}
	c.mu.Unlock()
}

// GetBytes reports a miss for values that are not raw bytes so callers
// never have to guard the type themselves.
func (c *TTLCache) GetBytes(key string) ([]byte, bool, error) {
	v, ok := c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, isBytes := v.([]byte)
	if !isBytes {
		return nil, false, nil
	}
	return b, true, nil
}

func (c *TTLCache) SetBytes(key string, value []byte, ttl time.Duration) error {
	c.Set(key, value, ttl)
	return nil
}
