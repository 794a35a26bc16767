// Package cache provides the shared cache contract plus Redis,
// in-memory and layered implementations of it.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrCacheMiss is returned by Get when the key is absent or expired.
var ErrCacheMiss = errors.New("cache: key not found")

// Service is the cache contract the rest of the application programs
// against. Set with a non-positive ttl stores the value without an
// expiry. TryLock is a best-effort mutex: it returns true only for the
// caller that created the lock key.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// GenerateKey builds a two-part cache key.
func GenerateKey(prefix, id string) string {
	return prefix + ":" + id
}

// GenerateKeyWithParams builds a cache key from a prefix and any number
// of parameters, joined with ':'.
func GenerateKeyWithParams(prefix string, params ...interface{}) string {
	parts := make([]string, 0, len(params)+1)
	parts = append(parts, prefix)
	for _, p := range params {
		parts = append(parts, fmt.Sprintf("%v", p))
	}
	return strings.Join(parts, ":")
}

// HashKey shortens an arbitrarily long key to a fixed-width hex digest.
func HashKey(key string) string {
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}
