// Package cache holds the response body cache for read endpoints. Handlers
// store marshaled payloads keyed by query shape so repeated reads skip the
// storage round trip. Two implementations exist: a per-process TTL map for
// single-replica setups and a Redis-backed store shared across replicas.
package cache

import "time"

// BytesCache stores raw response bytes under a TTL. A miss is reported
// through ok, not err; err is reserved for backend failures.
type BytesCache interface {
	GetBytes(key string) (b []byte, ok bool, err error)
	SetBytes(key string, value []byte, ttl time.Duration) error
}
