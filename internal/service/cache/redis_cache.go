package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache keeps response bytes in Redis so replicas share one cache.
// It borrows an existing client; the owner closes it.
type RedisCache struct {
	cli    *redis.Client
	prefix string
}

func NewRedisCache(cli *redis.Client) *RedisCache {
	return &RedisCache{cli: cli, prefix: "seriesprep:http:"}
}

var _ BytesCache = (*RedisCache)(nil)

func (r *RedisCache) GetBytes(key string) ([]byte, bool, error) {
	b, err := r.cli.Get(context.Background(), r.prefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

func (r *RedisCache) SetBytes(key string, value []byte, ttl time.Duration) error {
	return r.cli.Set(context.Background(), r.prefix+key, value, ttl).Err()
}
