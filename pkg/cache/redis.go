package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const dialTimeout = 5 * time.Second

// RedisOption configures a RedisCache.
type RedisOption func(*RedisConfig)

// RedisConfig collects the Redis connection settings.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
	Prefix   string
}

// WithRedisHost sets the Redis host.
func WithRedisHost(host string) RedisOption {
	return func(c *RedisConfig) { c.Host = host }
}

// WithRedisPort sets the Redis port.
func WithRedisPort(port int) RedisOption {
	return func(c *RedisConfig) { c.Port = port }
}

// WithRedisPassword sets the Redis password.
func WithRedisPassword(password string) RedisOption {
	return func(c *RedisConfig) { c.Password = password }
}

// WithRedisDB selects the Redis logical database.
func WithRedisDB(db int) RedisOption {
	return func(c *RedisConfig) { c.DB = db }
}

// WithRedisPoolSize caps the connection pool. Non-positive values keep
// the default.
func WithRedisPoolSize(size int) RedisOption {
	return func(c *RedisConfig) {
		if size > 0 {
			c.PoolSize = size
		}
	}
}

// WithRedisPrefix overrides the namespace prepended to every key.
func WithRedisPrefix(prefix string) RedisOption {
	return func(c *RedisConfig) {
		if prefix != "" {
			c.Prefix = prefix
		}
	}
}

// RedisCache implements Service on top of a Redis server. All keys are
// namespaced under the configured prefix so several deployments can
// share one server.
type RedisCache struct {
	client *redis.Client
	prefix string
}

var _ Service = (*RedisCache)(nil)

// NewRedisCache connects to Redis and verifies the connection with a
// ping before returning.
func NewRedisCache(opts ...RedisOption) (*RedisCache, error) {
	cfg := &RedisConfig{
		Host:     "localhost",
		Port:     6379,
		PoolSize: 10,
		Prefix:   "seriesprep",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.PoolSize / 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisCache{client: client, prefix: cfg.Prefix}, nil
}

// Client exposes the underlying connection for components that need
// raw Redis commands, such as the job queue.
func (r *RedisCache) Client() *redis.Client {
	return r.client
}

// Close releases the connection pool.
func (r *RedisCache) Close() error {
	return r.client.Close()
}

func (r *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	payload, err := encodeValue(value)
	if err != nil {
		return err
	}
	if ttl < 0 {
		ttl = 0
	}
	return r.client.Set(ctx, r.namespaced(key), payload, ttl).Err()
}

func (r *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, err := r.client.Get(ctx, r.namespaced(key)).Result()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}

	if s, ok := dest.(*string); ok {
		*s = raw
		return nil
	}
	return json.Unmarshal([]byte(raw), dest)
}

func (r *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	// Unlink reclaims memory off the command path.
	return r.client.Unlink(ctx, r.namespacedAll(keys)...).Err()
}

func (r *RedisCache) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, r.namespaced(key), "locked", ttl).Result()
}

func (r *RedisCache) Unlock(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.namespaced(key)).Err()
}

func (r *RedisCache) namespaced(key string) string {
	return r.prefix + ":" + key
}

func (r *RedisCache) namespacedAll(keys []string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = r.namespaced(k)
	}
	return out
}

// encodeValue turns a value into the string form stored in Redis.
// Strings and byte slices pass through, everything else is JSON.
func encodeValue(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case string, []byte:
		return v, nil
	default:
		data, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("marshal cache value: %w", err)
		}
		return data, nil
	}
}
