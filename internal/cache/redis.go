package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zoeplatform/zoefinan/internal/log"
)

const defaultRedisTimeout = 2 * time.Second

// RedisOptions configures a RedisCache.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces every key, e.g. "zoefinan:doc:".
	Prefix  string
	TTL     time.Duration
	Timeout time.Duration
}

// RedisCache stores JSON-encoded values in Redis. Errors are logged and
// treated as misses so a Redis outage degrades to direct store reads.
type RedisCache[T any] struct {
	client  redis.UniversalClient
	prefix  string
	ttl     time.Duration
	timeout time.Duration
	logger  *log.Logger
}

// NewRedisCache connects to opts.Addr. The connection is lazy; call Ping to
// check reachability at startup.
func NewRedisCache[T any](opts RedisOptions, logger *log.Logger) *RedisCache[T] {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewRedisCacheWithClient[T](rdb, opts, logger)
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient[T any](client redis.UniversalClient, opts RedisOptions, logger *log.Logger) *RedisCache[T] {
	if logger == nil {
		logger = log.Default()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultRedisTimeout
	}
	return &RedisCache[T]{
		client:  client,
		prefix:  opts.Prefix,
		ttl:     opts.TTL,
		timeout: timeout,
		logger:  logger.WithComponent(log.ComponentCache),
	}
}

func (r *RedisCache[T]) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisCache[T]) Get(key string) (T, bool) {
	var zero T
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	raw, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("Redis get failed", "key", key, log.FieldError, err)
		}
		return zero, false
	}

	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		r.logger.Warn("Discarding undecodable cache entry", "key", key, log.FieldError, err)
		r.Delete(key)
		return zero, false
	}
	return v, true
}

func (r *RedisCache[T]) Set(key string, data T) {
	raw, err := json.Marshal(data)
	if err != nil {
		r.logger.Warn("Cannot encode cache entry", "key", key, log.FieldError, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.client.Set(ctx, r.prefix+key, raw, r.ttl).Err(); err != nil {
		r.logger.Warn("Redis set failed", "key", key, log.FieldError, err)
	}
}

func (r *RedisCache[T]) Delete(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		r.logger.Warn("Redis delete failed", "key", key, log.FieldError, err)
	}
}

// Size is not tracked for Redis.
func (r *RedisCache[T]) Size() int {
	return -1
}

func (r *RedisCache[T]) Close() error {
	return r.client.Close()
}
