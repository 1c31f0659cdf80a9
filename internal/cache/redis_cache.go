package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/SAP-F-2025/testportal-service/internal/utils"
	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned by Get when the key is absent.
var ErrCacheMiss = errors.New("cache miss")

type CacheService interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	DeletePattern(ctx context.Context, pattern string) error

	// CacheOrExecute fills dest from the cache, or from fn on a miss and stores the result.
	CacheOrExecute(ctx context.Context, key string, dest interface{}, ttl time.Duration, fn func() (interface{}, error)) error
}

// CacheConfig names a key namespace and its default expiry.
type CacheConfig struct {
	Prefix string
	TTL    time.Duration
}

var TestCacheConfig = CacheConfig{
	Prefix: "test",
	TTL:    10 * time.Minute,
}

type redisCache struct {
	client *redis.Client
	prefix string
	logger utils.Logger
}

func NewRedisCache(client *redis.Client, prefix string, logger utils.Logger) CacheService {
	return &redisCache{
		client: client,
		prefix: prefix,
		logger: logger,
	}
}

func (r *redisCache) key(key string) string {
	if r.prefix == "" {
		return key
	}
	return r.prefix + ":" + key
}

func (r *redisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	return r.client.Set(ctx, r.key(key), data, ttl).Err()
}

func (r *redisCache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		return err
	}
	return json.Unmarshal(data, dest)
}

func (r *redisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = r.key(k)
	}
	return r.client.Del(ctx, prefixed...).Err()
}

func (r *redisCache) DeletePattern(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, r.key(pattern), 100).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (r *redisCache) CacheOrExecute(ctx context.Context, key string, dest interface{}, ttl time.Duration, fn func() (interface{}, error)) error {
	err := r.Get(ctx, key, dest)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		r.logger.WarnContext(ctx, "Cache read failed, falling back to source", "key", r.key(key), "error", err)
	}

	value, err := fn()
	if err != nil {
		return err
	}
	if err := copyValue(value, dest); err != nil {
		return err
	}

	if err := r.Set(ctx, key, value, ttl); err != nil {
		r.logger.WarnContext(ctx, "Cache write failed", "key", r.key(key), "error", err)
	}
	return nil
}

// noopCache is used when redis is not configured; every read goes to the source.
type noopCache struct{}

func NewNoopCache() CacheService {
	return noopCache{}
}

func (noopCache) Set(context.Context, string, interface{}, time.Duration) error { return nil }
func (noopCache) Get(context.Context, string, interface{}) error                { return ErrCacheMiss }
func (noopCache) Delete(context.Context, ...string) error                       { return nil }
func (noopCache) DeletePattern(context.Context, string) error                   { return nil }

func (noopCache) CacheOrExecute(_ context.Context, _ string, dest interface{}, _ time.Duration, fn func() (interface{}, error)) error {
	value, err := fn()
	if err != nil {
		return err
	}
	return copyValue(value, dest)
}

func copyValue(src, dest interface{}) error {
	data, err := json.Marshal(src)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	return json.Unmarshal(data, dest)
}

// SafeDelete removes keys and only logs failures.
func SafeDelete(ctx context.Context, c CacheService, logger utils.Logger, keys ...string) {
	if err := c.Delete(ctx, keys...); err != nil {
		logger.WarnContext(ctx, "Cache invalidation failed", "keys", keys, "error", err)
	}
}

// SafeInvalidatePattern removes keys matching pattern and only logs failures.
func SafeInvalidatePattern(ctx context.Context, c CacheService, logger utils.Logger, pattern string) {
	if err := c.DeletePattern(ctx, pattern); err != nil {
		logger.WarnContext(ctx, "Cache pattern invalidation failed", "pattern", pattern, "error", err)
	}
}
