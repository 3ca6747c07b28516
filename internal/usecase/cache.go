package usecase

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// Cache stores serialized predictions keyed by image digest. Get reports a miss with
// redis.Nil.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

// DefaultCacheNamespace prefixes every key written by the gateway.
const DefaultCacheNamespace = "freshcheck:"

// RedisCache is a Cache backed by go-redis. Keys are namespaced so the gateway can
// share a Redis instance.
type RedisCache struct {
	client    redis.UniversalClient
	namespace string
}

// NewRedisCache constructs a cache under DefaultCacheNamespace.
func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client, namespace: DefaultCacheNamespace}
}

// Key returns the Redis key used for key.
func (c *RedisCache) Key(key string) string {
	return c.namespace + key
}

// Set writes a value with a TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.client.Set(ctx, c.Key(key), value, expiration).Err()
}

// Get reads a value; a missing key returns redis.Nil.
func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, c.Key(key)).Result()
}
