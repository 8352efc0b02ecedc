package robots

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is a Cache backed by Redis, for deployments where multiple
// crawler processes should share one robots.txt cache. TTL eviction is
// delegated to Redis itself via SET...EX rather than tracking expiry
// client-side, the same approach internal/session.RedisStore takes for
// session records.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache creates a RedisCache against the Redis instance at addr.
// Keys are stored under prefix+robotsURL.
func NewRedisCache(addr, prefix string) *RedisCache {
	return &RedisCache{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		prefix: prefix,
	}
}

// Close closes the underlying Redis client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Get returns the cached body for robotsURL, or ok=false on a miss.
func (c *RedisCache) Get(robotsURL string) (string, bool) {
	val, err := c.client.Get(context.Background(), c.prefix+robotsURL).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			return "", false
		}
		return "", false
	}
	return val, true
}

// Set stores body for robotsURL with the given TTL. ttl <= 0 uses
// DefaultTTL.
func (c *RedisCache) Set(robotsURL string, body string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c.client.Set(context.Background(), c.prefix+robotsURL, body, ttl)
}
