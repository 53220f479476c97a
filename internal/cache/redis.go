package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opensource-finance/quotawatch/internal/domain"
)

const redisKeyPrefix = "quotawatch:"

// RedisCache implements Cache using Redis.
// Used when several API instances share one cache, and as L2 in
// two-phase caching.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new Redis cache.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// Get retrieves a value from Redis.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Set stores a value in Redis with TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, redisKeyPrefix+key, value, ttl).Err()
}

// Delete removes a value from Redis.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, redisKeyPrefix+key).Err()
}

// GetFlagged retrieves an entity's cached flagged set.
func (c *RedisCache) GetFlagged(ctx context.Context, entityID string) (*domain.FlaggedSet, error) {
	return getFlagged(ctx, c, entityID)
}

// SetFlagged caches an entity's flagged set.
func (c *RedisCache) SetFlagged(ctx context.Context, set *domain.FlaggedSet, ttl time.Duration) error {
	return setFlagged(ctx, c, set, ttl)
}

// DeleteFlagged evicts an entity's flagged set.
func (c *RedisCache) DeleteFlagged(ctx context.Context, entityID string) error {
	return c.Delete(ctx, flaggedKey(entityID))
}

// Ping checks Redis connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
