package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU + Redis.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// GetFlagged retrieves an entity's cached flagged set.
	// Returns nil, nil on a miss.
	GetFlagged(ctx context.Context, entityID string) (*FlaggedSet, error)

	// SetFlagged caches an entity's flagged set.
	SetFlagged(ctx context.Context, set *FlaggedSet, ttl time.Duration) error

	// DeleteFlagged evicts an entity's flagged set.
	DeleteFlagged(ctx context.Context, entityID string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// FlaggedSet is the cached form of one entity's flagged store.
type FlaggedSet struct {
	EntityID string           `json:"entityId"`
	Records  []FlaggedExpense `json:"records"`
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string `yaml:"type"`

	// Local LRU cache settings
	LocalMaxSize int           `yaml:"local_max_size"`
	LocalTTL     time.Duration `yaml:"local_ttl"`

	// Redis settings
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// If true, check local first, then Redis
	EnableTwoPhase bool `yaml:"enable_two_phase"`
}
