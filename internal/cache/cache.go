package cache

import (
	"context"
	"time"
)

// Cacher defines the interface for cache operations. Values are stored as
// JSON so callers pass destination pointers on reads.
type Cacher interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)

	// AcquireLock acquires a named lock with expiration. Returns false when
	// the lock is already held.
	AcquireLock(ctx context.Context, name string, expiration time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, name string) error

	HealthCheck(ctx context.Context) error
	Close() error
}

// Config represents cache configuration
type Config struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// NewCacher creates a cache instance based on configuration. Falls back to
// the in-memory cache when Redis is disabled.
func NewCacher(cfg *Config) (Cacher, error) {
	if cfg != nil && cfg.Enabled {
		return NewRedisCache(cfg)
	}
	return NewMemoryCache(0), nil
}
