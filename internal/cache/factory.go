package cache

import "time"

// Config selects and tunes the cache backend.
type Config struct {
	// RedisURL selects the Redis backend when non-empty.
	RedisURL string

	// Prefix namespaces keys in shared Redis deployments.
	Prefix string

	// DefaultTTL applies when a Set passes a zero TTL.
	DefaultTTL time.Duration

	// CleanupInterval is the expired-entry sweep interval for the
	// memory backend.
	CleanupInterval time.Duration
}

// DefaultConfig returns the in-memory defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTTL:      time.Hour,
		CleanupInterval: time.Minute,
	}
}

// New creates a cache from the config: Redis when a URL is set,
// in-memory otherwise.
func New(cfg Config) (Cache, error) {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = time.Hour
	}
	if cfg.RedisURL != "" {
		return NewRedisCache(cfg.RedisURL, cfg.Prefix, cfg.DefaultTTL)
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}
	return NewMemoryCache(cfg.DefaultTTL, cfg.CleanupInterval), nil
}
