package app

import (
	"strings"

	"github.com/charlesng35/trackgate/internal/cache"
)

// RedisClientConfig converts the application cache configuration into the cache package representation.
func (c CacheConfig) RedisClientConfig() cache.RedisConfig {
	return cache.RedisConfig{
		Address:  strings.TrimSpace(c.Redis.Address),
		Username: strings.TrimSpace(c.Redis.Username),
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		TLS:      c.Redis.TLS,
		Timeout:  c.Redis.Timeout,
	}
}

// FallbackStoreConfig builds the process-wide cache configuration. A disabled Redis
// section leaves the address empty so the store runs on the local fallback only.
func (c CacheConfig) FallbackStoreConfig() cache.FallbackConfig {
	cfg := cache.FallbackConfig{
		Local:             cache.MemoryConfig{MaxEntries: c.Local.MaxEntries},
		ReconnectInterval: c.ReconnectInterval,
	}
	if c.Redis.Enabled {
		cfg.Redis = c.RedisClientConfig()
	}
	return cfg
}
