package app

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/trackgate/internal/auth"
	"github.com/charlesng35/trackgate/internal/cache"
	"github.com/charlesng35/trackgate/internal/telemetry"
)

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join("testdata")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)
	require.Equal(t, 20*time.Second, cfg.Server.ShutdownTimeout)

	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "db.example.com", cfg.Database.Postgres.Host)
	require.Equal(t, 5433, cfg.Database.Postgres.Port)
	require.Equal(t, "trackgate", cfg.Database.Postgres.Database)

	require.True(t, cfg.Cache.Redis.Enabled)
	require.Equal(t, "redis.example.com:6379", cfg.Cache.Redis.Address)
	require.Equal(t, 500*time.Millisecond, cfg.Cache.Redis.Timeout)
	require.EqualValues(t, 2048, cfg.Cache.Local.MaxEntries)
	require.Equal(t, 3*time.Second, cfg.Cache.ReconnectInterval)

	require.Equal(t, "jwt-secret", cfg.Auth.JWT.Secret)
	require.Equal(t, 30*time.Minute, cfg.Auth.JWT.TTL)
	require.Equal(t, 60, cfg.APIKeys.DefaultRateLimit)

	require.Equal(t, "counter", cfg.RateLimit.Strategy)
	require.Equal(t, 250, cfg.RateLimit.IPLimit)
	require.Equal(t, 2*time.Minute, cfg.RateLimit.IPWindow)

	require.Equal(t, "fleet-user", cfg.Telemetry.Username)
	require.Equal(t, 8*time.Second, cfg.Telemetry.Timeout)
	require.InDelta(t, 4.0, cfg.Telemetry.RequestsPerSecond, 0.001)

	require.True(t, cfg.Maintenance.Enabled)
	require.Equal(t, 14, cfg.Maintenance.RequestRetentionDays)
	require.Equal(t, "@every 12h", cfg.Maintenance.RequestLogSchedule)
	require.Equal(t, "@hourly", cfg.Maintenance.ExpiredKeySchedule)

	require.True(t, cfg.Monitoring.Prometheus.Enabled)
	require.Equal(t, "/metrics", cfg.Monitoring.Prometheus.Endpoint)

	require.NoError(t, cfg.Validate())
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.False(t, cfg.Cache.Redis.Enabled)
	require.Equal(t, 2*time.Second, cfg.Cache.Redis.Timeout)
	require.Equal(t, "log", cfg.RateLimit.Strategy)
	require.Equal(t, 100, cfg.RateLimit.IPLimit)
	require.Equal(t, time.Minute, cfg.RateLimit.IPWindow)
	require.Equal(t, 100, cfg.APIKeys.DefaultRateLimit)
	require.Equal(t, 10*time.Second, cfg.Telemetry.Timeout)
	require.Equal(t, 7, cfg.Maintenance.RequestRetentionDays)
	require.Equal(t, "@daily", cfg.Maintenance.RequestLogSchedule)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("TRACKGATE_TELEMETRY_USERNAME", "env-user")
	t.Setenv("TRACKGATE_RATE_LIMIT_STRATEGY", "counter")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, "env-user", cfg.Telemetry.Username)
	require.Equal(t, "counter", cfg.RateLimit.Strategy)
}

func validConfig() *Config {
	return &Config{
		Database: DatabaseConfig{Driver: "sqlite"},
		Auth:     AuthConfig{JWT: JWTSettings{Secret: "secret"}},
		Telemetry: TelemetryConfig{
			AuthURL:      "https://telemetry.example.com/auth",
			PositionsURL: "https://telemetry.example.com/positions",
			Username:     "user",
			Password:     "pass",
		},
	}
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	cases := map[string]func(*Config){
		"jwt secret":         func(c *Config) { c.Auth.JWT.Secret = " " },
		"telemetry password": func(c *Config) { c.Telemetry.Password = "" },
		"telemetry url":      func(c *Config) { c.Telemetry.PositionsURL = "" },
		"postgres user":      func(c *Config) { c.Database.Driver = "postgres" },
		"mysql user":         func(c *Config) { c.Database.Driver = "mysql" },
		"unknown driver":     func(c *Config) { c.Database.Driver = "oracle" },
		"redis address":      func(c *Config) { c.Cache.Redis.Enabled = true },
		"strategy":           func(c *Config) { c.RateLimit.Strategy = "token-bucket" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrConfiguration))
		})
	}

	var nilCfg *Config
	require.ErrorIs(t, nilCfg.Validate(), ErrConfiguration)
}

func TestAuthConfigAdapters(t *testing.T) {
	cfg := AuthConfig{
		JWT: JWTSettings{
			Secret:   "secret",
			Issuer:   "issuer",
			Audience: "fleet",
			TTL:      30 * time.Minute,
			Leeway:   5 * time.Second,
		},
	}

	require.Equal(t, auth.JWTConfig{
		Secret:         "secret",
		Issuer:         "issuer",
		Audience:       "fleet",
		AccessTokenTTL: 30 * time.Minute,
		Leeway:         5 * time.Second,
	}, cfg.JWTServiceConfig())

	var empty AuthConfig
	require.Equal(t, auth.DefaultAccessTokenTTL, empty.JWTServiceConfig().AccessTokenTTL)
}

func TestCacheConfigAdapters(t *testing.T) {
	cfg := CacheConfig{
		Redis: RedisCacheConfig{
			Address:  " 127.0.0.1:6379 ",
			Username: " default ",
			Password: "pw",
			DB:       2,
			Timeout:  time.Second,
		},
		Local:             LocalCacheConfig{MaxEntries: 50},
		ReconnectInterval: time.Second,
	}

	disabled := cfg.FallbackStoreConfig()
	require.Empty(t, disabled.Redis.Address)
	require.EqualValues(t, 50, disabled.Local.MaxEntries)

	cfg.Redis.Enabled = true
	enabled := cfg.FallbackStoreConfig()
	require.Equal(t, cache.RedisConfig{
		Address:  "127.0.0.1:6379",
		Username: "default",
		Password: "pw",
		DB:       2,
		Timeout:  time.Second,
	}, enabled.Redis)
	require.Equal(t, time.Second, enabled.ReconnectInterval)
}

func TestTelemetryConfigAdapter(t *testing.T) {
	cfg := TelemetryConfig{
		AuthURL:           " https://t.example.com/auth ",
		PositionsURL:      "https://t.example.com/positions",
		Username:          "user",
		Password:          " pass ",
		Timeout:           3 * time.Second,
		RequestsPerSecond: 2,
		Burst:             1,
	}

	require.Equal(t, telemetry.ClientConfig{
		AuthURL:           "https://t.example.com/auth",
		PositionsURL:      "https://t.example.com/positions",
		Username:          "user",
		Password:          " pass ",
		Timeout:           3 * time.Second,
		RequestsPerSecond: 2,
		Burst:             1,
	}, cfg.ClientConfig())
}
