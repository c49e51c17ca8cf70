package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// ErrConfiguration marks a configuration that cannot start the service.
var ErrConfiguration = errors.New("config: invalid configuration")

// Config represents the runtime configuration for the trackgate service.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Auth        AuthConfig        `mapstructure:"auth"`
	APIKeys     APIKeyConfig      `mapstructure:"api_keys"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	LogLevel        string        `mapstructure:"log_level"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// CacheConfig describes the remote cache and its local fallback.
type CacheConfig struct {
	Redis             RedisCacheConfig `mapstructure:"redis"`
	Local             LocalCacheConfig `mapstructure:"local"`
	ReconnectInterval time.Duration    `mapstructure:"reconnect_interval"`
}

// RedisCacheConfig holds Redis connection options.
type RedisCacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Address  string        `mapstructure:"address"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TLS      bool          `mapstructure:"tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// LocalCacheConfig bounds the in-process fallback.
type LocalCacheConfig struct {
	MaxEntries int64 `mapstructure:"max_entries"`
}

// AuthConfig captures bearer token settings.
type AuthConfig struct {
	JWT JWTSettings `mapstructure:"jwt"`
}

// JWTSettings configures JWT access tokens.
type JWTSettings struct {
	Secret   string        `mapstructure:"secret"`
	Issuer   string        `mapstructure:"issuer"`
	Audience string        `mapstructure:"audience"`
	TTL      time.Duration `mapstructure:"access_token_ttl"`
	Leeway   time.Duration `mapstructure:"leeway"`

	// AllowEphemeralSecret generates a per-process secret when none is configured.
	// Tokens then stop verifying after a restart.
	AllowEphemeralSecret bool `mapstructure:"allow_ephemeral_secret"`
}

// APIKeyConfig controls key issuance.
type APIKeyConfig struct {
	DefaultRateLimit int `mapstructure:"default_rate_limit"`
}

// RateLimitConfig controls admission limits.
type RateLimitConfig struct {
	// Strategy selects the per-key limiter: "log" or "counter".
	Strategy string        `mapstructure:"strategy"`
	IPLimit  int           `mapstructure:"ip_limit"`
	IPWindow time.Duration `mapstructure:"ip_window"`
}

// TelemetryConfig points at the upstream telemetry provider.
type TelemetryConfig struct {
	AuthURL           string        `mapstructure:"auth_url"`
	PositionsURL      string        `mapstructure:"positions_url"`
	Username          string        `mapstructure:"username"`
	Password          string        `mapstructure:"password"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

// MaintenanceConfig schedules background cleanup.
type MaintenanceConfig struct {
	Enabled              bool   `mapstructure:"enabled"`
	RequestRetentionDays int    `mapstructure:"request_retention_days"`
	RequestLogSchedule   string `mapstructure:"request_log_schedule"`
	ExpiredKeySchedule   string `mapstructure:"expired_key_schedule"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("TRACKGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

// Validate reports settings the service cannot run without. Every failure wraps
// ErrConfiguration.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: config is nil", ErrConfiguration)
	}

	var missing []string

	switch strings.ToLower(strings.TrimSpace(c.Database.Driver)) {
	case "", "sqlite":
	case "postgres", "postgresql":
		if c.Database.DSN == "" && (c.Database.Postgres.Username == "" || c.Database.Postgres.Database == "") {
			missing = append(missing, "database.postgres.username", "database.postgres.database")
		}
	case "mysql", "mariadb":
		if c.Database.DSN == "" && (c.Database.MySQL.Username == "" || c.Database.MySQL.Database == "") {
			missing = append(missing, "database.mysql.username", "database.mysql.database")
		}
	default:
		return fmt.Errorf("%w: unsupported database driver %q", ErrConfiguration, c.Database.Driver)
	}

	if strings.TrimSpace(c.Auth.JWT.Secret) == "" {
		missing = append(missing, "auth.jwt.secret")
	}

	if strings.TrimSpace(c.Telemetry.AuthURL) == "" {
		missing = append(missing, "telemetry.auth_url")
	}
	if strings.TrimSpace(c.Telemetry.PositionsURL) == "" {
		missing = append(missing, "telemetry.positions_url")
	}
	if strings.TrimSpace(c.Telemetry.Username) == "" || c.Telemetry.Password == "" {
		missing = append(missing, "telemetry.username", "telemetry.password")
	}

	if c.Cache.Redis.Enabled && strings.TrimSpace(c.Cache.Redis.Address) == "" {
		missing = append(missing, "cache.redis.address")
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrConfiguration, strings.Join(missing, ", "))
	}

	switch strings.ToLower(strings.TrimSpace(c.RateLimit.Strategy)) {
	case "", "log", "counter":
	default:
		return fmt.Errorf("%w: unknown rate_limit.strategy %q", ErrConfiguration, c.RateLimit.Strategy)
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/trackgate.sqlite")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.mysql.port", 3306)

	v.SetDefault("cache.redis.enabled", false)
	v.SetDefault("cache.redis.address", "127.0.0.1:6379")
	v.SetDefault("cache.redis.username", "")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.tls", false)
	v.SetDefault("cache.redis.timeout", "2s")
	v.SetDefault("cache.local.max_entries", 10000)
	v.SetDefault("cache.reconnect_interval", "5s")

	v.SetDefault("auth.jwt.secret", "")
	v.SetDefault("auth.jwt.issuer", "")
	v.SetDefault("auth.jwt.access_token_ttl", "2h")
	v.SetDefault("auth.jwt.leeway", "0s")
	v.SetDefault("auth.jwt.allow_ephemeral_secret", false)

	v.SetDefault("api_keys.default_rate_limit", 100)

	v.SetDefault("rate_limit.strategy", "log")
	v.SetDefault("rate_limit.ip_limit", 100)
	v.SetDefault("rate_limit.ip_window", "1m")

	v.SetDefault("telemetry.auth_url", "")
	v.SetDefault("telemetry.positions_url", "")
	v.SetDefault("telemetry.username", "")
	v.SetDefault("telemetry.password", "")
	v.SetDefault("telemetry.timeout", "10s")
	v.SetDefault("telemetry.requests_per_second", 10)
	v.SetDefault("telemetry.burst", 5)

	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.request_retention_days", 7)
	v.SetDefault("maintenance.request_log_schedule", "@daily")
	v.SetDefault("maintenance.expired_key_schedule", "@hourly")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
