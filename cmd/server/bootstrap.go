package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/trackgate/internal/api"
	"github.com/charlesng35/trackgate/internal/app"
	"github.com/charlesng35/trackgate/internal/app/maintenance"
	iauth "github.com/charlesng35/trackgate/internal/auth"
	"github.com/charlesng35/trackgate/internal/cache"
	"github.com/charlesng35/trackgate/internal/database"
	"github.com/charlesng35/trackgate/internal/monitoring"
	"github.com/charlesng35/trackgate/internal/monitoring/checks"
	"github.com/charlesng35/trackgate/internal/services"
	"github.com/charlesng35/trackgate/internal/telemetry"
	"github.com/charlesng35/trackgate/pkg/logger"
)

const cacheConnectTimeout = 5 * time.Second

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB         *gorm.DB
	Cache      *cache.FallbackStore
	APIKeys    *services.APIKeyService
	RequestLog *services.RequestLogService
	Telemetry  *telemetry.Client
	Cleaner    *maintenance.Cleaner
	Health     *monitoring.HealthManager
	Router     *gin.Engine
}

// bootstrapRuntime initialises the database, cache, services, and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	stack.Cache, err = cache.NewFallbackStore(cfg.Cache.FallbackStoreConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise cache: %w", err)
	}
	if cfg.Cache.Redis.Enabled {
		connectCtx, cancel := context.WithTimeout(ctx, cacheConnectTimeout)
		connectErr := stack.Cache.Connect(connectCtx)
		cancel()

		switch health := stack.Cache.Health(); {
		case health == cache.HealthHealthy:
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		case connectErr != nil:
			log.Warn("redis unavailable; serving from in-memory cache", zap.Error(connectErr))
		default:
			log.Warn("redis enabled but not connected; serving from in-memory cache",
				zap.String("cache_health", health.String()))
		}
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	stack.APIKeys, err = services.NewAPIKeyService(stack.DB, services.WithDefaultRateLimit(cfg.APIKeys.DefaultRateLimit))
	if err != nil {
		return nil, fmt.Errorf("initialise api key service: %w", err)
	}

	stack.RequestLog, err = services.NewRequestLogService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise request log service: %w", err)
	}

	limiter, err := services.NewRateLimiter(services.RateLimiterConfig{
		Strategy: cfg.RateLimit.Strategy,
		Log:      stack.RequestLog,
		Store:    stack.Cache,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise rate limiter: %w", err)
	}
	log.Info("per-key rate limiting enabled", zap.String("strategy", limiter.Strategy()))

	gateway, err := iauth.NewGateway(iauth.GatewayConfig{
		Keys:     stack.APIKeys,
		Limiter:  limiter,
		Recorder: stack.RequestLog,
		Bearer:   jwtSvc,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise auth gateway: %w", err)
	}

	stack.Telemetry, err = telemetry.NewClient(cfg.Telemetry.ClientConfig(), stack.Cache)
	if err != nil {
		return nil, fmt.Errorf("initialise telemetry client: %w", err)
	}

	if cfg.Maintenance.Enabled {
		stack.Cleaner = maintenance.NewCleaner(stack.DB, stack.RequestLog,
			maintenance.WithRetentionDays(cfg.Maintenance.RequestRetentionDays),
			maintenance.WithRequestLogSchedule(cfg.Maintenance.RequestLogSchedule),
			maintenance.WithExpiredKeySchedule(cfg.Maintenance.ExpiredKeySchedule),
		)
		if err := stack.Cleaner.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
	}

	stack.Health = monitoring.NewHealthManager()
	stack.Health.RegisterReadiness(checks.Database(stack.DB, 0))
	stack.Health.RegisterReadiness(checks.Cache(stack.Cache))
	if stack.Cleaner != nil {
		stack.Health.RegisterReadiness(checks.Maintenance(0))
	}

	stack.Router, err = api.NewRouter(api.Dependencies{
		JWT:             jwtSvc,
		Gateway:         gateway,
		APIKeys:         stack.APIKeys,
		Positions:       stack.Telemetry,
		Cache:           stack.Cache,
		Health:          stack.Health,
		IPRateLimit:     cfg.RateLimit.IPLimit,
		IPRateWindow:    cfg.RateLimit.IPWindow,
		MetricsEnabled:  cfg.Monitoring.Prometheus.Enabled,
		MetricsEndpoint: cfg.Monitoring.Prometheus.Endpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		<-s.Cleaner.Stop().Done()
	}

	// Drain best-effort writes before the database goes away.
	if s.APIKeys != nil {
		s.APIKeys.Wait()
	}
	if s.RequestLog != nil {
		s.RequestLog.Wait()
	}

	var errs error
	if s.Cache != nil {
		errs = multierr.Append(errs, s.Cache.Close())
	}
	if s.DB != nil {
		errs = multierr.Append(errs, closeDatabase(s.DB))
	}
	for _, err := range multierr.Errors(errs) {
		log.Warn("shutdown", zap.Error(err))
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.Migrate(db); err != nil {
		_ = closeDatabase(db)
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", dbCfg.Driver))

	return db, nil
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:   strings.TrimSpace(cfg.Database.Path),
		DSN:    strings.TrimSpace(cfg.Database.DSN),
	}

	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		dbCfg.Host = strings.TrimSpace(cfg.Database.Postgres.Host)
		dbCfg.Port = cfg.Database.Postgres.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.Postgres.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.Postgres.Username)
		dbCfg.Password = strings.TrimSpace(cfg.Database.Postgres.Password)
	case "mysql", "mariadb":
		dbCfg.Driver = "mysql"
		dbCfg.Host = strings.TrimSpace(cfg.Database.MySQL.Host)
		dbCfg.Port = cfg.Database.MySQL.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.MySQL.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.MySQL.Username)
		dbCfg.Password = strings.TrimSpace(cfg.Database.MySQL.Password)
	default:
		// Leave driver as-is to surface unsupported driver error during open.
	}

	return dbCfg
}

func closeDatabase(db *gorm.DB) error {
	if db == nil {
		return nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("obtain sql db: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
