package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/charlesng35/trackgate/internal/cache"
	iauth "github.com/charlesng35/trackgate/internal/auth"
	"github.com/charlesng35/trackgate/internal/handlers"
	"github.com/charlesng35/trackgate/internal/middleware"
	"github.com/charlesng35/trackgate/internal/monitoring"
	"github.com/charlesng35/trackgate/internal/services"
)

const (
	defaultIPRateLimit   = 100
	defaultIPRateWindow  = time.Minute
	defaultMetricsPrefix = "/metrics"
)

// Dependencies carries the services the HTTP surface is built on.
type Dependencies struct {
	JWT       *iauth.JWTService
	Gateway   *iauth.Gateway
	APIKeys   *services.APIKeyService
	Positions handlers.PositionFetcher
	Cache     cache.Store
	Health    *monitoring.HealthManager

	// IPRateLimit bounds requests per client IP and path within IPRateWindow.
	IPRateLimit  int
	IPRateWindow time.Duration

	MetricsEnabled  bool
	MetricsEndpoint string
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if deps.JWT == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if deps.Gateway == nil {
		return nil, fmt.Errorf("auth gateway must be provided")
	}
	if deps.APIKeys == nil {
		return nil, fmt.Errorf("api key service must be provided")
	}
	if deps.Positions == nil {
		return nil, fmt.Errorf("position fetcher must be provided")
	}
	if deps.Cache == nil {
		return nil, fmt.Errorf("cache store must be provided")
	}

	limit := deps.IPRateLimit
	if limit <= 0 {
		limit = defaultIPRateLimit
	}
	window := deps.IPRateWindow
	if window <= 0 {
		window = defaultIPRateWindow
	}

	metricsEndpoint := strings.TrimSpace(deps.MetricsEndpoint)
	if metricsEndpoint == "" {
		metricsEndpoint = defaultMetricsPrefix
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics(metricsEndpoint))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS())
	r.Use(middleware.RateLimit(middleware.NewCacheRateStore(deps.Cache), limit, window))

	registerHealthRoutes(r, handlers.NewHealthHandler(deps.Health))

	api := r.Group("/api")
	registerAPIKeyRoutes(api, middleware.Auth(deps.JWT), handlers.NewAPIKeyHandler(deps.APIKeys))
	registerVehicleRoutes(api, middleware.APIKeyOrBearer(deps.Gateway), handlers.NewVehicleHandler(deps.Positions))

	if deps.MetricsEnabled {
		r.GET(metricsEndpoint, gin.WrapH(promhttp.Handler()))
	}

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
