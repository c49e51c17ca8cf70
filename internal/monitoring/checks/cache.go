package checks

import (
	"context"
	"time"

	"github.com/charlesng35/trackgate/internal/cache"
	"github.com/charlesng35/trackgate/internal/monitoring"
)

// CacheHealthReporter exposes the cache backend state.
type CacheHealthReporter interface {
	Health() cache.Health
}

// Cache reports a degraded probe while the remote cache is unavailable. Requests keep
// being served from the local fallback, so the check is advisory.
func Cache(store CacheHealthReporter) monitoring.Check {
	return monitoring.NewAdvisoryCheck("cache", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if store == nil {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusDown,
				Details:  "cache not configured",
				Duration: time.Since(start),
			}
		}

		state := store.Health()
		result := monitoring.ProbeResult{
			Status:   monitoring.StatusUp,
			Details:  state.String(),
			Duration: time.Since(start),
		}
		switch state {
		case cache.HealthUnconfigured:
			result.Details = "redis disabled; serving from local cache"
		case cache.HealthConnecting, cache.HealthDegraded:
			result.Status = monitoring.StatusDegraded
			result.Details = "redis " + state.String() + "; serving from local cache"
		}
		return result
	})
}
