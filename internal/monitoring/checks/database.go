package checks

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/trackgate/internal/monitoring"
)

const defaultDatabaseTimeout = 2 * time.Second

// Database pings the key store. The probe is degraded while every pooled connection
// is busy, since key validation and request logging then queue behind each other.
func Database(db *gorm.DB, timeout time.Duration) monitoring.Check {
	if timeout <= 0 {
		timeout = defaultDatabaseTimeout
	}

	return monitoring.NewCheck("database", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if db == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "database not configured"}
		}

		sqlDB, err := db.DB()
		if err != nil {
			return monitoring.ResultFromError("database", err, time.Since(start))
		}

		// A saturated pool would queue the ping behind the work it is meant to observe.
		stats := sqlDB.Stats()
		details := fmt.Sprintf("open=%d in_use=%d idle=%d", stats.OpenConnections, stats.InUse, stats.Idle)
		if stats.MaxOpenConnections > 0 && stats.InUse >= stats.MaxOpenConnections {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusDegraded,
				Details:  "connection pool saturated; " + details,
				Duration: time.Since(start),
			}
		}

		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := sqlDB.PingContext(pingCtx); err != nil {
			return monitoring.ResultFromError("database", err, time.Since(start))
		}

		return monitoring.ProbeResult{
			Status:   monitoring.StatusUp,
			Details:  details,
			Duration: time.Since(start),
		}
	})
}
