package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/trackgate/internal/models"
	"github.com/charlesng35/trackgate/internal/monitoring"
	"github.com/charlesng35/trackgate/internal/services"
	"github.com/charlesng35/trackgate/pkg/logger"
)

const (
	defaultRequestRetentionDays = 7
	defaultRequestLogSpec       = "@daily"
	defaultExpiredKeySpec       = "@hourly"

	jobRequestLogCleanup = "request_log_cleanup"
	jobExpiredKeyCleanup = "expired_key_cleanup"
)

// Cleaner coordinates background maintenance: pruning the API request log and
// deactivating API keys whose expiry has passed.
type Cleaner struct {
	db         *gorm.DB
	requestLog *services.RequestLogService
	cron       *cron.Cron
	now        func() time.Time
	log        *zap.Logger
	enabled    bool
	retention  int

	requestLogSchedule string
	expiredKeySchedule string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for cleanup comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithRetentionDays adjusts how long request log entries are retained. The log must
// cover at least the rate limit window, so any positive value is accepted.
func WithRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.retention = days
		}
	}
}

// WithRequestLogSchedule overrides the cron specification for request log pruning.
func WithRequestLogSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.requestLogSchedule = spec
		}
	}
}

// WithExpiredKeySchedule overrides the cron specification for expired key cleanup.
func WithExpiredKeySchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.expiredKeySchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner. A nil dependency skips the jobs that need it.
func NewCleaner(db *gorm.DB, requestLog *services.RequestLogService, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		db:                 db,
		requestLog:         requestLog,
		now:                time.Now,
		retention:          defaultRequestRetentionDays,
		requestLogSchedule: defaultRequestLogSpec,
		expiredKeySchedule: defaultExpiredKeySpec,
		log:                logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	cleaner.enabled = cleaner.requestLog != nil || cleaner.db != nil
	return cleaner
}

// Start registers cleanup jobs with the cron scheduler and launches it if at least one job is enabled.
func (c *Cleaner) Start() error {
	if !c.enabled {
		return nil
	}

	if c.requestLog != nil {
		if _, err := c.cron.AddFunc(c.requestLogSchedule, func() {
			if err := c.pruneRequestLog(context.Background()); err != nil {
				c.log.Warn("request log cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.db != nil {
		if _, err := c.cron.AddFunc(c.expiredKeySchedule, func() {
			if err := c.deactivateExpiredKeys(context.Background()); err != nil {
				c.log.Warn("expired key cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	if c.requestLog != nil {
		errs = multierr.Append(errs, c.pruneRequestLog(ctx))
	}
	if c.db != nil {
		errs = multierr.Append(errs, c.deactivateExpiredKeys(ctx))
	}
	return errs
}

func (c *Cleaner) pruneRequestLog(ctx context.Context) error {
	start := time.Now()
	removed, err := c.requestLog.CleanupOlderThan(ctx, c.retention)
	c.record(jobRequestLogCleanup, start, err)
	if err == nil && removed > 0 {
		c.log.Info("pruned api request log", zap.Int64("removed", removed), zap.Int("retention_days", c.retention))
	}
	return err
}

func (c *Cleaner) deactivateExpiredKeys(ctx context.Context) error {
	start := time.Now()
	deactivated, err := DeactivateExpiredKeys(ctx, c.db, c.now())
	c.record(jobExpiredKeyCleanup, start, err)
	if err == nil && deactivated > 0 {
		c.log.Info("deactivated expired api keys", zap.Int64("count", deactivated))
	}
	return err
}

func (c *Cleaner) record(job string, start time.Time, err error) {
	if err != nil {
		monitoring.RecordJobRun(job, monitoring.JobFailure, err.Error(), time.Since(start))
		return
	}
	monitoring.RecordJobRun(job, monitoring.JobSuccess, "", time.Since(start))
}

// DeactivateExpiredKeys marks active keys whose expiry is at or before now as inactive.
// Rows are kept so the request log continues to reference them.
func DeactivateExpiredKeys(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	if db == nil {
		return 0, errors.New("deactivate expired keys: db is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	result := db.WithContext(ctx).
		Model(&models.APIKey{}).
		Where("is_active = ? AND expires_at IS NOT NULL AND expires_at <= ?", true, now).
		Update("is_active", false)
	if result.Error != nil {
		return 0, fmt.Errorf("deactivate expired keys: %w", result.Error)
	}
	return result.RowsAffected, nil
}
