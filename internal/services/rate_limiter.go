package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/trackgate/internal/cache"
	"github.com/charlesng35/trackgate/pkg/logger"
)

// Rate limiting strategies.
const (
	// RateLimitStrategyLog counts the request log over a trailing window. Concurrent
	// requests may briefly exceed the limit because counting precedes logging.
	RateLimitStrategyLog = "log"
	// RateLimitStrategyCounter uses an atomic fixed-window counter on the cache store.
	RateLimitStrategyCounter = "counter"
)

// RateLimitWindow is the admission window for per-key limits.
const RateLimitWindow = time.Minute

const rateLimitKeyPrefix = "ratelimit:apikey:"

type requestCounter interface {
	CountSince(ctx context.Context, apiKeyID string, since time.Time) (int64, error)
}

// RateLimiterConfig selects and wires a strategy.
type RateLimiterConfig struct {
	Strategy string
	Log      *RequestLogService
	Store    cache.Store
	Now      func() time.Time
}

// RateLimiter decides whether an API key may make another request. Every failure
// to obtain a count denies the request.
type RateLimiter struct {
	strategy string
	counter  requestCounter
	store    cache.Store
	now      func() time.Time
	log      *zap.Logger
}

// NewRateLimiter validates the configuration and returns a RateLimiter.
func NewRateLimiter(cfg RateLimiterConfig) (*RateLimiter, error) {
	strategy := strings.ToLower(strings.TrimSpace(cfg.Strategy))
	if strategy == "" {
		strategy = RateLimitStrategyLog
	}

	limiter := &RateLimiter{
		strategy: strategy,
		store:    cfg.Store,
		now:      cfg.Now,
		log:      logger.WithModule("rate_limit"),
	}
	if limiter.now == nil {
		limiter.now = time.Now
	}
	if cfg.Log != nil {
		limiter.counter = cfg.Log
	}

	switch strategy {
	case RateLimitStrategyLog:
		if limiter.counter == nil {
			return nil, errors.New("rate limiter: request log is required for the log strategy")
		}
	case RateLimitStrategyCounter:
		if limiter.store == nil {
			return nil, errors.New("rate limiter: cache store is required for the counter strategy")
		}
	default:
		return nil, fmt.Errorf("rate limiter: unknown strategy %q", cfg.Strategy)
	}
	return limiter, nil
}

// Strategy reports the active strategy name.
func (l *RateLimiter) Strategy() string {
	return l.strategy
}

// Allow reports whether apiKeyID is below limit requests per window.
func (l *RateLimiter) Allow(ctx context.Context, apiKeyID string, limit int) bool {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		return false
	}

	if l.strategy == RateLimitStrategyCounter {
		return l.allowCounter(ctx, apiKeyID, limit)
	}
	return l.allowLog(ctx, apiKeyID, limit)
}

func (l *RateLimiter) allowLog(ctx context.Context, apiKeyID string, limit int) bool {
	since := l.now().Add(-RateLimitWindow)
	count, err := l.counter.CountSince(ctx, apiKeyID, since)
	if err != nil {
		l.log.Error("rate limit count failed; denying request", zap.String("api_key_id", apiKeyID), zap.Error(err))
		return false
	}
	return count < int64(limit)
}

func (l *RateLimiter) allowCounter(ctx context.Context, apiKeyID string, limit int) bool {
	count, _, err := l.store.IncrementWithTTL(ctx, rateLimitKeyPrefix+apiKeyID, RateLimitWindow)
	if err != nil {
		l.log.Error("rate limit increment failed; denying request", zap.String("api_key_id", apiKeyID), zap.Error(err))
		return false
	}
	return count <= int64(limit)
}
