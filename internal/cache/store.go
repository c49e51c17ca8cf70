package cache

import (
	"context"
	"time"
)

// Store represents a shared cache interface used across the application.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithExpiry(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// IncrementWithTTL increments a counter and starts its window on first use.
	// It returns the current count and the remaining time-to-live.
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// Health describes the state of the remote cache backend.
type Health int32

const (
	// HealthUnconfigured means no remote address was supplied; only the local store is used.
	HealthUnconfigured Health = iota
	// HealthConnecting is the state while the startup connection attempt is in flight.
	HealthConnecting
	// HealthHealthy means remote operations are preferred.
	HealthHealthy
	// HealthDegraded means a remote error occurred and operations are served locally
	// until the backend reports a fresh connection.
	HealthDegraded
)

func (h Health) String() string {
	switch h {
	case HealthUnconfigured:
		return "unconfigured"
	case HealthConnecting:
		return "connecting"
	case HealthHealthy:
		return "healthy"
	case HealthDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}
