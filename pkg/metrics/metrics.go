package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAdmissions records gateway admission decisions by credential type and result
	// (admitted|invalid_key|rate_limited|unauthenticated|error).
	AuthAdmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackgate_auth_admissions_total",
			Help: "Total number of request admission decisions",
		},
		[]string{"method", "result"},
	)

	// CacheOperations counts cache operations by backend (remote|local) and result (hit|miss|ok|error).
	CacheOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackgate_cache_operations_total",
			Help: "Total number of cache operations",
		},
		[]string{"op", "backend", "result"},
	)

	// CacheHealth exposes the cache health state (0=unconfigured,1=connecting,2=healthy,3=degraded).
	CacheHealth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trackgate_cache_health",
			Help: "Current cache backend health state",
		},
	)

	// UpstreamLogins counts telemetry provider logins by result (success|failure).
	UpstreamLogins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackgate_upstream_logins_total",
			Help: "Total number of telemetry provider logins",
		},
		[]string{"result"},
	)

	// UpstreamLatency measures telemetry provider call latency.
	UpstreamLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trackgate_upstream_latency_seconds",
			Help:    "Telemetry provider call latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"call", "result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trackgate_api_latency_seconds",
			Help:    "API endpoint latency by route, status and credential type",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status", "auth"},
	)
)

var (
	// MaintenanceRuns counts background maintenance job runs by job and result.
	MaintenanceRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackgate_maintenance_runs_total",
			Help: "Total number of maintenance job runs",
		},
		[]string{"job", "result"},
	)

	// MaintenanceDuration measures maintenance job duration.
	MaintenanceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trackgate_maintenance_duration_seconds",
			Help:    "Maintenance job duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	)
)
