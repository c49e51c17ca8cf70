package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/trackgate/internal/monitoring"
)

func probe(status monitoring.ProbeStatus) func(context.Context) monitoring.ProbeResult {
	return func(context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: status}
	}
}

func TestHealthHandlerWithoutManager(t *testing.T) {
	handler := NewHealthHandler(nil)

	rec, env := serve(t, http.MethodGet, "/health", "/health", "", nil, handler.Health)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, env.Success)
	require.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestHealthHandlerReadyDegradedStillServes(t *testing.T) {
	manager := monitoring.NewHealthManager()
	manager.RegisterLiveness(monitoring.NewCheck("process", probe(monitoring.StatusUp)))
	manager.RegisterReadiness(monitoring.NewCheck("cache", probe(monitoring.StatusDegraded)))
	handler := NewHealthHandler(manager)

	rec, _ := serve(t, http.MethodGet, "/health/ready", "/health/ready", "", nil, handler.Ready)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"degraded"`)

	rec, _ = serve(t, http.MethodGet, "/health/live", "/health/live", "", nil, handler.Live)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"up"`)
}

func TestHealthHandlerDown(t *testing.T) {
	manager := monitoring.NewHealthManager()
	manager.RegisterReadiness(monitoring.NewCheck("database", probe(monitoring.StatusDown)))
	handler := NewHealthHandler(manager)

	rec, env := serve(t, http.MethodGet, "/health", "/health", "", nil, handler.Health)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.False(t, env.Success)
}
