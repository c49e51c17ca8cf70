package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/trackgate/internal/monitoring"
	"github.com/charlesng35/trackgate/pkg/response"
)

// HealthHandler serves the public health probes.
type HealthHandler struct {
	manager *monitoring.HealthManager
	now     func() time.Time
}

// NewHealthHandler constructs a health handler. A nil manager reports a bare "ok".
func NewHealthHandler(manager *monitoring.HealthManager) *HealthHandler {
	return &HealthHandler{manager: manager, now: time.Now}
}

// Health returns the merged liveness and readiness report.
func (h *HealthHandler) Health(c *gin.Context) {
	if h.manager == nil {
		response.Success(c, http.StatusOK, gin.H{"status": "ok", "timestamp": h.now().UTC()})
		return
	}
	h.write(c, h.manager.Evaluate(requestContext(c)))
}

// Live reports whether the process is able to serve requests.
func (h *HealthHandler) Live(c *gin.Context) {
	if h.manager == nil {
		response.Success(c, http.StatusOK, gin.H{"status": "ok", "timestamp": h.now().UTC()})
		return
	}
	h.write(c, h.manager.EvaluateLiveness(requestContext(c)))
}

// Ready reports dependency health. A degraded cache keeps the service ready.
func (h *HealthHandler) Ready(c *gin.Context) {
	if h.manager == nil {
		response.Success(c, http.StatusOK, gin.H{"status": "ok", "timestamp": h.now().UTC()})
		return
	}
	h.write(c, h.manager.EvaluateReadiness(requestContext(c)))
}

func (h *HealthHandler) write(c *gin.Context, report monitoring.HealthReport) {
	c.JSON(report.HTTPStatus(), gin.H{
		"success":   report.Status != monitoring.StatusDown,
		"status":    report.Status,
		"checks":    report.Checks,
		"timestamp": h.now().UTC(),
	})
}
