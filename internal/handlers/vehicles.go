package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/trackgate/internal/telemetry"
	apperrors "github.com/charlesng35/trackgate/pkg/errors"
	"github.com/charlesng35/trackgate/pkg/logger"
	"github.com/charlesng35/trackgate/pkg/response"
)

// PositionFetcher retrieves the latest positions for a vehicle group.
type PositionFetcher interface {
	FetchPositions(ctx context.Context, uid string) (*telemetry.PositionsResponse, error)
}

// VehicleHandler serves vehicle position reads.
type VehicleHandler struct {
	positions PositionFetcher
	now       func() time.Time
}

// NewVehicleHandler constructs a vehicle handler.
func NewVehicleHandler(positions PositionFetcher) *VehicleHandler {
	return &VehicleHandler{positions: positions, now: time.Now}
}

// GET /api/vehicles/:uid/positions
func (h *VehicleHandler) Positions(c *gin.Context) {
	uid := strings.TrimSpace(c.Param("uid"))
	if uid == "" {
		response.Error(c, apperrors.NewBadRequest("uid is required"))
		return
	}

	payload, err := h.positions.FetchPositions(requestContext(c), uid)
	if err != nil {
		fields := append(requestPrincipal(c).fields(), zap.String("uid", uid), zap.Error(err))
		logger.WithModule("vehicles").Warn("position fetch failed", fields...)
		response.Error(c, upstreamError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"vehicles":  payload.Vehicles(),
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

func upstreamError(err error) *apperrors.AppError {
	switch {
	case errors.Is(err, telemetry.ErrAuthenticationFailed):
		return apperrors.ErrUpstreamAuth.WithInternal(err)
	case errors.Is(err, telemetry.ErrUpstreamTimeout):
		return apperrors.ErrUpstreamTimeout.WithInternal(err)
	case errors.Is(err, telemetry.ErrUpstream):
		return apperrors.ErrBadGateway.WithInternal(err)
	default:
		return apperrors.ErrInternalServer.WithInternal(err)
	}
}
