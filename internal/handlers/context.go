package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/trackgate/internal/middleware"
	apperrors "github.com/charlesng35/trackgate/pkg/errors"
	"github.com/charlesng35/trackgate/pkg/response"
)

// principal is the caller admitted by the auth middleware.
type principal struct {
	UserID   string
	APIKeyID string
	Method   string
}

func (p principal) fields() []zap.Field {
	fields := []zap.Field{zap.String("user_id", p.UserID), zap.String("auth", p.Method)}
	if p.APIKeyID != "" {
		fields = append(fields, zap.String("api_key_id", p.APIKeyID))
	}
	return fields
}

func requestContext(c *gin.Context) context.Context {
	if c == nil || c.Request == nil {
		return context.Background()
	}
	return c.Request.Context()
}

func requestPrincipal(c *gin.Context) principal {
	return principal{
		UserID:   strings.TrimSpace(c.GetString(middleware.CtxUserIDKey)),
		APIKeyID: c.GetString(middleware.CtxAPIKeyIDKey),
		Method:   c.GetString(middleware.CtxAuthMethodKey),
	}
}

// currentUserID answers 401 when no principal was admitted.
func currentUserID(c *gin.Context) (string, bool) {
	userID := requestPrincipal(c).UserID
	if userID == "" {
		response.Error(c, apperrors.ErrUnauthorized)
		return "", false
	}
	return userID, true
}
