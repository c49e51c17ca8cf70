package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/trackgate/pkg/logger"
)

// Logger writes a concise structured access log for each request. Query strings are
// left out because they may carry credentials.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()

		fields := []zap.Field{
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("duration", duration),
			zap.String("client_ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
		}
		if authMethod := c.GetString(CtxAuthMethodKey); authMethod != "" {
			fields = append(fields, zap.String("auth_method", authMethod))
		}
		if keyID := c.GetString(CtxAPIKeyIDKey); keyID != "" {
			fields = append(fields, zap.String("api_key_id", keyID))
		}

		logger.WithModule("http").Info("request", fields...)
	}
}
