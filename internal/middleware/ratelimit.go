package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/trackgate/pkg/errors"
	"github.com/charlesng35/trackgate/pkg/logger"
	"github.com/charlesng35/trackgate/pkg/response"
)

const ipRateLimitKeyPrefix = "ratelimit:ip:"

// RateLimit limits requests per client IP within a fixed window. Counters live in the
// supplied store so every instance sharing a Redis backend shares the budget. A
// failing store lets the request through.
func RateLimit(store RateStore, maxRequests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil || maxRequests <= 0 || window <= 0 {
			c.Next()
			return
		}

		count, resetIn, err := store.Increment(c.Request.Context(), ipRateLimitKeyPrefix+c.ClientIP(), window)
		if err != nil {
			logger.WithModule("http").Warn("ip rate limit unavailable", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(max(0, maxRequests-count)))
		c.Header("X-RateLimit-Reset", strconv.Itoa(int(resetIn.Seconds())))

		if count > maxRequests {
			c.Header("Retry-After", strconv.Itoa(max(1, int(resetIn.Seconds()))))
			response.Error(c, errors.ErrRateLimit)
			c.Abort()
			return
		}

		c.Next()
	}
}
