package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/trackgate/pkg/metrics"
)

const (
	unmatchedRoute = "unmatched"
	anonymousAuth  = "none"
)

// Metrics observes request latency by route pattern, status and the credential type
// that admitted the request. Requests for the skipped paths are not observed.
func Metrics(skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, path := range skip {
		if path != "" {
			skipped[path] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		if _, ok := skipped[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		// Unrouted paths share one series; raw paths would grow without bound.
		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		method := c.GetString(CtxAuthMethodKey)
		if method == "" {
			method = anonymousAuth
		}

		metrics.APILatency.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), method).
			Observe(time.Since(start).Seconds())
	}
}
