package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cpd-events/backoffice/pkg/metrics"
)

// Metrics records request counts and latency per route template. Unmatched routes share the "unmatched" label.
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start).Seconds())
	}
}
