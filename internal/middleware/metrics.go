package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/skillforge/skillforge-api/internal/service"
)

// Metrics records duration and count for every request. The route template
// is used as the path label so course IDs do not explode label cardinality.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
