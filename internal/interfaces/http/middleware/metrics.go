package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

// HTTPRecorder receives per-request measurements
type HTTPRecorder interface {
	HTTPRequestStarted()
	ObserveHTTPRequest(method, route string, status int, d time.Duration)
}

// unmatchedRoute labels requests that matched no route, keeping label cardinality bounded
const unmatchedRoute = "unmatched"

// HTTPMetrics records request count, latency and concurrency per route pattern
func HTTPMetrics(recorder HTTPRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		recorder.HTTPRequestStarted()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		recorder.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
