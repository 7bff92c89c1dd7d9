// Package middleware holds gin middleware that depends on application-level
// collaborators rather than platform concerns.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

// RequestObserver records request latency.
type RequestObserver interface {
	ObserveHTTP(method, route string, status int, elapsed time.Duration)
}

// RequestTimer reports every request to obs, labelled by the matched route
// template so path parameters do not explode cardinality.
func RequestTimer(obs RequestObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if obs == nil {
			return
		}
		obs.ObserveHTTP(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}
