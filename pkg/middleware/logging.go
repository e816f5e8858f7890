package middleware

import (
	"net/http"
	"time"

	"github.com/gilby125/flight-radius/pkg/logger"
	"github.com/gin-gonic/gin"
)

// RequestLogger logs one line per request: 5xx at error, 4xx at warn, the rest at info.
// Install it after RequestID so lines carry the request ID.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		status := c.Writer.Status()
		log := logger.WithContext(c.Request.Context()).WithFields(map[string]interface{}{
			"method":     c.Request.Method,
			"path":       path,
			"status":     status,
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
			"bytes":      c.Writer.Size(),
		})
		if query != "" {
			log = log.WithField("query", query)
		}
		if cached := c.Writer.Header().Get("X-Cache"); cached != "" {
			log = log.WithField("cache", cached)
		}
		if len(c.Errors) > 0 {
			log = log.WithField("errors", c.Errors.String())
		}

		switch {
		case status >= http.StatusInternalServerError:
			log.Error(nil, "HTTP Request")
		case status >= http.StatusBadRequest:
			log.Warn("HTTP Request")
		default:
			log.Info("HTTP Request")
		}
	}
}

// Recovery turns a panic into a logged 500 with the standard error body.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.WithContext(c.Request.Context()).Error(nil, "Panic recovered",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"panic", recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal server error"})
	})
}
