package server

import (
	"time"

	"proledger/internal/logger"

	"github.com/gin-gonic/gin"
)

// RequestLoggingMiddleware logs each request with structured key/value
// context. Health and metrics requests are skipped to keep scrape noise out
// of the logs; authenticated requests carry the acting account id.
func RequestLoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		if path == "/health" || path == "/metrics" {
			return
		}

		latency := time.Since(start)

		if raw != "" {
			path = path + "?" + raw
		}

		args := []any{
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency_ms", latency.Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if accountID := c.GetInt("account_id"); accountID != 0 {
			args = append(args, "account_id", accountID)
		}

		logger.Info("HTTP request", args...)
	}
}
