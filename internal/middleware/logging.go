package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLogger logs every request once it completes. Errors attached with
// c.Error are logged at error level for 5xx responses and warn otherwise.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.Int("user_id", c.GetInt(UserIDKey)),
		}

		switch {
		case len(c.Errors) > 0 && status >= 500:
			log.Error("request failed", append(fields, zap.String("error", c.Errors.String()))...)
		case len(c.Errors) > 0:
			log.Warn("request rejected", append(fields, zap.String("error", c.Errors.String()))...)
		default:
			log.Debug("request", fields...)
		}
	}
}
