package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"chorus/messaging-service/utils"
)

// Logger logs one line per request.
func Logger(logger *utils.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.Info("HTTP request",
			"remote_addr", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
