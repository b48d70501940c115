package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type HealthResponse struct {
	Status      string    `json:"status"`
	Service     string    `json:"service"`
	Connections int       `json:"connections"`
	Timestamp   time.Time `json:"timestamp"`
}

// ConnectionCounter reports the number of live connections.
type ConnectionCounter interface {
	Count() int
}

// HealthCheck handles GET /health
func HealthCheck(counter ConnectionCounter) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, HealthResponse{
			Status:      "healthy",
			Service:     "messaging-service",
			Connections: counter.Count(),
			Timestamp:   time.Now(),
		})
	}
}
