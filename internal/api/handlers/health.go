package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bubblefield/backend/internal/bubble"
)

var startTime = time.Now()

const version = "1.0.0"

// HealthCheck returns server health status
func HealthCheck(c *gin.Context) {
	sessions := 0
	if bubble.Sessions != nil {
		sessions = bubble.Sessions.Count()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"service":  "bubblefield-api",
		"version":  version,
		"uptime":   time.Since(startTime).String(),
		"sessions": sessions,
	})
}
