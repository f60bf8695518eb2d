package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/playcue/backend/internal/match"
)

var startTime = time.Now()

const version = "1.2.0"

// HealthCheck returns server health status
func HealthCheck(c *gin.Context) {
	active := 0
	if match.Manager != nil {
		active = match.Manager.ActiveSessionCount()
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"service":        "playcue-api",
		"version":        version,
		"uptime":         time.Since(startTime).String(),
		"active_matches": active,
	})
}
