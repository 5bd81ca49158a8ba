package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/fanatic/models"
)

// StatusSource is what the handlers report on.
type StatusSource interface {
	Ready() bool
	Status() models.StatusResponse
}

// Health returns a handler for GET /api/v1/health.
//
// Reports "degraded" while the account is not logged in.
func Health(src StatusSource, startTime time.Time, version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "healthy"
		if !src.Ready() {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:  status,
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Version: version,
		})
	}
}
