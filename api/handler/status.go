package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Status returns a handler for GET /api/v1/status.
func Status(src StatusSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, src.Status())
	}
}
