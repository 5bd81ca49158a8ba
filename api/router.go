package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/fanatic/api/handler"
	"github.com/use-agent/fanatic/api/middleware"
	"github.com/use-agent/fanatic/config"
)

// Version is reported by the health endpoint.
var Version = "0.1.0"

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	Status:  Auth (if keys are configured) → RateLimit
//
// Health stays outside auth so monitoring probes always work.
func NewRouter(src handler.StatusSource, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())

	v1 := r.Group("/api/v1")

	v1.GET("/health", handler.Health(src, startTime, Version))

	protected := v1.Group("")
	protected.Use(middleware.Auth(cfg.API.APIKeys))
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	protected.GET("/status", handler.Status(src))

	return r
}
