// Package api exposes the renderer over HTTP.
package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/prerender/api/handler"
	"github.com/use-agent/prerender/api/middleware"
	"github.com/use-agent/prerender/config"
	"github.com/use-agent/prerender/metrics"
)

// Deps are the collaborators the router wires into handlers.
type Deps struct {
	Render    handler.RenderDeps
	Pool      handler.PoolReporter
	CacheName string
	Limiter   *middleware.Limiter
	Metrics   *metrics.Metrics
	StartTime time.Time
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → RequestID
//	Render:  Auth (if enabled) → RateLimit
//
// Health and metrics stay outside auth so probes and scrapers always work.
func NewRouter(cfg *config.Config, deps Deps) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())

	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	v1 := r.Group("/api/v1")
	v1.GET("/health", handler.Health(handler.HealthDeps{
		Pool:         deps.Pool,
		Cache:        deps.Render.Cache,
		CacheBackend: deps.CacheName,
		StartTime:    deps.StartTime,
	}))

	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	if deps.Limiter != nil {
		protected.Use(middleware.RateLimit(deps.Limiter))
	}

	protected.GET("/render", handler.RenderPage(deps.Render))
	protected.POST("/render", handler.Render(deps.Render))

	return r
}
