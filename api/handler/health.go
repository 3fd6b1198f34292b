package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/prerender/cache"
	"github.com/use-agent/prerender/models"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// cachePingTimeout bounds the reachability check of a shared cache.
const cachePingTimeout = 2 * time.Second

// PoolReporter exposes browser pool utilisation.
type PoolReporter interface {
	Stats() models.PoolStats
}

// pinger is a cache store that can report whether its backend answers.
type pinger interface {
	Ping(ctx context.Context) error
}

// sizer is a cache store that knows how many documents it holds.
type sizer interface {
	Len() int
}

// HealthDeps groups what the health handler inspects. Cache may be nil.
type HealthDeps struct {
	Pool         PoolReporter
	Cache        cache.Store
	CacheBackend string
	StartTime    time.Time
}

// Health returns a handler for GET /api/v1/health.
//
// The renderer is degraded when more than 80% of its tabs are rendering
// or when a shared cache stops answering; renders still work in both cases.
func Health(deps HealthDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := deps.Pool.Stats()
		ch := deps.cacheHealth(c.Request.Context())

		status := "healthy"
		if stats.MaxPages > 0 && stats.ActivePages > int(float64(stats.MaxPages)*0.8) {
			status = "degraded"
		}
		if ch != nil && !ch.Reachable {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:    status,
			Uptime:    time.Since(deps.StartTime).Round(time.Second).String(),
			PoolStats: stats,
			Cache:     ch,
			Version:   Version,
		})
	}
}

func (d HealthDeps) cacheHealth(ctx context.Context) *models.CacheHealth {
	if d.Cache == nil {
		return nil
	}
	ch := &models.CacheHealth{Backend: d.CacheBackend, Reachable: true}
	if s, ok := d.Cache.(sizer); ok {
		n := s.Len()
		ch.Entries = &n
	}
	if p, ok := d.Cache.(pinger); ok {
		ctx, cancel := context.WithTimeout(ctx, cachePingTimeout)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			slog.Warn("render cache unreachable", "backend", d.CacheBackend, "error", err)
			ch.Reachable = false
		}
	}
	return ch
}
