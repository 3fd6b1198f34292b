package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/use-agent/prerender/api"
	"github.com/use-agent/prerender/api/handler"
	"github.com/use-agent/prerender/api/middleware"
	"github.com/use-agent/prerender/cache"
	"github.com/use-agent/prerender/config"
	"github.com/use-agent/prerender/metrics"
	"github.com/use-agent/prerender/models"
	"github.com/use-agent/prerender/render"
)

// shutdownGrace is how long in-flight renders get to finish on shutdown.
const shutdownGrace = 5 * time.Second

func newServeCmd(a *app, f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve renders over HTTP",
		Long: `serve keeps a browser running and renders pages on demand:

  GET  /api/v1/render?url=URL   annotated HTML with the page's status
  POST /api/v1/render           JSON {url, timeout, fixed}
  GET  /api/v1/health           pool and cache state
  GET  /metrics                 Prometheus metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(a, *f, "json")
			if err != nil {
				return err
			}
			return serve(cmd.Context(), a, cfg)
		},
	}
}

// server is a fully wired HTTP server and what it holds on to.
type server struct {
	http    *http.Server
	limiter *middleware.Limiter
	release func()
}

func newServer(ctx context.Context, a *app, cfg *config.Config) (*server, error) {
	eng, err := a.launch(cfg.Browser)
	if err != nil {
		return nil, err
	}

	store, closeStore, err := cache.Open(ctx, cfg.Cache)
	if err != nil {
		eng.Close()
		return nil, models.NewRenderError(models.ErrCodeInternal, err.Error(), err)
	}

	m := metrics.New()
	limiter := middleware.NewLimiter(cfg.RateLimit)

	router := api.NewRouter(cfg, api.Deps{
		Render: handler.RenderDeps{
			Renderer: render.NewService(eng, newDetector(cfg.Render), m),
			Cache:    store,
			Metrics:  m,
			Config:   cfg.Render,
		},
		Pool:      eng,
		CacheName: cfg.Cache.Backend,
		Limiter:   limiter,
		Metrics:   m,
		StartTime: time.Now(),
	})

	return &server{
		http: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		limiter: limiter,
		release: func() {
			closeStore()
			eng.Close()
		},
	}, nil
}

// serve runs the HTTP server until ctx is canceled, then drains it.
func serve(ctx context.Context, a *app, cfg *config.Config) error {
	slog.Info("prerender starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"maxPages", cfg.Browser.MaxPages,
		"cache", cfg.Cache.Backend,
	)

	srv, err := newServer(ctx, a, cfg)
	if err != nil {
		return err
	}
	defer srv.release()

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go srv.limiter.Run(sweepCtx, 5*time.Minute)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", srv.http.Addr)
		if err := srv.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return models.NewRenderError(models.ErrCodeInternal, "HTTP server error: "+err.Error(), err)
		}
		return nil
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := srv.http.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	slog.Info("prerender stopped")
	return nil
}
