package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/prerender/cache"
	"github.com/use-agent/prerender/config"
	"github.com/use-agent/prerender/metrics"
	"github.com/use-agent/prerender/models"
	"github.com/use-agent/prerender/output"
	"github.com/use-agent/prerender/render"
)

// Renderer performs a single render.
type Renderer interface {
	Render(ctx context.Context, req models.RenderRequest) (*render.Result, error)
}

// RenderDeps groups what the render handlers need. Cache and Metrics may
// be nil.
type RenderDeps struct {
	Renderer Renderer
	Cache    cache.Store
	Metrics  *metrics.Metrics
	Config   config.RenderConfig
}

// document is a served render, fresh or cached.
type document struct {
	url         string
	body        string
	statusCode  int
	title       string
	cacheStatus string
	renderMs    int64
}

// RenderPage returns a handler for GET /api/v1/render?url=...
//
// The page is rendered in polling-mode with the default timeout and the
// annotated document is returned as text/html with the status the page
// reported.
func RenderPage(deps RenderDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		totalStart := time.Now()

		target := c.Query("url")
		if target == "" {
			respondError(c, models.NewRenderError(models.ErrCodeInvalidInput, "url query parameter is required", nil),
				models.TimingInfo{TotalMs: time.Since(totalStart).Milliseconds()})
			return
		}

		doc, err := deps.serve(c.Request.Context(), target, deps.timeout(0), false)
		if err != nil {
			respondError(c, err, models.TimingInfo{TotalMs: time.Since(totalStart).Milliseconds()})
			return
		}

		if doc.cacheStatus != "" {
			c.Header("X-Cache", doc.cacheStatus)
		}
		c.Data(doc.statusCode, "text/html; charset=utf-8", []byte(doc.body))
	}
}

// Render returns a handler for POST /api/v1/render.
func Render(deps RenderDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		totalStart := time.Now()

		var req models.RenderAPIRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.RenderResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}

		doc, err := deps.serve(c.Request.Context(), req.URL, deps.timeout(req.Timeout), req.Fixed)
		if err != nil {
			respondError(c, err, models.TimingInfo{TotalMs: time.Since(totalStart).Milliseconds()})
			return
		}

		resp := models.RenderResponse{
			Success:     true,
			URL:         doc.url,
			Title:       doc.title,
			Content:     doc.body,
			CacheStatus: doc.cacheStatus,
			Timing: models.TimingInfo{
				TotalMs:  time.Since(totalStart).Milliseconds(),
				RenderMs: doc.renderMs,
			},
		}
		if !req.Fixed {
			resp.StatusCode = doc.statusCode
		}
		c.JSON(http.StatusOK, resp)
	}
}

// timeout resolves the polling bound in whole seconds.
func (d RenderDeps) timeout(requested int) int {
	def := int(d.Config.DefaultTimeout / time.Second)
	if def < 1 {
		def = 10
	}
	t := requested
	if t <= 0 {
		t = def
	}
	if limit := int(d.Config.MaxTimeout / time.Second); limit > 0 && t > limit {
		t = limit
	}
	return t
}

// serve answers from cache or renders target. Cache failures are logged
// and never fail the request.
func (d RenderDeps) serve(ctx context.Context, target string, timeoutSec int, fixed bool) (*document, error) {
	finalURL, err := render.MarkNoRender(target, d.Config.NoRenderParam)
	if err != nil {
		return nil, err
	}

	req := models.RenderRequest{URL: finalURL}
	if !fixed {
		req.TimeoutSeconds = timeoutSec
	}
	key := cache.Key(finalURL, req.Mode())

	if d.Cache != nil {
		entry, hit, err := d.Cache.Get(ctx, key)
		switch {
		case err != nil:
			slog.Error("render cache retrieval failed", "url", finalURL, "error", err)
		case hit:
			d.Metrics.CacheHit()
			code, _ := output.ParseStatus(entry.Document)
			return &document{
				url:         finalURL,
				body:        entry.Document,
				statusCode:  responseStatus(code),
				title:       entry.Title,
				cacheStatus: "hit",
			}, nil
		default:
			d.Metrics.CacheMiss()
		}
	}

	res, err := d.Renderer.Render(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := res.Outcome.Err(); err != nil {
		return nil, err
	}

	code := http.StatusOK
	status := res.Outcome.StatusCode
	if status != nil {
		code = responseStatus(*status)
		status = &code
	}
	doc := &document{
		url:        finalURL,
		body:       string(output.Format(res.Outcome.Markup, status)),
		statusCode: code,
		title:      res.Title,
		renderMs:   res.Duration.Milliseconds(),
	}

	if d.Cache != nil {
		doc.cacheStatus = "miss"
		entry := &cache.Entry{
			Document:   doc.body,
			StatusCode: code,
			Title:      doc.title,
			RenderedAt: time.Now(),
		}
		if err := d.Cache.Set(ctx, key, entry); err != nil {
			slog.Error("render cache store failed", "url", finalURL, "error", err)
		}
	}
	return doc, nil
}

// responseStatus maps a page-reported status onto a code net/http can
// send. Anything outside 100-599 is served as 200.
func responseStatus(code int) int {
	if code < 100 || code > 599 {
		return http.StatusOK
	}
	return code
}

// respondError maps a RenderError to the correct HTTP status code and
// writes a structured JSON error response.
func respondError(c *gin.Context, err error, timing models.TimingInfo) {
	renderErr := models.AsRenderError(err)

	c.JSON(mapErrorToStatus(renderErr), models.RenderResponse{
		Success: false,
		Error:   renderErr.ToDetail(),
		Timing:  timing,
	})
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.RenderError) int {
	switch e.Code {
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeNavigation:
		return http.StatusBadGateway // 502
	case models.ErrCodeInvalidInput, models.ErrCodeUsage:
		return http.StatusBadRequest // 400
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	case models.ErrCodeBrowserCrash:
		return http.StatusServiceUnavailable // 503
	default:
		return http.StatusInternalServerError // 500
	}
}
