// Package render runs one page render end to end: borrow a tab, wait for
// completion, read the document and hand the tab back.
package render

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/prerender/detector"
	"github.com/use-agent/prerender/metrics"
	"github.com/use-agent/prerender/models"
)

// Page is a browser tab borrowed for a single render.
type Page interface {
	detector.Page
	Close()
}

// Opener hands out pages.
type Opener interface {
	Open(ctx context.Context) (Page, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context) (Page, error)

// Open implements Opener.
func (f OpenerFunc) Open(ctx context.Context) (Page, error) {
	return f(ctx)
}

// Result is a finished render.
type Result struct {
	Outcome  *models.Outcome
	Title    string
	Duration time.Duration
}

// Service renders pages. It is safe for concurrent use when its Opener is.
type Service struct {
	opener   Opener
	detector *detector.Detector
	metrics  *metrics.Metrics
}

// NewService creates a Service. m may be nil.
func NewService(opener Opener, det *detector.Detector, m *metrics.Metrics) *Service {
	if det == nil {
		det = detector.New()
	}
	return &Service{opener: opener, detector: det, metrics: m}
}

// Render performs req. Load failures and timeouts come back as outcomes;
// the error is set only when the browser itself fails.
func (s *Service) Render(ctx context.Context, req models.RenderRequest) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	page, err := s.opener.Open(ctx)
	if err != nil {
		return nil, models.AsRenderError(err)
	}
	defer page.Close()

	done := s.metrics.Begin()
	defer done()

	start := time.Now()
	out, err := s.detector.Detect(ctx, page, req)
	elapsed := time.Since(start)
	if err != nil {
		slog.Debug("render aborted", "url", req.URL, "mode", req.Mode(), "elapsed", elapsed, "error", err)
		return nil, err
	}

	s.metrics.ObserveRender(req.Mode(), out.Kind.String(), elapsed)
	slog.Debug("render finished",
		"url", req.URL,
		"mode", req.Mode(),
		"outcome", out.Kind.String(),
		"elapsed", elapsed,
		"milliseconds", elapsed.Milliseconds(),
	)

	res := &Result{Outcome: out, Duration: elapsed}
	if out.Kind == models.Succeeded {
		res.Title = Title(out.Markup)
	}
	return res, nil
}

// Title returns the document title, or "" if there is none.
func Title(markup string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// MarkNoRender appends "<param>=1" to target so the application behind it
// does not route the request back to the renderer. An empty param leaves
// target untouched.
func MarkNoRender(target, param string) (string, error) {
	if param == "" {
		return target, nil
	}
	u, err := url.Parse(target)
	if err != nil {
		return "", models.NewRenderError(models.ErrCodeInvalidInput, "invalid url", err)
	}
	q := u.Query()
	q.Set(param, "1")
	u.RawQuery = q.Encode()
	return u.String(), nil
}
