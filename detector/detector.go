// Package detector decides when a rendered page is done.
//
// In fixed-mode a page is complete as soon as its initial load finishes.
// In polling-mode the page has to publish a completion signal (by default
// window.serverRenderer = {status: <code>}); the detector probes for it on
// a fixed period until it shows up or the post-load timeout elapses.
package detector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/use-agent/prerender/models"
	"github.com/ysmood/gson"
)

const (
	// DefaultPollInterval is the period between two completion probes.
	DefaultPollInterval = 100 * time.Millisecond

	// DefaultSignalGlobal is the window property pages set when done.
	DefaultSignalGlobal = "serverRenderer"
)

// Page is the view of a browser tab the detector drives.
type Page interface {
	// Load navigates to url and blocks until the load event fired.
	Load(ctx context.Context, url string) models.LoadStatus

	// Evaluate runs a no-argument JS function in the page and returns its
	// result by value.
	Evaluate(ctx context.Context, js string) (gson.JSON, error)

	// Content returns the serialized document at call time.
	Content(ctx context.Context) (string, error)
}

// Detector turns a page load plus optional probing into one Outcome.
// A Detector holds no per-render state and may be shared.
type Detector struct {
	interval time.Duration
	probe    string
	now      func() time.Time
}

// Option configures a Detector.
type Option func(*Detector)

// WithPollInterval sets the probe period. Non-positive values are ignored.
func WithPollInterval(d time.Duration) Option {
	return func(det *Detector) {
		if d > 0 {
			det.interval = d
		}
	}
}

// WithSignalGlobal sets the window property probed for completion.
func WithSignalGlobal(name string) Option {
	return func(det *Detector) {
		if name != "" {
			det.probe = ProbeJS(name)
		}
	}
}

// WithClock replaces time.Now for elapsed-time checks.
func WithClock(now func() time.Time) Option {
	return func(det *Detector) {
		det.now = now
	}
}

// New creates a Detector.
func New(opts ...Option) *Detector {
	d := &Detector{
		interval: DefaultPollInterval,
		probe:    ProbeJS(DefaultSignalGlobal),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ProbeJS returns the probe function reading the given window property.
// A missing property reads as the empty string.
func ProbeJS(global string) string {
	return fmt.Sprintf(`() => (%q in window) ? window[%q] : ""`, global, global)
}

// Detect loads req.URL in page and waits for completion according to the
// request's mode. Load failures and timeouts are outcomes, not errors; the
// returned error is reserved for browser failures and cancellation.
func (d *Detector) Detect(ctx context.Context, page Page, req models.RenderRequest) (*models.Outcome, error) {
	status, err := d.awaitLoad(ctx, page, req.URL)
	if err != nil {
		return nil, err
	}
	if status == models.LoadFail {
		return &models.Outcome{Kind: models.LoadFailed}, nil
	}

	if !req.Polling() {
		markup, err := page.Content(ctx)
		if err != nil {
			return nil, pageError(err, "failed to read page content")
		}
		return &models.Outcome{Kind: models.Succeeded, Markup: markup}, nil
	}

	return d.poll(ctx, page, time.Duration(req.TimeoutSeconds)*time.Second)
}

// awaitLoad runs the navigation on its own goroutine and receives the load
// status as a message. Everything that follows (probing, reading content)
// runs on the caller's goroutine, never inside the browser's load callback.
func (d *Detector) awaitLoad(ctx context.Context, page Page, url string) (models.LoadStatus, error) {
	loaded := make(chan models.LoadStatus, 1)
	go func() {
		loaded <- page.Load(ctx, url)
	}()

	select {
	case status := <-loaded:
		if err := ctx.Err(); err != nil {
			return models.LoadFail, pageError(err, "page load interrupted")
		}
		return status, nil
	case <-ctx.Done():
		return models.LoadFail, pageError(ctx.Err(), "page load interrupted")
	}
}

// poll probes the page once per interval. The signal is checked before the
// deadline so a signal landing on the deadline tick still wins. The ticker
// is stopped before any terminal outcome is returned.
func (d *Detector) poll(ctx context.Context, page Page, timeout time.Duration) (*models.Outcome, error) {
	start := d.now()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, pageError(ctx.Err(), "render interrupted")
		case <-ticker.C:
		}

		value, err := page.Evaluate(ctx, d.probe)
		if err != nil {
			return nil, pageError(err, "completion probe failed")
		}

		if signal, ok := DecodeSignal(value); ok {
			ticker.Stop()
			// Read the markup only after the signal is confirmed.
			markup, err := page.Content(ctx)
			if err != nil {
				return nil, pageError(err, "failed to read page content")
			}
			code := signal.StatusCode
			return &models.Outcome{Kind: models.Succeeded, Markup: markup, StatusCode: &code}, nil
		}

		if d.now().Sub(start) >= timeout {
			ticker.Stop()
			return &models.Outcome{Kind: models.TimedOut}, nil
		}
	}
}

// DecodeSignal interprets a probe result. Only a non-empty object counts as
// a completion signal; "", null, {} and scalars read as absent. A missing or
// non-numeric status defaults to 200.
func DecodeSignal(v gson.JSON) (models.Signal, bool) {
	fields := v.Map()
	if len(fields) == 0 {
		return models.Signal{}, false
	}

	code := http.StatusOK
	if status, ok := fields["status"]; ok {
		if n := statusCode(status); n > 0 {
			code = n
		}
	}
	return models.Signal{StatusCode: code}, true
}

// statusCode reads a numeric status, also when the page published it as a
// string such as "404".
func statusCode(v gson.JSON) int {
	if str, ok := v.Val().(string); ok {
		n, err := strconv.Atoi(strings.TrimSpace(str))
		if err != nil {
			return 0
		}
		return n
	}
	return v.Int()
}

// pageError wraps raw page errors into typed RenderErrors.
func pageError(err error, msg string) *models.RenderError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewRenderError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewRenderError(models.ErrCodeTimeout, "render canceled", err)
	default:
		return models.NewRenderError(models.ErrCodeBrowserCrash, msg, err)
	}
}
