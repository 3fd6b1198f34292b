package browser

import (
	"context"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/stealth"
	"github.com/use-agent/prerender/models"
	"github.com/ysmood/gson"
)

// Session is one borrowed browser tab. It satisfies detector.Page.
type Session struct {
	owner  *Browser
	page   *rod.Page
	router *rod.HijackRouter
	once   sync.Once
}

func newSession(b *Browser, page *rod.Page) *Session {
	// Stealth and hijack only take effect for navigations that happen
	// after they are installed.
	if b.cfg.Stealth {
		if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
			slog.Warn("stealth injection failed, proceeding without stealth",
				"error", err,
			)
		}
	}

	return &Session{
		owner:  b,
		page:   page,
		router: blockRequests(page, b.cfg.BlockedResourceTypes, b.cfg.BlockAds),
	}
}

// Load navigates to url and waits for the load event. Any navigation
// error, including a network failure or an aborted load, is LoadFail.
func (s *Session) Load(ctx context.Context, url string) models.LoadStatus {
	p := s.page.Context(ctx)

	if err := p.Navigate(url); err != nil {
		slog.Debug("navigation failed", "url", url, "error", err)
		return models.LoadFail
	}
	if err := p.WaitLoad(); err != nil {
		slog.Debug("load event not reached", "url", url, "error", err)
		return models.LoadFail
	}
	return models.LoadSuccess
}

// Evaluate runs js in the page and returns the result by value.
func (s *Session) Evaluate(ctx context.Context, js string) (gson.JSON, error) {
	res, err := s.page.Context(ctx).Eval(js)
	if err != nil {
		return gson.New(nil), err
	}
	return res.Value, nil
}

// Content returns the serialized document.
func (s *Session) Content(ctx context.Context) (string, error) {
	return s.page.Context(ctx).HTML()
}

// Close stops request blocking and hands the tab back to the pool.
// It is safe to call more than once.
func (s *Session) Close() {
	s.once.Do(func() {
		if s.router != nil {
			_ = s.router.Stop()
		}
		s.owner.release(s.page)
	})
}
