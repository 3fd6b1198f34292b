// Package pagetest provides a scripted in-memory page for tests.
package pagetest

import (
	"context"
	"sync"
	"time"

	"github.com/use-agent/prerender/models"
	"github.com/ysmood/gson"
)

// Step publishes Value as the probe result from At (measured from the end
// of the load) onwards. A non-empty Markup replaces the document at the
// same moment.
type Step struct {
	At     time.Duration
	Value  any
	Markup string
}

// Page is a fake browser tab whose state evolves along Steps.
// Before the first step the probe reads "" (signal absent).
type Page struct {
	Status        models.LoadStatus
	LoadDelay     time.Duration
	InitialMarkup string
	Steps         []Step
	EvalErr       error
	ContentErr    error

	mu       sync.Mutex
	loadedAt time.Time
	url      string
	loads    int
	probes   int
	contents int
	closed   bool
}

func (p *Page) Load(ctx context.Context, url string) models.LoadStatus {
	if p.LoadDelay > 0 {
		select {
		case <-time.After(p.LoadDelay):
		case <-ctx.Done():
			return models.LoadFail
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.loads++
	p.url = url
	p.loadedAt = time.Now()
	return p.Status
}

func (p *Page) Evaluate(_ context.Context, _ string) (gson.JSON, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probes++
	if p.EvalErr != nil {
		return gson.JSON{}, p.EvalErr
	}
	value, _ := p.current()
	return gson.New(value), nil
}

func (p *Page) Content(_ context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.contents++
	if p.ContentErr != nil {
		return "", p.ContentErr
	}
	_, markup := p.current()
	return markup, nil
}

// Close marks the page as released.
func (p *Page) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

// current must be called with p.mu held.
func (p *Page) current() (any, string) {
	var value any = ""
	markup := p.InitialMarkup
	elapsed := time.Since(p.loadedAt)
	for _, s := range p.Steps {
		if elapsed < s.At {
			break
		}
		value = s.Value
		if s.Markup != "" {
			markup = s.Markup
		}
	}
	return value, markup
}

// Probes returns how many times Evaluate was called.
func (p *Page) Probes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.probes
}

// Loads returns how many times Load completed.
func (p *Page) Loads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loads
}

// Contents returns how many times Content was called.
func (p *Page) Contents() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.contents
}

// URL returns the last URL passed to Load.
func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

// Closed reports whether Close was called.
func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
