package models

import (
	"strconv"
	"strings"
)

// Operator-facing usage lines.
const (
	MsgPollUsage      = "Usage: render TIMEOUT URL FILEPATH"
	MsgFixedUsage     = "Two arguments expected"
	MsgInvalidTimeout = "Invalid timeout format, integer expected"
)

// RenderRequest describes one render. It is built once from CLI or API
// input and passed by value afterwards.
type RenderRequest struct {
	// URL is the page to render. Required.
	URL string

	// DestinationPath is where the CLI persists the document. Empty for
	// API renders, which answer in-band.
	DestinationPath string

	// TimeoutSeconds bounds the post-load polling phase. Zero selects
	// fixed-mode.
	TimeoutSeconds int
}

// Polling reports whether the request waits for a completion signal.
func (r RenderRequest) Polling() bool {
	return r.TimeoutSeconds > 0
}

// Mode returns "poll" or "fixed".
func (r RenderRequest) Mode() string {
	if r.Polling() {
		return "poll"
	}
	return "fixed"
}

// Validate checks the request invariants.
func (r RenderRequest) Validate() error {
	if r.TimeoutSeconds < 0 {
		return NewRenderError(ErrCodeInvalidInput, MsgInvalidTimeout, nil)
	}
	if strings.TrimSpace(r.URL) == "" {
		return NewRenderError(ErrCodeInvalidInput, "url is required", nil)
	}
	return nil
}

// ParseTimeout parses a polling timeout given in whole seconds.
// Anything that is not a positive integer is rejected.
func ParseTimeout(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, NewRenderError(ErrCodeInvalidInput, MsgInvalidTimeout, err)
	}
	if n < 1 {
		return 0, NewRenderError(ErrCodeInvalidInput, MsgInvalidTimeout, nil)
	}
	return n, nil
}

// RenderAPIRequest is the payload for POST /api/v1/render.
type RenderAPIRequest struct {
	// URL is the target page. Required.
	URL string `json:"url" binding:"required,url"`

	// Timeout is the polling bound in seconds. Default comes from config.
	Timeout int `json:"timeout,omitempty" binding:"omitempty,min=1,max=600"`

	// Fixed disables waiting for the completion signal.
	Fixed bool `json:"fixed,omitempty"`
}
