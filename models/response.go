package models

// RenderResponse is the response for POST /api/v1/render.
type RenderResponse struct {
	// Success indicates whether the page reported completion in time.
	Success bool `json:"success"`

	// StatusCode is the status published by the page's completion signal.
	// Zero for fixed-mode renders.
	StatusCode int `json:"status_code,omitempty"`

	// URL is the address that was actually rendered.
	URL string `json:"url"`

	// Title is the rendered document title.
	Title string `json:"title,omitempty"`

	// Content is the rendered document, annotated when a status is known.
	Content string `json:"content,omitempty"`

	// CacheStatus indicates whether the response was served from cache.
	// Values: "hit", "miss", or empty (caching disabled).
	CacheStatus string `json:"cache_status,omitempty"`

	// Timing provides duration breakdowns for the operation.
	Timing TimingInfo `json:"timing"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// TimingInfo breaks down the time spent in each phase.
type TimingInfo struct {
	// TotalMs is the end-to-end duration in milliseconds.
	TotalMs int64 `json:"total_ms"`

	// RenderMs is the time spent loading the page and waiting for completion.
	RenderMs int64 `json:"render_ms"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status    string       `json:"status"` // "healthy" or "degraded"
	Uptime    string       `json:"uptime"`
	PoolStats PoolStats    `json:"pool_stats"`
	Cache     *CacheHealth `json:"cache,omitempty"`
	Version   string       `json:"version"`
}

// CacheHealth describes the render cache. Absent when caching is off.
type CacheHealth struct {
	Backend   string `json:"backend"`
	Reachable bool   `json:"reachable"`

	// Entries is the number of stored documents, when the backend knows it.
	Entries *int `json:"entries,omitempty"`
}

// PoolStats reports the state of the browser page pool.
type PoolStats struct {
	MaxPages    int `json:"max_pages"`
	ActivePages int `json:"active_pages"`
}
