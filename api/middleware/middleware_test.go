package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/use-agent/prerender/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func ok(c *gin.Context) { c.String(http.StatusOK, "ok") }

func serve(r http.Handler, mutate func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestAuth(t *testing.T) {
	r := gin.New()
	r.GET("/", Auth([]string{"k1", "", "k2"}), ok)

	tests := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"x-api-key", "X-API-Key", "k1", http.StatusOK},
		{"bearer", "Authorization", "Bearer k2", http.StatusOK},
		{"wrong key", "X-API-Key", "nope", http.StatusUnauthorized},
		{"empty configured key", "X-API-Key", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(r, func(req *http.Request) {
				if tt.header != "" {
					req.Header.Set(tt.header, tt.value)
				}
			})
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestAuth_NoKeysIsOpen(t *testing.T) {
	r := gin.New()
	r.GET("/", Auth(nil), ok)

	assert.Equal(t, http.StatusOK, serve(r, nil).Code)
}

func TestRateLimit(t *testing.T) {
	l := NewLimiter(config.RateLimitConfig{RequestsPerSecond: 1, Burst: 2})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	r := gin.New()
	r.GET("/", RateLimit(l), ok)

	assert.Equal(t, http.StatusOK, serve(r, nil).Code)
	assert.Equal(t, http.StatusOK, serve(r, nil).Code)

	rec := serve(r, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// Other callers have their own bucket.
	other := serve(r, func(req *http.Request) { req.RemoteAddr = "10.1.1.1:1234" })
	assert.Equal(t, http.StatusOK, other.Code)

	now = now.Add(time.Second)
	assert.Equal(t, http.StatusOK, serve(r, nil).Code)
}

func TestLimiter_Sweep(t *testing.T) {
	l := NewLimiter(config.RateLimitConfig{RequestsPerSecond: 1, Burst: 1})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.Reserve("a")
	now = now.Add(30 * time.Minute)
	l.Reserve("b")
	now = now.Add(45 * time.Minute)
	l.Sweep()

	assert.NotContains(t, l.buckets, "a")
	assert.Contains(t, l.buckets, "b")
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", ok)

	rec := serve(r, nil)
	_, err := uuid.Parse(rec.Header().Get(HeaderRequestID))
	assert.NoError(t, err, "a fresh id is generated")

	given := uuid.NewString()
	rec = serve(r, func(req *http.Request) { req.Header.Set(HeaderRequestID, given) })
	assert.Equal(t, given, rec.Header().Get(HeaderRequestID))

	rec = serve(r, func(req *http.Request) { req.Header.Set(HeaderRequestID, "not-a-uuid") })
	assert.NotEqual(t, "not-a-uuid", rec.Header().Get(HeaderRequestID))
}
