package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/prerender/cache"
	"github.com/use-agent/prerender/config"
	"github.com/use-agent/prerender/metrics"
	"github.com/use-agent/prerender/models"
	"github.com/use-agent/prerender/render"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeRenderer struct {
	mu      sync.Mutex
	result  *render.Result
	err     error
	calls   int
	lastReq models.RenderRequest
}

func (f *fakeRenderer) Render(_ context.Context, req models.RenderRequest) (*render.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastReq = req
	return f.result, f.err
}

func succeeded(markup string, status *int) *render.Result {
	return &render.Result{
		Outcome:  &models.Outcome{Kind: models.Succeeded, Markup: markup, StatusCode: status},
		Title:    "T",
		Duration: 250 * time.Millisecond,
	}
}

func intPtr(v int) *int { return &v }

type failingStore struct{}

func (failingStore) Get(context.Context, string) (*cache.Entry, bool, error) {
	return nil, false, errors.New("connection refused")
}

func (failingStore) Set(context.Context, string, *cache.Entry) error {
	return errors.New("connection refused")
}

func renderConfig() config.RenderConfig {
	return config.RenderConfig{
		DefaultTimeout: 10 * time.Second,
		MaxTimeout:     30 * time.Second,
		NoRenderParam:  "no-server-render",
	}
}

func newEngine(deps RenderDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/render", RenderPage(deps))
	r.POST("/render", Render(deps))
	return r
}

func get(r http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func post(r http.Handler, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/render", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(rec, req)
	return rec
}

func TestRenderPage_ServesAnnotatedDocumentWithPageStatus(t *testing.T) {
	fr := &fakeRenderer{result: succeeded("<html>gone</html>", intPtr(404))}
	r := newEngine(RenderDeps{Renderer: fr, Config: renderConfig()})

	rec := get(r, "/render?url=http%3A%2F%2Fapp.local%2Fitems%2F7")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "<!-- http_status_code=404 -->\n\n<html>gone</html>", rec.Body.String())
	assert.Equal(t, "http://app.local/items/7?no-server-render=1", fr.lastReq.URL)
	assert.Equal(t, 10, fr.lastReq.TimeoutSeconds)
}

func TestRenderPage_MissingURL(t *testing.T) {
	r := newEngine(RenderDeps{Renderer: &fakeRenderer{}, Config: renderConfig()})

	rec := get(r, "/render")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRenderPage_OutcomeErrors(t *testing.T) {
	tests := []struct {
		name string
		kind models.OutcomeKind
		code int
		msg  string
	}{
		{"load failure", models.LoadFailed, http.StatusBadGateway, "Request failed"},
		{"timeout", models.TimedOut, http.StatusGatewayTimeout, "Page did not report success within timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fr := &fakeRenderer{result: &render.Result{Outcome: &models.Outcome{Kind: tt.kind}}}
			r := newEngine(RenderDeps{Renderer: fr, Config: renderConfig()})

			rec := get(r, "/render?url=http://x")

			assert.Equal(t, tt.code, rec.Code)
			var resp models.RenderResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			assert.Equal(t, tt.msg, resp.Error.Message)
		})
	}
}

func TestRenderPage_CacheHitReadsStatusBack(t *testing.T) {
	store := cache.NewMemory(10, time.Hour)
	defer store.Close()
	m := metrics.New()
	fr := &fakeRenderer{result: succeeded("<html>ok</html>", intPtr(410))}
	r := newEngine(RenderDeps{Renderer: fr, Cache: store, Metrics: m, Config: renderConfig()})

	first := get(r, "/render?url=http://x/")
	second := get(r, "/render?url=http://x/")

	assert.Equal(t, 1, fr.calls, "second request is served from cache")
	assert.Equal(t, "miss", first.Header().Get("X-Cache"))
	assert.Equal(t, "hit", second.Header().Get("X-Cache"))
	assert.Equal(t, http.StatusGone, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
}

func TestRenderPage_OutOfRangeStatusServedAsOK(t *testing.T) {
	for _, status := range []int{42, 99, 600, 1000} {
		t.Run(strconv.Itoa(status), func(t *testing.T) {
			store := cache.NewMemory(10, time.Hour)
			defer store.Close()
			fr := &fakeRenderer{result: succeeded("<html>odd</html>", intPtr(status))}
			r := newEngine(RenderDeps{Renderer: fr, Cache: store, Config: renderConfig()})

			first := get(r, "/render?url=http://x/")
			second := get(r, "/render?url=http://x/")

			for _, rec := range []*httptest.ResponseRecorder{first, second} {
				assert.Equal(t, http.StatusOK, rec.Code)
				assert.Equal(t, "<!-- http_status_code=200 -->\n\n<html>odd</html>", rec.Body.String())
			}
			assert.Equal(t, "hit", second.Header().Get("X-Cache"))
			assert.Equal(t, 1, fr.calls)
		})
	}
}

func TestRenderPage_StoredOutOfRangeStatusServedAsOK(t *testing.T) {
	store := cache.NewMemory(10, time.Hour)
	defer store.Close()
	key := cache.Key("http://x/?no-server-render=1", "poll")
	require.NoError(t, store.Set(context.Background(), key, &cache.Entry{
		Document:   "<!-- http_status_code=1000 -->\n\n<html>old</html>",
		StatusCode: 1000,
		RenderedAt: time.Now(),
	}))
	fr := &fakeRenderer{}
	r := newEngine(RenderDeps{Renderer: fr, Cache: store, Config: renderConfig()})

	rec := get(r, "/render?url=http://x/")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hit", rec.Header().Get("X-Cache"))
	assert.Zero(t, fr.calls)
}

func TestRenderPage_CacheErrorsDoNotFailRequest(t *testing.T) {
	fr := &fakeRenderer{result: succeeded("<html>ok</html>", intPtr(200))}
	r := newEngine(RenderDeps{Renderer: fr, Cache: failingStore{}, Config: renderConfig()})

	rec := get(r, "/render?url=http://x/")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, fr.calls)
}

func TestRender_JSON(t *testing.T) {
	fr := &fakeRenderer{result: succeeded("<html>X</html>", intPtr(200))}
	r := newEngine(RenderDeps{Renderer: fr, Config: renderConfig()})

	rec := post(r, `{"url":"http://example.com/","timeout":3}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.RenderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "T", resp.Title)
	assert.Equal(t, "<!-- http_status_code=200 -->\n\n<html>X</html>", resp.Content)
	assert.Equal(t, "http://example.com/?no-server-render=1", resp.URL)
	assert.Equal(t, int64(250), resp.Timing.RenderMs)
	assert.Equal(t, 3, fr.lastReq.TimeoutSeconds)
}

func TestRender_FixedMode(t *testing.T) {
	fr := &fakeRenderer{result: succeeded("<html>X</html>", nil)}
	r := newEngine(RenderDeps{Renderer: fr, Config: renderConfig()})

	rec := post(r, `{"url":"http://example.com/","fixed":true}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.RenderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "<html>X</html>", resp.Content)
	assert.Zero(t, resp.StatusCode)
	assert.False(t, fr.lastReq.Polling())
}

func TestRender_InvalidBody(t *testing.T) {
	r := newEngine(RenderDeps{Renderer: &fakeRenderer{}, Config: renderConfig()})

	for _, body := range []string{`{}`, `{"url":"not a url"}`, `{"url":"http://x","timeout":0.5}`, `nope`} {
		rec := post(r, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestRender_BrowserFailure(t *testing.T) {
	fr := &fakeRenderer{err: models.NewRenderError(models.ErrCodeBrowserCrash, "failed to acquire page from pool", nil)}
	r := newEngine(RenderDeps{Renderer: fr, Config: renderConfig()})

	rec := post(r, `{"url":"http://example.com/"}`)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestTimeoutResolution(t *testing.T) {
	d := RenderDeps{Config: renderConfig()}

	assert.Equal(t, 10, d.timeout(0))
	assert.Equal(t, 5, d.timeout(5))
	assert.Equal(t, 30, d.timeout(600))
	assert.Equal(t, 10, RenderDeps{}.timeout(0))
}

type fixedPool struct{ stats models.PoolStats }

func (p fixedPool) Stats() models.PoolStats { return p.stats }

func health(t *testing.T, deps HealthDeps) models.HealthResponse {
	t.Helper()
	r := gin.New()
	r.GET("/health", Health(deps))

	rec := get(r, "/health")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealth(t *testing.T) {
	tests := []struct {
		active int
		want   string
	}{
		{0, "healthy"},
		{3, "healthy"},
		{4, "degraded"},
	}

	for _, tt := range tests {
		resp := health(t, HealthDeps{
			Pool:      fixedPool{models.PoolStats{MaxPages: 4, ActivePages: tt.active}},
			StartTime: time.Now(),
		})

		assert.Equal(t, tt.want, resp.Status)
		assert.Equal(t, Version, resp.Version)
		assert.Nil(t, resp.Cache, "no cache section when caching is off")
	}
}

func TestHealth_MemoryCacheReportsEntries(t *testing.T) {
	store := cache.NewMemory(10, time.Hour)
	defer store.Close()
	require.NoError(t, store.Set(context.Background(), "k", &cache.Entry{Document: "<html></html>", RenderedAt: time.Now()}))

	resp := health(t, HealthDeps{
		Pool:         fixedPool{models.PoolStats{MaxPages: 4}},
		Cache:        store,
		CacheBackend: "memory",
		StartTime:    time.Now(),
	})

	assert.Equal(t, "healthy", resp.Status)
	require.NotNil(t, resp.Cache)
	assert.Equal(t, "memory", resp.Cache.Backend)
	assert.True(t, resp.Cache.Reachable)
	require.NotNil(t, resp.Cache.Entries)
	assert.Equal(t, 1, *resp.Cache.Entries)
}

func TestHealth_UnreachableRedisDegrades(t *testing.T) {
	mr := miniredis.RunT(t)
	store := cache.NewRedis(mr.Addr(), "", 0)
	defer store.Close()
	deps := HealthDeps{
		Pool:         fixedPool{models.PoolStats{MaxPages: 4}},
		Cache:        store,
		CacheBackend: "redis",
		StartTime:    time.Now(),
	}

	resp := health(t, deps)
	assert.Equal(t, "healthy", resp.Status)
	require.NotNil(t, resp.Cache)
	assert.True(t, resp.Cache.Reachable)
	assert.Nil(t, resp.Cache.Entries)

	mr.Close()

	resp = health(t, deps)
	assert.Equal(t, "degraded", resp.Status)
	assert.False(t, resp.Cache.Reachable)
}
