package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/prerender/config"
)

func TestKey(t *testing.T) {
	a := Key("http://example.com/", "poll")
	assert.Len(t, a, 64)
	assert.Equal(t, a, Key("http://example.com/", "poll"))
	assert.NotEqual(t, a, Key("http://example.com/", "fixed"))
	assert.NotEqual(t, a, Key("http://example.com/x", "poll"))
}

func TestMemory_GetSet(t *testing.T) {
	c := NewMemory(10, time.Hour)
	defer c.Close()
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	want := &Entry{Document: "<html></html>", StatusCode: 404, RenderedAt: time.Now()}
	require.NoError(t, c.Set(ctx, "k", want))

	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestMemory_Expiry(t *testing.T) {
	c := NewMemory(10, time.Minute)
	defer c.Close()
	ctx := context.Background()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", &Entry{Document: "x", RenderedAt: now}))

	_, ok, _ := c.Get(ctx, "k")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok, _ = c.Get(ctx, "k")
	assert.False(t, ok, "expired entries are misses")

	c.evictExpired()
	assert.Equal(t, 0, c.Len())
}

func TestMemory_EvictsAtCapacity(t *testing.T) {
	c := NewMemory(2, time.Hour)
	defer c.Close()
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, c.Set(ctx, k, &Entry{Document: k, RenderedAt: time.Now()}))
	}
	assert.Equal(t, 2, c.Len())

	_, ok, _ := c.Get(ctx, "c")
	assert.True(t, ok, "newest entry is kept")

	// Overwriting an existing key does not evict.
	require.NoError(t, c.Set(ctx, "c", &Entry{Document: "c2", RenderedAt: time.Now()}))
	assert.Equal(t, 2, c.Len())
}

func newRedis(t *testing.T, opts ...RedisOption) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	store := NewRedisFromClient(client, opts...)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestRedis_GetSet(t *testing.T) {
	store, mr := newRedis(t, WithPrefix("test:"))
	ctx := context.Background()

	require.NoError(t, store.Ping(ctx))

	_, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	renderedAt := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Set(ctx, "k", &Entry{
		Document:   "<html>X</html>",
		StatusCode: 200,
		Title:      "X",
		RenderedAt: renderedAt,
	}))
	assert.True(t, mr.Exists("test:k"))

	got, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "<html>X</html>", got.Document)
	assert.Equal(t, 200, got.StatusCode)
	assert.Equal(t, "X", got.Title)
	assert.True(t, renderedAt.Equal(got.RenderedAt))
}

func TestRedis_TTL(t *testing.T) {
	store, mr := newRedis(t, WithTTL(time.Minute))
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", &Entry{Document: "x", RenderedAt: time.Now()}))
	assert.Equal(t, time.Minute, mr.TTL("prerender:doc:k"))

	mr.FastForward(2 * time.Minute)

	_, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedis_CorruptEntry(t *testing.T) {
	store, mr := newRedis(t)
	require.NoError(t, mr.Set("prerender:doc:k", "not json"))

	_, ok, err := store.Get(context.Background(), "k")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	store, release, err := Open(ctx, config.CacheConfig{Backend: "none"})
	require.NoError(t, err)
	assert.Nil(t, store)
	release()

	store, release, err = Open(ctx, config.CacheConfig{Backend: "memory", MaxEntries: 5, TTL: time.Hour})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, store)
	release()

	mr := miniredis.RunT(t)
	store, release, err = Open(ctx, config.CacheConfig{Backend: "redis", RedisAddr: mr.Addr(), TTL: time.Hour})
	require.NoError(t, err)
	assert.IsType(t, &Redis{}, store)
	release()

	_, _, err = Open(ctx, config.CacheConfig{Backend: "memcached"})
	assert.ErrorContains(t, err, "unknown backend")
}
