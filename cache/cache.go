// Package cache keeps rendered documents so repeated API renders of the
// same URL skip the browser.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// Entry is one cached render.
type Entry struct {
	Document   string    `json:"document"`
	StatusCode int       `json:"status_code"`
	Title      string    `json:"title,omitempty"`
	RenderedAt time.Time `json:"rendered_at"`
}

// Store is a render cache backend.
type Store interface {
	// Get returns the entry for key. A miss is (nil, false, nil).
	Get(ctx context.Context, key string) (*Entry, bool, error)

	// Set stores e under key for the store's TTL.
	Set(ctx context.Context, key string, e *Entry) error
}

// Key derives a cache key from the render target and mode.
func Key(url, mode string) string {
	h := sha256.New()
	h.Write([]byte("render|"))
	h.Write([]byte(mode))
	h.Write([]byte("|"))
	h.Write([]byte(url))
	return hex.EncodeToString(h.Sum(nil))
}

// Memory is an in-process Store. It is safe for concurrent use.
type Memory struct {
	mu         sync.RWMutex
	store      map[string]*Entry
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
	done       chan struct{}
	closeOnce  sync.Once
}

// NewMemory creates a Memory store holding at most maxEntries documents,
// each for ttl. A background goroutine evicts expired entries until Close.
func NewMemory(maxEntries int, ttl time.Duration) *Memory {
	if maxEntries < 1 {
		maxEntries = 1
	}
	c := &Memory{
		store:      make(map[string]*Entry),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
		done:       make(chan struct{}),
	}

	go c.cleanupLoop(5 * time.Minute)
	return c
}

// Get implements Store.
func (c *Memory) Get(_ context.Context, key string) (*Entry, bool, error) {
	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()

	if !ok || c.expired(e) {
		return nil, false, nil
	}
	return e, true, nil
}

// Set implements Store. If the store is at capacity, a random entry is
// evicted to make room.
func (c *Memory) Set(_ context.Context, key string, e *Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.store[key]; !exists && len(c.store) >= c.maxEntries {
		// Map iteration order is random.
		for k := range c.store {
			delete(c.store, k)
			break
		}
	}

	c.store[key] = e
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *Memory) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Close stops the cleanup goroutine.
func (c *Memory) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Memory) expired(e *Entry) bool {
	return c.ttl > 0 && c.now().Sub(e.RenderedAt) > c.ttl
}

func (c *Memory) evictExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.store {
		if c.expired(e) {
			delete(c.store, k)
		}
	}
}

func (c *Memory) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}
