package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/use-agent/prerender/config"
)

// Open builds the Store selected by cfg.Backend. A nil Store means caching
// is disabled. The returned func releases the store.
func Open(ctx context.Context, cfg config.CacheConfig) (Store, func(), error) {
	switch cfg.Backend {
	case "", "none":
		return nil, func() {}, nil
	case "memory":
		m := NewMemory(cfg.MaxEntries, cfg.TTL)
		return m, m.Close, nil
	case "redis":
		r := NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, WithTTL(cfg.TTL))
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := r.Ping(pingCtx); err != nil {
			_ = r.Close()
			return nil, nil, fmt.Errorf("cache: redis %s: %w", cfg.RedisAddr, err)
		}
		return r, func() { _ = r.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("cache: unknown backend %q", cfg.Backend)
	}
}
