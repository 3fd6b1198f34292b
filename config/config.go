package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Browser   BrowserConfig   `yaml:"browser"`
	Render    RenderConfig    `yaml:"render"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Cache     CacheConfig     `yaml:"cache"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig controls the HTTP server of `render serve`.
type ServerConfig struct {
	Host string `yaml:"host"` // default: "0.0.0.0"
	Port int    `yaml:"port"` // default: 8080
	Mode string `yaml:"mode"` // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool `yaml:"headless"` // default: true

	// MaxPages is the page pool capacity (max concurrent tabs).
	MaxPages int `yaml:"max_pages"` // default: 4

	// DefaultProxy is the proxy URL for all requests.
	DefaultProxy string `yaml:"proxy"`

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool `yaml:"no_sandbox"` // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string `yaml:"bin"`

	// Stealth masks navigator.webdriver and friends before navigation.
	Stealth bool `yaml:"stealth"` // default: false

	// BlockedResourceTypes lists resource types never fetched by the page.
	// default: none, the rendered document must match what a user sees.
	BlockedResourceTypes []string `yaml:"blocked_resources"`

	// BlockAds drops requests to known ad and tracking hosts.
	BlockAds bool `yaml:"block_ads"` // default: false
}

// RenderConfig controls completion detection.
type RenderConfig struct {
	// PollInterval is the period between two completion probes.
	PollInterval time.Duration `yaml:"poll_interval"` // default: 100ms

	// SignalGlobal is the window property the page sets when done.
	SignalGlobal string `yaml:"signal_global"` // default: "serverRenderer"

	// DefaultTimeout is the polling bound for API renders without one.
	DefaultTimeout time.Duration `yaml:"default_timeout"` // default: 10s

	// MaxTimeout caps the polling bound requested by API clients.
	MaxTimeout time.Duration `yaml:"max_timeout"` // default: 120s

	// NoRenderParam is appended as "<name>=1" to API render targets so the
	// target application does not route the request back to the renderer.
	// Empty disables it.
	NoRenderParam string `yaml:"no_render_param"` // default: "no-server-render"
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool `yaml:"enabled"` // default: false

	// APIKeys is the list of valid API keys.
	APIKeys []string `yaml:"api_keys"`
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 `yaml:"rps"` // default: 5

	// Burst is the maximum burst size per API key.
	Burst int `yaml:"burst"` // default: 10
}

// CacheConfig controls the render cache.
type CacheConfig struct {
	// Backend selects the store: "memory", "redis" or "none".
	Backend string `yaml:"backend"` // default: "memory"

	// TTL is the lifetime of a cached document.
	TTL time.Duration `yaml:"ttl"` // default: 1h

	// MaxEntries is the maximum number of documents kept in memory.
	MaxEntries int `yaml:"max_entries"` // default: 1000

	RedisAddr     string `yaml:"redis_addr"` // default: "localhost:6379"
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level string `yaml:"level"` // default: "info"

	// Format is "plain", "text" or "json". Empty lets the command choose.
	Format string `yaml:"format"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Mode: "release",
		},
		Browser: BrowserConfig{
			Headless: true,
			MaxPages: 4,
		},
		Render: RenderConfig{
			PollInterval:   100 * time.Millisecond,
			SignalGlobal:   "serverRenderer",
			DefaultTimeout: 10 * time.Second,
			MaxTimeout:     120 * time.Second,
			NoRenderParam:  "no-server-render",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 5.0,
			Burst:             10,
		},
		Cache: CacheConfig{
			Backend:    "memory",
			TTL:        time.Hour,
			MaxEntries: 1000,
			RedisAddr:  "localhost:6379",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration. Values come from the built-in defaults, then
// the YAML file named by PRERENDER_CONFIG (if any), then environment
// variables.
func Load() (*Config, error) {
	base := Defaults()
	if path := os.Getenv("PRERENDER_CONFIG"); path != "" {
		if err := loadFile(path, base); err != nil {
			return nil, err
		}
	}

	return &Config{
		Server: ServerConfig{
			Host: envOr("PRERENDER_HOST", base.Server.Host),
			Port: envIntOr("PRERENDER_PORT", base.Server.Port),
			Mode: envOr("PRERENDER_MODE", base.Server.Mode),
		},
		Browser: BrowserConfig{
			Headless:             envBoolOr("PRERENDER_HEADLESS", base.Browser.Headless),
			MaxPages:             envIntOr("PRERENDER_MAX_PAGES", base.Browser.MaxPages),
			DefaultProxy:         envOr("PRERENDER_PROXY", base.Browser.DefaultProxy),
			NoSandbox:            envBoolOr("PRERENDER_NO_SANDBOX", base.Browser.NoSandbox),
			BrowserBin:           envOr("PRERENDER_BROWSER_BIN", base.Browser.BrowserBin),
			Stealth:              envBoolOr("PRERENDER_STEALTH", base.Browser.Stealth),
			BlockedResourceTypes: envSliceOr("PRERENDER_BLOCKED_RESOURCES", base.Browser.BlockedResourceTypes),
			BlockAds:             envBoolOr("PRERENDER_BLOCK_ADS", base.Browser.BlockAds),
		},
		Render: RenderConfig{
			PollInterval:   envDurationOr("PRERENDER_POLL_INTERVAL", base.Render.PollInterval),
			SignalGlobal:   envOr("PRERENDER_SIGNAL_GLOBAL", base.Render.SignalGlobal),
			DefaultTimeout: envDurationOr("PRERENDER_DEFAULT_TIMEOUT", base.Render.DefaultTimeout),
			MaxTimeout:     envDurationOr("PRERENDER_MAX_TIMEOUT", base.Render.MaxTimeout),
			NoRenderParam:  envOr("PRERENDER_NO_RENDER_PARAM", base.Render.NoRenderParam),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("PRERENDER_AUTH_ENABLED", base.Auth.Enabled),
			APIKeys: envSliceOr("PRERENDER_API_KEYS", base.Auth.APIKeys),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("PRERENDER_RATE_RPS", base.RateLimit.RequestsPerSecond),
			Burst:             envIntOr("PRERENDER_RATE_BURST", base.RateLimit.Burst),
		},
		Cache: CacheConfig{
			Backend:       envOr("PRERENDER_CACHE_BACKEND", base.Cache.Backend),
			TTL:           envDurationOr("PRERENDER_CACHE_TTL", base.Cache.TTL),
			MaxEntries:    envIntOr("PRERENDER_CACHE_MAX_ENTRIES", base.Cache.MaxEntries),
			RedisAddr:     envOr("PRERENDER_REDIS_ADDR", base.Cache.RedisAddr),
			RedisPassword: envOr("PRERENDER_REDIS_PASSWORD", base.Cache.RedisPassword),
			RedisDB:       envIntOr("PRERENDER_REDIS_DB", base.Cache.RedisDB),
		},
		Log: LogConfig{
			Level:  envOr("PRERENDER_LOG_LEVEL", base.Log.Level),
			Format: envOr("PRERENDER_LOG_FORMAT", base.Log.Format),
		},
	}, nil
}

// loadFile decodes a YAML file on top of cfg.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
