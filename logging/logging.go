package logging

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/use-agent/prerender/config"
)

// OperatorKey marks a record as one of the CLI's operator lines.
const OperatorKey = "operator"

// Operator is the attribute carried by operator lines.
func Operator() slog.Attr {
	return slog.Bool(OperatorKey, true)
}

// New builds a logger writing to w. When cfg.Format is empty,
// fallbackFormat is used ("plain" for the CLI, "json" for serve).
// In plain format only operator lines reach w; all other records go to
// diag as text, or nowhere when diag is nil.
func New(w, diag io.Writer, cfg config.LogConfig, fallbackFormat string) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	format := cfg.Format
	if format == "" {
		format = fallbackFormat
	}

	var handler slog.Handler
	switch format {
	case "plain":
		handler = NewPlainHandler(w, diag, level)
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

// PlainHandler writes the bare message of operator records, one per line.
// Other records are passed to a text handler on the diagnostic writer.
type PlainHandler struct {
	mu       *sync.Mutex
	w        io.Writer
	level    slog.Leveler
	diag     slog.Handler
	operator bool
}

// NewPlainHandler returns a PlainHandler writing operator lines to w and
// everything else to diag. A nil diag drops non-operator records.
func NewPlainHandler(w, diag io.Writer, level slog.Leveler) *PlainHandler {
	h := &PlainHandler{mu: &sync.Mutex{}, w: w, level: level}
	if diag != nil {
		h.diag = slog.NewTextHandler(diag, &slog.HandlerOptions{Level: level})
	}
	return h
}

func (h *PlainHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

func (h *PlainHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.operator || isOperator(r) {
		h.mu.Lock()
		defer h.mu.Unlock()
		_, err := io.WriteString(h.w, r.Message+"\n")
		return err
	}
	if h.diag == nil {
		return nil
	}
	return h.diag.Handle(ctx, r)
}

func (h *PlainHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	for _, a := range attrs {
		if isOperatorAttr(a) {
			c.operator = true
		}
	}
	if c.diag != nil {
		c.diag = c.diag.WithAttrs(attrs)
	}
	return &c
}

func (h *PlainHandler) WithGroup(name string) slog.Handler {
	c := *h
	if c.diag != nil {
		c.diag = c.diag.WithGroup(name)
	}
	return &c
}

func isOperator(r slog.Record) bool {
	found := false
	r.Attrs(func(a slog.Attr) bool {
		found = isOperatorAttr(a)
		return !found
	})
	return found
}

func isOperatorAttr(a slog.Attr) bool {
	return a.Key == OperatorKey && a.Value.Kind() == slog.KindBool && a.Value.Bool()
}
