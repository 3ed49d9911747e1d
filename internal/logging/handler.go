// Package logging wires structured logging. Its handler wraps another
// slog handler and mirrors WARN and above into the database-backed
// ingestion log so operational problems are visible from the API.
package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/jofongang/World-Monitor/internal/store"
)

// New builds the root logger. format is "json" or "text"; level is one
// of debug, info, warn, error.
func New(level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IngestLogHandler is a slog.Handler that wraps another handler and
// also appends WARN and ERROR records to the ingestion log table.
type IngestLogHandler struct {
	inner slog.Handler
	store *store.Store
	level slog.Level // minimum level mirrored to the database
}

// NewIngestLogHandler creates a handler mirroring WARN and above.
func NewIngestLogHandler(inner slog.Handler, s *store.Store) *IngestLogHandler {
	return &IngestLogHandler{inner: inner, store: s, level: slog.LevelWarn}
}

// Enabled implements slog.Handler.
func (h *IngestLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *IngestLogHandler) Handle(ctx context.Context, r slog.Record) error {
	if err := h.inner.Handle(ctx, r); err != nil {
		return err
	}
	if r.Level >= h.level {
		h.mirror(r)
	}
	return nil
}

// WithAttrs implements slog.Handler.
func (h *IngestLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &IngestLogHandler{
		inner: h.inner.WithAttrs(attrs),
		store: h.store,
		level: h.level,
	}
}

// WithGroup implements slog.Handler.
func (h *IngestLogHandler) WithGroup(name string) slog.Handler {
	return &IngestLogHandler{
		inner: h.inner.WithGroup(name),
		store: h.store,
		level: h.level,
	}
}

// mirror appends the record to the ingestion log. A background context
// keeps the write alive when the request context is already cancelled;
// a failed mirror write is dropped rather than surfaced to the caller.
func (h *IngestLogHandler) mirror(r slog.Record) {
	connector := "system"
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "connector" {
			connector = a.Value.String()
			return false
		}
		return true
	})

	level := "WARNING"
	if r.Level >= slog.LevelError {
		level = "ERROR"
	}

	_ = h.store.AddIngestionLog(context.Background(), level, connector, r.Message)
}
