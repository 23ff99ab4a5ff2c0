// Package logging provides structured logging configuration using log/slog.
//
// Request IDs from chi's RequestID middleware and import run IDs stored with
// WithImportID are attached to every entry produced by FromContext, so a
// single import can be traced from the HTTP request down to the row store.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

type ctxKey int

const importIDKey ctxKey = iota

// Setup configures the global slog logger writing to stdout.
//
// Level values: "debug", "info", "warn", "error" (default: "info")
// Format values: "text", "json" (default: "text")
func Setup(level, format string) {
	SetupWriter(os.Stdout, level, format)
}

// SetupWriter is Setup with an explicit destination. The CLI logs to stderr
// so that exported documents can be piped from stdout.
func SetupWriter(w io.Writer, level, format string) {
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	slog.SetDefault(slog.New(handler))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// WithImportID returns a context carrying the ID of the running import.
func WithImportID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, importIDKey, id)
}

// ImportID returns the import ID stored in ctx, or "".
func ImportID(ctx context.Context) string {
	id, _ := ctx.Value(importIDKey).(string)
	return id
}

// FromContext returns a logger enriched with request context.
//
// Usage:
//
//	func handleImport(w http.ResponseWriter, r *http.Request) {
//	    logger := logging.FromContext(r.Context())
//	    logger.Info("import requested", "tree_id", treeID)
//	}
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()

	if reqID := middleware.GetReqID(ctx); reqID != "" {
		logger = logger.With("request_id", reqID)
	}
	if id := ImportID(ctx); id != "" {
		logger = logger.With("import_id", id)
	}

	return logger
}

// WithFields returns a logger with additional structured fields.
//
//	tableLogger := logging.WithFields(ctx, "table", table.Name)
//	tableLogger.Info("table merged", "inserted", n)
func WithFields(ctx context.Context, args ...any) *slog.Logger {
	return FromContext(ctx).With(args...)
}
