// Package logging wraps log/slog with the fields used across indexing and
// search so every component logs the same keys.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog.Logger with field helpers for this tool.
type Logger struct {
	*slog.Logger
}

// New creates a Logger writing to w in the given format ("text" or "json").
func New(w io.Writer, level slog.Level, format string) *Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return &Logger{Logger: slog.New(handler)}
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	return New(io.Discard, slog.Level(1000), "text")
}

// ParseLevel maps a config level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// WithRun tags every record with an ingestion run id.
func (l *Logger) WithRun(id string) *Logger {
	return &Logger{Logger: l.Logger.With("run", id)}
}

// WithBatch tags every record with a batch index.
func (l *Logger) WithBatch(batch int) *Logger {
	return &Logger{Logger: l.Logger.With("batch", batch)}
}

// LogDecodeFailure logs an item skipped because it could not be decoded.
func (l *Logger) LogDecodeFailure(ctx context.Context, path string, err error) {
	l.WarnContext(ctx, "skipping unreadable image",
		"path", path,
		"error", err,
	)
}

// LogBatch logs the outcome of one ingestion batch.
func (l *Logger) LogBatch(ctx context.Context, size, encoded, inserted int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "batch failed",
			"size", size,
			"encoded", encoded,
			"error", err,
		)
		return
	}
	if encoded < size {
		l.WarnContext(ctx, "batch completed with skipped items",
			"size", size,
			"encoded", encoded,
			"inserted", inserted,
			"skipped", size-encoded,
		)
		return
	}
	l.DebugContext(ctx, "batch completed",
		"size", size,
		"inserted", inserted,
	)
}

// LogSearch logs a nearest-neighbor search.
func (l *Logger) LogSearch(ctx context.Context, k, found int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"k", k,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "search completed",
		"k", k,
		"results", found,
	)
}
