package logging

import (
	"io"
	"log/slog"
	"os"
)

// New builds the process logger. format is "text" (default) or "json".
// Every record carries the process run id so restarts are easy to split.
func New(w io.Writer, level slog.Level, format string, runID string) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	logger := slog.New(h)
	if runID != "" {
		logger = logger.With("run", runID)
	}
	return logger
}
