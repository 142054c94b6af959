package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
)

// TeeHandler fans every log record out to multiple underlying handlers,
// each with its own level filter.
//
// Design decision: We implement a handler wrapper rather than calling two
// loggers at each call site because:
//  1. It integrates seamlessly with standard slog APIs
//  2. Components receive one *slog.Logger and stay unaware of destinations
//  3. It works with any underlying handler (text, JSON, etc.)
type TeeHandler struct {
	handlers []slog.Handler
}

// NewTeeHandler creates a TeeHandler over the given handlers.
func NewTeeHandler(handlers ...slog.Handler) *TeeHandler {
	return &TeeHandler{handlers: handlers}
}

// Enabled reports whether at least one underlying handler accepts records
// at the given level.
func (h *TeeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle passes the record to every underlying handler that accepts its
// level. All handlers are attempted even if one fails; errors are joined.
func (h *TeeHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, r.Level) {
			continue
		}
		if err := handler.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WithAttrs returns a new handler with the given attributes added to every
// underlying handler.
func (h *TeeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &TeeHandler{handlers: handlers}
}

// WithGroup returns a new handler with the given group name applied to
// every underlying handler.
func (h *TeeHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &TeeHandler{handlers: handlers}
}

// RunLogger is the logger for one crawl run plus the file it writes to.
// Close the RunLogger when the run finishes to flush the log file.
type RunLogger struct {
	*slog.Logger

	file *os.File
}

// Close closes the underlying run log file, if any.
func (l *RunLogger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// NewRunLogger creates the logger for one crawl run.
//
// Stderr receives Info-level output (Debug when verbose is true); the file
// at logPath receives everything at Debug level. If logPath is empty, only
// stderr is used.
func NewRunLogger(logPath string, verbose bool) (*RunLogger, error) {
	stderrLevel := slog.LevelInfo
	if verbose {
		stderrLevel = slog.LevelDebug
	}

	stderrHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: stderrLevel})
	if logPath == "" {
		return &RunLogger{Logger: slog.New(stderrHandler)}, nil
	}

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, err
	}

	fileHandler := slog.NewTextHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug})
	return &RunLogger{
		Logger: slog.New(NewTeeHandler(stderrHandler, fileHandler)),
		file:   file,
	}, nil
}

// NewTestLogger returns a Debug-level logger writing to w.
// It exists for tests that assert on log output.
func NewTestLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
