package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestTeeHandler(t *testing.T) {
	t.Parallel()

	t.Run("fans records out to every handler", func(t *testing.T) {
		t.Parallel()

		var a, b bytes.Buffer
		logger := slog.New(NewTeeHandler(
			slog.NewTextHandler(&a, nil),
			slog.NewTextHandler(&b, nil),
		))

		logger.Info("hello", "key", "value")

		for name, buf := range map[string]*bytes.Buffer{"first": &a, "second": &b} {
			if !strings.Contains(buf.String(), "hello") || !strings.Contains(buf.String(), "key=value") {
				t.Errorf("%s handler missed the record: %q", name, buf.String())
			}
		}
	})

	t.Run("respects per-handler levels", func(t *testing.T) {
		t.Parallel()

		var info, debug bytes.Buffer
		logger := slog.New(NewTeeHandler(
			slog.NewTextHandler(&info, &slog.HandlerOptions{Level: slog.LevelInfo}),
			slog.NewTextHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug}),
		))

		logger.Debug("trace detail")

		if info.Len() != 0 {
			t.Errorf("info handler must ignore debug records, got %q", info.String())
		}
		if !strings.Contains(debug.String(), "trace detail") {
			t.Errorf("debug handler missed the record: %q", debug.String())
		}
	})

	t.Run("enabled when any handler is", func(t *testing.T) {
		t.Parallel()

		h := NewTeeHandler(
			slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}),
			slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
		if !h.Enabled(context.Background(), slog.LevelDebug) {
			t.Error("expected Enabled at debug level")
		}

		strict := NewTeeHandler(
			slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}),
		)
		if strict.Enabled(context.Background(), slog.LevelInfo) {
			t.Error("expected Enabled to be false below every handler's level")
		}
	})

	t.Run("WithAttrs propagates", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		logger := slog.New(NewTeeHandler(slog.NewTextHandler(&buf, nil))).With("run", "r1")

		logger.Info("started")

		if !strings.Contains(buf.String(), "run=r1") {
			t.Errorf("attribute lost: %q", buf.String())
		}
	})
}

func TestNewRunLogger(t *testing.T) {
	t.Parallel()

	t.Run("writes debug records to the log file", func(t *testing.T) {
		t.Parallel()

		logPath := filepath.Join(t.TempDir(), "crawl.log")
		logger, err := NewRunLogger(logPath, false)
		if err != nil {
			t.Fatalf("NewRunLogger: %v", err)
		}

		logger.Debug("fetch trace", "host", "a.example")
		if err := logger.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}

		data, err := os.ReadFile(logPath) //nolint:gosec // Test-owned path
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(data), "fetch trace") {
			t.Errorf("log file missed the debug record: %q", string(data))
		}
	})

	t.Run("empty path skips the file", func(t *testing.T) {
		t.Parallel()

		logger, err := NewRunLogger("", true)
		if err != nil {
			t.Fatalf("NewRunLogger: %v", err)
		}
		if err := logger.Close(); err != nil {
			t.Errorf("Close without a file must succeed, got %v", err)
		}
	})

	t.Run("unwritable path errors", func(t *testing.T) {
		t.Parallel()

		_, err := NewRunLogger(filepath.Join(t.TempDir(), "missing", "crawl.log"), false)
		if err == nil {
			t.Error("expected an error for an unwritable log path")
		}
	})
}
