// Package logging configures the process-wide slog logger. In quiet mode
// log lines are held back and only reach stderr if the run is not marked
// successful before Close.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"lautenbacher.net/gospi/config"
)

// teeWriter sends log output to a live writer, or holds it while quiet.
// An optional file receives every line either way.
type teeWriter struct {
	mu      sync.Mutex
	held    bytes.Buffer
	live    io.Writer
	file    *os.File
	holding bool
}

func (w *teeWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var firstErr error
	if w.holding {
		w.held.Write(p)
	} else if w.live != nil {
		if _, err := w.live.Write(p); err != nil {
			firstErr = err
		}
	}
	if w.file != nil {
		if _, err := w.file.Write(p); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return len(p), firstErr
}

var writer *teeWriter

// Init installs a text or JSON slog handler as the default logger. With
// quiet set nothing is printed until Close.
func Init(cfg config.LoggingConfig, quiet bool) error {
	writer = &teeWriter{holding: quiet}
	if !quiet {
		writer.live = os.Stderr
	}

	if cfg.File != "" {
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		writer.file = file
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard drops the lines held back in quiet mode.
func Discard() {
	writer.mu.Lock()
	defer writer.mu.Unlock()
	writer.held.Reset()
}

// Close writes any held lines to stderr and closes the log file.
func Close() error {
	writer.mu.Lock()
	defer writer.mu.Unlock()

	var firstErr error
	if writer.held.Len() > 0 {
		if _, err := os.Stderr.Write(writer.held.Bytes()); err != nil {
			firstErr = err
		}
		writer.held.Reset()
	}
	if writer.file != nil {
		if err := writer.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		writer.file = nil
	}
	return firstErr
}
