// Package logging builds the slog logger from configuration.
package logging

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/mohaanymo/streamprobe/internal/config"
)

// New returns a logger writing to stderr, plus the rotating file in
// cfg.File when set. The returned closer flushes and closes the file.
func New(cfg config.LogConfig, verbose bool) (*slog.Logger, io.Closer, error) {
	return NewWithConsole(cfg, verbose, os.Stderr)
}

// NewWithConsole is New with console output sent to console instead of
// stderr.
func NewWithConsole(cfg config.LogConfig, verbose bool, console io.Writer) (*slog.Logger, io.Closer, error) {
	w := console
	var closer io.Closer = nopCloser{}

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, nil, err
		}
		fileWriter := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		w = io.MultiWriter(console, fileWriter)
		closer = fileWriter
	}

	level := ParseLevel(cfg.Level)
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(NewHandler(w, cfg.Format, level)), closer, nil
}

// NewHandler returns a JSON handler for format "json", text otherwise.
func NewHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// ParseLevel maps a level name to a slog level. Unknown names are info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// Console is a terminal log sink that can hold lines back while a
// full-screen view owns the terminal.
type Console struct {
	mu     sync.Mutex
	out    io.Writer
	paused bool
	held   bytes.Buffer
}

// NewConsole returns a Console writing to out.
func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

func (c *Console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		return c.held.Write(p)
	}
	return c.out.Write(p)
}

// Pause buffers writes until Resume.
func (c *Console) Pause() {
	c.mu.Lock()
	c.paused = true
	c.mu.Unlock()
}

// Resume writes out everything held since Pause.
func (c *Console) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = false
	_, err := c.held.WriteTo(c.out)
	return err
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
