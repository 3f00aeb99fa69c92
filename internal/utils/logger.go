package utils

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger provides leveled logging with verbose mode support.
// Output goes through log/slog so daemon logs can be structured.
type Logger struct {
	mu      sync.RWMutex
	verbose bool
	level   *slog.LevelVar
	handler slog.Handler
	closer  io.Closer
}

// LogOptions configures the global logger
type LogOptions struct {
	Level      string // debug, info, warn, error
	Format     string // text or json
	File       string // rotate into this file instead of stderr
	MaxSizeMB  int
	MaxBackups int
}

var (
	globalLogger *Logger
	loggerOnce   sync.Once
)

// GetLogger returns the global logger instance
func GetLogger() *Logger {
	loggerOnce.Do(func() {
		level := new(slog.LevelVar)
		level.Set(slog.LevelInfo)
		globalLogger = &Logger{
			level:   level,
			handler: slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
		}
	})
	return globalLogger
}

// Configure replaces the output handler. A previously opened log file is closed.
func (l *Logger) Configure(opts LogOptions) error {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return err
	}

	var out io.Writer = os.Stderr
	var closer io.Closer
	if opts.File != "" {
		path, err := ExpandPath(opts.File)
		if err != nil {
			return fmt.Errorf("failed to expand log path: %w", err)
		}
		rotator := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    orDefault(opts.MaxSizeMB, 10),
			MaxBackups: orDefault(opts.MaxBackups, 3),
			Compress:   true,
		}
		out = rotator
		closer = rotator
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.verbose {
		l.level.Set(level)
	}
	handlerOpts := &slog.HandlerOptions{Level: l.level}
	switch strings.ToLower(opts.Format) {
	case "json":
		l.handler = slog.NewJSONHandler(out, handlerOpts)
	case "", "text":
		l.handler = slog.NewTextHandler(out, handlerOpts)
	default:
		return fmt.Errorf("unknown log format %q", opts.Format)
	}
	if l.closer != nil {
		l.closer.Close()
	}
	l.closer = closer
	return nil
}

// SetOutput sends log output to w as text. Used by tests and the TUI.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: l.level})
}

// Close releases the log file, if any
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closer == nil {
		return nil
	}
	err := l.closer.Close()
	l.closer = nil
	return err
}

// SetVerbose enables or disables verbose logging
func (l *Logger) SetVerbose(verbose bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.verbose = verbose
	if verbose {
		l.level.Set(slog.LevelDebug)
	} else {
		l.level.Set(slog.LevelInfo)
	}
}

func (l *Logger) current() slog.Handler {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.handler
}

// Component returns a structured logger tagged with component=name.
// It follows later Configure calls.
func Component(name string) *slog.Logger {
	return slog.New(forwardHandler{attrs: []slog.Attr{slog.String("component", name)}})
}

// forwardHandler resolves the global handler on every record
type forwardHandler struct {
	attrs  []slog.Attr
	groups []string
}

func (h forwardHandler) target() slog.Handler {
	next := GetLogger().current()
	if len(h.attrs) > 0 {
		next = next.WithAttrs(h.attrs)
	}
	for _, g := range h.groups {
		next = next.WithGroup(g)
	}
	return next
}

func (h forwardHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return GetLogger().current().Enabled(ctx, level)
}

func (h forwardHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.target().Handle(ctx, r)
}

func (h forwardHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(h.groups) > 0 {
		// attrs added after a group belong inside it
		return slog.Handler(h.target().WithAttrs(attrs))
	}
	return forwardHandler{attrs: append(slices.Clone(h.attrs), attrs...)}
}

func (h forwardHandler) WithGroup(name string) slog.Handler {
	return forwardHandler{attrs: h.attrs, groups: append(slices.Clone(h.groups), name)}
}

// ParseLevel converts a config level name to a slog level
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
