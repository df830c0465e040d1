// Package logger wraps log/slog with the file-rotation and level
// configuration from the resolved "global" config section. InitLogger
// installs the process-wide default that the package-level functions use;
// a component that was handed a Logger before that keeps the one it was
// given.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Config mirrors the "global" logging knobs from the resolved
// configuration shape.
type Config struct {
	FilePath string
	Level    string
	MaxFiles int
}

// Logger is a thin handle around an *slog.Logger plus the file it owns, if
// any, so Close can flush and release it.
type Logger struct {
	slog *slog.Logger
	file *os.File
}

func levelFromString(s string) slog.Level {
	switch s {
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

// New builds a standalone Logger writing to cfg.FilePath, or to stderr if
// FilePath is empty. InitLogger uses it to build the process-wide
// default; components that want their own destination can call it
// directly.
func New(cfg Config) (*Logger, error) {
	var w io.Writer = os.Stderr
	var f *os.File
	if cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return nil, fmt.Errorf("logger: creating log directory: %w", err)
		}
		opened, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("logger: opening log file: %w", err)
		}
		f = opened
		w = opened
		rotateIfNeeded(cfg.FilePath, cfg.MaxFiles)
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: levelFromString(cfg.Level)})
	return &Logger{slog: slog.New(handler), file: f}, nil
}

// NoOp returns a Logger that discards everything, used as the zero-value
// default for components constructed before InitLogger runs (tests, or a
// Client built outside of the bridge's composition root).
func NoOp() *Logger {
	return &Logger{slog: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func (l *Logger) Debug(msg string, args ...any) { l.slog.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.slog.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.slog.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.slog.Error(msg, args...) }

// With returns a Logger that always includes the given key/value pairs,
// used to tag a client's log lines with its language without threading it
// through every call site.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...), file: l.file}
}

func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

var (
	mu  sync.Mutex
	std = NoOp()
)

// InitLogger installs cfg as the process-wide default logger. runServe in
// cmd/catenary/serve.go calls this once at startup.
func InitLogger(cfg Config) error {
	l, err := New(cfg)
	if err != nil {
		return err
	}
	mu.Lock()
	std = l
	mu.Unlock()
	return nil
}

// Default returns the process-wide logger installed by InitLogger, or a
// no-op logger if InitLogger was never called.
func Default() *Logger {
	mu.Lock()
	defer mu.Unlock()
	return std
}

// Close releases the process-wide logger's underlying file, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	return std.Close()
}

func Debug(msg string, args ...any) { Default().Debug(msg, args...) }
func Info(msg string, args ...any)  { Default().Info(msg, args...) }
func Warn(msg string, args ...any)  { Default().Warn(msg, args...) }
func Error(msg string, args ...any) { Default().Error(msg, args...) }

// rotateIfNeeded trims rotated log files beyond maxFiles, following the
// simple numbered-suffix scheme (<path>.1, <path>.2, ...) rather than
// pulling in a rotation library the corpus never uses for this.
func rotateIfNeeded(path string, maxFiles int) {
	if maxFiles <= 0 {
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.Size() < 10*1024*1024 {
		return
	}
	for i := maxFiles - 1; i >= 1; i-- {
		src := fmt.Sprintf("%s.%d", path, i)
		dst := fmt.Sprintf("%s.%d", path, i+1)
		if _, err := os.Stat(src); err == nil {
			_ = os.Rename(src, dst)
		}
	}
	_ = os.Rename(path, fmt.Sprintf("%s.1", path))
}
