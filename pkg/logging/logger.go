// Package logging provides the process-wide structured logger.
//
// The package wraps [log/slog] and exposes a single global logger that is
// initialized once and then retrieved via GetLogger. Subsystems obtain
// loggers through this package rather than constructing their own, so log
// level and destination are controlled from one place. Context helpers
// return child loggers pre-populated with structured fields.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	logger   *slog.Logger
	loggerMu sync.RWMutex
	isInited bool
	initOnce sync.Once
)

// LogLevel represents logging verbosity.
type LogLevel string

const (
	LevelDebug LogLevel = "DEBUG"
	LevelInfo  LogLevel = "INFO"
	LevelWarn  LogLevel = "WARN"
	LevelError LogLevel = "ERROR"
)

// Config holds logger configuration.
type Config struct {
	Level  LogLevel
	Output io.Writer // nil for stderr
	Format string    // "json" or "text"
}

// Init initializes the global logger with the given configuration.
// This should be called once at startup. Subsequent calls return an error
// to prevent two subsystems from silently fighting over the destination.
func Init(cfg Config) error {
	loggerMu.Lock()
	defer loggerMu.Unlock()

	if isInited {
		return fmt.Errorf("logger already initialized")
	}

	writer := cfg.Output
	if writer == nil {
		writer = os.Stderr
	}

	var level slog.Level
	switch cfg.Level {
	case LevelDebug:
		level = slog.LevelDebug
	case LevelWarn:
		level = slog.LevelWarn
	case LevelError:
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}

	logger = slog.New(handler)
	isInited = true
	return nil
}

// InitDefault initializes the logger with INFO-level text output on stderr.
// Safe to call multiple times; only the first call takes effect.
func InitDefault() {
	loggerMu.Lock()
	defer loggerMu.Unlock()

	if isInited {
		return
	}

	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	isInited = true
}

// GetLogger returns the global logger, lazily creating a default one so
// packages that log before Init are safe.
func GetLogger() *slog.Logger {
	loggerMu.RLock()
	if isInited {
		l := logger
		loggerMu.RUnlock()
		return l
	}
	loggerMu.RUnlock()

	initOnce.Do(InitDefault)

	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}
