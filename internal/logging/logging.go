// Package logging configures the structured loggers used across the audio
// core: a JSON logger for machine consumption and a human-readable text
// logger on stderr, plus rotating file loggers for long-running services.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu               sync.RWMutex
	structuredLogger *slog.Logger
	levelVar         = new(slog.LevelVar)
)

// Init initializes the logging system. The level applies to both outputs
// and can be changed later with SetLevel without re-initializing.
func Init(level slog.Level, structuredOutput, humanReadableOutput io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	if structuredOutput == nil {
		structuredOutput = os.Stdout
	}
	if humanReadableOutput == nil {
		humanReadableOutput = os.Stderr
	}

	levelVar.Set(level)

	structuredHandler := slog.NewJSONHandler(structuredOutput, &slog.HandlerOptions{
		Level: levelVar,
	})
	structuredLogger = slog.New(structuredHandler)

	humanReadableHandler := slog.NewTextHandler(humanReadableOutput, &slog.HandlerOptions{
		Level: levelVar,
	})

	// Human-readable output is what an operator watches on a terminal.
	slog.SetDefault(slog.New(humanReadableHandler))
}

// SetLevel sets the minimum logging level for all loggers created by this
// package. Safe to call concurrently with logging.
func SetLevel(level slog.Level) {
	levelVar.Set(level)
}

// ParseLevel converts a config-file level name into a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch name {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

// Structured returns the globally configured structured (JSON) logger.
// Returns nil if Init() has not been called.
func Structured() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return structuredLogger
}

// ForService creates a logger with the 'service' attribute added, based on
// the global structured logger. Falls back to slog.Default() before Init so
// packages never receive a nil logger.
func ForService(serviceName string) *slog.Logger {
	mu.RLock()
	base := structuredLogger
	mu.RUnlock()

	if base == nil {
		base = slog.Default()
	}
	return base.With("service", serviceName)
}

// FileLoggerConfig holds rotation settings for file loggers.
type FileLoggerConfig struct {
	MaxSizeMB  int // rotate after this many megabytes
	MaxBackups int // number of rotated files to keep
	MaxAgeDays int // days to retain rotated files
}

// DefaultFileLoggerConfig returns the rotation settings used when the
// config does not override them.
func DefaultFileLoggerConfig() FileLoggerConfig {
	return FileLoggerConfig{
		MaxSizeMB:  100,
		MaxBackups: 3,
		MaxAgeDays: 28,
	}
}

// RotatingWriter creates a lumberjack-rotated writer for filePath,
// creating the parent directory when needed. The returned close function
// flushes and closes the underlying file.
func RotatingWriter(filePath string, cfg FileLoggerConfig) (io.Writer, func() error, error) {
	// lumberjack does not create directories
	logDir := filepath.Dir(filePath)
	if logDir != "." {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
		}
	}

	defaults := DefaultFileLoggerConfig()
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = defaults.MaxSizeMB
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = defaults.MaxBackups
	}
	if cfg.MaxAgeDays <= 0 {
		cfg.MaxAgeDays = defaults.MaxAgeDays
	}

	logWriter := &lumberjack.Logger{
		Filename:   filePath,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
	}
	return logWriter, logWriter.Close, nil
}

// NewFileLogger creates a slog.Logger writing JSON records to filePath with
// lumberjack rotation. It returns the logger and a close function for the
// underlying writer.
func NewFileLogger(filePath, serviceName string, cfg FileLoggerConfig) (*slog.Logger, func() error, error) {
	logWriter, closeFn, err := RotatingWriter(filePath, cfg)
	if err != nil {
		return nil, nil, err
	}

	fileHandler := slog.NewJSONHandler(logWriter, &slog.HandlerOptions{
		Level: levelVar,
	})
	logger := slog.New(fileHandler).With("service", serviceName)

	return logger, closeFn, nil
}
