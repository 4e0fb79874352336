// Package logger provides structured logging for the viewer core
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger wraps zerolog with viewer-specific functionality
type Logger struct {
	zlog zerolog.Logger
}

// Config holds logger configuration
type Config struct {
	Level      string // debug, info, warn, error
	Pretty     bool   // pretty-print for development
	Output     io.Writer
	WithCaller bool
}

// NewLogger creates a new structured logger
func NewLogger(cfg Config) *Logger {
	// Set global log level
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(level)

	// Configure output
	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	// Pretty printing for development
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	// Create logger
	zlog := zerolog.New(output).
		With().
		Timestamp().
		Str("service", "snappy").
		Logger()

	// Add caller information if requested
	if cfg.WithCaller {
		zlog = zlog.With().Caller().Logger()
	}

	return &Logger{zlog: zlog}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

// GetZerolog returns the underlying zerolog logger
func (l *Logger) GetZerolog() *zerolog.Logger {
	return &l.zlog
}

// Info logs an info message
func (l *Logger) Info(msg string) *zerolog.Event {
	return l.zlog.Info().Str("msg", msg)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string) *zerolog.Event {
	return l.zlog.Debug().Str("msg", msg)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string) *zerolog.Event {
	return l.zlog.Warn().Str("msg", msg)
}

// Error logs an error message
func (l *Logger) Error(msg string) *zerolog.Event {
	return l.zlog.Error().Str("msg", msg)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(msg string) *zerolog.Event {
	return l.zlog.Fatal().Str("msg", msg)
}

// EngineLogger returns a logger for engine calls
func (l *Logger) EngineLogger(call string) *Logger {
	return &Logger{
		zlog: l.zlog.With().
			Str("component", "engine").
			Str("call", call).
			Logger(),
	}
}

// TreeLogger returns a logger for tree navigation
func (l *Logger) TreeLogger() zerolog.Logger {
	return l.zlog.With().Str("component", "tree").Logger()
}

// SearchLogger returns a logger for search orchestration
func (l *Logger) SearchLogger() zerolog.Logger {
	return l.zlog.With().Str("component", "search").Logger()
}

// LogEngineCall logs an engine call with structured fields
func (l *Logger) LogEngineCall(call string, duration time.Duration, err error) {
	el := l.EngineLogger(call)
	event := el.zlog.Debug().Dur("duration_ms", duration)
	if err != nil {
		event = el.zlog.Error().Dur("duration_ms", duration).Err(err)
	}
	event.Msg("Engine call completed")
}

// LogDocumentOpen logs a completed document open
func (l *Logger) LogDocumentOpen(path string, duration time.Duration, roots int, err error) {
	event := l.zlog.Info().
		Str("event", "document_open").
		Str("path", path).
		Dur("duration_ms", duration).
		Int("root_nodes", roots)

	if err != nil {
		event = l.zlog.Error().
			Str("event", "document_open").
			Str("path", path).
			Dur("duration_ms", duration).
			Err(err)
	}

	event.Msg("Document open completed")
}

// LogDocumentUnload logs a document unload
func (l *Logger) LogDocumentUnload(path string) {
	l.zlog.Info().
		Str("event", "document_unload").
		Str("path", path).
		Msg("Document unloaded")
}

// Global logger instance
var globalLogger *Logger

// InitGlobalLogger initializes the global logger
func InitGlobalLogger(cfg Config) {
	globalLogger = NewLogger(cfg)
	log.Logger = *globalLogger.GetZerolog()
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *Logger {
	if globalLogger == nil {
		// Initialize with defaults if not set
		InitGlobalLogger(Config{
			Level:  "info",
			Pretty: true,
		})
	}
	return globalLogger
}
