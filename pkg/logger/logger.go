package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// LogLevel type alias for log level constants
type LogLevel string

// Log levels
const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Config contains logger configuration options
type Config struct {
	// Level is the minimum level to log
	Level string
	// JSON enables JSON formatting instead of text
	JSON bool
	// Output is where logs will be written (defaults to os.Stderr)
	Output io.Writer
	// AddSource adds source code information to logs
	AddSource bool
}

// DefaultConfig returns a default logger configuration
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		JSON:      true, // Default to JSON for production
		Output:    os.Stderr,
		AddSource: false,
	}
}

// Logger wraps slog for structured logging
type Logger struct {
	*slog.Logger
	config Config
}

// global is the package-level logger instance
var global *Logger

// New creates a new logger with the given configuration
func New(config Config) *Logger {
	var handler slog.Handler

	// Set log level
	var level slog.Level
	switch LogLevel(config.Level) {
	case LevelDebug:
		level = slog.LevelDebug
	case LevelWarn:
		level = slog.LevelWarn
	case LevelError:
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	if config.Output == nil {
		config.Output = os.Stderr
	}

	// Configure handler based on format
	if config.JSON {
		handler = slog.NewJSONHandler(config.Output, &slog.HandlerOptions{
			Level:     level,
			AddSource: config.AddSource,
		})
	} else {
		handler = slog.NewTextHandler(config.Output, &slog.HandlerOptions{
			Level:     level,
			AddSource: config.AddSource,
		})
	}

	logger := &Logger{
		Logger: slog.New(handler),
		config: config,
	}

	// Set this as global if no global logger exists yet
	if global == nil {
		global = logger
	}

	return logger
}

// SetGlobal sets the global logger instance
func SetGlobal(logger *Logger) {
	global = logger
}

// LogError logs an error with context information
func (l *Logger) LogError(err error, msg string, args ...any) {
	l.Error(msg, append([]any{"error", err.Error()}, args...)...)
}

// WithRequestID adds a request ID to the logger's context
func (l *Logger) WithRequestID(requestID string) *Logger {
	if requestID == "" {
		return l
	}
	return &Logger{Logger: l.With("request_id", requestID), config: l.config}
}

// WithUserID adds a user ID to the logger's context
func (l *Logger) WithUserID(userID string) *Logger {
	if userID == "" {
		return l
	}
	return &Logger{Logger: l.With("user_id", userID), config: l.config}
}

// WithCampaignID adds a campaign ID to the logger's context
func (l *Logger) WithCampaignID(campaignID string) *Logger {
	if campaignID == "" {
		return l
	}
	return &Logger{Logger: l.With("campaign_id", campaignID), config: l.config}
}

type ctxKey struct{}

// IntoContext stores the logger on ctx so code outside the HTTP layer can
// pick up the request-scoped fields
func IntoContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger stored on ctx, falling back to the global
// logger and finally to a discarding one. A sampled span on ctx adds its
// trace id.
func FromContext(ctx context.Context) *Logger {
	l, ok := ctx.Value(ctxKey{}).(*Logger)
	if !ok || l == nil {
		l = global
	}
	if l == nil {
		return Discard()
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() && sc.IsSampled() {
		return &Logger{Logger: l.With("trace_id", sc.TraceID().String()), config: l.config}
	}
	return l
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// RequestInfo describes one finished HTTP request
type RequestInfo struct {
	Method   string
	Route    string
	Path     string
	Status   int
	Latency  time.Duration
	Bytes    int
	ClientIP string
}

// LogRequest logs a finished request. Server errors log at error level,
// client errors at warn and probes at debug.
func (l *Logger) LogRequest(info RequestInfo, quiet bool) {
	level := slog.LevelInfo
	switch {
	case info.Status >= 500:
		level = slog.LevelError
	case info.Status >= 400:
		level = slog.LevelWarn
	case quiet:
		level = slog.LevelDebug
	}
	l.Log(context.Background(), level, "request completed",
		"method", info.Method,
		"route", info.Route,
		"path", info.Path,
		"status", info.Status,
		"latency_ms", info.Latency.Milliseconds(),
		"bytes", info.Bytes,
		"client_ip", info.ClientIP,
	)
}
