// Package log provides the gateway's structured logging: a slog-based
// Logger with a human-readable terminal handler for interactive use, a
// JSON handler for production, and context-carried correlation IDs.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/vectorgate/vectorgate/internal/config"
)

// contextKey is a private type for context keys, avoiding collisions with
// other packages' values.
type contextKey string

const (
	correlationIDKey contextKey = "correlation_id"
	requestIDKey     contextKey = "request_id"
)

// Logger wraps a slog.Logger configured per the gateway's settings.
type Logger struct {
	slogger *slog.Logger
}

// NewLogger builds a Logger writing to stdout in the configured format
// and level.
func NewLogger(cfg config.AppConfig) *Logger {
	return NewLoggerWithWriter(os.Stdout, cfg.LogFormat(), cfg.LogLevel())
}

// NewLoggerWithWriter builds a Logger writing to w. The stdio transport
// uses this with os.Stderr, keeping stdout clean for the MCP framing.
func NewLoggerWithWriter(w io.Writer, format config.LogFormat, level string) *Logger {
	return &Logger{slogger: slog.New(newHandler(w, format, parseLevel(level)))}
}

func newHandler(w io.Writer, format config.LogFormat, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == config.LogFormatJSON {
		return slog.NewJSONHandler(w, opts)
	}
	return newTerminalHandler(w, opts)
}

func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Slog returns the underlying slog.Logger for collaborators that take
// one directly.
func (l *Logger) Slog() *slog.Logger { return l.slogger }

// With returns a Logger that includes args on every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slogger: l.slogger.With(args...)}
}

// WithContext returns a Logger annotated with any correlation and
// request IDs carried by ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	out := l
	if id := CorrelationID(ctx); id != "" {
		out = out.With("correlation_id", id)
	}
	if id := RequestID(ctx); id != "" {
		out = out.With("request_id", id)
	}
	return out
}

// SetDefault installs this logger as the process-wide slog default.
func (l *Logger) SetDefault() { slog.SetDefault(l.slogger) }

// WithCorrelationID returns ctx carrying id for WithContext to pick up.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// WithRequestID returns ctx carrying id for WithContext to pick up.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// CorrelationID extracts the correlation ID from ctx, or "".
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey).(string)
	return id
}

// RequestID extracts the request ID from ctx, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
