package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type ctxKey string

const (
	ctxKeyRequestID ctxKey = "request_id"
	ctxKeySessionID ctxKey = "session_id"
)

var level = new(slog.LevelVar)

// basic global logger, JSON to stdout.
var logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

func Logger() *slog.Logger {
	return logger
}

// SetLevel changes the minimum level of the global logger.
// Unknown names fall back to info.
func SetLevel(name string) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn", "warning":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}
}

// SetOutput redirects the global logger, mostly for tests.
func SetOutput(w io.Writer) {
	logger = slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// WithFields returns a logger with additional fields.
func WithFields(kv ...any) *slog.Logger {
	return logger.With(kv...)
}

// WithRequestID stores a request_id in the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, requestID)
}

// RequestIDFromContext returns the request_id stored in ctx, if any.
func RequestIDFromContext(ctx context.Context) string {
	reqID, _ := ctx.Value(ctxKeyRequestID).(string)
	return reqID
}

// WithSessionID stores the session being worked on in the context.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, ctxKeySessionID, sessionID)
}

// LoggerFromContext adds request_id and session_id if present.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	l := logger
	if reqID := RequestIDFromContext(ctx); reqID != "" {
		l = l.With("request_id", reqID)
	}
	if sessID, _ := ctx.Value(ctxKeySessionID).(string); sessID != "" {
		l = l.With("session_id", sessID)
	}
	return l
}
