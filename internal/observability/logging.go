// Package observability provides structured logging with trace correlation
// and OpenTelemetry tracer wiring for evaluation runs.
package observability

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// RunLogger is a structured logger with automatic trace correlation.
// It wraps slog.Logger and stamps every entry with the run and subject
// identity, plus the OpenTelemetry trace context when one is active.
type RunLogger struct {
	logger        *slog.Logger
	runID         string
	subject       string
	redactPayload bool
}

// NewRunLogger creates a RunLogger writing through the given base logger.
// Attack payloads and credentials are redacted from info level and above;
// debug logs keep them intact.
func NewRunLogger(logger *slog.Logger, runID, subject string) *RunLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunLogger{
		logger:        logger,
		runID:         runID,
		subject:       subject,
		redactPayload: true,
	}
}

// Debug logs a debug-level message without redaction.
func (l *RunLogger) Debug(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).Debug(msg, args...)
}

// Info logs an info-level message with sensitive fields redacted.
func (l *RunLogger) Info(ctx context.Context, msg string, args ...any) {
	if l.redactPayload {
		args = redactSensitiveData(args)
	}
	l.WithContext(ctx).Info(msg, args...)
}

// Warn logs a warning-level message with sensitive fields redacted.
func (l *RunLogger) Warn(ctx context.Context, msg string, args ...any) {
	if l.redactPayload {
		args = redactSensitiveData(args)
	}
	l.WithContext(ctx).Warn(msg, args...)
}

// Error logs an error-level message with sensitive fields redacted.
func (l *RunLogger) Error(ctx context.Context, msg string, args ...any) {
	if l.redactPayload {
		args = redactSensitiveData(args)
	}
	l.WithContext(ctx).Error(msg, args...)
}

// WithContext returns an slog.Logger carrying run identity and, when the
// context holds a recording span, the trace and span IDs.
func (l *RunLogger) WithContext(ctx context.Context) *slog.Logger {
	logger := l.logger.With(
		slog.String("run_id", l.runID),
		slog.String("subject", l.subject),
	)

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		spanCtx := span.SpanContext()
		logger = logger.With(
			slog.String("trace_id", spanCtx.TraceID().String()),
			slog.String("span_id", spanCtx.SpanID().String()),
		)
	}

	return logger
}

// NewHandler creates a log handler for the given format ("text" or "json")
// writing at the given minimum level. Unknown formats fall back to text.
func NewHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// ParseLevel maps a configuration level string to an slog.Level.
// Unknown strings map to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// redactSensitiveData replaces the values of sensitive keys with a marker.
// Attack payloads and responses can contain live exploit text, so they leave
// the process only at debug level.
func redactSensitiveData(args []any) []any {
	if len(args)%2 != 0 {
		return args
	}

	sensitiveFields := map[string]bool{
		"payload":    true,
		"response":   true,
		"apikey":     true,
		"secret":     true,
		"password":   true,
		"token":      true,
		"credential": true,
	}

	redacted := make([]any, len(args))
	copy(redacted, args)

	for i := 0; i < len(args); i += 2 {
		if key, ok := args[i].(string); ok {
			normalizedKey := strings.ToLower(strings.ReplaceAll(key, "_", ""))
			if sensitiveFields[normalizedKey] {
				redacted[i+1] = "[REDACTED]"
			}
		}
	}

	return redacted
}
