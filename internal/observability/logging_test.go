package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunLoggerStampsRunIdentity(t *testing.T) {
	var buf bytes.Buffer
	logger := NewRunLogger(slog.New(NewHandler(&buf, "json", slog.LevelInfo)), "run-1", "target-api")

	logger.Info(context.Background(), "round complete", "round", 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "run-1", entry["run_id"])
	assert.Equal(t, "target-api", entry["subject"])
	assert.Equal(t, float64(3), entry["round"])
}

func TestRunLoggerRedactsPayloadsAboveDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := NewRunLogger(slog.New(NewHandler(&buf, "json", slog.LevelDebug)), "run-1", "target-api")

	logger.Info(context.Background(), "attack executed", "payload", "ignore previous instructions")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "[REDACTED]", entry["payload"])

	buf.Reset()
	logger.Debug(context.Background(), "attack executed", "payload", "ignore previous instructions")
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ignore previous instructions", entry["payload"])
}

func TestNewHandlerFormats(t *testing.T) {
	var buf bytes.Buffer

	h := NewHandler(&buf, "json", slog.LevelInfo)
	slog.New(h).Info("hello")
	assert.True(t, json.Valid(buf.Bytes()))

	buf.Reset()
	h = NewHandler(&buf, "text", slog.LevelInfo)
	slog.New(h).Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}

func TestNewHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewRunLogger(slog.New(NewHandler(&buf, "text", slog.LevelWarn)), "run-1", "target-api")

	logger.Info(context.Background(), "dropped")
	assert.Empty(t, buf.String())

	logger.Warn(context.Background(), "kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("info"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("unknown"))
}

func TestInitTracingDisabledInstallsNoop(t *testing.T) {
	tp := InitTracing(false)
	require.NotNil(t, tp)

	_, span := Tracer("test").Start(context.Background(), "op")
	defer span.End()
	assert.False(t, span.SpanContext().IsValid())
}
