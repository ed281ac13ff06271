package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"DEBUG":   slog.LevelDebug,
		"debug":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"WARNING": slog.LevelWarn,
		"Error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := WithStage(WithRunID(NewLogger(&buf, slog.LevelInfo, ""), "r-1"), "cleaning")

	logger.Debug("hidden")
	logger.Info("stage started")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "stage started", rec["msg"])
	assert.Equal(t, ServiceName, rec["service"])
	assert.Equal(t, "r-1", rec["run_id"])
	assert.Equal(t, "cleaning", rec["stage"])
}

func TestNewLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, slog.LevelInfo, "TEXT").Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}

func TestLoggerOr(t *testing.T) {
	var a, b bytes.Buffer
	fallback := NewLogger(&a, slog.LevelInfo, "text")
	inCtx := NewLogger(&b, slog.LevelInfo, "text")

	LoggerOr(context.Background(), fallback).Info("to fallback")
	LoggerOr(WithLogger(context.Background(), inCtx), fallback).Info("to context")

	assert.Contains(t, a.String(), "to fallback")
	assert.Contains(t, b.String(), "to context")
	assert.NotNil(t, FromContext(context.Background()))
}
