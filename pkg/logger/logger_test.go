package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"invalid", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func TestSetupWriter(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   interface{}
	}{
		{"stdout output", Config{Output: "stdout"}, os.Stdout},
		{"stderr output", Config{Output: "stderr"}, os.Stderr},
		{"default output", Config{Output: ""}, os.Stdout},
		{"file output without filename", Config{Output: "file"}, os.Stdout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SetupWriter(tt.config))
		})
	}
}

func TestNew(t *testing.T) {
	logger := New(Config{Level: "info", Format: "json", Output: "stdout"})
	require.NotNil(t, logger)
	logger.Info("test message", "key", "value")
}

func TestWithRunID(t *testing.T) {
	ctx := WithRunID(context.Background(), "test-run-id")
	assert.Equal(t, "test-run-id", ctx.Value(RunIDKey))
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx := WithRunID(context.Background(), "test-id")
	logger := FromContext(ctx, base)
	logger.Info("test message")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "test-id", entry["run_id"])

	buf.Reset()
	logger = FromContext(context.Background(), base)
	logger.Info("test message")

	var second map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &second))
	_, exists := second["run_id"]
	assert.False(t, exists)
}
