package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(Config{Level: slog.LevelInfo, Format: "json", Writer: &buf})

	log.Info("pool started", "target", "primary", "max_size", 10)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "pool started", record["msg"])
	assert.Equal(t, "primary", record["target"])
	assert.Equal(t, float64(10), record["max_size"])
}

func TestAppendContextArgs(t *testing.T) {
	ctx := context.Background()
	ctx = context.WithValue(ctx, TargetKey, "analytics")
	ctx = context.WithValue(ctx, RequestIDKey, "req-42")
	ctx = context.WithValue(ctx, AgentIDKey, "agent-7")

	args := appendContextArgs(ctx, "extra", true)
	assert.Equal(t, []any{"extra", true, "target", "analytics", "request_id", "req-42", "agent_id", "agent-7"}, args)
}

func TestAppendContextArgsNilContext(t *testing.T) {
	args := appendContextArgs(nil, "k", "v")
	assert.Equal(t, []any{"k", "v"}, args)
}
