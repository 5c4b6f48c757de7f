package main

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SkogAI/agentpool/config"
	"github.com/SkogAI/agentpool/health"
	"github.com/SkogAI/agentpool/logger"
)

// The rate limiter applies to the journal and redis sinks only; the log sink
// sees every event.
func TestBuildSinksThrottlesJournalNotLog(t *testing.T) {
	var buf bytes.Buffer
	old := logger.Logger
	logger.Logger = slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	defer func() { logger.Logger = old }()

	cfg := config.Default()
	cfg.Alerts.JournalPath = filepath.Join(t.TempDir(), "journal")
	cfg.Alerts.EventsPerMinute = 2

	sink, jnl, rdb := buildSinks(cfg)
	require.NotNil(t, jnl)
	assert.Nil(t, rdb)
	defer jnl.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, sink.Emit(context.Background(), health.Event{
			Kind:      "health",
			Level:     health.LevelWarning,
			Target:    "primary",
			Message:   "pool saturated",
			Timestamp: time.Now(),
		}))
	}

	// burst of 2, the rest dropped before the journal
	events, err := jnl.Recent(10)
	require.NoError(t, err)
	assert.Len(t, events, 2)

	assert.Equal(t, 5, strings.Count(buf.String(), `"pool saturated"`))
}

// Without journal or redis configured the pipeline is just the log sink.
func TestBuildSinksLogOnly(t *testing.T) {
	cfg := config.Default()
	cfg.Alerts.JournalPath = ""

	sink, jnl, rdb := buildSinks(cfg)
	assert.Nil(t, jnl)
	assert.Nil(t, rdb)

	require.NoError(t, sink.Emit(context.Background(), health.Event{
		Kind:  "health",
		Level: health.LevelOK,
	}))
}
