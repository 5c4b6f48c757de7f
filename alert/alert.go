// Package alert provides sink implementations for health and scaling
// events. Every sink is best-effort: emit failures are reported to the
// caller for logging and never block pool operations.
package alert

import (
	"context"
	"log/slog"

	"github.com/SkogAI/agentpool/health"
	"github.com/SkogAI/agentpool/logger"
)

// LogSink writes events through the structured logger
type LogSink struct {
	log *slog.Logger
}

// NewLogSink creates a sink backed by the global logger.
func NewLogSink() *LogSink {
	return &LogSink{log: logger.With("component", "alert")}
}

// Emit logs the event at a severity matching its level.
func (s *LogSink) Emit(ctx context.Context, ev health.Event) error {
	args := []any{
		"kind", ev.Kind,
		"level", ev.Level.String(),
		"target", ev.Target,
		"utilization", ev.Sample.UtilizationPercent,
		"waiting", ev.Sample.WaitingCount,
	}
	switch ev.Level {
	case health.LevelCritical:
		s.log.Error(ev.Message, args...)
	case health.LevelWarning:
		s.log.Warn(ev.Message, args...)
	default:
		s.log.Info(ev.Message, args...)
	}
	return nil
}

// Multi fans one event out to several sinks. Each sink is attempted even
// when an earlier one fails; the first error is returned.
type Multi struct {
	sinks []health.Sink
}

// NewMulti creates a fan-out sink.
func NewMulti(sinks ...health.Sink) *Multi {
	return &Multi{sinks: sinks}
}

// Emit delivers the event to every sink.
func (m *Multi) Emit(ctx context.Context, ev health.Event) error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.Emit(ctx, ev); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
