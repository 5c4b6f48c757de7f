// Package health samples pool state on a fixed cadence, evaluates alert
// thresholds over a sliding window and emits events to the configured sink
// on level transitions.
package health

import (
	"context"
	"fmt"
	"time"

	"github.com/SkogAI/agentpool/pool"
)

// AlertLevel classifies pool health
type AlertLevel int

const (
	// LevelOK means utilization is below the warning threshold
	LevelOK AlertLevel = iota
	// LevelWarning means utilization reached the warning threshold
	LevelWarning
	// LevelCritical means utilization reached the critical threshold or the
	// wait queue stayed over its cap for the configured duration
	LevelCritical
)

func (l AlertLevel) String() string {
	switch l {
	case LevelOK:
		return "ok"
	case LevelWarning:
		return "warning"
	case LevelCritical:
		return "critical"
	default:
		return "invalid"
	}
}

// MarshalText implements encoding.TextMarshaler so levels serialize by name.
func (l AlertLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText parses a level name produced by MarshalText.
func (l *AlertLevel) UnmarshalText(text []byte) error {
	switch string(text) {
	case "ok":
		*l = LevelOK
	case "warning":
		*l = LevelWarning
	case "critical":
		*l = LevelCritical
	default:
		return fmt.Errorf("unknown alert level %q", text)
	}
	return nil
}

// Sample is an immutable snapshot of pool and wait-queue state. Produced on
// a fixed cadence, never mutated after creation.
type Sample struct {
	Timestamp          time.Time `json:"timestamp"`
	Target             string    `json:"target"`
	TotalSlots         int       `json:"total_slots"`
	IdleSlots          int       `json:"idle_slots"`
	ActiveSlots        int       `json:"active_slots"`
	WaitingCount       int       `json:"waiting_count"`
	MaxSize            int       `json:"max_size"`
	MinSize            int       `json:"min_size"`
	UtilizationPercent float64   `json:"utilization_percent"`

	// ErrorCountWindow is the number of connection create errors since the
	// previous sample.
	ErrorCountWindow uint64 `json:"error_count_window"`

	// Host context, populated only when host sampling is enabled.
	HostCPUPercent float64 `json:"host_cpu_percent,omitempty"`
	HostMemPercent float64 `json:"host_mem_percent,omitempty"`
}

// newSample builds a Sample from a pool snapshot and the previous create
// error total.
func newSample(snap pool.Snapshot, prevCreateErrors uint64) Sample {
	return Sample{
		Timestamp:          snap.Timestamp,
		Target:             snap.Target,
		TotalSlots:         snap.TotalSlots,
		IdleSlots:          snap.IdleSlots,
		ActiveSlots:        snap.ActiveSlots,
		WaitingCount:       snap.WaitingCount,
		MaxSize:            snap.MaxSize,
		MinSize:            snap.MinSize,
		UtilizationPercent: snap.UtilizationPercent,
		ErrorCountWindow:   snap.Counters.CreateErrors - prevCreateErrors,
	}
}

// Event is one structured alert record handed to the sink
type Event struct {
	Kind      string     `json:"kind"` // "health" or "scaling"
	Level     AlertLevel `json:"level"`
	Target    string     `json:"target"`
	Message   string     `json:"message"`
	Timestamp time.Time  `json:"timestamp"`
	Sample    Sample     `json:"sample"`
}

// Sink receives alert events. Delivery is best-effort: a failing sink is
// logged by the emitter and never blocks or fails the pool operation that
// triggered the event.
type Sink interface {
	Emit(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc func(ctx context.Context, ev Event) error

// Emit calls the function
func (f SinkFunc) Emit(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}
