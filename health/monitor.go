package health

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/SkogAI/agentpool/logger"
	"github.com/SkogAI/agentpool/pool"
)

// Config tunes sampling cadence and thresholds
type Config struct {
	SampleInterval time.Duration
	WindowSize     int

	WarningUtilization  float64 // percent, Warning at or above
	CriticalUtilization float64 // percent, Critical at or above

	// WaitingCap and WaitingCapDuration drive the queue-depth Critical rule:
	// waiting count above the cap sustained for the duration.
	WaitingCapCount    int
	WaitingCapDuration time.Duration

	// IncludeHostStats adds host CPU and memory context to each sample.
	IncludeHostStats bool
}

func (c Config) withDefaults() Config {
	if c.SampleInterval <= 0 {
		c.SampleInterval = 10 * time.Second
	}
	if c.WindowSize <= 0 {
		c.WindowSize = 30
	}
	if c.WarningUtilization <= 0 {
		c.WarningUtilization = 70
	}
	if c.CriticalUtilization <= 0 {
		c.CriticalUtilization = 90
	}
	if c.WaitingCapCount <= 0 {
		c.WaitingCapCount = 10
	}
	if c.WaitingCapDuration <= 0 {
		c.WaitingCapDuration = 30 * time.Second
	}
	return c
}

// Monitor samples one pool on a fixed cadence and evaluates alert levels
// over a sliding window. Level transitions, not individual samples, produce
// events on the sink.
type Monitor struct {
	cfg  Config
	pool *pool.Pool
	sink Sink

	mu               sync.Mutex
	window           []Sample
	level            AlertLevel
	prevCreateErrors uint64
	waitingOverSince time.Time

	done chan struct{}
	stop sync.Once
	log  *slog.Logger
}

// NewMonitor creates a monitor for the pool. Run must be called to start
// sampling; sink may be nil when no alerting is wanted.
func NewMonitor(cfg Config, p *pool.Pool, sink Sink) *Monitor {
	cfg = cfg.withDefaults()
	return &Monitor{
		cfg:  cfg,
		pool: p,
		sink: sink,
		done: make(chan struct{}),
		log:  logger.With("component", "health"),
	}
}

// Run samples until the context is cancelled or Stop is called.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.tick(ctx)
		case <-ctx.Done():
			return
		case <-m.done:
			return
		}
	}
}

// Stop terminates a running Run loop.
func (m *Monitor) Stop() {
	m.stop.Do(func() { close(m.done) })
}

// Sample takes one snapshot of pool state. Read-only, brief lock, no I/O.
func (m *Monitor) Sample() Sample {
	snap := m.pool.Snapshot()

	m.mu.Lock()
	s := newSample(snap, m.prevCreateErrors)
	m.prevCreateErrors = snap.Counters.CreateErrors
	m.mu.Unlock()

	if m.cfg.IncludeHostStats {
		cpu, mem := hostStats()
		s.HostCPUPercent = cpu
		s.HostMemPercent = mem
	}
	return s
}

// Window returns a copy of the current sliding window, oldest first.
func (m *Monitor) Window() []Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Sample, len(m.window))
	copy(out, m.window)
	return out
}

// Level returns the most recently evaluated alert level.
func (m *Monitor) Level() AlertLevel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

// Latest returns the newest sample in the window, if any.
func (m *Monitor) Latest() (Sample, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.window) == 0 {
		return Sample{}, false
	}
	return m.window[len(m.window)-1], true
}

func (m *Monitor) tick(ctx context.Context) {
	s := m.Sample()

	m.mu.Lock()
	m.window = append(m.window, s)
	if len(m.window) > m.cfg.WindowSize {
		m.window = m.window[1:]
	}
	newLevel := m.evaluateLocked(s)
	prev := m.level
	m.level = newLevel
	m.mu.Unlock()

	if newLevel != prev {
		m.emit(ctx, newLevel, prev, s)
	}
}

// evaluateLocked computes the alert level for the newest sample. The
// queue-depth rule is debounced: a single spike over the cap never trips
// Critical, only a sustained breach does.
func (m *Monitor) evaluateLocked(s Sample) AlertLevel {
	if s.WaitingCount > m.cfg.WaitingCapCount {
		if m.waitingOverSince.IsZero() {
			m.waitingOverSince = s.Timestamp
		}
	} else {
		m.waitingOverSince = time.Time{}
	}

	sustainedQueue := !m.waitingOverSince.IsZero() &&
		s.Timestamp.Sub(m.waitingOverSince) >= m.cfg.WaitingCapDuration

	switch {
	case s.UtilizationPercent >= m.cfg.CriticalUtilization || sustainedQueue:
		return LevelCritical
	case s.UtilizationPercent >= m.cfg.WarningUtilization:
		return LevelWarning
	default:
		return LevelOK
	}
}

// Evaluate classifies an externally supplied window, newest sample last.
// Exposed for decision tooling; the Run loop uses the internal window.
func (m *Monitor) Evaluate(window []Sample) AlertLevel {
	if len(window) == 0 {
		return LevelOK
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evaluateLocked(window[len(window)-1])
}

func (m *Monitor) emit(ctx context.Context, level, prev AlertLevel, s Sample) {
	m.log.Info("alert level transition",
		"target", s.Target, "from", prev.String(), "to", level.String(),
		"utilization", s.UtilizationPercent, "waiting", s.WaitingCount)

	if m.sink == nil {
		return
	}
	ev := Event{
		Kind:      "health",
		Level:     level,
		Target:    s.Target,
		Message:   fmt.Sprintf("pool %s transitioned %s -> %s at %.1f%% utilization", s.Target, prev, level, s.UtilizationPercent),
		Timestamp: s.Timestamp,
		Sample:    s,
	}
	if err := m.sink.Emit(ctx, ev); err != nil {
		m.log.Warn("alert sink emit failed", "error", err)
	}
}
