package health

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SkogAI/agentpool/pool"
)

func testPool(t *testing.T, min, max int) *pool.Pool {
	t.Helper()
	p := pool.New(pool.Config{
		Target:      pool.TargetConfig{Name: "health-test", ConnectTimeout: time.Second},
		MinSize:     min,
		MaxSize:     max,
		AbsoluteMax: max * 2,
	}, pool.NewMockConnectionFactory(false, 0))
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestSampleReflectsPoolState(t *testing.T) {
	p := testPool(t, 0, 4)
	m := NewMonitor(Config{}, p, nil)

	ctx := context.Background()
	h1, err := p.Acquire(ctx, pool.PriorityMedium, time.Second)
	require.NoError(t, err)
	h2, err := p.Acquire(ctx, pool.PriorityMedium, time.Second)
	require.NoError(t, err)
	require.NoError(t, p.Release(h2))

	s := m.Sample()
	assert.Equal(t, 2, s.TotalSlots)
	assert.Equal(t, 1, s.ActiveSlots)
	assert.Equal(t, 1, s.IdleSlots)
	assert.Equal(t, 4, s.MaxSize)
	assert.InDelta(t, 25.0, s.UtilizationPercent, 0.01)

	require.NoError(t, p.Release(h1))
}

func TestErrorCountWindowIsDelta(t *testing.T) {
	factory := pool.NewMockConnectionFactory(true, 2)
	p := pool.New(pool.Config{
		Target:  pool.TargetConfig{Name: "err-test", ConnectTimeout: time.Second},
		MaxSize: 2,
	}, factory)
	t.Cleanup(func() { _ = p.Close() })

	m := NewMonitor(Config{}, p, nil)
	ctx := context.Background()

	_, err := p.Acquire(ctx, pool.PriorityMedium, 100*time.Millisecond)
	require.Error(t, err)

	s := m.Sample()
	assert.Equal(t, uint64(1), s.ErrorCountWindow)

	// no new errors between samples
	s = m.Sample()
	assert.Equal(t, uint64(0), s.ErrorCountWindow)
}

func TestEvaluateUtilizationThresholds(t *testing.T) {
	p := testPool(t, 0, 4)
	m := NewMonitor(Config{}, p, nil)

	now := time.Now()
	cases := []struct {
		utilization float64
		want        AlertLevel
	}{
		{0, LevelOK},
		{69.9, LevelOK},
		{70, LevelWarning},
		{89.9, LevelWarning},
		{90, LevelCritical},
		{100, LevelCritical},
	}
	for _, tc := range cases {
		got := m.Evaluate([]Sample{{Timestamp: now, UtilizationPercent: tc.utilization}})
		assert.Equal(t, tc.want, got, "utilization %.1f", tc.utilization)
	}
}

func TestQueueDepthCriticalIsDebounced(t *testing.T) {
	p := testPool(t, 0, 4)
	m := NewMonitor(Config{WaitingCapCount: 5, WaitingCapDuration: 10 * time.Second}, p, nil)

	base := time.Now()

	// single spike over the cap: not critical
	level := m.Evaluate([]Sample{{Timestamp: base, WaitingCount: 20}})
	assert.Equal(t, LevelOK, level)

	// still over the cap but not yet sustained long enough
	level = m.Evaluate([]Sample{{Timestamp: base.Add(5 * time.Second), WaitingCount: 20}})
	assert.Equal(t, LevelOK, level)

	// sustained past the cap duration: critical
	level = m.Evaluate([]Sample{{Timestamp: base.Add(11 * time.Second), WaitingCount: 20}})
	assert.Equal(t, LevelCritical, level)

	// queue drains: debounce window resets
	level = m.Evaluate([]Sample{{Timestamp: base.Add(12 * time.Second), WaitingCount: 0}})
	assert.Equal(t, LevelOK, level)
	level = m.Evaluate([]Sample{{Timestamp: base.Add(13 * time.Second), WaitingCount: 20}})
	assert.Equal(t, LevelOK, level)
}

func TestEmitOnTransitionOnly(t *testing.T) {
	p := testPool(t, 0, 2)

	var mu sync.Mutex
	var events []Event
	sink := SinkFunc(func(ctx context.Context, ev Event) error {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
		return nil
	})

	m := NewMonitor(Config{}, p, sink)
	ctx := context.Background()

	// saturate: 100% utilization
	h1, err := p.Acquire(ctx, pool.PriorityMedium, time.Second)
	require.NoError(t, err)
	h2, err := p.Acquire(ctx, pool.PriorityMedium, time.Second)
	require.NoError(t, err)

	m.tick(ctx)
	m.tick(ctx)
	m.tick(ctx)

	mu.Lock()
	require.Len(t, events, 1, "repeated critical samples must not re-emit")
	assert.Equal(t, LevelCritical, events[0].Level)
	assert.Equal(t, "health", events[0].Kind)
	mu.Unlock()

	// recover: transition back to OK emits exactly once more
	require.NoError(t, p.Release(h1))
	require.NoError(t, p.Release(h2))
	m.tick(ctx)
	m.tick(ctx)

	mu.Lock()
	require.Len(t, events, 2)
	assert.Equal(t, LevelOK, events[1].Level)
	mu.Unlock()

	assert.Equal(t, LevelOK, m.Level())
}

func TestWindowBounded(t *testing.T) {
	p := testPool(t, 0, 2)
	m := NewMonitor(Config{WindowSize: 3}, p, nil)

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		m.tick(ctx)
	}
	assert.Len(t, m.Window(), 3)

	latest, ok := m.Latest()
	assert.True(t, ok)
	assert.Equal(t, "health-test", latest.Target)
}
