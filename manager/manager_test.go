package manager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SkogAI/agentpool/config"
	"github.com/SkogAI/agentpool/health"
	"github.com/SkogAI/agentpool/pool"
)

func testTarget(name string) config.TargetConfig {
	return config.TargetConfig{
		Name:       name,
		ConnString: "postgres://agent@localhost/" + name,
		Pool: config.PoolSettings{
			MinSize:     1,
			MaxSize:     4,
			AbsoluteMax: 8,
		},
		Health: config.HealthSettings{
			SampleInterval: 3600,
		},
		Scaling: config.ScalingSettings{Disabled: true},
	}
}

func TestAddTargetAndAcquireRelease(t *testing.T) {
	factory := pool.NewMockConnectionFactory(false, 0)
	m := New(factory, nil)
	defer m.Close()

	require.NoError(t, m.AddTarget(testTarget("primary")))
	m.Start()

	h, err := m.Acquire(context.Background(), "primary", pool.PriorityMedium, time.Second)
	require.NoError(t, err)
	require.NotNil(t, h)
	require.NoError(t, m.Release("primary", h))

	snap, err := m.Snapshot("primary")
	require.NoError(t, err)
	assert.Equal(t, "primary", snap.Target)
	assert.Equal(t, uint64(1), snap.Counters.Acquires)
}

func TestDuplicateTargetRejected(t *testing.T) {
	m := New(pool.NewMockConnectionFactory(false, 0), nil)
	defer m.Close()

	require.NoError(t, m.AddTarget(testTarget("primary")))
	err := m.AddTarget(testTarget("primary"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestUnknownTarget(t *testing.T) {
	m := New(pool.NewMockConnectionFactory(false, 0), nil)
	defer m.Close()

	_, err := m.Acquire(context.Background(), "nope", pool.PriorityLow, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown target")

	require.Error(t, m.Release("nope", struct{}{}))
	require.Error(t, m.Resize("nope", 1, 2))

	_, _, _, err = m.Health("nope")
	require.Error(t, err)
}

func TestSnapshotsSortedByName(t *testing.T) {
	m := New(pool.NewMockConnectionFactory(false, 0), nil)
	defer m.Close()

	require.NoError(t, m.AddTarget(testTarget("replica")))
	require.NoError(t, m.AddTarget(testTarget("analytics")))
	require.NoError(t, m.AddTarget(testTarget("primary")))

	snaps := m.Snapshots()
	require.Len(t, snaps, 3)
	assert.Equal(t, "analytics", snaps[0].Target)
	assert.Equal(t, "primary", snaps[1].Target)
	assert.Equal(t, "replica", snaps[2].Target)
}

func TestResizePassthrough(t *testing.T) {
	m := New(pool.NewMockConnectionFactory(false, 0), nil)
	defer m.Close()

	require.NoError(t, m.AddTarget(testTarget("primary")))
	require.NoError(t, m.Resize("primary", 2, 6))

	snap, err := m.Snapshot("primary")
	require.NoError(t, err)
	assert.Equal(t, 2, snap.MinSize)
	assert.Equal(t, 6, snap.MaxSize)
}

func TestHealthBeforeFirstSample(t *testing.T) {
	m := New(pool.NewMockConnectionFactory(false, 0), nil)
	defer m.Close()

	require.NoError(t, m.AddTarget(testTarget("primary")))

	_, level, ok, err := m.Health("primary")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, health.LevelOK, level)
}

func TestCloseShutsDownPools(t *testing.T) {
	m := New(pool.NewMockConnectionFactory(false, 0), nil)
	require.NoError(t, m.AddTarget(testTarget("primary")))
	m.Start()

	require.NoError(t, m.Close())

	_, err := m.Acquire(context.Background(), "primary", pool.PriorityMedium, time.Second)
	require.Error(t, err)

	require.Error(t, m.AddTarget(testTarget("late")))
	require.NoError(t, m.Close())
}

func TestRemoveTargetDrainsPool(t *testing.T) {
	factory := pool.NewMockConnectionFactory(false, 0)
	m := New(factory, nil)
	defer m.Close()

	require.NoError(t, m.AddTarget(testTarget("primary")))
	m.Start()

	h, err := m.Acquire(context.Background(), "primary", pool.PriorityMedium, time.Second)
	require.NoError(t, err)

	require.NoError(t, m.RemoveTarget("primary"))

	_, err = m.Acquire(context.Background(), "primary", pool.PriorityMedium, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown target")

	// the checked-out handle survives the drain until its owner is done
	assert.True(t, factory.Validate(context.Background(), h))

	require.Error(t, m.RemoveTarget("primary"))
}

func TestTargetsSorted(t *testing.T) {
	m := New(pool.NewMockConnectionFactory(false, 0), nil)
	defer m.Close()

	require.NoError(t, m.AddTarget(testTarget("b")))
	require.NoError(t, m.AddTarget(testTarget("a")))
	assert.Equal(t, []string{"a", "b"}, m.Targets())
}
