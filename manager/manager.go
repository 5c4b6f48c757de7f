// Package manager ties pools, health monitors and scaling controllers
// together, one set per logical database target.
package manager

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/SkogAI/agentpool/config"
	"github.com/SkogAI/agentpool/health"
	"github.com/SkogAI/agentpool/logger"
	"github.com/SkogAI/agentpool/pool"
	"github.com/SkogAI/agentpool/scaling"
)

// managedTarget is one target's pool with its background machinery
type managedTarget struct {
	name       string
	pool       *pool.Pool
	monitor    *health.Monitor
	controller *scaling.Controller
	cancel     context.CancelFunc
}

// Manager owns one pool per named target. Targets are registered up front
// or added at runtime; Start launches the monitoring and scaling loops.
type Manager struct {
	mu      sync.RWMutex
	targets map[string]*managedTarget
	factory pool.ConnectionFactory
	sink    health.Sink
	started bool
	closed  bool
}

// New creates an empty manager. The factory opens handles for every target;
// sink receives health and scaling events and may be nil.
func New(factory pool.ConnectionFactory, sink health.Sink) *Manager {
	return &Manager{
		targets: make(map[string]*managedTarget),
		factory: factory,
		sink:    sink,
	}
}

// AddTarget registers a target and creates its pool. If the manager is
// already started the target's background loops launch immediately.
func (m *Manager) AddTarget(t config.TargetConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("manager is closed")
	}
	if _, exists := m.targets[t.Name]; exists {
		return fmt.Errorf("target %q already registered", t.Name)
	}

	p := pool.New(t.PoolConfig(), m.factory)
	mon := health.NewMonitor(t.HealthConfig(), p, m.sink)

	mt := &managedTarget{
		name:    t.Name,
		pool:    p,
		monitor: mon,
	}
	if !t.Scaling.Disabled {
		mt.controller = scaling.NewController(t.Profile(), p, mon, m.sink, t.ScalingInterval())
	}
	m.targets[t.Name] = mt

	if m.started {
		m.launchLocked(mt)
	}

	logger.Info("target registered", "target", t.Name, "workload_class", t.Profile().Class)
	return nil
}

// Start launches monitoring and scaling loops for every registered target.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started || m.closed {
		return
	}
	m.started = true
	for _, mt := range m.targets {
		m.launchLocked(mt)
	}
}

func (m *Manager) launchLocked(mt *managedTarget) {
	ctx, cancel := context.WithCancel(context.Background())
	mt.cancel = cancel
	go mt.monitor.Run(ctx)
	if mt.controller != nil {
		go mt.controller.Run(ctx)
	}
}

// RemoveTarget drains the named target: its background loops stop, the pool
// closes and the target is deregistered. Active handles close as they are
// released.
func (m *Manager) RemoveTarget(target string) error {
	m.mu.Lock()
	mt, ok := m.targets[target]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("unknown target %q", target)
	}
	delete(m.targets, target)
	m.mu.Unlock()

	if mt.cancel != nil {
		mt.cancel()
	}
	mt.monitor.Stop()
	if mt.controller != nil {
		mt.controller.Stop()
	}
	err := mt.pool.Close()
	logger.Info("target drained", "target", target)
	return err
}

// Acquire obtains a handle from the named target's pool.
func (m *Manager) Acquire(ctx context.Context, target string, priority pool.Priority, timeout time.Duration) (pool.Handle, error) {
	mt, err := m.lookup(target)
	if err != nil {
		return nil, err
	}
	return mt.pool.Acquire(ctx, priority, timeout)
}

// Release returns a handle to the named target's pool.
func (m *Manager) Release(target string, h pool.Handle) error {
	mt, err := m.lookup(target)
	if err != nil {
		return err
	}
	return mt.pool.Release(h)
}

// Resize manually adjusts the named target's pool bounds.
func (m *Manager) Resize(target string, newMin, newMax int) error {
	mt, err := m.lookup(target)
	if err != nil {
		return err
	}
	return mt.pool.Resize(newMin, newMax)
}

// Snapshot returns the named target's pool snapshot.
func (m *Manager) Snapshot(target string) (pool.Snapshot, error) {
	mt, err := m.lookup(target)
	if err != nil {
		return pool.Snapshot{}, err
	}
	return mt.pool.Snapshot(), nil
}

// Snapshots returns every target's snapshot, ordered by target name.
func (m *Manager) Snapshots() []pool.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]pool.Snapshot, 0, len(m.targets))
	for _, mt := range m.targets {
		out = append(out, mt.pool.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Target < out[j].Target })
	return out
}

// Health returns the latest sample and alert level for the named target.
// ok is false when no sample has been taken yet.
func (m *Manager) Health(target string) (sample health.Sample, level health.AlertLevel, ok bool, err error) {
	mt, lerr := m.lookup(target)
	if lerr != nil {
		return health.Sample{}, health.LevelOK, false, lerr
	}
	sample, ok = mt.monitor.Latest()
	return sample, mt.monitor.Level(), ok, nil
}

// Targets returns the registered target names, sorted.
func (m *Manager) Targets() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.targets))
	for name := range m.targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close stops all background loops and drains every pool.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	targets := make([]*managedTarget, 0, len(m.targets))
	for _, mt := range m.targets {
		targets = append(targets, mt)
	}
	m.mu.Unlock()

	var firstErr error
	for _, mt := range targets {
		if mt.cancel != nil {
			mt.cancel()
		}
		mt.monitor.Stop()
		if mt.controller != nil {
			mt.controller.Stop()
		}
		if err := mt.pool.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	logger.Info("manager closed", "targets", len(targets))
	return firstErr
}

func (m *Manager) lookup(target string) (*managedTarget, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mt, ok := m.targets[target]
	if !ok {
		return nil, fmt.Errorf("unknown target %q", target)
	}
	return mt, nil
}
