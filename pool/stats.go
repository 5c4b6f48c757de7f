package pool

import (
	"sync/atomic"
	"time"
)

// counters holds cumulative operation counters, updated atomically so hot
// paths never take the pool lock just to count.
type counters struct {
	acquires        atomic.Uint64
	hits            atomic.Uint64
	misses          atomic.Uint64
	timeouts        atomic.Uint64
	createErrors    atomic.Uint64
	closedSlots     atomic.Uint64
	evictions       atomic.Uint64
	recycled        atomic.Uint64
	validationFails atomic.Uint64
	unknownReleases atomic.Uint64
}

// Counters is the exported view of the cumulative counters
type Counters struct {
	Acquires        uint64 `json:"acquires"`
	Hits            uint64 `json:"hits"`
	Misses          uint64 `json:"misses"`
	Timeouts        uint64 `json:"timeouts"`
	CreateErrors    uint64 `json:"create_errors"`
	ClosedSlots     uint64 `json:"closed_slots"`
	Evictions       uint64 `json:"evictions"`
	Recycled        uint64 `json:"recycled"`
	ValidationFails uint64 `json:"validation_fails"`
	UnknownReleases uint64 `json:"unknown_releases"`
}

// Snapshot is a point-in-time view of pool state suitable for adaptation to
// any metrics backend. Produced under a brief lock, never blocking on I/O.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`
	Target    string    `json:"target"`

	TotalSlots      int `json:"total_slots"`
	IdleSlots       int `json:"idle_slots"`
	ActiveSlots     int `json:"active_slots"`
	ValidatingSlots int `json:"validating_slots"`
	WaitingCount    int `json:"waiting_count"`

	MinSize     int `json:"min_size"`
	MaxSize     int `json:"max_size"`
	AbsoluteMax int `json:"absolute_max"`

	UtilizationPercent float64       `json:"utilization_percent"`
	OldestWait         time.Duration `json:"oldest_wait_ns"`

	Counters Counters `json:"counters"`
}

// Snapshot returns the current pool state and counters.
func (p *Pool) Snapshot() Snapshot {
	now := time.Now()

	p.mu.Lock()
	total := len(p.slots)
	idle := len(p.idle)
	validating := 0
	for _, s := range p.slots {
		if s.state == SlotValidating {
			validating++
		}
	}
	waiting := p.waiters.len()
	oldest := p.waiters.oldestWait(now)
	minSize, maxSize := p.minSize, p.maxSize
	p.mu.Unlock()

	active := total - idle - validating
	utilization := 0.0
	if maxSize > 0 {
		utilization = float64(active) / float64(maxSize) * 100
	}

	return Snapshot{
		Timestamp:          now,
		Target:             p.cfg.Target.Name,
		TotalSlots:         total,
		IdleSlots:          idle,
		ActiveSlots:        active,
		ValidatingSlots:    validating,
		WaitingCount:       waiting,
		MinSize:            minSize,
		MaxSize:            maxSize,
		AbsoluteMax:        p.cfg.AbsoluteMax,
		UtilizationPercent: utilization,
		OldestWait:         oldest,
		Counters: Counters{
			Acquires:        p.counters.acquires.Load(),
			Hits:            p.counters.hits.Load(),
			Misses:          p.counters.misses.Load(),
			Timeouts:        p.counters.timeouts.Load(),
			CreateErrors:    p.counters.createErrors.Load(),
			ClosedSlots:     p.counters.closedSlots.Load(),
			Evictions:       p.counters.evictions.Load(),
			Recycled:        p.counters.recycled.Load(),
			ValidationFails: p.counters.validationFails.Load(),
			UnknownReleases: p.counters.unknownReleases.Load(),
		},
	}
}
