// Package pool implements a bounded, priority-aware connection pool for
// database access by agent workloads. It owns slot lifecycle, saturation
// queueing, idle eviction and dynamic resizing; the wire protocol and SQL
// semantics live behind the ConnectionFactory.
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/SkogAI/agentpool/logger"
)

// Pool manages a bounded set of connection slots with lifecycle management,
// a strict-priority wait queue and dynamic min/max bounds. Internal state is
// guarded by a single mutex with short critical sections; factory calls
// always happen outside the lock.
type Pool struct {
	cfg     Config
	factory ConnectionFactory

	mu           sync.Mutex
	slots        map[Handle]*slot
	idle         []*slot
	waiters      *waitQueue
	pendingOpens int
	minSize      int
	maxSize      int
	closed       bool

	counters counters
	done     chan struct{}
	log      *slog.Logger
}

// New creates a pool, prewarms it toward MinSize and starts the eviction
// loop. The pool must be drained with Close when no longer needed.
func New(cfg Config, factory ConnectionFactory) *Pool {
	cfg = cfg.withDefaults()
	p := &Pool{
		cfg:     cfg,
		factory: factory,
		slots:   make(map[Handle]*slot),
		waiters: &waitQueue{},
		minSize: cfg.MinSize,
		maxSize: cfg.MaxSize,
		done:    make(chan struct{}),
		log:     logger.With("component", "pool", "target", cfg.Target.Name),
	}

	for i := 0; i < cfg.MinSize; i++ {
		go p.openReplacement()
	}
	go p.evictionLoop()

	return p
}

// Acquire returns a connection handle, blocking in the wait queue when the
// pool is saturated. A non-positive timeout falls back to the configured
// default. Exactly one caller owns the returned handle until Release.
func (p *Pool) Acquire(ctx context.Context, priority Priority, timeout time.Duration) (Handle, error) {
	if !priority.valid() {
		priority = PriorityMedium
	}
	if timeout <= 0 {
		timeout = p.cfg.AcquireTimeout
	}
	p.counters.acquires.Add(1)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, newPoolError("acquire", ErrPoolClosed)
	}

	// Fast path: reuse an idle slot.
	if n := len(p.idle); n > 0 {
		s := p.idle[n-1]
		p.idle = p.idle[:n-1]
		s.checkout()
		p.mu.Unlock()
		p.counters.hits.Add(1)
		return s.handle, nil
	}

	// Below max with nobody queued: open a new handle, outside the lock. The
	// reservation in pendingOpens keeps concurrent acquirers from overshooting
	// the bound. With waiters queued the caller joins the queue instead, so a
	// latecomer can never leapfrog an earlier higher-priority request.
	if p.waiters.len() == 0 && len(p.slots)+p.pendingOpens < p.maxSize {
		p.pendingOpens++
		target := p.cfg.Target
		p.mu.Unlock()

		h, err := p.openHandle(ctx, target)

		p.mu.Lock()
		p.pendingOpens--
		if err != nil {
			p.counters.createErrors.Add(1)
			// the freed reservation may be the only capacity a queued
			// waiter will ever see
			refill := p.waiters.len() > 0 && len(p.slots)+p.pendingOpens < p.maxSize
			p.mu.Unlock()
			if refill {
				go p.openReplacement()
			}
			return nil, newPoolError("acquire", fmt.Errorf("%w: %w", ErrConnectionCreate, err))
		}
		if p.closed {
			p.mu.Unlock()
			p.closeHandle(h)
			return nil, newPoolError("acquire", ErrPoolClosed)
		}
		s := newSlot(h)
		s.checkout()
		if len(p.slots) >= p.maxSize {
			// bounds shrank while the open was in flight
			s.closeOnRelease = true
		}
		p.slots[h] = s
		p.mu.Unlock()
		p.counters.misses.Add(1)
		return h, nil
	}

	// Saturated, or earlier requests are still queued: wait for a release,
	// the timeout or cancellation. When capacity remains, a background open
	// is spawned to serve the head of the queue.
	w := newWaiter(priority)
	p.waiters.enqueue(w)
	spawn := len(p.slots)+p.pendingOpens < p.maxSize
	p.mu.Unlock()
	if spawn {
		go p.openReplacement()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-w.ready:
		if res.err != nil {
			return nil, newPoolError("acquire", res.err)
		}
		return res.handle, nil
	case <-timer.C:
		if res, ok := p.abandonWait(w); ok {
			if res.err != nil {
				return nil, newPoolError("acquire", res.err)
			}
			return res.handle, nil
		}
		p.counters.timeouts.Add(1)
		p.log.Debug("acquire timed out in queue", "waiter_id", w.id.String(), "priority", w.priority.String())
		return nil, newPoolError("acquire", ErrAcquireTimeout)
	case <-ctx.Done():
		if res, ok := p.abandonWait(w); ok {
			if res.err != nil {
				return nil, newPoolError("acquire", res.err)
			}
			return res.handle, nil
		}
		return nil, newPoolError("acquire", ctx.Err())
	}
}

// abandonWait cancels a pending waiter. If a fulfillment already won the
// race the delivered result is consumed and handed to the caller, so a
// won handle is never leaked and a delivered error (pool closed) is not
// masked by the caller's timeout.
func (p *Pool) abandonWait(w *waiter) (waitResult, bool) {
	p.mu.Lock()
	cancelled := p.waiters.cancel(w)
	p.mu.Unlock()
	if cancelled {
		return waitResult{}, false
	}
	return <-w.ready, true
}

// Release returns a handle to the pool. The now-idle slot is handed straight
// to the highest-priority waiter when one is queued; slots flagged for
// recycling are closed here, never mid-use.
func (p *Pool) Release(h Handle) error {
	p.mu.Lock()

	s, ok := p.slots[h]
	if !ok || (s.state != SlotActive) {
		p.counters.unknownReleases.Add(1)
		p.mu.Unlock()
		p.log.Warn("release of untracked handle")
		return newPoolError("release", ErrUnknownHandle)
	}

	if p.closed {
		p.removeSlotLocked(s)
		p.mu.Unlock()
		p.closeHandle(h)
		return nil
	}

	if p.cfg.ValidateOnRelease {
		s.state = SlotValidating
		p.mu.Unlock()
		valid := p.factory.Validate(context.Background(), h)
		p.mu.Lock()
		if p.closed {
			p.removeSlotLocked(s)
			p.mu.Unlock()
			p.closeHandle(h)
			return nil
		}
		if !valid {
			p.counters.validationFails.Add(1)
			p.retireLocked(s)
			return nil
		}
	}

	if s.closeOnRelease || s.expired(p.cfg.MaxLifetime, p.cfg.MaxUses) {
		p.counters.recycled.Add(1)
		p.retireLocked(s)
		return nil
	}

	if w := p.waiters.pop(); w != nil {
		s.checkout()
		p.waiters.deliver(w, h)
		p.mu.Unlock()
		return nil
	}

	s.state = SlotIdle
	s.lastUsedAt = time.Now()
	p.idle = append(p.idle, s)
	p.mu.Unlock()
	return nil
}

// retireLocked removes the slot, closes its handle outside the lock and
// spawns a replacement when demand warrants one. Called with the mutex held;
// returns with it released.
func (p *Pool) retireLocked(s *slot) {
	h := s.handle
	p.removeSlotLocked(s)
	refill := p.waiters.len() > 0 || len(p.slots)+p.pendingOpens < p.minSize
	p.mu.Unlock()
	p.closeHandle(h)
	p.log.Debug("slot retired", "slot_id", s.id.String(), "use_count", s.useCount, "age", time.Since(s.createdAt).String())
	if refill {
		go p.openReplacement()
	}
}

// removeSlotLocked drops the slot from all tracking structures.
func (p *Pool) removeSlotLocked(s *slot) {
	s.state = SlotClosed
	delete(p.slots, s.handle)
	for i, cand := range p.idle {
		if cand == s {
			p.idle = append(p.idle[:i], p.idle[i+1:]...)
			break
		}
	}
}

// Resize atomically updates the pool bounds, clamped to [0, AbsoluteMax].
// Excess idle slots are closed immediately; excess active slots are flagged
// for closure at their next Release.
func (p *Pool) Resize(newMin, newMax int) error {
	if newMin < 0 {
		newMin = 0
	}
	if newMax > p.cfg.AbsoluteMax {
		newMax = p.cfg.AbsoluteMax
	}
	if newMax <= 0 || newMin > newMax {
		return newPoolError("resize", fmt.Errorf("invalid bounds [%d, %d]", newMin, newMax))
	}

	var toClose []Handle
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return newPoolError("resize", ErrPoolClosed)
	}
	p.minSize = newMin
	p.maxSize = newMax

	for len(p.slots) > p.maxSize && len(p.idle) > 0 {
		s := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		s.state = SlotClosed
		delete(p.slots, s.handle)
		toClose = append(toClose, s.handle)
	}
	if excess := len(p.slots) - p.maxSize; excess > 0 {
		for _, s := range p.slots {
			if excess == 0 {
				break
			}
			if s.state == SlotActive && !s.closeOnRelease {
				s.closeOnRelease = true
				excess--
			}
		}
	}
	// grown bounds must reach queued waiters: only a Release would serve
	// them otherwise
	topUp := p.maxSize - len(p.slots) - p.pendingOpens
	if w := p.waiters.len(); topUp > w {
		topUp = w
	}
	p.mu.Unlock()

	for i := 0; i < topUp; i++ {
		go p.openReplacement()
	}
	for _, h := range toClose {
		p.closeHandle(h)
	}
	p.log.Info("pool resized", "min_size", newMin, "max_size", newMax, "closed_idle", len(toClose))
	return nil
}

// Bounds returns the current min and max size.
func (p *Pool) Bounds() (min, max int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.minSize, p.maxSize
}

// Close drains the pool. Pending waiters fail with ErrPoolClosed, idle slots
// close immediately and active slots close as they are released. No new
// slots are created afterwards.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.waiters.failAll(ErrPoolClosed)

	var toClose []Handle
	for _, s := range p.idle {
		s.state = SlotClosed
		delete(p.slots, s.handle)
		toClose = append(toClose, s.handle)
	}
	p.idle = nil
	p.mu.Unlock()

	close(p.done)
	for _, h := range toClose {
		p.closeHandle(h)
	}
	p.log.Info("pool closed", "closed_idle", len(toClose))
	return nil
}

// openHandle opens a new handle honoring both the caller context and the
// per-target connect timeout.
func (p *Pool) openHandle(ctx context.Context, target TargetConfig) (Handle, error) {
	ctx, cancel := context.WithTimeout(ctx, target.ConnectTimeout)
	defer cancel()
	return p.factory.Open(ctx, target)
}

// closeHandle closes a handle best-effort; failures affect bookkeeping only.
func (p *Pool) closeHandle(h Handle) {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.Target.ConnectTimeout)
	defer cancel()
	if err := p.factory.Close(ctx, h); err != nil {
		p.log.Warn("closing connection handle failed", "error", err)
	}
	p.counters.closedSlots.Add(1)
}

// openReplacement opens one handle in the background when the pool is below
// MinSize or a waiter is queued with spare capacity. Open failures are
// logged and counted, never surfaced to callers.
func (p *Pool) openReplacement() {
	p.mu.Lock()
	if p.closed || len(p.slots)+p.pendingOpens >= p.maxSize {
		p.mu.Unlock()
		return
	}
	if p.waiters.len() == 0 && len(p.slots)+p.pendingOpens >= p.minSize {
		p.mu.Unlock()
		return
	}
	p.pendingOpens++
	target := p.cfg.Target
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), target.ConnectTimeout)
	h, err := p.factory.Open(ctx, target)
	cancel()

	p.mu.Lock()
	p.pendingOpens--
	if err != nil {
		p.counters.createErrors.Add(1)
		p.mu.Unlock()
		p.log.Warn("background connection open failed", "error", err)
		return
	}
	if p.closed {
		p.mu.Unlock()
		p.closeHandle(h)
		return
	}
	s := newSlot(h)
	p.slots[h] = s
	if w := p.waiters.pop(); w != nil {
		s.checkout()
		p.waiters.deliver(w, h)
		p.mu.Unlock()
		return
	}
	p.idle = append(p.idle, s)
	p.mu.Unlock()
}

// evictionLoop runs idle eviction and lifetime recycling on a fixed interval.
func (p *Pool) evictionLoop() {
	ticker := time.NewTicker(p.cfg.EvictionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.evictIdle()
		case <-p.done:
			return
		}
	}
}

// evictIdle closes idle slots past IdleTimeout without dropping below
// MinSize, closes expired idle slots outright and tops the pool back up to
// MinSize afterwards.
func (p *Pool) evictIdle() {
	now := time.Now()
	var toClose []*slot

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	kept := p.idle[:0]
	for _, s := range p.idle {
		expired := s.expired(p.cfg.MaxLifetime, p.cfg.MaxUses)
		idleTooLong := s.idleFor(now) > p.cfg.IdleTimeout && len(p.slots) > p.minSize
		if expired || idleTooLong {
			s.state = SlotClosed
			delete(p.slots, s.handle)
			toClose = append(toClose, s)
			continue
		}
		kept = append(kept, s)
	}
	p.idle = kept
	deficit := p.minSize - (len(p.slots) + p.pendingOpens)
	p.mu.Unlock()

	for _, s := range toClose {
		p.closeHandle(s.handle)
		p.counters.evictions.Add(1)
		p.log.Debug("idle slot evicted", "slot_id", s.id.String(), "use_count", s.useCount)
	}
	for i := 0; i < deficit; i++ {
		go p.openReplacement()
	}
	if len(toClose) > 0 {
		p.log.Debug("idle eviction pass", "closed", len(toClose), "replacements", max(deficit, 0))
	}
}
