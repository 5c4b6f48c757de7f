package pool

import (
	"time"

	"github.com/google/uuid"
)

// Priority orders acquire requests under saturation
type Priority int

const (
	// PriorityLow drains last
	PriorityLow Priority = iota
	// PriorityMedium is the default for callers that do not specify one
	PriorityMedium
	// PriorityHigh drains first
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	default:
		return "invalid"
	}
}

func (p Priority) valid() bool {
	return p >= PriorityLow && p <= PriorityHigh
}

type waitResult struct {
	handle Handle
	err    error
}

// waiter is one pending acquire. The ready channel has capacity one and
// receives exactly one result; deliver and cancel both run under the pool
// mutex so exactly one of them wins.
type waiter struct {
	id          uuid.UUID
	priority    Priority
	requestedAt time.Time
	ready       chan waitResult
	delivered   bool
}

func newWaiter(p Priority) *waiter {
	return &waiter{
		id:          uuid.New(),
		priority:    p,
		requestedAt: time.Now(),
		ready:       make(chan waitResult, 1),
	}
}

// waitQueue holds pending acquires in three strict-priority FIFO tiers.
// It owns no lock; every method must be called with the pool mutex held.
// Strict priority means sustained high-priority load can starve low-priority
// waiters; there is deliberately no aging mechanism.
type waitQueue struct {
	tiers [3][]*waiter
}

func (q *waitQueue) tierIndex(p Priority) int {
	// High drains first
	return int(PriorityHigh - p)
}

// enqueue appends the waiter to its priority tier.
func (q *waitQueue) enqueue(w *waiter) {
	i := q.tierIndex(w.priority)
	q.tiers[i] = append(q.tiers[i], w)
}

// pop removes and returns the oldest waiter in the highest non-empty tier,
// or nil when the queue is empty.
func (q *waitQueue) pop() *waiter {
	for i := range q.tiers {
		if len(q.tiers[i]) > 0 {
			w := q.tiers[i][0]
			q.tiers[i] = q.tiers[i][1:]
			return w
		}
	}
	return nil
}

// deliver resolves the waiter with a handle. Returns false if the waiter was
// already resolved.
func (q *waitQueue) deliver(w *waiter, h Handle) bool {
	if w.delivered {
		return false
	}
	w.delivered = true
	w.ready <- waitResult{handle: h}
	return true
}

// fail resolves the waiter with an error. Returns false if already resolved.
func (q *waitQueue) fail(w *waiter, err error) bool {
	if w.delivered {
		return false
	}
	w.delivered = true
	w.ready <- waitResult{err: err}
	return true
}

// cancel removes a still-pending waiter from its tier. It is a no-op for a
// waiter that was already delivered or failed, so a concurrent fulfillment
// and cancellation resolve to exactly one winner.
func (q *waitQueue) cancel(w *waiter) bool {
	if w.delivered {
		return false
	}
	i := q.tierIndex(w.priority)
	for j, cand := range q.tiers[i] {
		if cand == w {
			q.tiers[i] = append(q.tiers[i][:j], q.tiers[i][j+1:]...)
			w.delivered = true
			return true
		}
	}
	return false
}

// failAll resolves every pending waiter with err and empties the queue.
func (q *waitQueue) failAll(err error) {
	for i := range q.tiers {
		for _, w := range q.tiers[i] {
			q.fail(w, err)
		}
		q.tiers[i] = nil
	}
}

// len returns the number of pending waiters across all tiers.
func (q *waitQueue) len() int {
	n := 0
	for i := range q.tiers {
		n += len(q.tiers[i])
	}
	return n
}

// oldestWait returns the age of the oldest pending waiter, zero when empty.
func (q *waitQueue) oldestWait(now time.Time) time.Duration {
	var oldest time.Duration
	for i := range q.tiers {
		for _, w := range q.tiers[i] {
			if age := now.Sub(w.requestedAt); age > oldest {
				oldest = age
			}
		}
	}
	return oldest
}
