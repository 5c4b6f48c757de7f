package pool

import (
	"time"

	"github.com/google/uuid"
)

// SlotState is the lifecycle state of a connection slot
type SlotState int32

const (
	// SlotIdle means the slot is parked in the pool awaiting checkout
	SlotIdle SlotState = iota
	// SlotActive means exactly one caller holds the slot's handle
	SlotActive
	// SlotValidating means the slot is running a release-time validation probe
	SlotValidating
	// SlotClosed means the handle has been closed and the slot removed
	SlotClosed
)

func (s SlotState) String() string {
	switch s {
	case SlotIdle:
		return "idle"
	case SlotActive:
		return "active"
	case SlotValidating:
		return "validating"
	case SlotClosed:
		return "closed"
	default:
		return "invalid"
	}
}

// slot wraps one opaque handle with lifecycle metadata. All fields are
// guarded by the owning pool's mutex; a slot never transitions Active to
// Closed directly, release bookkeeping always runs first.
type slot struct {
	id         uuid.UUID
	handle     Handle
	state      SlotState
	createdAt  time.Time
	lastUsedAt time.Time
	useCount   int

	// closeOnRelease marks a slot that outlived a shrink, its max lifetime
	// or its max use count while checked out. It is honored at the next
	// Release, never mid-use.
	closeOnRelease bool
}

func newSlot(h Handle) *slot {
	now := time.Now()
	return &slot{
		id:         uuid.New(),
		handle:     h,
		state:      SlotIdle,
		createdAt:  now,
		lastUsedAt: now,
	}
}

// checkout marks the slot active for a single caller.
func (s *slot) checkout() {
	s.state = SlotActive
	s.useCount++
	s.lastUsedAt = time.Now()
}

// expired reports whether the slot exceeded maxLifetime or maxUses.
func (s *slot) expired(maxLifetime time.Duration, maxUses int) bool {
	if maxLifetime > 0 && time.Since(s.createdAt) > maxLifetime {
		return true
	}
	if maxUses > 0 && s.useCount >= maxUses {
		return true
	}
	return false
}

// idleFor reports how long the slot has been unused.
func (s *slot) idleFor(now time.Time) time.Duration {
	return now.Sub(s.lastUsedAt)
}
