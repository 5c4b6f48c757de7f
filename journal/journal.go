// Package journal persists alert and scaling events in an embedded pebble
// store so operators can inspect recent pool history without an external
// metrics backend.
package journal

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/SkogAI/agentpool/health"
)

// Journal is an append-only event log keyed by event time. Safe for
// concurrent use.
type Journal struct {
	mu     sync.Mutex
	db     *pebble.DB
	seq    uint32
	closed bool
}

// Open opens or creates the journal at path.
func Open(path string) (*Journal, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open journal at %s: %w", path, err)
	}
	return &Journal{db: db}, nil
}

// Append writes one event. Keys are event-time ordered with a sequence
// suffix so same-nanosecond events never collide.
func (j *Journal) Append(ev health.Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return fmt.Errorf("journal is closed")
	}
	j.seq++
	key := makeKey(ev.Timestamp, j.seq)

	if err := j.db.Set(key, value, pebble.NoSync); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// Recent returns up to n events, newest first.
func (j *Journal) Recent(n int) ([]health.Event, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil, fmt.Errorf("journal is closed")
	}

	iter, err := j.db.NewIter(nil)
	if err != nil {
		return nil, fmt.Errorf("journal iterator: %w", err)
	}
	defer iter.Close()

	events := make([]health.Event, 0, n)
	for ok := iter.Last(); ok && len(events) < n; ok = iter.Prev() {
		var ev health.Event
		if err := json.Unmarshal(iter.Value(), &ev); err != nil {
			// skip undecodable records rather than failing the listing
			continue
		}
		events = append(events, ev)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("journal scan: %w", err)
	}
	return events, nil
}

// PruneBefore removes every event older than cutoff.
func (j *Journal) PruneBefore(cutoff time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return fmt.Errorf("journal is closed")
	}

	end := makeKey(cutoff, 0)
	if err := j.db.DeleteRange(nil, end, pebble.NoSync); err != nil {
		return fmt.Errorf("prune journal: %w", err)
	}
	return nil
}

// Close flushes and closes the store.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	return j.db.Close()
}

// makeKey builds a 12-byte key: big-endian unix nanos then sequence, so
// lexicographic order is time order.
func makeKey(t time.Time, seq uint32) []byte {
	key := make([]byte, 12)
	binary.BigEndian.PutUint64(key[:8], uint64(t.UnixNano()))
	binary.BigEndian.PutUint32(key[8:], seq)
	return key
}
