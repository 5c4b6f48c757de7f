package pool

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Handle is the opaque connection resource managed by the pool. The pool
// never inspects it beyond identity; handles must be comparable so Release
// can locate the owning slot.
type Handle = any

// TargetConfig describes one backing database target. The fields are passed
// through to the ConnectionFactory and are otherwise opaque to the pool.
type TargetConfig struct {
	Name           string
	ConnString     string
	ConnectTimeout time.Duration
	TLSMode        string // e.g. "disable", "require", "verify-full"
}

// ConnectionFactory opens, closes and validates single connection handles.
// Implementations wrap an underlying client library; the pool treats the
// result as opaque.
type ConnectionFactory interface {
	Open(ctx context.Context, cfg TargetConfig) (Handle, error)
	Close(ctx context.Context, h Handle) error
	Validate(ctx context.Context, h Handle) bool
}

// MockConnectionFactory implements ConnectionFactory for testing
type MockConnectionFactory struct {
	mu           sync.Mutex
	failCount    int
	currentCount int
	shouldFail   bool
	openDelay    time.Duration
	opened       int
	closed       int
	validateOK   bool
}

// NewMockConnectionFactory creates a new mock connection factory for testing
func NewMockConnectionFactory(shouldFail bool, failCount int) *MockConnectionFactory {
	return &MockConnectionFactory{
		shouldFail: shouldFail,
		failCount:  failCount,
		validateOK: true,
	}
}

// SetOpenDelay makes every Open call take at least d.
func (cf *MockConnectionFactory) SetOpenDelay(d time.Duration) {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	cf.openDelay = d
}

// SetValidateResult controls what Validate reports.
func (cf *MockConnectionFactory) SetValidateResult(ok bool) {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	cf.validateOK = ok
}

// Open creates a mock connection handle
func (cf *MockConnectionFactory) Open(ctx context.Context, cfg TargetConfig) (Handle, error) {
	cf.mu.Lock()
	cf.currentCount++
	n := cf.currentCount
	fail := cf.shouldFail && n <= cf.failCount
	delay := cf.openDelay
	cf.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if fail {
		return nil, fmt.Errorf("mock connection failure %d", n)
	}

	cf.mu.Lock()
	cf.opened++
	cf.mu.Unlock()
	return &mockHandle{seq: n, target: cfg.Name}, nil
}

// Close closes a mock connection handle
func (cf *MockConnectionFactory) Close(ctx context.Context, h Handle) error {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	cf.closed++
	if mh, ok := h.(*mockHandle); ok {
		mh.closed = true
	}
	return nil
}

// Validate reports the configured validation result
func (cf *MockConnectionFactory) Validate(ctx context.Context, h Handle) bool {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	if mh, ok := h.(*mockHandle); ok && mh.closed {
		return false
	}
	return cf.validateOK
}

// OpenedCount returns the number of successfully opened handles.
func (cf *MockConnectionFactory) OpenedCount() int {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	return cf.opened
}

// ClosedCount returns the number of closed handles.
func (cf *MockConnectionFactory) ClosedCount() int {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	return cf.closed
}

type mockHandle struct {
	seq    int
	target string
	closed bool
}
