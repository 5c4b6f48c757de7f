package pool

import (
	"errors"
	"fmt"
)

var (
	// ErrPoolClosed is returned for any operation attempted after Close.
	ErrPoolClosed = errors.New("pool is closed")
	// ErrAcquireTimeout is returned when a queued acquire exceeds its timeout.
	ErrAcquireTimeout = errors.New("acquire timed out waiting for a connection")
	// ErrConnectionCreate is returned when the factory fails to open a handle.
	ErrConnectionCreate = errors.New("connection create failed")
	// ErrUnknownHandle is returned when Release is called with an untracked handle.
	ErrUnknownHandle = errors.New("handle is not tracked by this pool")
)

// PoolError wraps an error with the pool operation that produced it
type PoolError struct {
	Op  string
	Err error
}

func (e *PoolError) Error() string {
	return fmt.Sprintf("pool error during %s: %v", e.Op, e.Err)
}

func (e *PoolError) Unwrap() error {
	return e.Err
}

// IsPoolError checks if an error is a pool error
func IsPoolError(err error) bool {
	var target *PoolError
	return errors.As(err, &target)
}

// IsTimeout reports whether an acquire failed because its timeout elapsed.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrAcquireTimeout)
}

// IsRetryable reports whether the caller may reasonably retry the acquire.
// Saturation timeouts and transient factory failures are retryable; a closed
// pool and caller bugs are not.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrAcquireTimeout) || errors.Is(err, ErrConnectionCreate)
}

func newPoolError(op string, err error) *PoolError {
	return &PoolError{Op: op, Err: err}
}
