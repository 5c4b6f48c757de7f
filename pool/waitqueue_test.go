package pool

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWaitQueuePriorityOrder(t *testing.T) {
	q := &waitQueue{}

	low := newWaiter(PriorityLow)
	high := newWaiter(PriorityHigh)
	medium := newWaiter(PriorityMedium)

	q.enqueue(low)
	q.enqueue(high)
	q.enqueue(medium)

	assert.Equal(t, 3, q.len())
	assert.Same(t, high, q.pop())
	assert.Same(t, medium, q.pop())
	assert.Same(t, low, q.pop())
	assert.Nil(t, q.pop())
}

func TestWaitQueueFIFOWithinTier(t *testing.T) {
	q := &waitQueue{}

	first := newWaiter(PriorityMedium)
	second := newWaiter(PriorityMedium)
	third := newWaiter(PriorityMedium)

	q.enqueue(first)
	q.enqueue(second)
	q.enqueue(third)

	assert.Same(t, first, q.pop())
	assert.Same(t, second, q.pop())
	assert.Same(t, third, q.pop())
}

func TestWaitQueueCancelRemovesPending(t *testing.T) {
	q := &waitQueue{}
	w := newWaiter(PriorityHigh)
	q.enqueue(w)

	assert.True(t, q.cancel(w))
	assert.Equal(t, 0, q.len())
	assert.Nil(t, q.pop())

	// double cancel is a no-op
	assert.False(t, q.cancel(w))
}

func TestWaitQueueCancelAfterDeliverIsNoop(t *testing.T) {
	q := &waitQueue{}
	w := newWaiter(PriorityMedium)
	q.enqueue(w)

	popped := q.pop()
	assert.True(t, q.deliver(popped, "handle-1"))

	// fulfillment already won; cancel must not revoke the delivered handle
	assert.False(t, q.cancel(w))

	res := <-w.ready
	assert.NoError(t, res.err)
	assert.Equal(t, "handle-1", res.handle)
}

func TestWaitQueueDeliverTwiceRejected(t *testing.T) {
	q := &waitQueue{}
	w := newWaiter(PriorityMedium)

	assert.True(t, q.deliver(w, "a"))
	assert.False(t, q.deliver(w, "b"))
	assert.False(t, q.fail(w, errors.New("late")))

	res := <-w.ready
	assert.Equal(t, "a", res.handle)
}

func TestWaitQueueFailAll(t *testing.T) {
	q := &waitQueue{}
	ws := []*waiter{newWaiter(PriorityLow), newWaiter(PriorityHigh), newWaiter(PriorityMedium)}
	for _, w := range ws {
		q.enqueue(w)
	}

	q.failAll(ErrPoolClosed)
	assert.Equal(t, 0, q.len())

	for _, w := range ws {
		res := <-w.ready
		assert.ErrorIs(t, res.err, ErrPoolClosed)
	}
}

func TestWaitQueueOldestWait(t *testing.T) {
	q := &waitQueue{}
	assert.Zero(t, q.oldestWait(time.Now()))

	w := newWaiter(PriorityLow)
	w.requestedAt = time.Now().Add(-2 * time.Second)
	q.enqueue(w)

	assert.GreaterOrEqual(t, q.oldestWait(time.Now()), 2*time.Second)
}
