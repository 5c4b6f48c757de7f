package alert

import (
	"context"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/SkogAI/agentpool/health"
)

// Throttled rate-limits a downstream sink. Events over the budget are
// dropped rather than queued, except Critical events which always pass.
type Throttled struct {
	next    health.Sink
	limiter *rate.Limiter
	dropped atomic.Uint64
}

// NewThrottled wraps next with a token-bucket limiter.
func NewThrottled(next health.Sink, eventsPerSecond float64, burst int) *Throttled {
	if burst <= 0 {
		burst = 1
	}
	return &Throttled{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(eventsPerSecond), burst),
	}
}

// Emit forwards the event when the budget allows it.
func (t *Throttled) Emit(ctx context.Context, ev health.Event) error {
	if ev.Level != health.LevelCritical && !t.limiter.Allow() {
		t.dropped.Add(1)
		return nil
	}
	return t.next.Emit(ctx, ev)
}

// Dropped returns how many events the limiter discarded.
func (t *Throttled) Dropped() uint64 {
	return t.dropped.Load()
}
