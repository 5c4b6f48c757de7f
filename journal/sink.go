package journal

import (
	"context"

	"github.com/SkogAI/agentpool/health"
)

// Sink adapts the journal to the alert sink interface.
type Sink struct {
	j *Journal
}

// NewSink creates a sink persisting events to j.
func NewSink(j *Journal) *Sink {
	return &Sink{j: j}
}

// Emit appends the event to the journal.
func (s *Sink) Emit(ctx context.Context, ev health.Event) error {
	return s.j.Append(ev)
}

var _ health.Sink = (*Sink)(nil)
