package testutil

import (
	"context"
	"sync"

	"github.com/marketplace/backend/internal/domain/shared"
)

// RecordingPublisher is a shared.EventPublisher that keeps every published event.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
	err    error
}

// NewRecordingPublisher creates an empty RecordingPublisher.
func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{}
}

// Publish records the events, or returns the configured error.
func (p *RecordingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, events...)
	return nil
}

// SetError makes subsequent Publish calls fail.
func (p *RecordingPublisher) SetError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Events returns the published events.
func (p *RecordingPublisher) Events() []shared.DomainEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]shared.DomainEvent, len(p.events))
	copy(out, p.events)
	return out
}

// EventsOfType returns the published events with the given type.
func (p *RecordingPublisher) EventsOfType(eventType string) []shared.DomainEvent {
	var out []shared.DomainEvent
	for _, e := range p.Events() {
		if e.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}

var _ shared.EventPublisher = (*RecordingPublisher)(nil)
