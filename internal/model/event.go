package model

import (
	"time"

	"github.com/google/uuid"
)

// DomainEvent is an immutable fact recorded by an aggregate.
type DomainEvent interface {
	EventName() string
	OccurredAt() time.Time
	AggregateID() uuid.UUID
}

// EventMeta carries the fields shared by every domain event.
type EventMeta struct {
	Occurred time.Time `json:"occurred_at"`
}

// OccurredAt returns when the event happened.
func (m EventMeta) OccurredAt() time.Time {
	return m.Occurred
}

// AggregateRoot buffers the domain events raised while a use case mutates an aggregate.
type AggregateRoot struct {
	events []DomainEvent
}

// Record appends an event to the pending buffer.
func (a *AggregateRoot) Record(evt DomainEvent) {
	a.events = append(a.events, evt)
}

// PendingEvents returns a copy of the buffered events in the order they were recorded.
func (a *AggregateRoot) PendingEvents() []DomainEvent {
	out := make([]DomainEvent, len(a.events))
	copy(out, a.events)

	return out
}

// ClearEvents drops the buffer. Called once the events are durably in the outbox.
func (a *AggregateRoot) ClearEvents() {
	a.events = nil
}
