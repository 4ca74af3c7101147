package model

import "time"

// EventEnvelope is the serialized form of a domain event handed to the outbox on append.
type EventEnvelope struct {
	Name       string
	Type       string
	Payload    string
	OccurredAt time.Time
}

// OutboxRecord represents a durable delivery record in the outbox.
type OutboxRecord struct {
	ID          int64      `json:"id"`
	OccurredAt  time.Time  `json:"occurred_at"`
	Name        string     `json:"event_name"`
	Type        string     `json:"event_type"`
	Payload     string     `json:"payload"`
	Attempts    int        `json:"attempts"`
	LastError   *string    `json:"last_error"`
	ProcessedAt *time.Time `json:"processed_at"`
	DeadAt      *time.Time `json:"dead_at"`
}

// IsPending reports whether the record still waits for delivery.
func (r *OutboxRecord) IsPending() bool {
	return r.ProcessedAt == nil && r.DeadAt == nil
}
