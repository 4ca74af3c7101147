package event

import (
	"encoding/json"
	"fmt"

	"github.com/jnst/chat-backend/internal/model"
)

// NewEnvelope serializes an event for the outbox.
func NewEnvelope(evt model.DomainEvent) (*model.EventEnvelope, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}

	return &model.EventEnvelope{
		Name:       evt.EventName(),
		Type:       TypeID(evt),
		Payload:    string(payload),
		OccurredAt: evt.OccurredAt(),
	}, nil
}

// NewDomainRegistry returns a registry holding every chat domain event.
func NewDomainRegistry() *Registry {
	r := NewRegistry()
	MustRegister[model.ConversationCreated](r)
	MustRegister[model.ConversationRenamed](r)
	MustRegister[model.ParticipantAdded](r)
	MustRegister[model.ParticipantRemoved](r)
	MustRegister[model.MessageSent](r)
	MustRegister[model.MessageEdited](r)
	MustRegister[model.MessageDeleted](r)
	MustRegister[model.MessageDelivered](r)
	MustRegister[model.MessageRead](r)

	return r
}
