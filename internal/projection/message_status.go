package projection

import (
	"context"
	"fmt"

	"github.com/jnst/chat-backend/internal/model"
)

// MessageStatusProjection maintains message_statuses.
//
// Receipts may arrive before MessageSent under parallel dispatch, so every
// message event upserts. Status only moves sent -> delivered -> read, and
// deleted is final: a deleted message keeps a tombstone that blocks every
// later or redelivered event for it.
type MessageStatusProjection struct {
	port SyncPort
}

// NewMessageStatusProjection creates the projection.
func NewMessageStatusProjection(port SyncPort) *MessageStatusProjection {
	return &MessageStatusProjection{port: port}
}

// OnMessageSent creates the status view.
func (p *MessageStatusProjection) OnMessageSent(ctx context.Context, e model.MessageSent) error {
	at := e.OccurredAt()

	return p.port.Upsert(ctx, MessageStatuses, live(e.MessageID.String()), Mutation{
		Set: map[string]any{
			"conversation_id": e.ConversationID.String(),
			"sender_id":       e.SenderID.String(),
			"sent_at":         at,
		},
		SetOnInsert: map[string]any{"status": StatusSent},
		Max:         map[string]any{"last_touched": at},
		Upsert:      true,
	})
}

// OnMessageEdited records the latest edit time.
func (p *MessageStatusProjection) OnMessageEdited(ctx context.Context, e model.MessageEdited) error {
	at := e.OccurredAt()

	return p.port.Upsert(ctx, MessageStatuses, live(e.MessageID.String()), Mutation{
		Max: map[string]any{"edited_at": at, "last_touched": at},
	})
}

// OnMessageDeleted turns the status view into a tombstone.
func (p *MessageStatusProjection) OnMessageDeleted(ctx context.Context, e model.MessageDeleted) error {
	at := e.OccurredAt()

	return p.port.Upsert(ctx, MessageStatuses, Match{ID: e.MessageID.String()}, Mutation{
		Set:    map[string]any{"conversation_id": e.ConversationID.String(), "status": StatusDeleted},
		Max:    map[string]any{"deleted_at": at, "last_touched": at},
		Upsert: true,
	})
}

// OnMessageDelivered adds the recipient and advances the status from sent to delivered.
func (p *MessageStatusProjection) OnMessageDelivered(ctx context.Context, e model.MessageDelivered) error {
	id := e.MessageID.String()
	at := e.OccurredAt()

	err := p.port.Upsert(ctx, MessageStatuses, live(id), Mutation{
		Set:         map[string]any{"conversation_id": e.ConversationID.String()},
		SetOnInsert: map[string]any{"status": StatusDelivered},
		Max:         map[string]any{"delivered_at": at, "last_touched": at},
		AddToSet:    map[string][]any{"delivered_to": {e.RecipientID.String()}},
		Upsert:      true,
	})
	if err != nil {
		return fmt.Errorf("failed to record delivery of %s: %w", id, err)
	}

	return p.port.Upsert(ctx, MessageStatuses, Match{
		ID:     id,
		Guards: []Cond{Eq("status", StatusSent)},
	}, Mutation{
		Set: map[string]any{"status": StatusDelivered},
	})
}

// OnMessageRead adds the reader and moves the status to read.
func (p *MessageStatusProjection) OnMessageRead(ctx context.Context, e model.MessageRead) error {
	id := e.MessageID.String()
	at := e.OccurredAt()

	err := p.port.Upsert(ctx, MessageStatuses, live(id), Mutation{
		Set:         map[string]any{"conversation_id": e.ConversationID.String()},
		SetOnInsert: map[string]any{"status": StatusRead},
		Max:         map[string]any{"read_at": at, "last_touched": at},
		AddToSet:    map[string][]any{"read_by": {e.ReaderID.String()}},
		Upsert:      true,
	})
	if err != nil {
		return fmt.Errorf("failed to record read of %s: %w", id, err)
	}

	return p.port.Upsert(ctx, MessageStatuses, Match{
		ID:     id,
		Guards: []Cond{NotIn("status", StatusRead, StatusDeleted)},
	}, Mutation{
		Set: map[string]any{"status": StatusRead},
	})
}

// live matches the status view unless the message was deleted.
func live(id string) Match {
	return Match{ID: id, Guards: []Cond{NotIn("status", StatusDeleted)}}
}
