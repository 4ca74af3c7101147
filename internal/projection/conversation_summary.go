package projection

import (
	"context"

	"github.com/google/uuid"

	"github.com/jnst/chat-backend/internal/model"
)

// ConversationSummaryProjection maintains conversation_summaries.
type ConversationSummaryProjection struct {
	port SyncPort
}

// NewConversationSummaryProjection creates the projection.
func NewConversationSummaryProjection(port SyncPort) *ConversationSummaryProjection {
	return &ConversationSummaryProjection{port: port}
}

func ids(in []uuid.UUID) []any {
	out := make([]any, len(in))
	for i, id := range in {
		out[i] = id.String()
	}

	return out
}

// OnConversationCreated creates the summary. Creation fields, including the
// initial members, are insert-only: later membership changes belong to
// ParticipantAdded and ParticipantRemoved.
func (p *ConversationSummaryProjection) OnConversationCreated(ctx context.Context, e model.ConversationCreated) error {
	at := e.OccurredAt()

	return p.port.Upsert(ctx, ConversationSummaries, Match{ID: e.ConversationID.String()}, Mutation{
		SetOnInsert: map[string]any{
			"title":            e.Title,
			"title_updated_at": at,
			"creator_id":       e.CreatorID.String(),
			"created_at":       at,
			"participant_ids":  ids(e.ParticipantIDs),
		},
		Max:    map[string]any{"last_touched": at},
		Upsert: true,
	})
}

// OnConversationRenamed sets the title unless a later rename already landed.
func (p *ConversationSummaryProjection) OnConversationRenamed(ctx context.Context, e model.ConversationRenamed) error {
	at := e.OccurredAt()

	return p.port.Upsert(ctx, ConversationSummaries, Match{
		ID:     e.ConversationID.String(),
		Guards: []Cond{AbsentOrAtMost("title_updated_at", at)},
	}, Mutation{
		Set: map[string]any{"title": e.Title, "title_updated_at": at},
		Max: map[string]any{"last_touched": at},
	})
}

// OnParticipantAdded adds the member to the participant set.
func (p *ConversationSummaryProjection) OnParticipantAdded(ctx context.Context, e model.ParticipantAdded) error {
	return p.port.Upsert(ctx, ConversationSummaries, Match{ID: e.ConversationID.String()}, Mutation{
		AddToSet: map[string][]any{"participant_ids": {e.UserID.String()}},
		Max:      map[string]any{"last_touched": e.OccurredAt()},
	})
}

// OnParticipantRemoved removes the member from the participant set.
func (p *ConversationSummaryProjection) OnParticipantRemoved(ctx context.Context, e model.ParticipantRemoved) error {
	return p.port.Upsert(ctx, ConversationSummaries, Match{ID: e.ConversationID.String()}, Mutation{
		Pull: map[string][]any{"participant_ids": {e.UserID.String()}},
		Max:  map[string]any{"last_touched": e.OccurredAt()},
	})
}

// OnMessageSent moves the last-message pointer forward. Older messages never
// replace newer ones, and a redelivered MessageSent for the current last message
// is ignored so it cannot undo a later edit or delete.
func (p *ConversationSummaryProjection) OnMessageSent(ctx context.Context, e model.MessageSent) error {
	at := e.OccurredAt()
	id := e.MessageID.String()

	return p.port.Upsert(ctx, ConversationSummaries, Match{
		ID: e.ConversationID.String(),
		Guards: []Cond{
			AbsentOrAtMost("last_message_at", at),
			NotIn("last_message_id", id),
		},
	}, Mutation{
		Set: map[string]any{
			"last_message_id":        id,
			"last_message_sender_id": e.SenderID.String(),
			"last_message_preview":   preview(e.Body),
			"last_message_at":        at,
			"last_message_edited_at": at,
			"last_message_deleted":   false,
		},
		Max: map[string]any{"last_touched": at},
	})
}

// OnMessageEdited refreshes the preview when the edited message is the latest one
// and no later edit or its deletion has landed.
func (p *ConversationSummaryProjection) OnMessageEdited(ctx context.Context, e model.MessageEdited) error {
	at := e.OccurredAt()

	return p.port.Upsert(ctx, ConversationSummaries, Match{
		ID: e.ConversationID.String(),
		Guards: []Cond{
			Eq("last_message_id", e.MessageID.String()),
			AbsentOrAtMost("last_message_edited_at", at),
			NotIn("last_message_deleted", true),
		},
	}, Mutation{
		Set: map[string]any{"last_message_preview": preview(e.Body), "last_message_edited_at": at},
		Max: map[string]any{"last_touched": at},
	})
}

// OnMessageDeleted blanks the preview when the deleted message is the latest one.
func (p *ConversationSummaryProjection) OnMessageDeleted(ctx context.Context, e model.MessageDeleted) error {
	return p.port.Upsert(ctx, ConversationSummaries, Match{
		ID:     e.ConversationID.String(),
		Guards: []Cond{Eq("last_message_id", e.MessageID.String())},
	}, Mutation{
		Set: map[string]any{"last_message_preview": "", "last_message_deleted": true},
		Max: map[string]any{"last_touched": e.OccurredAt()},
	})
}
