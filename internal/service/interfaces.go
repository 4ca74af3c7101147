// Package service provides business logic layer implementations.
package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/jnst/chat-backend/internal/event"
	"github.com/jnst/chat-backend/internal/model"
	"github.com/jnst/chat-backend/internal/projection"
)

// ConversationService defines business logic methods for conversations.
type ConversationService interface {
	CreateConversation(ctx context.Context, params *model.CreateConversationParams) (*model.Conversation, error)
	RenameConversation(ctx context.Context, id, actor uuid.UUID, title string) (*model.Conversation, error)
	AddParticipant(ctx context.Context, id, actor, userID uuid.UUID) (*model.Conversation, error)
	RemoveParticipant(ctx context.Context, id, actor, userID uuid.UUID) (*model.Conversation, error)
}

// MessageService defines business logic methods for messages and receipts.
type MessageService interface {
	SendMessage(ctx context.Context, params *model.SendMessageParams) (*model.Message, error)
	EditMessage(ctx context.Context, id, actor uuid.UUID, body string) (*model.Message, error)
	DeleteMessage(ctx context.Context, id, actor uuid.UUID) error
	MarkDelivered(ctx context.Context, id, recipient uuid.UUID) error
	MarkRead(ctx context.Context, id, reader uuid.UUID) error
}

// ViewService reads the projected read models.
type ViewService interface {
	GetConversationSummary(ctx context.Context, id uuid.UUID) (*projection.ConversationSummary, error)
	GetMessageStatus(ctx context.Context, id uuid.UUID) (*projection.MessageStatusView, error)
}

// OutboxProcessor drains the outbox into the event publisher.
type OutboxProcessor interface {
	// Run polls until ctx is canceled. It returns nil on cancellation.
	Run(ctx context.Context) error
	// ProcessBatch takes one batch and dispatches it, returning the batch size.
	ProcessBatch(ctx context.Context) (int, error)
}

// TypeResolver maps a stored type identifier to a decoder.
type TypeResolver interface {
	Resolve(typeID string) (event.Decoder, bool)
}

// EventPublisher hands a decoded event to its handlers.
type EventPublisher interface {
	Publish(ctx context.Context, evt model.DomainEvent) error
}

// LeaderElector gates polling when several processors share one outbox.
type LeaderElector interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}
