// Package repository provides data access interfaces and implementations.
package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/jnst/chat-backend/internal/model"
)

// ConversationRepository defines methods for conversation data access.
type ConversationRepository interface {
	Save(ctx context.Context, conv *model.Conversation) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Conversation, error)
	// GetForUpdate must run inside WithTransaction. Concurrent writers of the same conversation queue behind it.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Conversation, error)
}

// MessageRepository defines methods for message data access.
type MessageRepository interface {
	Save(ctx context.Context, msg *model.Message) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Message, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Message, error)
}

// OutboxRepository defines methods for outbox record data access.
type OutboxRepository interface {
	// Append must run inside WithTransaction so the record commits with the state change.
	Append(ctx context.Context, env *model.EventEnvelope) error
	// TakeBatch returns up to limit pending records, oldest first.
	TakeBatch(ctx context.Context, limit int) ([]*model.OutboxRecord, error)
	MarkProcessed(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, reason string) error
	MarkDead(ctx context.Context, id int64, reason string) error
	PendingCount(ctx context.Context) (int64, error)
}

// TransactionManager defines methods for database transaction management.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
