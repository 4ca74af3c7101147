package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jnst/chat-backend/internal/model"
)

const (
	upsertConversationSQL = `
INSERT INTO conversations (id, title, creator_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, updated_at = EXCLUDED.updated_at`

	pruneParticipantsSQL = `
DELETE FROM conversation_participants
WHERE conversation_id = $1 AND NOT (user_id::text = ANY($2::text[]))`

	upsertParticipantSQL = `
INSERT INTO conversation_participants (conversation_id, user_id, position)
VALUES ($1, $2, $3)
ON CONFLICT (conversation_id, user_id) DO UPDATE SET position = EXCLUDED.position`

	selectConversationSQL = `
SELECT id, title, creator_id, created_at, updated_at FROM conversations WHERE id = $1`

	// The row lock also serializes membership changes, since participants are saved with their conversation.
	selectConversationForUpdateSQL = selectConversationSQL + ` FOR UPDATE`

	selectParticipantsSQL = `
SELECT user_id FROM conversation_participants WHERE conversation_id = $1 ORDER BY position`
)

// ConversationRepositoryImpl implements ConversationRepository using PostgreSQL.
type ConversationRepositoryImpl struct {
	pool *pgxpool.Pool
}

// NewConversationRepositoryImpl creates a new ConversationRepository implementation.
func NewConversationRepositoryImpl(pool *pgxpool.Pool) ConversationRepository {
	return &ConversationRepositoryImpl{pool: pool}
}

// Save inserts or updates the conversation together with its membership.
func (r *ConversationRepositoryImpl) Save(ctx context.Context, conv *model.Conversation) error {
	q := querier(ctx, r.pool)

	members := make([]string, len(conv.ParticipantIDs))
	for i, id := range conv.ParticipantIDs {
		members[i] = id.String()
	}

	batch := &pgx.Batch{}
	batch.Queue(upsertConversationSQL, conv.ID, conv.Title, conv.CreatorID, conv.CreatedAt, conv.UpdatedAt)
	batch.Queue(pruneParticipantsSQL, conv.ID, members)

	for i, id := range conv.ParticipantIDs {
		batch.Queue(upsertParticipantSQL, conv.ID, id, i)
	}

	results := q.SendBatch(ctx, batch)
	for range batch.Len() {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("failed to save conversation %s: %w", conv.ID, err)
		}
	}

	return results.Close()
}

// GetByID loads a conversation and its participants.
func (r *ConversationRepositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*model.Conversation, error) {
	return r.get(ctx, querier(ctx, r.pool), selectConversationSQL, id)
}

// GetForUpdate loads a conversation and locks its row until the surrounding transaction ends.
func (r *ConversationRepositoryImpl) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Conversation, error) {
	tx, ok := TxFromContext(ctx)
	if !ok {
		return nil, ErrTransactionRequired
	}

	return r.get(ctx, tx, selectConversationForUpdateSQL, id)
}

func (r *ConversationRepositoryImpl) get(ctx context.Context, q DBTX, query string, id uuid.UUID) (*model.Conversation, error) {
	conv := &model.Conversation{}

	err := q.QueryRow(ctx, query, id).
		Scan(&conv.ID, &conv.Title, &conv.CreatorID, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrConversationNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get conversation %s: %w", id, err)
	}

	rows, err := q.Query(ctx, selectParticipantsSQL, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get participants of %s: %w", id, err)
	}

	conv.ParticipantIDs, err = pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("failed to scan participants of %s: %w", id, err)
	}

	return conv, nil
}
