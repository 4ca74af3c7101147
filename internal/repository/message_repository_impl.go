package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jnst/chat-backend/internal/model"
)

const (
	upsertMessageSQL = `
INSERT INTO messages (id, conversation_id, sender_id, body, sent_at, edited_at, deleted_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE
SET body = EXCLUDED.body, edited_at = EXCLUDED.edited_at, deleted_at = EXCLUDED.deleted_at`

	// Receipt timestamps only move from null to a value.
	upsertReceiptSQL = `
INSERT INTO message_receipts (message_id, user_id, delivered_at, read_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (message_id, user_id) DO UPDATE
SET delivered_at = COALESCE(message_receipts.delivered_at, EXCLUDED.delivered_at),
    read_at      = COALESCE(message_receipts.read_at, EXCLUDED.read_at)`

	selectMessageSQL = `
SELECT id, conversation_id, sender_id, body, sent_at, edited_at, deleted_at FROM messages WHERE id = $1`

	selectMessageForUpdateSQL = selectMessageSQL + ` FOR UPDATE`

	selectReceiptsSQL = `
SELECT user_id, delivered_at, read_at FROM message_receipts WHERE message_id = $1`
)

// MessageRepositoryImpl implements MessageRepository using PostgreSQL.
type MessageRepositoryImpl struct {
	pool *pgxpool.Pool
}

// NewMessageRepositoryImpl creates a new MessageRepository implementation.
func NewMessageRepositoryImpl(pool *pgxpool.Pool) MessageRepository {
	return &MessageRepositoryImpl{pool: pool}
}

// Save inserts or updates the message and its receipts.
func (r *MessageRepositoryImpl) Save(ctx context.Context, msg *model.Message) error {
	q := querier(ctx, r.pool)

	batch := &pgx.Batch{}
	batch.Queue(upsertMessageSQL,
		msg.ID, msg.ConversationID, msg.SenderID, msg.Body, msg.SentAt, msg.EditedAt, msg.DeletedAt)

	for userID, receipt := range msg.Receipts {
		batch.Queue(upsertReceiptSQL, msg.ID, userID, receipt.DeliveredAt, receipt.ReadAt)
	}

	results := q.SendBatch(ctx, batch)
	for range batch.Len() {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("failed to save message %s: %w", msg.ID, err)
		}
	}

	return results.Close()
}

// GetByID loads a message and its receipts.
func (r *MessageRepositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*model.Message, error) {
	return r.get(ctx, querier(ctx, r.pool), selectMessageSQL, id)
}

// GetForUpdate loads a message and locks its row until the surrounding transaction ends.
func (r *MessageRepositoryImpl) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Message, error) {
	tx, ok := TxFromContext(ctx)
	if !ok {
		return nil, ErrTransactionRequired
	}

	return r.get(ctx, tx, selectMessageForUpdateSQL, id)
}

func (r *MessageRepositoryImpl) get(ctx context.Context, q DBTX, query string, id uuid.UUID) (*model.Message, error) {
	msg := &model.Message{Receipts: map[uuid.UUID]*model.Receipt{}}

	err := q.QueryRow(ctx, query, id).Scan(
		&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Body, &msg.SentAt, &msg.EditedAt, &msg.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrMessageNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}

	rows, err := q.Query(ctx, selectReceiptsSQL, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get receipts of %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			userID    uuid.UUID
			delivered *time.Time
			read      *time.Time
		)

		if err := rows.Scan(&userID, &delivered, &read); err != nil {
			return nil, fmt.Errorf("failed to scan receipt of %s: %w", id, err)
		}

		msg.Receipts[userID] = &model.Receipt{DeliveredAt: delivered, ReadAt: read}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read receipts of %s: %w", id, err)
	}

	return msg, nil
}
