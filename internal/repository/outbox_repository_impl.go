package repository

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jnst/chat-backend/internal/model"
)

const (
	outboxColumns = `id, occurred_at, event_name, event_type, payload, attempts, last_error, processed_at, dead_at`

	appendOutboxSQL = `
INSERT INTO outbox_messages (occurred_at, event_name, event_type, payload)
VALUES ($1, $2, $3, $4)`

	takeBatchSQL = `
SELECT ` + outboxColumns + `
FROM outbox_messages
WHERE processed_at IS NULL AND dead_at IS NULL
ORDER BY id
LIMIT $1`

	claimBatchSQL = `
WITH picked AS (
    SELECT id FROM outbox_messages
    WHERE processed_at IS NULL AND dead_at IS NULL
      AND (claimed_until IS NULL OR claimed_until < now())
    ORDER BY id
    LIMIT $1
    FOR UPDATE SKIP LOCKED
)
UPDATE outbox_messages o
SET claimed_until = now() + make_interval(secs => $2::float8)
FROM picked
WHERE o.id = picked.id
RETURNING o.id, o.occurred_at, o.event_name, o.event_type, o.payload,
          o.attempts, o.last_error, o.processed_at, o.dead_at`

	markProcessedSQL = `
UPDATE outbox_messages
SET processed_at = COALESCE(processed_at, now()), claimed_until = NULL
WHERE id = $1`

	markFailedSQL = `
UPDATE outbox_messages
SET attempts = attempts + 1, last_error = $2, claimed_until = NULL
WHERE id = $1 AND processed_at IS NULL`

	markDeadSQL = `
UPDATE outbox_messages
SET attempts = attempts + 1, last_error = $2, dead_at = now(), claimed_until = NULL
WHERE id = $1 AND processed_at IS NULL`

	pendingCountSQL = `
SELECT count(*) FROM outbox_messages WHERE processed_at IS NULL AND dead_at IS NULL`
)

// OutboxRepositoryImpl implements OutboxRepository using PostgreSQL.
type OutboxRepositoryImpl struct {
	pool       *pgxpool.Pool
	claimLease time.Duration
}

// OutboxOption configures OutboxRepositoryImpl.
type OutboxOption func(*OutboxRepositoryImpl)

// WithClaimLease makes TakeBatch claim rows for d so concurrent processors skip them.
// Zero keeps the plain unlocked read.
func WithClaimLease(d time.Duration) OutboxOption {
	return func(r *OutboxRepositoryImpl) {
		r.claimLease = d
	}
}

// NewOutboxRepositoryImpl creates a new OutboxRepository implementation.
func NewOutboxRepositoryImpl(pool *pgxpool.Pool, opts ...OutboxOption) OutboxRepository {
	r := &OutboxRepositoryImpl{pool: pool}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Append writes the envelope using the transaction bound to ctx.
func (r *OutboxRepositoryImpl) Append(ctx context.Context, env *model.EventEnvelope) error {
	tx, ok := TxFromContext(ctx)
	if !ok {
		return ErrTransactionRequired
	}

	if _, err := tx.Exec(ctx, appendOutboxSQL, env.OccurredAt, env.Name, env.Type, env.Payload); err != nil {
		return fmt.Errorf("failed to append %s to outbox: %w", env.Name, err)
	}

	return nil
}

// TakeBatch retrieves up to limit pending records ordered by id.
func (r *OutboxRepositoryImpl) TakeBatch(ctx context.Context, limit int) ([]*model.OutboxRecord, error) {
	var (
		rows pgx.Rows
		err  error
	)

	if r.claimLease > 0 {
		rows, err = r.pool.Query(ctx, claimBatchSQL, limit, r.claimLease.Seconds())
	} else {
		rows, err = r.pool.Query(ctx, takeBatchSQL, limit)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to take outbox batch: %w", err)
	}

	records, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByPos[model.OutboxRecord])
	if err != nil {
		return nil, fmt.Errorf("failed to scan outbox batch: %w", err)
	}

	// UPDATE ... RETURNING does not keep the CTE order.
	slices.SortFunc(records, func(a, b *model.OutboxRecord) int { return cmp.Compare(a.ID, b.ID) })

	return records, nil
}

// MarkProcessed stamps the record as delivered. The first timestamp wins.
func (r *OutboxRepositoryImpl) MarkProcessed(ctx context.Context, id int64) error {
	if _, err := r.pool.Exec(ctx, markProcessedSQL, id); err != nil {
		return fmt.Errorf("failed to mark outbox record %d processed: %w", id, err)
	}

	return nil
}

// MarkFailed counts a failed attempt and leaves the record pending.
func (r *OutboxRepositoryImpl) MarkFailed(ctx context.Context, id int64, reason string) error {
	if _, err := r.pool.Exec(ctx, markFailedSQL, id, reason); err != nil {
		return fmt.Errorf("failed to mark outbox record %d failed: %w", id, err)
	}

	return nil
}

// MarkDead counts the final attempt and takes the record out of the pending set.
func (r *OutboxRepositoryImpl) MarkDead(ctx context.Context, id int64, reason string) error {
	if _, err := r.pool.Exec(ctx, markDeadSQL, id, reason); err != nil {
		return fmt.Errorf("failed to mark outbox record %d dead: %w", id, err)
	}

	return nil
}

// PendingCount returns how many records wait for delivery.
func (r *OutboxRepositoryImpl) PendingCount(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, pendingCountSQL).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pending outbox records: %w", err)
	}

	return n, nil
}
