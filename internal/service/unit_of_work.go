package service

import (
	"context"
	"fmt"

	"github.com/jnst/chat-backend/internal/event"
	"github.com/jnst/chat-backend/internal/model"
	"github.com/jnst/chat-backend/internal/repository"
)

type eventSource interface {
	PendingEvents() []model.DomainEvent
	ClearEvents()
}

// unitOfWork persists an aggregate and its buffered events in one transaction.
type unitOfWork struct {
	outboxRepo     repository.OutboxRepository
	transactionMgr repository.TransactionManager
}

// commit runs persist and appends the aggregate's pending events to the outbox
// in the same transaction. The buffer is cleared only after a successful commit.
func (u *unitOfWork) commit(ctx context.Context, agg eventSource, persist func(ctx context.Context) error) error {
	return u.update(ctx, func(ctx context.Context) (eventSource, error) {
		return agg, persist(ctx)
	})
}

// update runs fn inside one transaction, so an aggregate loaded with a row lock is
// changed and saved before any other writer can read it. The events of the returned
// aggregate are appended to the outbox before commit.
func (u *unitOfWork) update(ctx context.Context, fn func(ctx context.Context) (eventSource, error)) error {
	var agg eventSource

	err := u.transactionMgr.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		if agg, err = fn(ctx); err != nil {
			return err
		}

		for _, evt := range agg.PendingEvents() {
			env, err := event.NewEnvelope(evt)
			if err != nil {
				return err
			}

			if err := u.outboxRepo.Append(ctx, env); err != nil {
				return fmt.Errorf("failed to create outbox event: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	agg.ClearEvents()

	return nil
}
