package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jnst/chat-backend/internal/model"
	"github.com/jnst/chat-backend/internal/repository"
)

// MessageServiceImpl implements MessageService.
type MessageServiceImpl struct {
	convRepo repository.ConversationRepository
	msgRepo  repository.MessageRepository
	uow      unitOfWork
	now      func() time.Time
}

// NewMessageServiceImpl creates a new MessageService implementation.
func NewMessageServiceImpl(
	convRepo repository.ConversationRepository,
	msgRepo repository.MessageRepository,
	outboxRepo repository.OutboxRepository,
	transactionMgr repository.TransactionManager,
) MessageService {
	return &MessageServiceImpl{
		convRepo: convRepo,
		msgRepo:  msgRepo,
		uow:      unitOfWork{outboxRepo: outboxRepo, transactionMgr: transactionMgr},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SendMessage posts a message and records MessageSent.
func (s *MessageServiceImpl) SendMessage(ctx context.Context, params *model.SendMessageParams) (*model.Message, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	conv, err := s.convRepo.GetByID(ctx, params.ConversationID)
	if err != nil {
		return nil, err
	}

	msg, err := model.NewMessage(conv, params, s.now())
	if err != nil {
		return nil, err
	}

	if err := s.save(ctx, msg); err != nil {
		return nil, err
	}

	return msg, nil
}

// EditMessage replaces the body of a message.
func (s *MessageServiceImpl) EditMessage(ctx context.Context, id, actor uuid.UUID, body string) (*model.Message, error) {
	return s.mutate(ctx, id, func(_ context.Context, msg *model.Message) error {
		return msg.Edit(actor, body, s.now())
	})
}

// DeleteMessage soft-deletes a message.
func (s *MessageServiceImpl) DeleteMessage(ctx context.Context, id, actor uuid.UUID) error {
	_, err := s.mutate(ctx, id, func(_ context.Context, msg *model.Message) error {
		return msg.Delete(actor, s.now())
	})

	return err
}

// MarkDelivered records delivery to a participant.
func (s *MessageServiceImpl) MarkDelivered(ctx context.Context, id, recipient uuid.UUID) error {
	return s.acknowledge(ctx, id, recipient, (*model.Message).MarkDelivered)
}

// MarkRead records that a participant read the message.
func (s *MessageServiceImpl) MarkRead(ctx context.Context, id, reader uuid.UUID) error {
	return s.acknowledge(ctx, id, reader, (*model.Message).MarkRead)
}

func (s *MessageServiceImpl) acknowledge(
	ctx context.Context, id, userID uuid.UUID, ack func(*model.Message, uuid.UUID, time.Time) error,
) error {
	_, err := s.mutate(ctx, id, func(ctx context.Context, msg *model.Message) error {
		conv, err := s.convRepo.GetByID(ctx, msg.ConversationID)
		if err != nil {
			return err
		}

		if !conv.IsParticipant(userID) {
			return model.ErrNotParticipant
		}

		return ack(msg, userID, s.now())
	})

	return err
}

func (s *MessageServiceImpl) mutate(
	ctx context.Context, id uuid.UUID, change func(context.Context, *model.Message) error,
) (*model.Message, error) {
	var msg *model.Message

	err := s.uow.update(ctx, func(ctx context.Context) (eventSource, error) {
		var err error
		if msg, err = s.msgRepo.GetForUpdate(ctx, id); err != nil {
			return nil, err
		}

		if err := change(ctx, msg); err != nil {
			return nil, err
		}

		if len(msg.PendingEvents()) == 0 {
			return msg, nil
		}

		if err := s.msgRepo.Save(ctx, msg); err != nil {
			return nil, fmt.Errorf("failed to save message: %w", err)
		}

		return msg, nil
	})
	if err != nil {
		return nil, err
	}

	return msg, nil
}

func (s *MessageServiceImpl) save(ctx context.Context, msg *model.Message) error {
	return s.uow.commit(ctx, msg, func(ctx context.Context) error {
		if err := s.msgRepo.Save(ctx, msg); err != nil {
			return fmt.Errorf("failed to save message: %w", err)
		}

		return nil
	})
}
