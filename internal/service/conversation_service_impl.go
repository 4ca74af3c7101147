package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jnst/chat-backend/internal/model"
	"github.com/jnst/chat-backend/internal/repository"
)

// ConversationServiceImpl implements ConversationService.
type ConversationServiceImpl struct {
	convRepo repository.ConversationRepository
	uow      unitOfWork
	now      func() time.Time
}

// NewConversationServiceImpl creates a new ConversationService implementation.
func NewConversationServiceImpl(
	convRepo repository.ConversationRepository,
	outboxRepo repository.OutboxRepository,
	transactionMgr repository.TransactionManager,
) ConversationService {
	return &ConversationServiceImpl{
		convRepo: convRepo,
		uow:      unitOfWork{outboxRepo: outboxRepo, transactionMgr: transactionMgr},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateConversation opens a conversation and records ConversationCreated.
func (s *ConversationServiceImpl) CreateConversation(
	ctx context.Context, params *model.CreateConversationParams,
) (*model.Conversation, error) {
	conv, err := model.NewConversation(params, s.now())
	if err != nil {
		return nil, err
	}

	if err := s.save(ctx, conv); err != nil {
		return nil, err
	}

	return conv, nil
}

// RenameConversation changes the title.
func (s *ConversationServiceImpl) RenameConversation(
	ctx context.Context, id, actor uuid.UUID, title string,
) (*model.Conversation, error) {
	return s.mutate(ctx, id, func(conv *model.Conversation) error {
		return conv.Rename(actor, title, s.now())
	})
}

// AddParticipant adds a member.
func (s *ConversationServiceImpl) AddParticipant(
	ctx context.Context, id, actor, userID uuid.UUID,
) (*model.Conversation, error) {
	return s.mutate(ctx, id, func(conv *model.Conversation) error {
		return conv.AddParticipant(actor, userID, s.now())
	})
}

// RemoveParticipant removes a member.
func (s *ConversationServiceImpl) RemoveParticipant(
	ctx context.Context, id, actor, userID uuid.UUID,
) (*model.Conversation, error) {
	return s.mutate(ctx, id, func(conv *model.Conversation) error {
		return conv.RemoveParticipant(actor, userID, s.now())
	})
}

func (s *ConversationServiceImpl) mutate(
	ctx context.Context, id uuid.UUID, change func(*model.Conversation) error,
) (*model.Conversation, error) {
	var conv *model.Conversation

	err := s.uow.update(ctx, func(ctx context.Context) (eventSource, error) {
		var err error
		if conv, err = s.convRepo.GetForUpdate(ctx, id); err != nil {
			return nil, err
		}

		if err := change(conv); err != nil {
			return nil, err
		}

		if len(conv.PendingEvents()) == 0 {
			return conv, nil
		}

		if err := s.convRepo.Save(ctx, conv); err != nil {
			return nil, fmt.Errorf("failed to save conversation: %w", err)
		}

		return conv, nil
	})
	if err != nil {
		return nil, err
	}

	return conv, nil
}

func (s *ConversationServiceImpl) save(ctx context.Context, conv *model.Conversation) error {
	return s.uow.commit(ctx, conv, func(ctx context.Context) error {
		if err := s.convRepo.Save(ctx, conv); err != nil {
			return fmt.Errorf("failed to save conversation: %w", err)
		}

		return nil
	})
}
