package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jnst/chat-backend/internal/model"
	"github.com/jnst/chat-backend/internal/projection"
)

// ViewServiceImpl implements ViewService on top of the read store.
type ViewServiceImpl struct {
	finder projection.Finder
}

// NewViewServiceImpl creates a new ViewService implementation.
func NewViewServiceImpl(finder projection.Finder) ViewService {
	return &ViewServiceImpl{finder: finder}
}

// GetConversationSummary returns the projected summary of a conversation.
func (s *ViewServiceImpl) GetConversationSummary(
	ctx context.Context, id uuid.UUID,
) (*projection.ConversationSummary, error) {
	var view projection.ConversationSummary
	if err := s.find(ctx, projection.ConversationSummaries, id, &view); err != nil {
		return nil, err
	}

	return &view, nil
}

// GetMessageStatus returns the projected delivery status of a message.
// Deleted messages have no status.
func (s *ViewServiceImpl) GetMessageStatus(ctx context.Context, id uuid.UUID) (*projection.MessageStatusView, error) {
	var view projection.MessageStatusView
	if err := s.find(ctx, projection.MessageStatuses, id, &view); err != nil {
		return nil, err
	}

	if view.Status == projection.StatusDeleted {
		return nil, model.ErrViewNotFound
	}

	return &view, nil
}

func (s *ViewServiceImpl) find(ctx context.Context, collection string, id uuid.UUID, out any) error {
	found, err := s.finder.Find(ctx, collection, id.String(), out)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", collection, err)
	}

	if !found {
		return model.ErrViewNotFound
	}

	return nil
}
