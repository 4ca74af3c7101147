// Package model defines domain models and data structures.
package model

import (
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const maxTitleLength = 200

// Conversation is the aggregate that owns membership and the title of a chat.
type Conversation struct {
	AggregateRoot

	ID             uuid.UUID   `json:"id"`
	Title          string      `json:"title"`
	CreatorID      uuid.UUID   `json:"creator_id"`
	ParticipantIDs []uuid.UUID `json:"participant_ids"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// CreateConversationParams represents parameters for opening a new conversation.
type CreateConversationParams struct {
	Title          string      `json:"title"`
	CreatorID      uuid.UUID   `json:"creator_id"`
	ParticipantIDs []uuid.UUID `json:"participant_ids"`
}

// Validate validates the create conversation parameters.
func (p *CreateConversationParams) Validate() error {
	if err := validateTitle(p.Title); err != nil {
		return err
	}

	if p.CreatorID == uuid.Nil {
		return ErrInvalidUserID
	}

	for _, id := range p.ParticipantIDs {
		if id == uuid.Nil {
			return ErrInvalidUserID
		}
	}

	return nil
}

func validateTitle(title string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(title))
	if n == 0 || n > maxTitleLength {
		return ErrInvalidTitle
	}

	return nil
}

// NewConversation opens a conversation. The creator is always a participant.
func NewConversation(params *CreateConversationParams, now time.Time) (*Conversation, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	members := []uuid.UUID{params.CreatorID}
	for _, id := range params.ParticipantIDs {
		if !slices.Contains(members, id) {
			members = append(members, id)
		}
	}

	c := &Conversation{
		ID:             uuid.New(),
		Title:          strings.TrimSpace(params.Title),
		CreatorID:      params.CreatorID,
		ParticipantIDs: members,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	c.Record(ConversationCreated{
		EventMeta:      EventMeta{Occurred: now},
		ConversationID: c.ID,
		Title:          c.Title,
		CreatorID:      c.CreatorID,
		ParticipantIDs: slices.Clone(members),
	})

	return c, nil
}

// IsParticipant reports whether the user belongs to the conversation.
func (c *Conversation) IsParticipant(userID uuid.UUID) bool {
	return slices.Contains(c.ParticipantIDs, userID)
}

// Rename changes the title. Renaming to the current title records nothing.
func (c *Conversation) Rename(actor uuid.UUID, title string, now time.Time) error {
	if !c.IsParticipant(actor) {
		return ErrNotParticipant
	}

	if err := validateTitle(title); err != nil {
		return err
	}

	title = strings.TrimSpace(title)
	if title == c.Title {
		return nil
	}

	c.Title = title
	c.UpdatedAt = now
	c.Record(ConversationRenamed{
		EventMeta:      EventMeta{Occurred: now},
		ConversationID: c.ID,
		Title:          title,
		RenamedBy:      actor,
	})

	return nil
}

// AddParticipant adds a member on behalf of an existing member.
func (c *Conversation) AddParticipant(actor, userID uuid.UUID, now time.Time) error {
	if userID == uuid.Nil {
		return ErrInvalidUserID
	}

	if !c.IsParticipant(actor) {
		return ErrNotParticipant
	}

	if c.IsParticipant(userID) {
		return ErrAlreadyParticipant
	}

	c.ParticipantIDs = append(c.ParticipantIDs, userID)
	c.UpdatedAt = now
	c.Record(ParticipantAdded{
		EventMeta:      EventMeta{Occurred: now},
		ConversationID: c.ID,
		UserID:         userID,
		AddedBy:        actor,
	})

	return nil
}

// RemoveParticipant removes a member. Members may remove themselves or others.
func (c *Conversation) RemoveParticipant(actor, userID uuid.UUID, now time.Time) error {
	if !c.IsParticipant(actor) || !c.IsParticipant(userID) {
		return ErrNotParticipant
	}

	if len(c.ParticipantIDs) == 1 {
		return ErrLastParticipant
	}

	c.ParticipantIDs = slices.DeleteFunc(c.ParticipantIDs, func(id uuid.UUID) bool { return id == userID })
	c.UpdatedAt = now
	c.Record(ParticipantRemoved{
		EventMeta:      EventMeta{Occurred: now},
		ConversationID: c.ID,
		UserID:         userID,
		RemovedBy:      actor,
	})

	return nil
}
