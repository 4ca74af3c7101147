package model

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const maxBodyLength = 4000

// Receipt tracks delivery and read acknowledgements of one recipient.
type Receipt struct {
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
}

// Message is the aggregate for a single chat message and its receipts.
type Message struct {
	AggregateRoot

	ID             uuid.UUID              `json:"id"`
	ConversationID uuid.UUID              `json:"conversation_id"`
	SenderID       uuid.UUID              `json:"sender_id"`
	Body           string                 `json:"body"`
	SentAt         time.Time              `json:"sent_at"`
	EditedAt       *time.Time             `json:"edited_at,omitempty"`
	DeletedAt      *time.Time             `json:"deleted_at,omitempty"`
	Receipts       map[uuid.UUID]*Receipt `json:"receipts,omitempty"`
}

// SendMessageParams represents parameters for posting a message.
type SendMessageParams struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	SenderID       uuid.UUID `json:"sender_id"`
	Body           string    `json:"body"`
}

// Validate validates the send message parameters.
func (p *SendMessageParams) Validate() error {
	if p.SenderID == uuid.Nil {
		return ErrInvalidUserID
	}

	return validateBody(p.Body)
}

func validateBody(body string) error {
	n := utf8.RuneCountInString(body)
	if n == 0 || n > maxBodyLength {
		return ErrInvalidBody
	}

	return nil
}

// NewMessage posts a message into the conversation. The sender must be a participant.
func NewMessage(conv *Conversation, params *SendMessageParams, now time.Time) (*Message, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	if !conv.IsParticipant(params.SenderID) {
		return nil, ErrNotParticipant
	}

	m := &Message{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		SenderID:       params.SenderID,
		Body:           params.Body,
		SentAt:         now,
		Receipts:       map[uuid.UUID]*Receipt{},
	}

	m.Record(MessageSent{
		EventMeta:      EventMeta{Occurred: now},
		MessageID:      m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Body:           m.Body,
	})

	return m, nil
}

// IsDeleted reports whether the message was deleted.
func (m *Message) IsDeleted() bool {
	return m.DeletedAt != nil
}

// Edit replaces the body.
func (m *Message) Edit(actor uuid.UUID, body string, now time.Time) error {
	if actor != m.SenderID {
		return ErrNotSender
	}

	if m.IsDeleted() {
		return ErrMessageDeleted
	}

	if err := validateBody(body); err != nil {
		return err
	}

	if body == m.Body {
		return nil
	}

	m.Body = body
	m.EditedAt = &now
	m.Record(MessageEdited{
		EventMeta:      EventMeta{Occurred: now},
		MessageID:      m.ID,
		ConversationID: m.ConversationID,
		Body:           body,
	})

	return nil
}

// Delete soft-deletes the message. Deleting twice records nothing.
func (m *Message) Delete(actor uuid.UUID, now time.Time) error {
	if actor != m.SenderID {
		return ErrNotSender
	}

	if m.IsDeleted() {
		return nil
	}

	m.DeletedAt = &now
	m.Record(MessageDeleted{
		EventMeta:      EventMeta{Occurred: now},
		MessageID:      m.ID,
		ConversationID: m.ConversationID,
	})

	return nil
}

func (m *Message) receipt(userID uuid.UUID) *Receipt {
	if m.Receipts == nil {
		m.Receipts = map[uuid.UUID]*Receipt{}
	}

	r, ok := m.Receipts[userID]
	if !ok {
		r = &Receipt{}
		m.Receipts[userID] = r
	}

	return r
}

// MarkDelivered acknowledges delivery to a recipient. Only the first acknowledgement is recorded.
func (m *Message) MarkDelivered(recipient uuid.UUID, now time.Time) error {
	if recipient == m.SenderID {
		return ErrOwnMessage
	}

	if m.IsDeleted() {
		return ErrMessageDeleted
	}

	r := m.receipt(recipient)
	if r.DeliveredAt != nil || r.ReadAt != nil {
		return nil
	}

	r.DeliveredAt = &now
	m.Record(MessageDelivered{
		EventMeta:      EventMeta{Occurred: now},
		MessageID:      m.ID,
		ConversationID: m.ConversationID,
		RecipientID:    recipient,
	})

	return nil
}

// MarkRead acknowledges that a recipient read the message. Reading implies delivery.
func (m *Message) MarkRead(reader uuid.UUID, now time.Time) error {
	if reader == m.SenderID {
		return ErrOwnMessage
	}

	if m.IsDeleted() {
		return ErrMessageDeleted
	}

	r := m.receipt(reader)
	if r.ReadAt != nil {
		return nil
	}

	if r.DeliveredAt == nil {
		r.DeliveredAt = &now
	}

	r.ReadAt = &now
	m.Record(MessageRead{
		EventMeta:      EventMeta{Occurred: now},
		MessageID:      m.ID,
		ConversationID: m.ConversationID,
		ReaderID:       reader,
	})

	return nil
}
