package model

import "github.com/google/uuid"

// Event names. These are the human readable names stored next to the type identifier in the outbox.
const (
	EventConversationCreated = "conversation.created"
	EventConversationRenamed = "conversation.renamed"
	EventParticipantAdded    = "conversation.participant_added"
	EventParticipantRemoved  = "conversation.participant_removed"
	EventMessageSent         = "message.sent"
	EventMessageEdited       = "message.edited"
	EventMessageDeleted      = "message.deleted"
	EventMessageDelivered    = "message.delivered"
	EventMessageRead         = "message.read"
)

// ConversationCreated is raised when a conversation is opened.
type ConversationCreated struct {
	EventMeta
	ConversationID uuid.UUID   `json:"conversation_id"`
	Title          string      `json:"title"`
	CreatorID      uuid.UUID   `json:"creator_id"`
	ParticipantIDs []uuid.UUID `json:"participant_ids"`
}

func (ConversationCreated) EventName() string        { return EventConversationCreated }
func (e ConversationCreated) AggregateID() uuid.UUID { return e.ConversationID }

// ConversationRenamed is raised when the title changes.
type ConversationRenamed struct {
	EventMeta
	ConversationID uuid.UUID `json:"conversation_id"`
	Title          string    `json:"title"`
	RenamedBy      uuid.UUID `json:"renamed_by"`
}

func (ConversationRenamed) EventName() string        { return EventConversationRenamed }
func (e ConversationRenamed) AggregateID() uuid.UUID { return e.ConversationID }

// ParticipantAdded is raised when a user joins a conversation.
type ParticipantAdded struct {
	EventMeta
	ConversationID uuid.UUID `json:"conversation_id"`
	UserID         uuid.UUID `json:"user_id"`
	AddedBy        uuid.UUID `json:"added_by"`
}

func (ParticipantAdded) EventName() string        { return EventParticipantAdded }
func (e ParticipantAdded) AggregateID() uuid.UUID { return e.ConversationID }

// ParticipantRemoved is raised when a user leaves or is removed from a conversation.
type ParticipantRemoved struct {
	EventMeta
	ConversationID uuid.UUID `json:"conversation_id"`
	UserID         uuid.UUID `json:"user_id"`
	RemovedBy      uuid.UUID `json:"removed_by"`
}

func (ParticipantRemoved) EventName() string        { return EventParticipantRemoved }
func (e ParticipantRemoved) AggregateID() uuid.UUID { return e.ConversationID }

// MessageSent is raised when a message is posted to a conversation.
type MessageSent struct {
	EventMeta
	MessageID      uuid.UUID `json:"message_id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	SenderID       uuid.UUID `json:"sender_id"`
	Body           string    `json:"body"`
}

func (MessageSent) EventName() string        { return EventMessageSent }
func (e MessageSent) AggregateID() uuid.UUID { return e.MessageID }

// MessageEdited is raised when the sender changes the body.
type MessageEdited struct {
	EventMeta
	MessageID      uuid.UUID `json:"message_id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Body           string    `json:"body"`
}

func (MessageEdited) EventName() string        { return EventMessageEdited }
func (e MessageEdited) AggregateID() uuid.UUID { return e.MessageID }

// MessageDeleted is raised when the sender deletes a message.
type MessageDeleted struct {
	EventMeta
	MessageID      uuid.UUID `json:"message_id"`
	ConversationID uuid.UUID `json:"conversation_id"`
}

func (MessageDeleted) EventName() string        { return EventMessageDeleted }
func (e MessageDeleted) AggregateID() uuid.UUID { return e.MessageID }

// MessageDelivered is raised the first time a recipient's device receives a message.
type MessageDelivered struct {
	EventMeta
	MessageID      uuid.UUID `json:"message_id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	RecipientID    uuid.UUID `json:"recipient_id"`
}

func (MessageDelivered) EventName() string        { return EventMessageDelivered }
func (e MessageDelivered) AggregateID() uuid.UUID { return e.MessageID }

// MessageRead is raised the first time a recipient reads a message.
type MessageRead struct {
	EventMeta
	MessageID      uuid.UUID `json:"message_id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	ReaderID       uuid.UUID `json:"reader_id"`
}

func (MessageRead) EventName() string        { return EventMessageRead }
func (e MessageRead) AggregateID() uuid.UUID { return e.MessageID }
