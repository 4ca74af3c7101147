package projection

import "time"

// Collections.
const (
	ConversationSummaries = "conversation_summaries"
	MessageStatuses       = "message_statuses"
)

// Message delivery states, in forward order.
const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"

	// StatusDeleted marks a tombstone. It is never left.
	StatusDeleted = "deleted"
)

const previewLength = 120

// ConversationSummary is the list-view row of a conversation.
type ConversationSummary struct {
	ID                  string    `bson:"_id"                              json:"id"`
	Title               string    `bson:"title"                            json:"title"`
	TitleUpdatedAt      time.Time `bson:"title_updated_at"                 json:"title_updated_at"`
	CreatorID           string    `bson:"creator_id"                       json:"creator_id"`
	ParticipantIDs      []string  `bson:"participant_ids"                  json:"participant_ids"`
	CreatedAt           time.Time `bson:"created_at"                       json:"created_at"`
	LastMessageID       string    `bson:"last_message_id,omitempty"        json:"last_message_id,omitempty"`
	LastMessageSenderID string    `bson:"last_message_sender_id,omitempty" json:"last_message_sender_id,omitempty"`
	LastMessagePreview  string    `bson:"last_message_preview,omitempty"   json:"last_message_preview,omitempty"`
	LastMessageAt       time.Time `bson:"last_message_at,omitempty"        json:"last_message_at,omitempty"`
	LastMessageEditedAt time.Time `bson:"last_message_edited_at,omitempty" json:"last_message_edited_at,omitempty"`
	LastMessageDeleted  bool      `bson:"last_message_deleted,omitempty"   json:"last_message_deleted,omitempty"`
	LastTouched         time.Time `bson:"last_touched"                     json:"last_touched"`
}

// MessageStatusView tracks delivery and read progress of one message.
type MessageStatusView struct {
	ID             string    `bson:"_id"                       json:"id"`
	ConversationID string    `bson:"conversation_id,omitempty" json:"conversation_id,omitempty"`
	SenderID       string    `bson:"sender_id,omitempty"       json:"sender_id,omitempty"`
	SentAt         time.Time `bson:"sent_at,omitempty"         json:"sent_at,omitempty"`
	EditedAt       time.Time `bson:"edited_at,omitempty"       json:"edited_at,omitempty"`
	Status         string    `bson:"status"                    json:"status"`
	DeliveredAt    time.Time `bson:"delivered_at,omitempty"    json:"delivered_at,omitempty"`
	ReadAt         time.Time `bson:"read_at,omitempty"         json:"read_at,omitempty"`
	DeletedAt      time.Time `bson:"deleted_at,omitempty"      json:"deleted_at,omitempty"`
	DeliveredTo    []string  `bson:"delivered_to,omitempty"    json:"delivered_to,omitempty"`
	ReadBy         []string  `bson:"read_by,omitempty"         json:"read_by,omitempty"`
	LastTouched    time.Time `bson:"last_touched"              json:"last_touched"`
}

func preview(body string) string {
	r := []rune(body)
	if len(r) <= previewLength {
		return body
	}

	return string(r[:previewLength])
}
