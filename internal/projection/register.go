package projection

import "github.com/jnst/chat-backend/internal/event"

// Register subscribes every read-model handler to the publisher.
func Register(pub *event.Publisher, port SyncPort) {
	summary := NewConversationSummaryProjection(port)
	status := NewMessageStatusProjection(port)

	event.Subscribe(pub, "conversation_summary.created", summary.OnConversationCreated)
	event.Subscribe(pub, "conversation_summary.renamed", summary.OnConversationRenamed)
	event.Subscribe(pub, "conversation_summary.participant_added", summary.OnParticipantAdded)
	event.Subscribe(pub, "conversation_summary.participant_removed", summary.OnParticipantRemoved)
	event.Subscribe(pub, "conversation_summary.message_sent", summary.OnMessageSent)
	event.Subscribe(pub, "conversation_summary.message_edited", summary.OnMessageEdited)
	event.Subscribe(pub, "conversation_summary.message_deleted", summary.OnMessageDeleted)

	event.Subscribe(pub, "message_status.sent", status.OnMessageSent)
	event.Subscribe(pub, "message_status.edited", status.OnMessageEdited)
	event.Subscribe(pub, "message_status.deleted", status.OnMessageDeleted)
	event.Subscribe(pub, "message_status.delivered", status.OnMessageDelivered)
	event.Subscribe(pub, "message_status.read", status.OnMessageRead)
}
