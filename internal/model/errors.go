package model

import "errors"

var (
	// ErrInvalidTitle is returned when a conversation title is empty or too long.
	ErrInvalidTitle = errors.New("title must be between 1 and 200 characters")
	// ErrInvalidBody is returned when a message body is empty or too long.
	ErrInvalidBody = errors.New("body must be between 1 and 4000 characters")
	// ErrInvalidUserID is returned when a required user id is missing.
	ErrInvalidUserID = errors.New("user id is required")
	// ErrNotParticipant is returned when the acting user is not a member of the conversation.
	ErrNotParticipant = errors.New("user is not a participant of the conversation")
	// ErrAlreadyParticipant is returned when adding a user that is already a member.
	ErrAlreadyParticipant = errors.New("user is already a participant of the conversation")
	// ErrLastParticipant is returned when the only remaining member tries to leave.
	ErrLastParticipant = errors.New("the last participant cannot leave the conversation")
	// ErrNotSender is returned when someone other than the sender edits or deletes a message.
	ErrNotSender = errors.New("only the sender can modify the message")
	// ErrMessageDeleted is returned when modifying a deleted message.
	ErrMessageDeleted = errors.New("message has been deleted")
	// ErrOwnMessage is returned when the sender acknowledges their own message.
	ErrOwnMessage = errors.New("sender cannot acknowledge their own message")
	// ErrConversationNotFound is returned when conversation is not found in database.
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrMessageNotFound is returned when message is not found in database.
	ErrMessageNotFound = errors.New("message not found")
	// ErrViewNotFound is returned when a read model has not been projected yet.
	ErrViewNotFound = errors.New("view not found")
)
