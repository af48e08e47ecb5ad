package models

import "time"

// Message is a single conversation message. Soft deletion keeps the row and
// its content; deleted messages are excluded from reads and search.
type Message struct {
	ID             int        `db:"id" json:"id"`
	ConversationID int        `db:"conversation_id" json:"conversation_id"`
	SenderID       int        `db:"sender_id" json:"sender_id"`
	Content        string     `db:"content" json:"content"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      *time.Time `db:"updated_at" json:"updated_at,omitempty"`
	IsDeleted      bool       `db:"is_deleted" json:"is_deleted"`
}

// MessageReadStatus is a discrete per-message acknowledgment, finer grained
// than the participant read cursor. Append-only.
type MessageReadStatus struct {
	MessageID int       `db:"message_id" json:"message_id"`
	UserID    int       `db:"user_id" json:"user_id"`
	ReadAt    time.Time `db:"read_at" json:"read_at"`
}

// Websocket event types.
const (
	EventMessageCreated = "message_created"
	EventMessageEdited  = "message_edited"
	EventMessageDeleted = "message_deleted"
	EventMessageRead    = "message_read"
	EventPresence       = "presence"
	EventError          = "error"
)

// ConversationEvent is the frame pushed to a conversation's subscribers.
type ConversationEvent struct {
	Type           string   `json:"type"`
	ConversationID int      `json:"conversation_id,omitempty"`
	Message        *Message `json:"message,omitempty"`
	MessageID      int      `json:"message_id,omitempty"`
	Content        string   `json:"content,omitempty"`
	UserID         int      `json:"user_id,omitempty"`
	Status         string   `json:"status,omitempty"`
}
