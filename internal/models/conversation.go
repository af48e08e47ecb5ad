package models

import "time"

// Conversation groups two or more users and the messages exchanged among them.
// Name is set only for group chats; the group flag is fixed at creation time.
type Conversation struct {
	ID          int       `db:"id" json:"id"`
	Name        *string   `db:"name" json:"name,omitempty"`
	IsGroupChat bool      `db:"is_group_chat" json:"is_group_chat"`
	CreatedBy   int       `db:"created_by" json:"created_by"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// ConversationSummary is the inbox projection of a conversation.
// LastActivity is the newest message timestamp, falling back to the
// conversation's creation time when no messages exist yet.
type ConversationSummary struct {
	ID           int       `db:"id" json:"id"`
	Name         *string   `db:"name" json:"name,omitempty"`
	IsGroupChat  bool      `db:"is_group_chat" json:"is_group_chat"`
	LastActivity time.Time `db:"last_activity" json:"last_activity"`
}

// Participant models conversation membership plus the per-user read cursor.
// LastReadTimestamp only ever moves forward.
type Participant struct {
	ConversationID    int        `db:"conversation_id" json:"conversation_id"`
	UserID            int        `db:"user_id" json:"user_id"`
	LastReadTimestamp *time.Time `db:"last_read_timestamp" json:"last_read_timestamp,omitempty"`
}
