package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrMessageDeleted  = errors.New("message is deleted")
)

// MessageRepository defines interactions for conversation messages and
// per-message read receipts.
type MessageRepository interface {
	CreateMessage(ctx context.Context, conversationID int, senderID int, content string) (models.Message, error)
	ListForConversation(ctx context.Context, conversationID int) ([]models.Message, error)
	GetMessage(ctx context.Context, messageID int) (models.Message, error)
	EditMessage(ctx context.Context, messageID int, content string) (models.Message, error)
	SoftDelete(ctx context.Context, messageID int) error
	Search(ctx context.Context, userID int, query string) ([]models.Message, error)
	MarkMessageRead(ctx context.Context, messageID int, userID int) error
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores a message. The creation timestamp is assigned by the
// database, never taken from the client.
func (r *MessageRepo) CreateMessage(ctx context.Context, conversationID int, senderID int, content string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO messages (conversation_id, sender_id, content) VALUES ($1, $2, $3)
         RETURNING id, conversation_id, sender_id, content, created_at, updated_at, is_deleted`,
		conversationID, senderID, content).
		Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &msg.CreatedAt, &msg.UpdatedAt, &msg.IsDeleted)
	return msg, err
}

// ListForConversation returns messages in creation order, excluding
// soft-deleted ones.
func (r *MessageRepo) ListForConversation(ctx context.Context, conversationID int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT id, conversation_id, sender_id, content, created_at, updated_at, is_deleted
         FROM messages
         WHERE conversation_id=$1 AND is_deleted = FALSE
         ORDER BY created_at ASC`, conversationID)
	return msgs, err
}

// GetMessage retrieves a single message, deleted or not.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg,
		`SELECT id, conversation_id, sender_id, content, created_at, updated_at, is_deleted
         FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// EditMessage replaces the content and stamps updated_at. A soft-deleted
// message can no longer be edited.
func (r *MessageRepo) EditMessage(ctx context.Context, messageID int, content string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx,
		`UPDATE messages SET content=$2, updated_at=NOW()
         WHERE id=$1 AND is_deleted = FALSE
         RETURNING id, conversation_id, sender_id, content, created_at, updated_at, is_deleted`,
		messageID, content).
		Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &msg.CreatedAt, &msg.UpdatedAt, &msg.IsDeleted)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageDeleted
	}
	return msg, err
}

// SoftDelete hides the message from reads while keeping the row. The flag
// never reverts.
func (r *MessageRepo) SoftDelete(ctx context.Context, messageID int) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET is_deleted = TRUE WHERE id=$1`, messageID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// Search matches content case-insensitively across the conversations the
// user currently participates in, newest first. The query is a literal
// substring, not a pattern.
func (r *MessageRepo) Search(ctx context.Context, userID int, query string) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT m.id, m.conversation_id, m.sender_id, m.content, m.created_at, m.updated_at, m.is_deleted
         FROM messages m
         INNER JOIN conversation_participants cp
             ON cp.conversation_id = m.conversation_id AND cp.user_id=$1
         WHERE m.is_deleted = FALSE AND m.content ILIKE '%' || $2 || '%'
         ORDER BY m.created_at DESC`, userID, escapeLike(query))
	return msgs, err
}

// escapeLike neutralizes LIKE metacharacters in user input.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// MarkMessageRead records a per-message receipt. Receipts are append-only;
// acknowledging twice is a no-op.
func (r *MessageRepo) MarkMessageRead(ctx context.Context, messageID int, userID int) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO message_read_status (message_id, user_id) VALUES ($1, $2)
         ON CONFLICT (message_id, user_id) DO NOTHING`, messageID, userID)
	return err
}
