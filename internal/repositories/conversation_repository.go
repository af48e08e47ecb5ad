package repositories

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"messaging-service/internal/models"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrAlreadyParticipant   = errors.New("user is already a participant")
)

const pqUniqueViolation = "23505"

// ConversationRepository abstracts conversation and membership persistence.
type ConversationRepository interface {
	CreateConversation(ctx context.Context, creatorID int, participantIDs []int, name *string) (models.Conversation, error)
	GetConversation(ctx context.Context, conversationID int) (models.Conversation, error)
	ListConversationsForUser(ctx context.Context, userID int) ([]models.ConversationSummary, error)
	IsParticipant(ctx context.Context, conversationID int, userID int) (bool, error)
	ListParticipants(ctx context.Context, conversationID int) ([]int, error)
	AddParticipant(ctx context.Context, conversationID int, userID int) error
	RemoveParticipant(ctx context.Context, conversationID int, userID int) error
	MarkRead(ctx context.Context, conversationID int, userID int, ts time.Time) error
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// CreateConversation persists a conversation and its participant rows in one
// transaction. The creator is always included, the participant list is
// deduplicated, and the group flag is derived from the final participant
// count. Name is only kept for group conversations.
func (r *ConversationRepo) CreateConversation(ctx context.Context, creatorID int, participantIDs []int, name *string) (models.Conversation, error) {
	memberSet := map[int]struct{}{creatorID: {}}
	for _, id := range participantIDs {
		memberSet[id] = struct{}{}
	}
	ids := make([]int, 0, len(memberSet))
	for id := range memberSet {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	isGroup := len(ids) > 2
	if !isGroup {
		name = nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var conv models.Conversation
	if err = tx.QueryRowxContext(ctx,
		`INSERT INTO conversations (name, is_group_chat, created_by) VALUES ($1, $2, $3)
         RETURNING id, name, is_group_chat, created_by, created_at`,
		name, isGroup, creatorID).
		Scan(&conv.ID, &conv.Name, &conv.IsGroupChat, &conv.CreatedBy, &conv.CreatedAt); err != nil {
		return models.Conversation{}, err
	}

	for _, id := range ids {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO conversation_participants (conversation_id, user_id) VALUES ($1, $2)`,
			conv.ID, id); err != nil {
			return models.Conversation{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Conversation{}, err
	}
	return conv, nil
}

// GetConversation fetches a conversation by id.
func (r *ConversationRepo) GetConversation(ctx context.Context, conversationID int) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv,
		`SELECT id, name, is_group_chat, created_by, created_at FROM conversations WHERE id=$1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

// ListConversationsForUser returns the user's conversations ordered by most
// recent activity: the newest visible message, or the conversation's creation
// time when it has no messages.
func (r *ConversationRepo) ListConversationsForUser(ctx context.Context, userID int) ([]models.ConversationSummary, error) {
	query := `SELECT c.id, c.name, c.is_group_chat,
            COALESCE(MAX(m.created_at), c.created_at) AS last_activity
        FROM conversations c
        INNER JOIN conversation_participants cp ON cp.conversation_id = c.id
        LEFT JOIN messages m ON m.conversation_id = c.id AND m.is_deleted = FALSE
        WHERE cp.user_id=$1
        GROUP BY c.id, c.name, c.is_group_chat, c.created_at
        ORDER BY last_activity DESC`
	var summaries []models.ConversationSummary
	err := r.db.SelectContext(ctx, &summaries, query, userID)
	return summaries, err
}

// IsParticipant checks whether the user currently belongs to the conversation.
func (r *ConversationRepo) IsParticipant(ctx context.Context, conversationID int, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM conversation_participants WHERE conversation_id=$1 AND user_id=$2)`,
		conversationID, userID)
	return exists, err
}

// ListParticipants returns the user ids of current participants.
func (r *ConversationRepo) ListParticipants(ctx context.Context, conversationID int) ([]int, error) {
	var ids []int
	err := r.db.SelectContext(ctx, &ids,
		`SELECT user_id FROM conversation_participants WHERE conversation_id=$1 ORDER BY user_id`, conversationID)
	return ids, err
}

// AddParticipant inserts a membership row. A duplicate add is an error, not
// a no-op.
func (r *ConversationRepo) AddParticipant(ctx context.Context, conversationID int, userID int) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO conversation_participants (conversation_id, user_id) VALUES ($1, $2)`,
		conversationID, userID)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
		return ErrAlreadyParticipant
	}
	return err
}

// RemoveParticipant deletes the membership row. Removing a non-participant
// is a no-op.
func (r *ConversationRepo) RemoveParticipant(ctx context.Context, conversationID int, userID int) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM conversation_participants WHERE conversation_id=$1 AND user_id=$2`,
		conversationID, userID)
	return err
}

// MarkRead advances the user's read cursor. The cursor never moves backward,
// even when updates race.
func (r *ConversationRepo) MarkRead(ctx context.Context, conversationID int, userID int, ts time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE conversation_participants SET last_read_timestamp=$3
         WHERE conversation_id=$1 AND user_id=$2
         AND (last_read_timestamp IS NULL OR last_read_timestamp < $3)`,
		conversationID, userID, ts)
	return err
}
