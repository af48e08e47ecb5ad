package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/authz"
	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
)

// eventBroadcaster is the narrow fan-out surface message handlers need. The
// in-memory hub satisfies it; a distributed backend could replace it without
// touching the handlers.
type eventBroadcaster interface {
	BroadcastMessageCreated(conversationID int, msg models.Message)
	BroadcastMessageEdited(conversationID, messageID int, content string)
	BroadcastMessageDeleted(conversationID, messageID int)
	BroadcastMessageRead(conversationID, messageID, userID int)
}

// MessageHandler manages message endpoints within a conversation.
type MessageHandler struct {
	convRepo    repositories.ConversationRepository
	messageRepo repositories.MessageRepository
	hub         eventBroadcaster
	audit       *telemetry.AuditEmitter
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(convRepo repositories.ConversationRepository, messageRepo repositories.MessageRepository, hub eventBroadcaster, audit *telemetry.AuditEmitter) *MessageHandler {
	return &MessageHandler{
		convRepo:    convRepo,
		messageRepo: messageRepo,
		hub:         hub,
		audit:       audit,
	}
}

// GetMessages returns the conversation history in creation order and, as a
// side effect, advances the caller's read cursor to now.
func (h *MessageHandler) GetMessages(c *gin.Context) {
	conversationID, err := strconv.Atoi(c.Param("conversation_id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, kindValidation, "invalid conversation id")
		return
	}

	userID := c.GetInt("userID")
	member, err := h.convRepo.IsParticipant(c.Request.Context(), conversationID, userID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, kindStorage, "failed to verify membership")
		return
	}
	if !member {
		respondError(c, http.StatusForbidden, kindForbidden, "not a participant of this conversation")
		return
	}

	msgs, err := h.messageRepo.ListForConversation(c.Request.Context(), conversationID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, kindStorage, "failed to load messages")
		return
	}

	if err := h.convRepo.MarkRead(c.Request.Context(), conversationID, userID, time.Now()); err != nil {
		// History was read successfully; a lagging cursor only means the
		// next fetch re-reports unread messages.
		log.Printf("mark read failed conversation=%d user=%d: %v", conversationID, userID, err)
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostMessage stores a message and broadcasts it to current subscribers.
// The broadcast never happens if the store write fails.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	conversationID, err := strconv.Atoi(c.Param("conversation_id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, kindValidation, "invalid conversation id")
		return
	}

	userID := c.GetInt("userID")
	member, err := h.convRepo.IsParticipant(c.Request.Context(), conversationID, userID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, kindStorage, "failed to verify membership")
		return
	}
	if !member {
		h.emitAudit(c, "ERROR", "send denied: not a participant")
		respondError(c, http.StatusForbidden, kindForbidden, "not a participant of this conversation")
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, kindValidation, err.Error())
		return
	}

	msg, err := h.messageRepo.CreateMessage(c.Request.Context(), conversationID, userID, req.Content)
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		respondError(c, http.StatusInternalServerError, kindStorage, "failed to store message")
		return
	}

	h.hub.BroadcastMessageCreated(conversationID, msg)
	h.emitAudit(c, "INFO", "Message sent")
	c.JSON(http.StatusCreated, msg)
}

// EditMessage replaces a message's content. Only the original sender may
// edit, and never after deletion.
func (h *MessageHandler) EditMessage(c *gin.Context) {
	conversationID, messageID, ok := parseMessagePath(c)
	if !ok {
		return
	}

	userID := c.GetInt("userID")
	msg, err := h.messageRepo.GetMessage(c.Request.Context(), messageID)
	if err != nil {
		status, kind := http.StatusInternalServerError, kindStorage
		if errors.Is(err, repositories.ErrMessageNotFound) {
			status, kind = http.StatusNotFound, kindNotFound
		}
		respondError(c, status, kind, "message not found")
		return
	}
	if msg.ConversationID != conversationID {
		respondError(c, http.StatusBadRequest, kindValidation, "message does not belong to conversation")
		return
	}
	if d := authz.CanEditMessage(userID, msg); !d.Allowed {
		h.emitAudit(c, "ERROR", "edit denied")
		respondError(c, http.StatusForbidden, kindForbidden, d.Reason)
		return
	}
	if msg.IsDeleted {
		respondError(c, http.StatusConflict, kindConflict, "message is deleted")
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, kindValidation, err.Error())
		return
	}

	updated, err := h.messageRepo.EditMessage(c.Request.Context(), messageID, req.Content)
	if err != nil {
		if errors.Is(err, repositories.ErrMessageDeleted) {
			respondError(c, http.StatusConflict, kindConflict, "message is deleted")
			return
		}
		h.emitAudit(c, "ERROR", "internal error")
		respondError(c, http.StatusInternalServerError, kindStorage, "could not edit message")
		return
	}

	h.hub.BroadcastMessageEdited(conversationID, messageID, updated.Content)
	h.emitAudit(c, "INFO", "Message edited")
	c.JSON(http.StatusOK, updated)
}

// DeleteMessage soft-deletes a message. The sender may always delete their
// own; managers and admins may delete in group chats only.
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	conversationID, messageID, ok := parseMessagePath(c)
	if !ok {
		return
	}

	userID := c.GetInt("userID")
	msg, err := h.messageRepo.GetMessage(c.Request.Context(), messageID)
	if err != nil {
		status, kind := http.StatusInternalServerError, kindStorage
		if errors.Is(err, repositories.ErrMessageNotFound) {
			status, kind = http.StatusNotFound, kindNotFound
		}
		respondError(c, status, kind, "message not found")
		return
	}
	if msg.ConversationID != conversationID {
		respondError(c, http.StatusBadRequest, kindValidation, "message does not belong to conversation")
		return
	}

	conv, err := h.convRepo.GetConversation(c.Request.Context(), conversationID)
	if err != nil {
		status, kind := http.StatusInternalServerError, kindStorage
		if errors.Is(err, repositories.ErrConversationNotFound) {
			status, kind = http.StatusNotFound, kindNotFound
		}
		respondError(c, status, kind, "conversation not found")
		return
	}

	if d := authz.CanDeleteMessage(userID, roleFromContext(c), msg, conv); !d.Allowed {
		h.emitAudit(c, "ERROR", "delete denied")
		respondError(c, http.StatusForbidden, kindForbidden, d.Reason)
		return
	}

	if err := h.messageRepo.SoftDelete(c.Request.Context(), messageID); err != nil {
		status, kind := http.StatusInternalServerError, kindStorage
		if errors.Is(err, repositories.ErrMessageNotFound) {
			status, kind = http.StatusNotFound, kindNotFound
		}
		h.emitAudit(c, "ERROR", "internal error")
		respondError(c, status, kind, "could not delete message")
		return
	}

	h.hub.BroadcastMessageDeleted(conversationID, messageID)
	h.emitAudit(c, "INFO", "Message deleted")
	c.JSON(http.StatusOK, gin.H{"message_id": messageID})
}

// MarkMessageRead records a per-message read receipt and broadcasts it.
// Acknowledging the same message twice is a no-op.
func (h *MessageHandler) MarkMessageRead(c *gin.Context) {
	conversationID, messageID, ok := parseMessagePath(c)
	if !ok {
		return
	}

	userID := c.GetInt("userID")
	member, err := h.convRepo.IsParticipant(c.Request.Context(), conversationID, userID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, kindStorage, "failed to verify membership")
		return
	}
	if !member {
		respondError(c, http.StatusForbidden, kindForbidden, "not a participant of this conversation")
		return
	}

	msg, err := h.messageRepo.GetMessage(c.Request.Context(), messageID)
	if err != nil {
		status, kind := http.StatusInternalServerError, kindStorage
		if errors.Is(err, repositories.ErrMessageNotFound) {
			status, kind = http.StatusNotFound, kindNotFound
		}
		respondError(c, status, kind, "message not found")
		return
	}
	if msg.ConversationID != conversationID {
		respondError(c, http.StatusBadRequest, kindValidation, "message does not belong to conversation")
		return
	}

	if err := h.messageRepo.MarkMessageRead(c.Request.Context(), messageID, userID); err != nil {
		respondError(c, http.StatusInternalServerError, kindStorage, "could not record read receipt")
		return
	}

	h.hub.BroadcastMessageRead(conversationID, messageID, userID)
	c.JSON(http.StatusOK, gin.H{"message_id": messageID, "user_id": userID})
}

// SearchMessages handles GET /messages/search?q=. Matches are restricted to
// conversations the caller currently participates in.
func (h *MessageHandler) SearchMessages(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		respondError(c, http.StatusBadRequest, kindValidation, "query is required")
		return
	}

	userID := c.GetInt("userID")
	msgs, err := h.messageRepo.Search(c.Request.Context(), userID, query)
	if err != nil {
		respondError(c, http.StatusInternalServerError, kindStorage, "search failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (h *MessageHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}

func parseMessagePath(c *gin.Context) (int, int, bool) {
	conversationID, err := strconv.Atoi(c.Param("conversation_id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, kindValidation, "invalid conversation id")
		return 0, 0, false
	}
	messageID, err := strconv.Atoi(c.Param("message_id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, kindValidation, "invalid message id")
		return 0, 0, false
	}
	return conversationID, messageID, true
}
