package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/authz"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
)

// ConversationHandler manages conversation lifecycle and membership
// endpoints.
type ConversationHandler struct {
	convRepo repositories.ConversationRepository
	audit    *telemetry.AuditEmitter
}

// NewConversationHandler builds a ConversationHandler.
func NewConversationHandler(convRepo repositories.ConversationRepository, audit *telemetry.AuditEmitter) *ConversationHandler {
	return &ConversationHandler{convRepo: convRepo, audit: audit}
}

// CreateConversation handles POST /conversations. The group flag is derived
// from the deduplicated participant count; group creation requires an
// elevated role, re-checked on every call.
func (h *ConversationHandler) CreateConversation(c *gin.Context) {
	userID := c.GetInt("userID")

	var req struct {
		ParticipantIDs []int   `json:"participant_ids"`
		Name           *string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, kindValidation, err.Error())
		return
	}
	if len(req.ParticipantIDs) == 0 {
		respondError(c, http.StatusBadRequest, kindValidation, "participant ids are required")
		return
	}

	if countDistinctParticipants(userID, req.ParticipantIDs) > 2 {
		if d := authz.CanCreateGroup(roleFromContext(c)); !d.Allowed {
			h.emitAudit(c, "ERROR", "group creation denied")
			respondError(c, http.StatusForbidden, kindForbidden, d.Reason)
			return
		}
	}

	conv, err := h.convRepo.CreateConversation(c.Request.Context(), userID, req.ParticipantIDs, req.Name)
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		respondError(c, http.StatusInternalServerError, kindStorage, "could not create conversation")
		return
	}

	h.emitAudit(c, "INFO", "Conversation created")
	c.JSON(http.StatusCreated, gin.H{"conversation_id": conv.ID})
}

// ListConversations returns the caller's conversations ordered by most
// recent activity.
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	userID := c.GetInt("userID")

	summaries, err := h.convRepo.ListConversationsForUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, kindStorage, "failed to load conversations")
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversations": summaries})
}

// AddParticipant handles POST /conversations/:conversation_id/participants.
// Duplicate adds are a conflict, not a no-op.
func (h *ConversationHandler) AddParticipant(c *gin.Context) {
	conversationID, err := strconv.Atoi(c.Param("conversation_id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, kindValidation, "invalid conversation id")
		return
	}

	if d := authz.CanManageParticipants(roleFromContext(c)); !d.Allowed {
		h.emitAudit(c, "ERROR", "participant management denied")
		respondError(c, http.StatusForbidden, kindForbidden, d.Reason)
		return
	}

	var req struct {
		UserID int `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, kindValidation, err.Error())
		return
	}

	if _, err := h.convRepo.GetConversation(c.Request.Context(), conversationID); err != nil {
		status, kind := http.StatusInternalServerError, kindStorage
		if errors.Is(err, repositories.ErrConversationNotFound) {
			status, kind = http.StatusNotFound, kindNotFound
		}
		respondError(c, status, kind, "conversation not found")
		return
	}

	if err := h.convRepo.AddParticipant(c.Request.Context(), conversationID, req.UserID); err != nil {
		if errors.Is(err, repositories.ErrAlreadyParticipant) {
			respondError(c, http.StatusConflict, kindConflict, "user is already a participant")
			return
		}
		h.emitAudit(c, "ERROR", "internal error")
		respondError(c, http.StatusInternalServerError, kindStorage, "could not add participant")
		return
	}

	h.emitAudit(c, "INFO", "Participant added")
	c.JSON(http.StatusCreated, gin.H{"conversation_id": conversationID, "user_id": req.UserID})
}

// RemoveParticipant handles DELETE
// /conversations/:conversation_id/participants/:user_id. Removing a
// non-participant succeeds.
func (h *ConversationHandler) RemoveParticipant(c *gin.Context) {
	conversationID, err := strconv.Atoi(c.Param("conversation_id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, kindValidation, "invalid conversation id")
		return
	}
	targetID, err := strconv.Atoi(c.Param("user_id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, kindValidation, "invalid user id")
		return
	}

	if d := authz.CanManageParticipants(roleFromContext(c)); !d.Allowed {
		h.emitAudit(c, "ERROR", "participant management denied")
		respondError(c, http.StatusForbidden, kindForbidden, d.Reason)
		return
	}

	if err := h.convRepo.RemoveParticipant(c.Request.Context(), conversationID, targetID); err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		respondError(c, http.StatusInternalServerError, kindStorage, "could not remove participant")
		return
	}

	h.emitAudit(c, "INFO", "Participant removed")
	c.JSON(http.StatusOK, gin.H{"conversation_id": conversationID, "user_id": targetID})
}

func (h *ConversationHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}

// countDistinctParticipants mirrors the store's dedup-and-include-creator
// rule so the policy check sees the same participant count that will be
// persisted.
func countDistinctParticipants(creatorID int, participantIDs []int) int {
	set := map[int]struct{}{creatorID: {}}
	for _, id := range participantIDs {
		set[id] = struct{}{}
	}
	return len(set)
}
