package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/authz"
	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

func setupMessageRouter(handler *MessageHandler, userID int, role authz.Role) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", userID)
		c.Set("userRole", role)
		c.Next()
	})
	r.GET("/conversations/:conversation_id/messages", handler.GetMessages)
	r.POST("/conversations/:conversation_id/messages", handler.PostMessage)
	r.PATCH("/conversations/:conversation_id/messages/:message_id", handler.EditMessage)
	r.DELETE("/conversations/:conversation_id/messages/:message_id", handler.DeleteMessage)
	r.POST("/conversations/:conversation_id/messages/:message_id/read", handler.MarkMessageRead)
	r.GET("/messages/search", handler.SearchMessages)
	return r
}

func TestGetMessagesAdvancesReadCursor(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	handler := NewMessageHandler(convRepo, messageRepo, new(mocks.BroadcasterMock), nil)
	router := setupMessageRouter(handler, 1, authz.RoleEmployee)

	convRepo.On("IsParticipant", mock.Anything, 5, 1).Return(true, nil).Once()
	messageRepo.On("ListForConversation", mock.Anything, 5).
		Return([]models.Message{{ID: 1, ConversationID: 5, SenderID: 2, Content: "hi"}}, nil).Once()
	convRepo.On("MarkRead", mock.Anything, 5, 1, mock.AnythingOfType("time.Time")).Return(nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/conversations/5/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	convRepo.AssertExpectations(t)
	messageRepo.AssertExpectations(t)
}

func TestGetMessagesCursorFailureStillReturnsHistory(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	handler := NewMessageHandler(convRepo, messageRepo, new(mocks.BroadcasterMock), nil)
	router := setupMessageRouter(handler, 1, authz.RoleEmployee)

	convRepo.On("IsParticipant", mock.Anything, 5, 1).Return(true, nil).Once()
	messageRepo.On("ListForConversation", mock.Anything, 5).
		Return([]models.Message{{ID: 1, ConversationID: 5, SenderID: 2, Content: "hi"}}, nil).Once()
	convRepo.On("MarkRead", mock.Anything, 5, 1, mock.AnythingOfType("time.Time")).Return(assert.AnError).Once()

	req := httptest.NewRequest(http.MethodGet, "/conversations/5/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	convRepo.AssertExpectations(t)
}

func TestGetMessagesNotParticipant(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	handler := NewMessageHandler(convRepo, messageRepo, new(mocks.BroadcasterMock), nil)
	router := setupMessageRouter(handler, 1, authz.RoleEmployee)

	convRepo.On("IsParticipant", mock.Anything, 5, 1).Return(false, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/conversations/5/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	messageRepo.AssertNotCalled(t, "ListForConversation", mock.Anything, mock.Anything)
	convRepo.AssertNotCalled(t, "MarkRead", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPostMessageBroadcastsAfterStore(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	hub := new(mocks.BroadcasterMock)
	handler := NewMessageHandler(convRepo, messageRepo, hub, nil)
	router := setupMessageRouter(handler, 1, authz.RoleEmployee)

	stored := models.Message{ID: 7, ConversationID: 5, SenderID: 1, Content: "hi"}
	convRepo.On("IsParticipant", mock.Anything, 5, 1).Return(true, nil).Once()
	messageRepo.On("CreateMessage", mock.Anything, 5, 1, "hi").Return(stored, nil).Once()
	hub.On("BroadcastMessageCreated", 5, stored).Once()

	req := httptest.NewRequest(http.MethodPost, "/conversations/5/messages", bytes.NewBufferString(`{"content":"hi"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	hub.AssertExpectations(t)
	messageRepo.AssertExpectations(t)
}

func TestPostMessageStoreFailureSkipsBroadcast(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	hub := new(mocks.BroadcasterMock)
	handler := NewMessageHandler(convRepo, messageRepo, hub, nil)
	router := setupMessageRouter(handler, 1, authz.RoleEmployee)

	convRepo.On("IsParticipant", mock.Anything, 5, 1).Return(true, nil).Once()
	messageRepo.On("CreateMessage", mock.Anything, 5, 1, "hi").
		Return(models.Message{}, assert.AnError).Once()

	req := httptest.NewRequest(http.MethodPost, "/conversations/5/messages", bytes.NewBufferString(`{"content":"hi"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	hub.AssertNotCalled(t, "BroadcastMessageCreated", mock.Anything, mock.Anything)
}

func TestPostMessageNotParticipant(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	hub := new(mocks.BroadcasterMock)
	handler := NewMessageHandler(convRepo, new(mocks.MessageRepositoryMock), hub, nil)
	router := setupMessageRouter(handler, 1, authz.RoleEmployee)

	convRepo.On("IsParticipant", mock.Anything, 5, 1).Return(false, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/conversations/5/messages", bytes.NewBufferString(`{"content":"hi"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	hub.AssertNotCalled(t, "BroadcastMessageCreated", mock.Anything, mock.Anything)
}

func TestEditMessageBySender(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	hub := new(mocks.BroadcasterMock)
	handler := NewMessageHandler(new(mocks.ConversationRepositoryMock), messageRepo, hub, nil)
	router := setupMessageRouter(handler, 1, authz.RoleEmployee)

	edited := time.Now()
	messageRepo.On("GetMessage", mock.Anything, 7).
		Return(models.Message{ID: 7, ConversationID: 5, SenderID: 1, Content: "hi"}, nil).Once()
	messageRepo.On("EditMessage", mock.Anything, 7, "hello").
		Return(models.Message{ID: 7, ConversationID: 5, SenderID: 1, Content: "hello", UpdatedAt: &edited}, nil).Once()
	hub.On("BroadcastMessageEdited", 5, 7, "hello").Once()

	req := httptest.NewRequest(http.MethodPatch, "/conversations/5/messages/7", bytes.NewBufferString(`{"content":"hello"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.Message
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "hello", resp.Content)
	assert.NotNil(t, resp.UpdatedAt)
	hub.AssertExpectations(t)
	messageRepo.AssertExpectations(t)
}

func TestEditMessageByNonSenderForbidden(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	hub := new(mocks.BroadcasterMock)
	handler := NewMessageHandler(new(mocks.ConversationRepositoryMock), messageRepo, hub, nil)
	router := setupMessageRouter(handler, 1, authz.RoleAdmin)

	messageRepo.On("GetMessage", mock.Anything, 7).
		Return(models.Message{ID: 7, ConversationID: 5, SenderID: 2, Content: "hi"}, nil).Once()

	req := httptest.NewRequest(http.MethodPatch, "/conversations/5/messages/7", bytes.NewBufferString(`{"content":"hello"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	messageRepo.AssertNotCalled(t, "EditMessage", mock.Anything, mock.Anything, mock.Anything)
	hub.AssertNotCalled(t, "BroadcastMessageEdited", mock.Anything, mock.Anything, mock.Anything)
}

func TestEditDeletedMessageConflict(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	handler := NewMessageHandler(new(mocks.ConversationRepositoryMock), messageRepo, new(mocks.BroadcasterMock), nil)
	router := setupMessageRouter(handler, 1, authz.RoleEmployee)

	messageRepo.On("GetMessage", mock.Anything, 7).
		Return(models.Message{ID: 7, ConversationID: 5, SenderID: 1, IsDeleted: true}, nil).Once()

	req := httptest.NewRequest(http.MethodPatch, "/conversations/5/messages/7", bytes.NewBufferString(`{"content":"hello"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	messageRepo.AssertNotCalled(t, "EditMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestEditMessageWrongConversation(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	handler := NewMessageHandler(new(mocks.ConversationRepositoryMock), messageRepo, new(mocks.BroadcasterMock), nil)
	router := setupMessageRouter(handler, 1, authz.RoleEmployee)

	messageRepo.On("GetMessage", mock.Anything, 7).
		Return(models.Message{ID: 7, ConversationID: 99, SenderID: 1}, nil).Once()

	req := httptest.NewRequest(http.MethodPatch, "/conversations/5/messages/7", bytes.NewBufferString(`{"content":"hello"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEditMessageNotFound(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	handler := NewMessageHandler(new(mocks.ConversationRepositoryMock), messageRepo, new(mocks.BroadcasterMock), nil)
	router := setupMessageRouter(handler, 1, authz.RoleEmployee)

	messageRepo.On("GetMessage", mock.Anything, 7).
		Return(models.Message{}, repositories.ErrMessageNotFound).Once()

	req := httptest.NewRequest(http.MethodPatch, "/conversations/5/messages/7", bytes.NewBufferString(`{"content":"hello"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteOwnMessage(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	hub := new(mocks.BroadcasterMock)
	handler := NewMessageHandler(convRepo, messageRepo, hub, nil)
	router := setupMessageRouter(handler, 1, authz.RoleEmployee)

	messageRepo.On("GetMessage", mock.Anything, 7).
		Return(models.Message{ID: 7, ConversationID: 5, SenderID: 1}, nil).Once()
	convRepo.On("GetConversation", mock.Anything, 5).
		Return(models.Conversation{ID: 5, IsGroupChat: false}, nil).Once()
	messageRepo.On("SoftDelete", mock.Anything, 7).Return(nil).Once()
	hub.On("BroadcastMessageDeleted", 5, 7).Once()

	req := httptest.NewRequest(http.MethodDelete, "/conversations/5/messages/7", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	hub.AssertExpectations(t)
	messageRepo.AssertExpectations(t)
}

func TestManagerDeletesOthersMessageInGroup(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	hub := new(mocks.BroadcasterMock)
	handler := NewMessageHandler(convRepo, messageRepo, hub, nil)
	router := setupMessageRouter(handler, 1, authz.RoleManager)

	messageRepo.On("GetMessage", mock.Anything, 7).
		Return(models.Message{ID: 7, ConversationID: 5, SenderID: 2}, nil).Once()
	convRepo.On("GetConversation", mock.Anything, 5).
		Return(models.Conversation{ID: 5, IsGroupChat: true}, nil).Once()
	messageRepo.On("SoftDelete", mock.Anything, 7).Return(nil).Once()
	hub.On("BroadcastMessageDeleted", 5, 7).Once()

	req := httptest.NewRequest(http.MethodDelete, "/conversations/5/messages/7", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	hub.AssertExpectations(t)
}

func TestManagerCannotDeleteInDirectConversation(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	hub := new(mocks.BroadcasterMock)
	handler := NewMessageHandler(convRepo, messageRepo, hub, nil)
	router := setupMessageRouter(handler, 1, authz.RoleManager)

	messageRepo.On("GetMessage", mock.Anything, 7).
		Return(models.Message{ID: 7, ConversationID: 5, SenderID: 2}, nil).Once()
	convRepo.On("GetConversation", mock.Anything, 5).
		Return(models.Conversation{ID: 5, IsGroupChat: false}, nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/conversations/5/messages/7", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	messageRepo.AssertNotCalled(t, "SoftDelete", mock.Anything, mock.Anything)
	hub.AssertNotCalled(t, "BroadcastMessageDeleted", mock.Anything, mock.Anything)
}

func TestMarkMessageReadBroadcasts(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	hub := new(mocks.BroadcasterMock)
	handler := NewMessageHandler(convRepo, messageRepo, hub, nil)
	router := setupMessageRouter(handler, 1, authz.RoleEmployee)

	convRepo.On("IsParticipant", mock.Anything, 5, 1).Return(true, nil).Once()
	messageRepo.On("GetMessage", mock.Anything, 7).
		Return(models.Message{ID: 7, ConversationID: 5, SenderID: 2}, nil).Once()
	messageRepo.On("MarkMessageRead", mock.Anything, 7, 1).Return(nil).Once()
	hub.On("BroadcastMessageRead", 5, 7, 1).Once()

	req := httptest.NewRequest(http.MethodPost, "/conversations/5/messages/7/read", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	hub.AssertExpectations(t)
	messageRepo.AssertExpectations(t)
}

func TestMarkMessageReadNotParticipant(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	handler := NewMessageHandler(convRepo, messageRepo, new(mocks.BroadcasterMock), nil)
	router := setupMessageRouter(handler, 1, authz.RoleEmployee)

	convRepo.On("IsParticipant", mock.Anything, 5, 1).Return(false, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/conversations/5/messages/7/read", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	messageRepo.AssertNotCalled(t, "MarkMessageRead", mock.Anything, mock.Anything, mock.Anything)
}

func TestSearchMessagesSuccess(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	handler := NewMessageHandler(new(mocks.ConversationRepositoryMock), messageRepo, new(mocks.BroadcasterMock), nil)
	router := setupMessageRouter(handler, 1, authz.RoleEmployee)

	messageRepo.On("Search", mock.Anything, 1, "deadline").
		Return([]models.Message{{ID: 2, ConversationID: 5, SenderID: 3, Content: "deadline moved"}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/messages/search?q=deadline", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	messageRepo.AssertExpectations(t)
}

func TestSearchMessagesEmptyQuery(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	handler := NewMessageHandler(new(mocks.ConversationRepositoryMock), messageRepo, new(mocks.BroadcasterMock), nil)
	router := setupMessageRouter(handler, 1, authz.RoleEmployee)

	req := httptest.NewRequest(http.MethodGet, "/messages/search?q=%20%20", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	messageRepo.AssertNotCalled(t, "Search", mock.Anything, mock.Anything, mock.Anything)
}
