package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
)

const wsEventsRoutingKey = "ws_events.conversations"

// Hub is the in-process channel registry: one room per conversation plus a
// global roster of connected sessions for presence fan-out. Subscription
// state lives only in memory and only for the lifetime of a connection.
type Hub struct {
	rooms    map[int]map[*websocket.Conn]bool
	sessions map[*websocket.Conn]ConnInfo
	joined   map[*websocket.Conn]map[int]bool
	writeMu  map[*websocket.Conn]*sync.Mutex
	mu       sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		rooms:    make(map[int]map[*websocket.Conn]bool),
		sessions: make(map[*websocket.Conn]ConnInfo),
		joined:   make(map[*websocket.Conn]map[int]bool),
		writeMu:  make(map[*websocket.Conn]*sync.Mutex),
	}
}

// AddSession registers a connected websocket session.
func (h *Hub) AddSession(conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[conn] = info
	h.writeMu[conn] = &sync.Mutex{}
}

// RemoveSession drops the session and every subscription it holds.
func (h *Hub) RemoveSession(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conversationID := range h.joined[conn] {
		h.dropFromRoom(conversationID, conn)
	}
	delete(h.joined, conn)
	delete(h.sessions, conn)
	delete(h.writeMu, conn)
}

// WriteConn serializes all writes to a connection. gorilla/websocket allows
// at most one concurrent writer, and frames may come from both the session's
// read loop and broadcasting HTTP handlers.
func (h *Hub) WriteConn(conn *websocket.Conn, payload []byte) error {
	h.mu.RLock()
	mu, ok := h.writeMu[conn]
	h.mu.RUnlock()
	if !ok {
		return conn.WriteMessage(websocket.TextMessage, payload)
	}
	mu.Lock()
	defer mu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// Subscribe adds the session to a conversation room. Subscribing twice is a
// no-op.
func (h *Hub) Subscribe(conversationID int, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[conversationID]; !ok {
		h.rooms[conversationID] = make(map[*websocket.Conn]bool)
	}
	h.rooms[conversationID][conn] = true
	if _, ok := h.joined[conn]; !ok {
		h.joined[conn] = make(map[int]bool)
	}
	h.joined[conn][conversationID] = true
}

// Unsubscribe removes the session from a conversation room.
func (h *Hub) Unsubscribe(conversationID int, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropFromRoom(conversationID, conn)
	if joined, ok := h.joined[conn]; ok {
		delete(joined, conversationID)
		if len(joined) == 0 {
			delete(h.joined, conn)
		}
	}
}

// dropFromRoom must be called with the lock held.
func (h *Hub) dropFromRoom(conversationID int, conn *websocket.Conn) {
	if conns, ok := h.rooms[conversationID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.rooms, conversationID)
		}
	}
}

// BroadcastMessageCreated pushes a new message to the conversation's
// current subscribers.
func (h *Hub) BroadcastMessageCreated(conversationID int, msg models.Message) {
	h.broadcastToRoom(conversationID, models.ConversationEvent{
		Type:           models.EventMessageCreated,
		ConversationID: conversationID,
		Message:        &msg,
	})
}

// BroadcastMessageEdited notifies subscribers of an edit.
func (h *Hub) BroadcastMessageEdited(conversationID, messageID int, content string) {
	h.broadcastToRoom(conversationID, models.ConversationEvent{
		Type:           models.EventMessageEdited,
		ConversationID: conversationID,
		MessageID:      messageID,
		Content:        content,
	})
}

// BroadcastMessageDeleted notifies subscribers of a soft deletion.
func (h *Hub) BroadcastMessageDeleted(conversationID, messageID int) {
	h.broadcastToRoom(conversationID, models.ConversationEvent{
		Type:           models.EventMessageDeleted,
		ConversationID: conversationID,
		MessageID:      messageID,
	})
}

// BroadcastMessageRead notifies subscribers of a per-message read receipt.
func (h *Hub) BroadcastMessageRead(conversationID, messageID, userID int) {
	h.broadcastToRoom(conversationID, models.ConversationEvent{
		Type:           models.EventMessageRead,
		ConversationID: conversationID,
		MessageID:      messageID,
		UserID:         userID,
	})
}

// BroadcastPresence announces connect/disconnect to every connected session,
// not just shared-conversation participants.
func (h *Hub) BroadcastPresence(userID int, status string) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.sessions))
	for conn := range h.sessions {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	event := models.ConversationEvent{Type: models.EventPresence, UserID: userID, Status: status}
	payload, _ := json.Marshal(event)
	observability.IncBroadcast(models.EventPresence)
	for _, conn := range conns {
		if err := h.WriteConn(conn, payload); err != nil {
			log.Printf("websocket write error: %v", err)
			conn.Close()
			h.RemoveSession(conn)
		}
	}
}

// broadcastToRoom delivers best-effort, at-most-once to the room's current
// subscribers. A failed write evicts the subscriber but never fails the
// originating mutation.
func (h *Hub) broadcastToRoom(conversationID int, event models.ConversationEvent) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.rooms[conversationID]))
	for conn := range h.rooms[conversationID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	payload, _ := json.Marshal(event)
	observability.IncBroadcast(event.Type)
	for _, conn := range conns {
		if err := h.WriteConn(conn, payload); err != nil {
			log.Printf("websocket write error: %v", err)
			conn.Close()
			h.Unsubscribe(conversationID, conn)
			h.publishWSError(conversationID, conn, err)
		}
	}
}

func (h *Hub) publishWSError(conversationID int, conn *websocket.Conn, err error) {
	h.mu.RLock()
	info, ok := h.sessions[conn]
	h.mu.RUnlock()
	if !ok {
		return
	}

	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"conversation_id": conversationID,
			"event":           "ws_error",
			"conn_id":         info.ConnID,
			"duration_ms":     time.Since(info.ConnectedAt).Milliseconds(),
			"reason":          err.Error(),
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}

	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(context.Background(), wsEventsRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_error",
		Payload:   payload,
	}, headers)
	observability.IncWSEvent("ws_error")
}
