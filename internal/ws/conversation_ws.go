package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"messaging-service/internal/identity"
	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/repositories"
)

// ClientCommand is the frame a client sends to manage its subscriptions.
type ClientCommand struct {
	Action         string `json:"action"`
	ConversationID int    `json:"conversation_id"`
}

// ConversationWebSocketHandler serves the /ws endpoint. A single session
// may join and leave any number of conversation rooms; every join is gated
// by a membership check.
type ConversationWebSocketHandler struct {
	hub      *Hub
	convRepo repositories.ConversationRepository
	resolver *identity.Resolver
}

// NewConversationWebSocketHandler constructs the handler.
func NewConversationWebSocketHandler(hub *Hub, convRepo repositories.ConversationRepository, resolver *identity.Resolver) *ConversationWebSocketHandler {
	return &ConversationWebSocketHandler{hub: hub, convRepo: convRepo, resolver: resolver}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle authenticates the caller, upgrades the connection, and runs the
// join/leave command loop until the peer disconnects.
func (h *ConversationWebSocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("messaging-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := bearerToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"kind": "unauthorized", "error": "missing token"})
		return
	}
	ident, err := h.resolver.Resolve(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"kind": "unauthorized", "error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	// The request context dies when Handle returns; the session outlives it.
	connCtx := context.WithoutCancel(ctx)

	traceID := span.SpanContext().TraceID().String()
	requestID := observability.RequestIDFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      ident.UserID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
	h.hub.AddSession(conn, info)
	h.hub.BroadcastPresence(ident.UserID, "online")

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	h.publishLifecycle(connCtx, info, "ws_connect", "")

	go func() {
		var closeReason string
		defer func() {
			h.hub.RemoveSession(conn)
			h.hub.BroadcastPresence(ident.UserID, "offline")
			observability.DecWSActive()
			observability.IncWSEvent("ws_disconnect")
			h.publishLifecycle(connCtx, info, "ws_disconnect", closeReason)
			conn.Close()
		}()
		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				closeReason = err.Error()
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					observability.IncWSEvent("ws_error")
					h.publishLifecycle(connCtx, info, "ws_error", closeReason)
				}
				return
			}

			var cmd ClientCommand
			if err := json.Unmarshal(payload, &cmd); err != nil {
				h.writeError(conn, "malformed command")
				continue
			}

			switch cmd.Action {
			case "join":
				member, err := h.convRepo.IsParticipant(connCtx, cmd.ConversationID, ident.UserID)
				if err != nil || !member {
					h.writeError(conn, "not a participant of this conversation")
					continue
				}
				h.hub.Subscribe(cmd.ConversationID, conn)
			case "leave":
				h.hub.Unsubscribe(cmd.ConversationID, conn)
			default:
				h.writeError(conn, "unknown action")
			}
		}
	}()
}

func (h *ConversationWebSocketHandler) writeError(conn *websocket.Conn, reason string) {
	event := models.ConversationEvent{Type: models.EventError, Content: reason}
	payload, _ := json.Marshal(event)
	_ = h.hub.WriteConn(conn, payload)
}

func (h *ConversationWebSocketHandler) publishLifecycle(ctx context.Context, info ConnInfo, event, reason string) {
	durationMS := int64(0)
	if event != "ws_connect" {
		durationMS = time.Since(info.ConnectedAt).Milliseconds()
	}
	_ = observability.PublishEvent(ctx, wsEventsRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"event":       event,
				"conn_id":     info.ConnID,
				"duration_ms": durationMS,
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id":   info.UserID,
				"device_id": info.DeviceID,
				"ip":        info.IP,
			},
		},
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		const prefix = "Bearer "
		if len(header) > len(prefix) && header[:len(prefix)] == prefix {
			return header[len(prefix):]
		}
		return ""
	}
	return c.Query("token")
}
