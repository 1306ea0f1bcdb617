package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"meetup-chat/internal/middleware"
	"meetup-chat/internal/observability"
	"meetup-chat/internal/telemetry"
)

// ChatWebSocketHandler upgrades authenticated users to a live push connection.
type ChatWebSocketHandler struct {
	hub       *Hub
	validator *middleware.TokenValidator
	log       *zap.Logger
}

// NewChatWebSocketHandler constructs a ChatWebSocketHandler.
func NewChatWebSocketHandler(hub *Hub, validator *middleware.TokenValidator, log *zap.Logger) *ChatWebSocketHandler {
	return &ChatWebSocketHandler{hub: hub, validator: validator, log: log.With(zap.String("component", "ws"))}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection and registers the client under its user.
// The token comes from the Authorization header or the token query parameter.
func (h *ChatWebSocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("meetup-chat/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token, ok := middleware.BearerToken(c.GetHeader("Authorization"))
	if !ok {
		token = c.Query("token")
	}

	identity, err := h.validator.Validate(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	span.SetAttributes(attribute.Int("user.id", identity.UserID))

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	traceID := span.SpanContext().TraceID().String()
	requestID := observability.RequestIDFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      uuid.NewString(),
		UserID:      identity.UserID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
	client := h.hub.Register(conn, info)

	observability.IncWSActive(wsKind)
	observability.IncWSEvent(wsKind, "ws_connect")
	_ = observability.PublishEvent(ctx, telemetry.RoutingWSEvents, wsEnvelope("ws_connect", info, ""),
		observability.BuildHeaders(requestID, traceID))

	// The read loop only detects the peer going away; clients never send data.
	go func() {
		var closeReason string
		defer func() {
			if h.hub.Unregister(client) {
				observability.DecWSActive(wsKind)
			}
			observability.IncWSEvent(wsKind, "ws_disconnect")
			_ = observability.PublishEvent(ctx, telemetry.RoutingWSEvents, wsEnvelope("ws_disconnect", info, closeReason),
				observability.BuildHeaders(requestID, traceID))
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				closeReason = err.Error()
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					observability.IncWSEvent(wsKind, "ws_error")
					_ = observability.PublishEvent(ctx, telemetry.RoutingWSEvents, wsEnvelope("ws_error", info, closeReason),
						observability.BuildHeaders(requestID, traceID))
				}
				return
			}
		}
	}()
}
