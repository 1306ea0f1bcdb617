package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"meetup-chat/internal/observability"
	"meetup-chat/internal/telemetry"
)

const (
	wsKind       = "user"
	writeTimeout = 10 * time.Second
)

// Client is one live websocket connection. Writes are serialized per
// connection because gorilla/websocket allows a single concurrent writer.
type Client struct {
	conn *websocket.Conn
	info ConnInfo
	mu   sync.Mutex
}

func (c *Client) write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub maintains the live connections of every user on this instance.
type Hub struct {
	users map[int]map[*Client]struct{}
	mu    sync.RWMutex
	log   *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		users: make(map[int]map[*Client]struct{}),
		log:   log.With(zap.String("component", "ws_hub")),
	}
}

// Register adds a connection under the user's id.
func (h *Hub) Register(conn *websocket.Conn, info ConnInfo) *Client {
	client := &Client{conn: conn, info: info}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.users[info.UserID]; !ok {
		h.users[info.UserID] = make(map[*Client]struct{})
	}
	h.users[info.UserID][client] = struct{}{}
	return client
}

// Unregister removes a connection. It reports false when it was already gone.
func (h *Hub) Unregister(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.users[client.info.UserID]
	if !ok {
		return false
	}
	if _, ok := conns[client]; !ok {
		return false
	}
	delete(conns, client)
	if len(conns) == 0 {
		delete(h.users, client.info.UserID)
	}
	return true
}

// ConnectionCount returns the number of live connections for a user.
func (h *Hub) ConnectionCount(userID int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

// SendToUser writes payload to every connection of the user and returns how
// many writes succeeded. Connections that fail are closed and dropped.
func (h *Hub) SendToUser(userID int, payload []byte) int {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.users[userID]))
	for client := range h.users[userID] {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, client := range clients {
		if err := client.write(payload); err != nil {
			h.log.Warn("websocket write error", zap.Int("user_id", userID), zap.String("conn_id", client.info.ConnID), zap.Error(err))
			if h.Unregister(client) {
				client.conn.Close()
				observability.DecWSActive(wsKind)
				h.publishWSError(client.info, err)
			}
			continue
		}
		delivered++
	}
	return delivered
}

func (h *Hub) publishWSError(info ConnInfo, err error) {
	_ = observability.PublishEvent(context.Background(), telemetry.RoutingWSEvents, wsEnvelope("ws_error", info, err.Error()),
		observability.BuildHeaders(info.RequestID, info.TraceID))
	observability.IncWSEvent(wsKind, "ws_error")
}

func wsEnvelope(event string, info ConnInfo, reason string) observability.EventEnvelope {
	var duration int64
	if !info.ConnectedAt.IsZero() {
		duration = time.Since(info.ConnectedAt).Milliseconds()
	}
	return observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"kind":        wsKind,
				"resource_id": info.UserID,
				"event":       event,
				"conn_id":     info.ConnID,
				"duration_ms": duration,
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id":   info.UserID,
				"device_id": info.DeviceID,
				"ip":        info.IP,
			},
		},
	}
}
