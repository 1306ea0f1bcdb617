package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"meetup-chat/internal/middleware"
	"meetup-chat/internal/services"
	"meetup-chat/internal/telemetry"
)

// MessageHandler serves posting, listing and liking.
type MessageHandler struct {
	dispatcher *services.Dispatcher
	unread     *services.UnreadTracker
	audit      *telemetry.AuditEmitter
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(dispatcher *services.Dispatcher, unread *services.UnreadTracker, emitter *telemetry.AuditEmitter) *MessageHandler {
	return &MessageHandler{dispatcher: dispatcher, unread: unread, audit: emitter}
}

// ListMessages returns the caller's copies in a room, newest first.
func (h *MessageHandler) ListMessages(c *gin.Context) {
	roomID, ok := pathID(c, "room_id")
	if !ok {
		return
	}
	page, ok := queryInt(c, "page", 1)
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset", 0)
	if !ok {
		return
	}

	msgs, err := h.dispatcher.ListMessages(c.Request.Context(), roomID, c.GetInt(middleware.UserIDKey), page, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostMessage sends text, media or a gift to the room.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	roomID, ok := pathID(c, "room_id")
	if !ok {
		return
	}
	var in services.PostInput
	if !bindJSON(c, &in) {
		return
	}
	in.RoomID = roomID
	in.SenderID = c.GetInt(middleware.UserIDKey)

	res, err := h.dispatcher.PostMessage(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	if in.GiftID != nil {
		audit(c, h.audit, "gift sent")
	}
	c.JSON(http.StatusCreated, res)
}

// UnreadCount returns how many copies addressed to the caller are unread.
func (h *MessageHandler) UnreadCount(c *gin.Context) {
	count, err := h.unread.UnreadCount(c.Request.Context(), c.GetInt(middleware.UserIDKey))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": count})
}

// Like records a like from the caller to user_id.
func (h *MessageHandler) Like(c *gin.Context) {
	targetID, ok := pathID(c, "user_id")
	if !ok {
		return
	}

	res, err := h.dispatcher.Like(c.Request.Context(), c.GetInt(middleware.UserIDKey), targetID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
