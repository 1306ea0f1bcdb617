package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"meetup-chat/internal/middleware"
	"meetup-chat/internal/models"
	"meetup-chat/internal/services"
)

// RoomHandler serves the caller's room list and private room creation.
type RoomHandler struct {
	rooms  *services.RoomService
	unread *services.UnreadTracker
}

// NewRoomHandler builds a RoomHandler.
func NewRoomHandler(rooms *services.RoomService, unread *services.UnreadTracker) *RoomHandler {
	return &RoomHandler{rooms: rooms, unread: unread}
}

// ListRooms returns one page of the caller's rooms with unread counts.
func (h *RoomHandler) ListRooms(c *gin.Context) {
	page, ok := queryInt(c, "page", 1)
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset", 0)
	if !ok {
		return
	}

	rooms, err := h.rooms.ListRoomsForUser(c.Request.Context(), c.GetInt(middleware.UserIDKey),
		c.Query("mode"), c.Query("keyword"), page, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

// OpenPrivateRoom returns the private room between the caller and user_id.
func (h *RoomHandler) OpenPrivateRoom(c *gin.Context) {
	var req struct {
		UserID int `json:"user_id" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}

	room, created, err := h.rooms.FindOrCreatePrivateRoom(c.Request.Context(), c.GetInt(middleware.UserIDKey), req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"room": room, "created": created})
}

// GetRoom returns the room to a member, or to an admin.
func (h *RoomHandler) GetRoom(c *gin.Context) {
	roomID, ok := pathID(c, "room_id")
	if !ok {
		return
	}
	role, _ := c.Get(middleware.RoleKey)
	roleValue, _ := role.(models.Role)

	room, err := h.rooms.GetRoom(c.Request.Context(), roomID, c.GetInt(middleware.UserIDKey), roleValue)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

// MarkRead clears the caller's unread copies in the room.
func (h *RoomHandler) MarkRead(c *gin.Context) {
	roomID, ok := pathID(c, "room_id")
	if !ok {
		return
	}

	updated, err := h.unread.MarkRoomRead(c.Request.Context(), roomID, c.GetInt(middleware.UserIDKey))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}
