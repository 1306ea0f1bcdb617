package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"meetup-chat/internal/middleware"
	"meetup-chat/internal/models"
	"meetup-chat/internal/services"
	"meetup-chat/internal/telemetry"
)

// AdminHandler serves the back-office room, notice and ledger endpoints.
type AdminHandler struct {
	rooms      *services.RoomService
	dispatcher *services.Dispatcher
	ledger     *services.Ledger
	audit      *telemetry.AuditEmitter
	log        *zap.Logger
}

// NewAdminHandler builds an AdminHandler.
func NewAdminHandler(rooms *services.RoomService, dispatcher *services.Dispatcher, ledger *services.Ledger,
	emitter *telemetry.AuditEmitter, log *zap.Logger) *AdminHandler {
	return &AdminHandler{
		rooms:      rooms,
		dispatcher: dispatcher,
		ledger:     ledger,
		audit:      emitter,
		log:        log.With(zap.String("component", "admin")),
	}
}

// ListRooms pages through every room, or one user's rooms with user_id.
func (h *AdminHandler) ListRooms(c *gin.Context) {
	userID, ok := queryInt(c, "user_id", 0)
	if !ok {
		return
	}
	page, ok := queryInt(c, "page", 1)
	if !ok {
		return
	}

	rooms, total, err := h.rooms.ListAllRooms(c.Request.Context(), userID, page)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "results": rooms})
}

// CreateRoom opens a group or admin room.
func (h *AdminHandler) CreateRoom(c *gin.Context) {
	var in services.CreateRoomInput
	if !bindJSON(c, &in) {
		return
	}

	room, err := h.rooms.CreateRoom(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	audit(c, h.audit, "room created")
	c.JSON(http.StatusCreated, room)
}

// UpdateMembers adds and removes members at once. Removed users are told
// through their system room.
func (h *AdminHandler) UpdateMembers(c *gin.Context) {
	roomID, ok := pathID(c, "room_id")
	if !ok {
		return
	}
	var req struct {
		Added   []int `json:"added"`
		Removed []int `json:"removed"`
	}
	if !bindJSON(c, &req) {
		return
	}
	h.applyMembership(c, roomID, req.Added, req.Removed)
}

// AddMember grants one user access to a room.
func (h *AdminHandler) AddMember(c *gin.Context) {
	roomID, ok := pathID(c, "room_id")
	if !ok {
		return
	}
	var req struct {
		UserID int `json:"user_id" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}
	h.applyMembership(c, roomID, []int{req.UserID}, nil)
}

// RemoveMember revokes one user's access and sends them the kick notice.
func (h *AdminHandler) RemoveMember(c *gin.Context) {
	roomID, ok := pathID(c, "room_id")
	if !ok {
		return
	}
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}
	h.applyMembership(c, roomID, nil, []int{userID})
}

func (h *AdminHandler) applyMembership(c *gin.Context, roomID int, added, removed []int) {
	ctx := c.Request.Context()
	before, err := h.rooms.GetRoom(ctx, roomID, c.GetInt(middleware.UserIDKey), models.RoleAdmin)
	if err != nil {
		respondError(c, err)
		return
	}

	change, err := h.rooms.UpdateMembership(ctx, roomID, added, removed)
	if err != nil {
		respondError(c, err)
		return
	}
	for _, userID := range change.Revoked {
		h.noticeKick(c, before, userID)
	}
	audit(c, h.audit, "room membership updated")
	c.JSON(http.StatusOK, change)
}

// noticeKick runs after the membership commit; a failed notice is logged only.
func (h *AdminHandler) noticeKick(c *gin.Context, room models.Room, userID int) {
	text, err := h.rooms.KickNotice(c.Request.Context(), room, userID)
	if err == nil {
		_, err = h.dispatcher.SendSystemMessage(c.Request.Context(), userID, text, nil)
	}
	if err != nil {
		h.log.Warn("kick notice failed", zap.Int("room_id", room.ID), zap.Int("user_id", userID), zap.Error(err))
	}
}

// SendBulk posts the same system notice to every listed user.
func (h *AdminHandler) SendBulk(c *gin.Context) {
	var req struct {
		UserIDs  []int   `json:"user_ids" binding:"required"`
		Content  string  `json:"content"`
		MediaIDs []int64 `json:"media_ids"`
	}
	if !bindJSON(c, &req) {
		return
	}

	results, err := h.dispatcher.SendBulkSystemMessages(c.Request.Context(), req.UserIDs, req.Content, req.MediaIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	audit(c, h.audit, "system notices sent")
	c.JSON(http.StatusCreated, gin.H{"sent": len(results)})
}

// ApplyMovement records a manual ledger adjustment.
func (h *AdminHandler) ApplyMovement(c *gin.Context) {
	var req struct {
		Kind       models.InvoiceType `json:"kind"`
		GiverID    *int               `json:"giver_id"`
		TakerID    *int               `json:"taker_id"`
		GiveAmount int64              `json:"give_amount"`
		TakeAmount int64              `json:"take_amount"`
		Reason     string             `json:"reason"`
	}
	if !bindJSON(c, &req) {
		return
	}
	if req.Kind == "" {
		req.Kind = models.InvoiceAdjust
	}

	res, err := h.ledger.ApplyMovement(c.Request.Context(), models.Movement{
		Kind:       req.Kind,
		GiverID:    req.GiverID,
		TakerID:    req.TakerID,
		GiveAmount: req.GiveAmount,
		TakeAmount: req.TakeAmount,
		Reason:     req.Reason,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	audit(c, h.audit, "ledger movement applied")
	c.JSON(http.StatusCreated, res)
}
