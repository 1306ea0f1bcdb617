package handlers

import (
	"github.com/gin-gonic/gin"

	"meetup-chat/internal/middleware"
	"meetup-chat/internal/models"
)

// Handlers groups everything RegisterRoutes mounts.
type Handlers struct {
	Rooms     *RoomHandler
	Messages  *MessageHandler
	Points    *PointHandler
	Transfers *TransferHandler
	Admin     *AdminHandler
}

// RegisterRoutes mounts the authenticated REST API.
func RegisterRoutes(router gin.IRouter, validator *middleware.TokenValidator, h Handlers) {
	api := router.Group("/", middleware.AuthMiddleware(validator))

	api.GET("/rooms", h.Rooms.ListRooms)
	api.POST("/rooms/private", h.Rooms.OpenPrivateRoom)
	api.GET("/rooms/:room_id", h.Rooms.GetRoom)
	api.PUT("/rooms/:room_id/read", h.Rooms.MarkRead)

	api.GET("/rooms/:room_id/messages", h.Messages.ListMessages)
	api.POST("/rooms/:room_id/messages", h.Messages.PostMessage)
	api.GET("/messages/unread", h.Messages.UnreadCount)
	api.POST("/users/:user_id/like", h.Messages.Like)

	api.GET("/points", h.Points.Balance)
	api.GET("/invoices", h.Points.ListInvoices)
	api.POST("/points/buy", h.Points.BuyPoints)

	api.POST("/transfers", h.Transfers.Apply)
	api.GET("/transfers", h.Transfers.ListMine)

	admin := api.Group("/admin", middleware.RequireRole(models.RoleAdmin))
	admin.GET("/rooms", h.Admin.ListRooms)
	admin.POST("/rooms", h.Admin.CreateRoom)
	admin.PUT("/rooms/:room_id/members", h.Admin.UpdateMembers)
	admin.POST("/rooms/:room_id/members", h.Admin.AddMember)
	admin.DELETE("/rooms/:room_id/members/:user_id", h.Admin.RemoveMember)
	admin.POST("/messages/bulk", h.Admin.SendBulk)
	admin.POST("/points/movements", h.Admin.ApplyMovement)
	admin.GET("/transfers", h.Transfers.AdminList)
	admin.POST("/transfers/:id/process", h.Transfers.Process)
}
