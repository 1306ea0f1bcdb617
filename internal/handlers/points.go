package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"meetup-chat/internal/middleware"
	"meetup-chat/internal/services"
	"meetup-chat/internal/telemetry"
)

type PointHandler struct {
	ledger *services.Ledger
	audit  *telemetry.AuditEmitter
}

// NewPointHandler constructs a PointHandler.
func NewPointHandler(ledger *services.Ledger, emitter *telemetry.AuditEmitter) *PointHandler {
	return &PointHandler{ledger: ledger, audit: emitter}
}

// Balance returns the caller's point balance.
func (h *PointHandler) Balance(c *gin.Context) {
	bal, err := h.ledger.Balance(c.Request.Context(), c.GetInt(middleware.UserIDKey))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bal)
}

// ListInvoices pages through the caller's ledger rows, newest first.
func (h *PointHandler) ListInvoices(c *gin.Context) {
	page, ok := queryInt(c, "page", 1)
	if !ok {
		return
	}
	invoices, err := h.ledger.ListInvoices(c.Request.Context(), c.GetInt(middleware.UserIDKey), page)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoices": invoices})
}

// BuyPoints credits a confirmed purchase. Replaying payment_ref is safe.
func (h *PointHandler) BuyPoints(c *gin.Context) {
	var req struct {
		Points     int64  `json:"points" binding:"required"`
		PaymentRef string `json:"payment_ref" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.ledger.BuyPoints(c.Request.Context(), c.GetInt(middleware.UserIDKey), req.Points, req.PaymentRef)
	if err != nil {
		respondError(c, err)
		return
	}
	audit(c, h.audit, "points purchased")
	c.JSON(http.StatusOK, gin.H{"invoice": res.Invoice, "balance": res.TakerBalance})
}
