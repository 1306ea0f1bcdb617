package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"meetup-chat/internal/apperr"
	"meetup-chat/internal/middleware"
	"meetup-chat/internal/models"
	"meetup-chat/internal/services"
	"meetup-chat/internal/telemetry"
)

const dateLayout = "2006-01-02"

// TransferHandler serves cast payout applications and their admin processing.
type TransferHandler struct {
	desk  *services.TransferDesk
	audit *telemetry.AuditEmitter
}

// NewTransferHandler builds a TransferHandler.
func NewTransferHandler(desk *services.TransferDesk, emitter *telemetry.AuditEmitter) *TransferHandler {
	return &TransferHandler{desk: desk, audit: emitter}
}

// Apply records a payout request. Omitting point requests the whole balance.
func (h *TransferHandler) Apply(c *gin.Context) {
	var req struct {
		Point *int64 `json:"point"`
	}
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}

	app, err := h.desk.Apply(c.Request.Context(), c.GetInt(middleware.UserIDKey), req.Point)
	if err != nil {
		respondError(c, err)
		return
	}
	audit(c, h.audit, "transfer requested")
	c.JSON(http.StatusCreated, app)
}

// ListMine returns the caller's applications.
func (h *TransferHandler) ListMine(c *gin.Context) {
	filter, ok := transferFilter(c)
	if !ok {
		return
	}
	userID := c.GetInt(middleware.UserIDKey)
	filter.UserID = &userID
	h.list(c, filter)
}

// AdminList returns applications filtered by status, user and date range.
func (h *TransferHandler) AdminList(c *gin.Context) {
	filter, ok := transferFilter(c)
	if !ok {
		return
	}
	if raw := c.Query("user_id"); raw != "" {
		userID, err := strconv.Atoi(raw)
		if err != nil {
			respondError(c, apperr.Validation("invalid user_id"))
			return
		}
		filter.UserID = &userID
	}
	h.list(c, filter)
}

// Process approves one pending application and debits its points.
func (h *TransferHandler) Process(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	app, err := h.desk.Process(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	audit(c, h.audit, "transfer processed")
	c.JSON(http.StatusOK, app)
}

func (h *TransferHandler) list(c *gin.Context, filter models.TransferFilter) {
	apps, total, err := h.desk.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "results": apps})
}

// transferFilter reads status, page and the from/to dates. to is inclusive.
func transferFilter(c *gin.Context) (models.TransferFilter, bool) {
	var filter models.TransferFilter
	page, ok := queryInt(c, "page", 1)
	if !ok {
		return filter, false
	}
	filter.Page = page

	if raw := c.Query("status"); raw != "" {
		v, err := strconv.Atoi(raw)
		status := models.TransferStatus(v)
		if err != nil || (status != models.TransferPending && status != models.TransferProcessed) {
			respondError(c, apperr.Validation("invalid status"))
			return filter, false
		}
		filter.Status = &status
	}
	if raw := c.Query("from"); raw != "" {
		from, err := time.Parse(dateLayout, raw)
		if err != nil {
			respondError(c, apperr.Validation("invalid from date"))
			return filter, false
		}
		filter.From = &from
	}
	if raw := c.Query("to"); raw != "" {
		to, err := time.Parse(dateLayout, raw)
		if err != nil {
			respondError(c, apperr.Validation("invalid to date"))
			return filter, false
		}
		to = to.AddDate(0, 0, 1)
		filter.To = &to
	}
	return filter, true
}
