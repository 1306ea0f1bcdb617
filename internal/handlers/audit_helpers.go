package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"meetup-chat/internal/middleware"
	"meetup-chat/internal/telemetry"
)

const requestIDContextKey = "request_id"

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

// auditUserID renders the caller for audit envelopes, nil when anonymous.
func auditUserID(c *gin.Context) *string {
	userID := c.GetInt(middleware.UserIDKey)
	if userID == 0 {
		return nil
	}
	value := strconv.Itoa(userID)
	return &value
}

func audit(c *gin.Context, emitter *telemetry.AuditEmitter, text string) {
	emitter.Emit(c.Request.Context(), "INFO", text, requestIDFromContext(c), auditUserID(c))
}
