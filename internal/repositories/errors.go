package repositories

import (
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"meetup-chat/internal/apperr"
)

var (
	ErrUserNotFound        = apperr.NotFound("user not found")
	ErrInsufficientBalance = apperr.InsufficientBalance("insufficient balance")
	ErrRoomNotFound        = apperr.NotFound("room not found")
	ErrGiftNotFound        = apperr.NotFound("gift not found")
	ErrInvoiceNotFound     = apperr.NotFound("invoice not found")
	ErrDuplicateReference  = apperr.Conflict("duplicate external reference")
	ErrTransferNotFound    = apperr.NotFound("transfer application not found")
	ErrTransferProcessed   = apperr.Conflict("transfer application already processed")
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqForeignKeyViolation
	}
	return false
}
