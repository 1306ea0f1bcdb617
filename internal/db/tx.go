package db

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"meetup-chat/internal/apperr"
)

const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

// ErrTxAborted is returned when Postgres aborted the transaction to break a
// lock cycle or a serialization conflict. The caller may retry.
var ErrTxAborted = apperr.Conflict("concurrent update, please retry")

// TxRunner runs fn inside one database transaction. Repository methods that
// take a sqlx.ExtContext can be called with the handle passed to fn.
type TxRunner interface {
	InTx(ctx context.Context, fn func(q sqlx.ExtContext) error) error
}

// TxManager is the sqlx implementation of TxRunner.
type TxManager struct {
	db *sqlx.DB
}

// NewTxManager constructs a TxManager.
func NewTxManager(db *sqlx.DB) *TxManager {
	return &TxManager{db: db}
}

// InTx commits when fn returns nil and rolls back otherwise. Errors from fn
// are returned unchanged so callers can inspect their codes, except aborts
// Postgres forced on the transaction, which become ErrTxAborted.
func (m *TxManager) InTx(ctx context.Context, fn func(q sqlx.ExtContext) error) (err error) {
	tx, err := m.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return translateAbort(err)
	}
	if err = tx.Commit(); err != nil {
		return translateAbort(errors.Wrap(err, "commit tx"))
	}
	return nil
}

func translateAbort(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqDeadlockDetected, pqSerializationFailure:
			return apperr.Wrap(apperr.CodeConflict, "concurrent update, please retry", err)
		}
	}
	return err
}
