package services

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"meetup-chat/internal/apperr"
	"meetup-chat/internal/db"
	"meetup-chat/internal/models"
	"meetup-chat/internal/repositories"
)

const (
	transferBaseFee  = 440
	transferFeeSlice = 50
)

// TransferFee is the payout fee for point: a flat 440 plus one per started 50.
func TransferFee(point int64) int64 {
	return transferBaseFee + (point+transferFeeSlice-1)/transferFeeSlice
}

// TransferDesk handles cast payout applications.
type TransferDesk struct {
	tx        db.TxRunner
	users     repositories.UserRepository
	transfers repositories.TransferRepository
	ledger    *Ledger
	log       *zap.Logger
}

// NewTransferDesk constructs a TransferDesk.
func NewTransferDesk(tx db.TxRunner, users repositories.UserRepository, transfers repositories.TransferRepository,
	ledger *Ledger, log *zap.Logger) *TransferDesk {
	return &TransferDesk{
		tx:        tx,
		users:     users,
		transfers: transfers,
		ledger:    ledger,
		log:       log.With(zap.String("component", "transfers")),
	}
}

// Apply records a payout request for point, or for the whole balance when
// point is nil. Balances are not touched until the application is processed.
func (d *TransferDesk) Apply(ctx context.Context, userID int, point *int64) (models.TransferApplication, error) {
	user, err := d.users.GetUser(ctx, userID)
	if err != nil {
		return models.TransferApplication{}, err
	}
	if user.Role != models.RoleCast {
		return models.TransferApplication{}, apperr.Forbidden("only casts can request payouts")
	}

	requested := user.Point
	if point != nil {
		requested = *point
	}
	switch {
	case requested <= 0:
		return models.TransferApplication{}, apperr.Validation("nothing to transfer")
	case requested > user.Point:
		return models.TransferApplication{}, apperr.InsufficientBalance("requested points exceed balance")
	}

	fee := TransferFee(requested)
	amount := requested - fee
	if amount < 0 {
		return models.TransferApplication{}, apperr.Validation("requested points do not cover the transfer fee")
	}

	app, err := d.transfers.CreateApplication(ctx, models.TransferApplication{
		UserID: userID,
		Point:  requested,
		Fee:    fee,
		Amount: amount,
	})
	if err != nil {
		return models.TransferApplication{}, err
	}
	d.log.Info("transfer requested", zap.Int("user_id", userID), zap.Int("application_id", app.ID), zap.Int64("point", requested))
	return app, nil
}

// List returns one filtered page of applications and the total match count.
func (d *TransferDesk) List(ctx context.Context, filter models.TransferFilter) ([]models.TransferApplication, int, error) {
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, 0, apperr.Validation("empty date range")
	}
	if filter.PageSize <= 0 {
		filter.PageSize = pageSize
	}
	return d.transfers.List(ctx, filter)
}

// Process approves a pending application exactly once and debits the points
// recorded when it was requested. A concurrent second attempt gets a conflict.
func (d *TransferDesk) Process(ctx context.Context, id int) (models.TransferApplication, error) {
	var (
		app models.TransferApplication
		mv  MovementResult
	)
	err := d.tx.InTx(ctx, func(q sqlx.ExtContext) error {
		var err error
		app, err = d.transfers.MarkProcessed(ctx, q, id)
		if err != nil {
			return err
		}
		userID := app.UserID
		mv, err = d.ledger.ApplyIn(ctx, q, models.Movement{
			Kind:       models.InvoiceTransfer,
			GiverID:    &userID,
			GiveAmount: app.Point,
			Reason:     fmt.Sprintf("transfer application %d", app.ID),
		})
		return err
	})
	if err != nil {
		return models.TransferApplication{}, err
	}

	d.ledger.Committed(ctx, []MovementResult{mv})
	d.log.Info("transfer processed", zap.Int("application_id", app.ID), zap.Int("user_id", app.UserID), zap.Int64("point", app.Point))
	return app, nil
}
