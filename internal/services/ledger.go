package services

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"meetup-chat/internal/apperr"
	"meetup-chat/internal/db"
	"meetup-chat/internal/models"
	"meetup-chat/internal/notify"
	"meetup-chat/internal/observability"
	"meetup-chat/internal/repositories"
	"meetup-chat/internal/telemetry"
)

const pageSize = 10

// MovementResult is a committed ledger row with the balances it produced.
type MovementResult struct {
	Invoice      models.Invoice  `json:"invoice"`
	GiverBalance *models.Balance `json:"giver_balance,omitempty"`
	TakerBalance *models.Balance `json:"taker_balance,omitempty"`
}

// Ledger pairs every balance change with exactly one invoice row.
type Ledger struct {
	tx       db.TxRunner
	users    repositories.UserRepository
	invoices repositories.InvoiceRepository
	events   telemetry.Publisher
	notifier notify.Notifier
	log      *zap.Logger
}

// NewLedger constructs a Ledger.
func NewLedger(tx db.TxRunner, users repositories.UserRepository, invoices repositories.InvoiceRepository,
	events telemetry.Publisher, notifier notify.Notifier, log *zap.Logger) *Ledger {
	return &Ledger{
		tx:       tx,
		users:    users,
		invoices: invoices,
		events:   events,
		notifier: notifier,
		log:      log.With(zap.String("component", "ledger")),
	}
}

// ApplyMovement runs one movement in its own transaction.
func (l *Ledger) ApplyMovement(ctx context.Context, m models.Movement) (MovementResult, error) {
	var res MovementResult
	err := l.tx.InTx(ctx, func(q sqlx.ExtContext) error {
		var err error
		res, err = l.ApplyIn(ctx, q, m)
		return err
	})
	if err != nil {
		l.rejected(m.Kind, err)
		return MovementResult{}, err
	}
	l.Committed(ctx, []MovementResult{res})
	return res, nil
}

// ApplyIn applies a movement inside the caller's transaction. The giver is
// debited first so an uncovered amount fails before anything is written.
func (l *Ledger) ApplyIn(ctx context.Context, q sqlx.ExtContext, m models.Movement) (MovementResult, error) {
	if err := validateMovement(m); err != nil {
		return MovementResult{}, err
	}

	var res MovementResult
	if m.GiverID != nil && m.GiveAmount > 0 {
		bal, err := l.users.Debit(ctx, q, *m.GiverID, m.GiveAmount, m.Kind.CountsAsUsage())
		if err != nil {
			return MovementResult{}, fmt.Errorf("debit user %d: %w", *m.GiverID, err)
		}
		res.GiverBalance = &bal
	}
	if m.TakerID != nil && m.TakeAmount > 0 {
		bal, err := l.users.Credit(ctx, q, *m.TakerID, m.TakeAmount)
		if err != nil {
			return MovementResult{}, fmt.Errorf("credit user %d: %w", *m.TakerID, err)
		}
		res.TakerBalance = &bal
	}

	inv, err := l.invoices.CreateInvoice(ctx, q, m)
	if err != nil {
		return MovementResult{}, fmt.Errorf("record invoice: %w", err)
	}
	res.Invoice = inv
	return res, nil
}

func validateMovement(m models.Movement) error {
	switch {
	case !m.Kind.Valid():
		return apperr.Validation("unknown movement kind")
	case m.GiveAmount < 0 || m.TakeAmount < 0:
		return apperr.Validation("amounts must not be negative")
	case m.GiverID == nil && m.TakerID == nil:
		return apperr.Validation("movement needs a giver or a taker")
	case m.GiveAmount > 0 && m.GiverID == nil:
		return apperr.Validation("give amount without giver")
	case m.TakeAmount > 0 && m.TakerID == nil:
		return apperr.Validation("take amount without taker")
	}
	return nil
}

// Committed publishes ledger events and balance pushes for movements whose
// transaction has committed. Failures are logged only.
func (l *Ledger) Committed(ctx context.Context, results []MovementResult) {
	for _, res := range results {
		observability.IncLedgerMovement(string(res.Invoice.InvoiceType))
		if l.events != nil {
			envelope := observability.EventEnvelope{
				EventType: "ledger",
				EventName: "invoice_created",
				Payload:   res.Invoice,
			}
			headers := observability.BuildHeaders("", observability.TraceIDFromContext(ctx))
			if err := l.events.Publish(ctx, telemetry.RoutingInvoiceCreated, envelope, headers); err != nil {
				observability.IncAMQPPublishError()
				l.log.Warn("ledger event publish failed", zap.Int("invoice_id", res.Invoice.ID), zap.Error(err))
			}
		}
		if l.notifier != nil {
			for _, bal := range []*models.Balance{res.GiverBalance, res.TakerBalance} {
				if bal != nil {
					l.notifier.Publish(bal.UserID, models.EventUserUpdate, bal)
				}
			}
		}
	}
}

func (l *Ledger) rejected(kind models.InvoiceType, err error) {
	reason := "error"
	switch apperr.CodeOf(err) {
	case apperr.CodeInsufficientBalance:
		reason = "insufficient_balance"
	case apperr.CodeInvalidArgument:
		reason = "invalid"
	case apperr.CodeConflict:
		reason = "conflict"
	case apperr.CodeNotFound:
		reason = "not_found"
	}
	observability.IncLedgerRejected(string(kind), reason)
}

// BuyPoints credits a confirmed purchase once per payment reference. A
// replayed reference returns the original invoice.
func (l *Ledger) BuyPoints(ctx context.Context, userID int, points int64, paymentRef string) (MovementResult, error) {
	if points <= 0 {
		return MovementResult{}, apperr.Validation("points must be positive")
	}
	if paymentRef == "" {
		return MovementResult{}, apperr.Validation("payment reference is required")
	}

	res, err := l.ApplyMovement(ctx, models.Movement{
		Kind:        models.InvoiceBuy,
		TakerID:     &userID,
		TakeAmount:  points,
		Reason:      "point purchase",
		ExternalRef: paymentRef,
	})
	if !errors.Is(err, repositories.ErrDuplicateReference) {
		return res, err
	}

	existing, err := l.invoices.GetByExternalRef(ctx, paymentRef)
	if err != nil {
		return MovementResult{}, fmt.Errorf("load purchase %q: %w", paymentRef, err)
	}
	if existing.TakerID == nil || *existing.TakerID != userID {
		return MovementResult{}, apperr.Conflict("payment reference belongs to another purchase")
	}
	bal, err := l.Balance(ctx, userID)
	if err != nil {
		return MovementResult{}, err
	}
	return MovementResult{Invoice: existing, TakerBalance: &bal}, nil
}

// Balance returns the user's current points.
func (l *Ledger) Balance(ctx context.Context, userID int) (models.Balance, error) {
	user, err := l.users.GetUser(ctx, userID)
	if err != nil {
		return models.Balance{}, err
	}
	return models.Balance{UserID: user.ID, Point: user.Point, PointUsed: user.PointUsed}, nil
}

// ListInvoices returns one page of the user's ledger rows.
func (l *Ledger) ListInvoices(ctx context.Context, userID int, page int) ([]models.Invoice, error) {
	limit, offset := pageBounds(page, 0)
	return l.invoices.ListForUser(ctx, userID, limit, offset)
}

// pageBounds converts 1-based page plus an extra offset into LIMIT/OFFSET.
func pageBounds(page, offset int) (int, int) {
	if page < 1 {
		page = 1
	}
	if offset < 0 {
		offset = 0
	}
	return pageSize, offset + (page-1)*pageSize
}
