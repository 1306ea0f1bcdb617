package repositories

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"meetup-chat/internal/models"
)

// InvoiceRepository appends and reads ledger rows. Rows are never updated.
type InvoiceRepository interface {
	CreateInvoice(ctx context.Context, q sqlx.ExtContext, m models.Movement) (models.Invoice, error)
	GetByExternalRef(ctx context.Context, ref string) (models.Invoice, error)
	ListForUser(ctx context.Context, userID int, limit, offset int) ([]models.Invoice, error)
}

// InvoiceRepo is a sqlx implementation of InvoiceRepository.
type InvoiceRepo struct {
	db *sqlx.DB
}

// NewInvoiceRepo constructs an InvoiceRepo.
func NewInvoiceRepo(db *sqlx.DB) *InvoiceRepo {
	return &InvoiceRepo{db: db}
}

const invoiceColumns = `id, invoice_type, giver_id, taker_id, give_amount, take_amount, gift_id, room_id, order_id, reason, external_ref, created_at`

// CreateInvoice inserts one ledger row. A reused external reference yields
// ErrDuplicateReference.
func (r *InvoiceRepo) CreateInvoice(ctx context.Context, q sqlx.ExtContext, m models.Movement) (models.Invoice, error) {
	var ref sql.NullString
	if m.ExternalRef != "" {
		ref = sql.NullString{String: m.ExternalRef, Valid: true}
	}

	var inv models.Invoice
	err := sqlx.GetContext(ctx, q, &inv, `INSERT INTO invoices
        (invoice_type, giver_id, taker_id, give_amount, take_amount, gift_id, room_id, order_id, reason, external_ref)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING `+invoiceColumns,
		m.Kind, nullInt(m.GiverID), nullInt(m.TakerID), m.GiveAmount, m.TakeAmount,
		nullInt(m.GiftID), nullInt(m.RoomID), nullInt(m.OrderID), m.Reason, ref)
	if isUniqueViolation(err) {
		return models.Invoice{}, ErrDuplicateReference
	}
	return inv, errors.Wrap(err, "create invoice")
}

// GetByExternalRef finds the invoice recorded for a payment reference.
func (r *InvoiceRepo) GetByExternalRef(ctx context.Context, ref string) (models.Invoice, error) {
	var inv models.Invoice
	err := r.db.GetContext(ctx, &inv, `SELECT `+invoiceColumns+` FROM invoices WHERE external_ref=$1`, ref)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Invoice{}, ErrInvoiceNotFound
	}
	return inv, errors.Wrap(err, "get invoice by ref")
}

// ListForUser returns ledger rows where the user gave or took points, newest first.
func (r *InvoiceRepo) ListForUser(ctx context.Context, userID int, limit, offset int) ([]models.Invoice, error) {
	invoices := []models.Invoice{}
	err := r.db.SelectContext(ctx, &invoices, `SELECT `+invoiceColumns+` FROM invoices
        WHERE giver_id=$1 OR taker_id=$1
        ORDER BY created_at DESC, id DESC
        LIMIT $2 OFFSET $3`, userID, limit, offset)
	return invoices, errors.Wrap(err, "list invoices")
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
