package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"meetup-chat/internal/models"
)

// TransferRepository persists payout applications.
type TransferRepository interface {
	CreateApplication(ctx context.Context, app models.TransferApplication) (models.TransferApplication, error)
	GetApplication(ctx context.Context, q sqlx.ExtContext, id int) (models.TransferApplication, error)
	MarkProcessed(ctx context.Context, q sqlx.ExtContext, id int) (models.TransferApplication, error)
	List(ctx context.Context, filter models.TransferFilter) ([]models.TransferApplication, int, error)
}

// TransferRepo is a sqlx implementation of TransferRepository.
type TransferRepo struct {
	db *sqlx.DB
}

// NewTransferRepo constructs a TransferRepo.
func NewTransferRepo(db *sqlx.DB) *TransferRepo {
	return &TransferRepo{db: db}
}

const transferColumns = `id, user_id, point, fee, amount, status, created_at, processed_at`

// CreateApplication stores a pending application.
func (r *TransferRepo) CreateApplication(ctx context.Context, app models.TransferApplication) (models.TransferApplication, error) {
	var created models.TransferApplication
	err := r.db.GetContext(ctx, &created, `INSERT INTO transfer_applications (user_id, point, fee, amount, status)
        VALUES ($1, $2, $3, $4, $5) RETURNING `+transferColumns,
		app.UserID, app.Point, app.Fee, app.Amount, models.TransferPending)
	return created, errors.Wrap(err, "create transfer application")
}

// GetApplication fetches an application by id.
func (r *TransferRepo) GetApplication(ctx context.Context, q sqlx.ExtContext, id int) (models.TransferApplication, error) {
	var app models.TransferApplication
	err := sqlx.GetContext(ctx, q, &app, `SELECT `+transferColumns+` FROM transfer_applications WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.TransferApplication{}, ErrTransferNotFound
	}
	return app, errors.Wrap(err, "get transfer application")
}

// MarkProcessed moves a pending application to processed. Only one caller can
// win: the others get ErrTransferProcessed.
func (r *TransferRepo) MarkProcessed(ctx context.Context, q sqlx.ExtContext, id int) (models.TransferApplication, error) {
	var app models.TransferApplication
	err := sqlx.GetContext(ctx, q, &app, `UPDATE transfer_applications SET status=$2, processed_at=NOW()
        WHERE id=$1 AND status=$3 RETURNING `+transferColumns,
		id, models.TransferProcessed, models.TransferPending)
	if errors.Is(err, sql.ErrNoRows) {
		if _, lookupErr := r.GetApplication(ctx, q, id); lookupErr != nil {
			return models.TransferApplication{}, lookupErr
		}
		return models.TransferApplication{}, ErrTransferProcessed
	}
	return app, errors.Wrap(err, "mark transfer processed")
}

// List applies the typed filter and returns one page plus the total count.
func (r *TransferRepo) List(ctx context.Context, filter models.TransferFilter) ([]models.TransferApplication, int, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.Status != nil {
		add("status=$%d", *filter.Status)
	}
	if filter.UserID != nil {
		add("user_id=$%d", *filter.UserID)
	}
	if filter.From != nil {
		add("created_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("created_at < $%d", *filter.To)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM transfer_applications`+where, args...); err != nil {
		return nil, 0, errors.Wrap(err, "count transfer applications")
	}

	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 10
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	query := fmt.Sprintf(`SELECT %s FROM transfer_applications%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		transferColumns, where, len(args)+1, len(args)+2)
	args = append(args, pageSize, (page-1)*pageSize)

	apps := []models.TransferApplication{}
	if err := r.db.SelectContext(ctx, &apps, query, args...); err != nil {
		return nil, 0, errors.Wrap(err, "list transfer applications")
	}
	return apps, total, nil
}
