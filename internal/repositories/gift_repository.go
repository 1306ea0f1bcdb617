package repositories

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"meetup-chat/internal/models"
)

// GiftRepository reads the gift catalog.
type GiftRepository interface {
	GetGift(ctx context.Context, q sqlx.ExtContext, giftID int) (models.Gift, error)
}

// GiftRepo is a sqlx implementation of GiftRepository.
type GiftRepo struct {
	db *sqlx.DB
}

// NewGiftRepo constructs a GiftRepo.
func NewGiftRepo(db *sqlx.DB) *GiftRepo {
	return &GiftRepo{db: db}
}

// GetGift fetches a catalog entry.
func (r *GiftRepo) GetGift(ctx context.Context, q sqlx.ExtContext, giftID int) (models.Gift, error) {
	var gift models.Gift
	err := sqlx.GetContext(ctx, q, &gift, `SELECT id, name, point, back FROM gifts WHERE id=$1`, giftID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Gift{}, ErrGiftNotFound
	}
	return gift, errors.Wrap(err, "get gift")
}
