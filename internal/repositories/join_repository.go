package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

// JoinRepository covers the participation records of the call subsystem that
// membership changes must close.
type JoinRepository interface {
	EndJoinsForRoom(ctx context.Context, q sqlx.ExtContext, roomID int, userIDs []int) (int64, error)
}

// FavoriteRepository stores the like relation between users.
type FavoriteRepository interface {
	AddFavorite(ctx context.Context, q sqlx.ExtContext, followerID, favoriteID int) (bool, error)
}

// JoinRepo is a sqlx implementation of JoinRepository and FavoriteRepository.
type JoinRepo struct {
	db *sqlx.DB
}

// NewJoinRepo constructs a JoinRepo.
func NewJoinRepo(db *sqlx.DB) *JoinRepo {
	return &JoinRepo{db: db}
}

// EndJoinsForRoom marks the open joins of userIDs on orders attached to the
// room as ended.
func (r *JoinRepo) EndJoinsForRoom(ctx context.Context, q sqlx.ExtContext, roomID int, userIDs []int) (int64, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	res, err := q.ExecContext(ctx, `UPDATE joins SET is_ended = TRUE, ended_at = NOW()
        WHERE is_ended = FALSE
        AND user_id = ANY($2::int[])
        AND order_id IN (SELECT id FROM orders WHERE room_id=$1)`, roomID, pq.Array(userIDs))
	if err != nil {
		return 0, errors.Wrap(err, "end joins")
	}
	count, err := res.RowsAffected()
	return count, errors.Wrap(err, "end joins")
}

// AddFavorite records that followerID likes favoriteID. It reports false when
// the relation already existed.
func (r *JoinRepo) AddFavorite(ctx context.Context, q sqlx.ExtContext, followerID, favoriteID int) (bool, error) {
	res, err := q.ExecContext(ctx, `INSERT INTO favorites (follower_id, favorite_id) VALUES ($1, $2)
        ON CONFLICT (follower_id, favorite_id) DO NOTHING`, followerID, favoriteID)
	if isForeignKeyViolation(err) {
		return false, ErrUserNotFound
	}
	if err != nil {
		return false, errors.Wrap(err, "add favorite")
	}
	count, err := res.RowsAffected()
	return count > 0, errors.Wrap(err, "add favorite")
}
