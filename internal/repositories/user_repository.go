package repositories

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"meetup-chat/internal/models"
)

// UserRepository reads accounts and applies balance changes. Balance writes
// always run inside the caller's transaction.
type UserRepository interface {
	GetUser(ctx context.Context, userID int) (models.User, error)
	GetBalance(ctx context.Context, q sqlx.ExtContext, userID int) (models.Balance, error)
	Debit(ctx context.Context, q sqlx.ExtContext, userID int, amount int64, countUsage bool) (models.Balance, error)
	Credit(ctx context.Context, q sqlx.ExtContext, userID int, amount int64) (models.Balance, error)
	ExistingIDs(ctx context.Context, q sqlx.ExtContext, userIDs []int) ([]int, error)
	LockUsers(ctx context.Context, q sqlx.ExtContext, userIDs []int) ([]int, error)
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

const userColumns = `id, username, nickname, role, point, point_used, is_active, is_verified, created_at, updated_at`

// GetUser fetches an account by id.
func (r *UserRepo) GetUser(ctx context.Context, userID int) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, errors.Wrap(err, "get user")
}

// GetBalance reads the current balance through q.
func (r *UserRepo) GetBalance(ctx context.Context, q sqlx.ExtContext, userID int) (models.Balance, error) {
	var bal models.Balance
	err := sqlx.GetContext(ctx, q, &bal, `SELECT id, point, point_used FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Balance{}, ErrUserNotFound
	}
	return bal, errors.Wrap(err, "get balance")
}

// Debit is an atomic conditional decrement: it only applies when the balance
// covers amount. countUsage also moves the amount into point_used.
func (r *UserRepo) Debit(ctx context.Context, q sqlx.ExtContext, userID int, amount int64, countUsage bool) (models.Balance, error) {
	query := `UPDATE users SET point = point - $2, updated_at = NOW()
        WHERE id=$1 AND point >= $2 RETURNING id, point, point_used`
	if countUsage {
		query = `UPDATE users SET point = point - $2, point_used = point_used + $2, updated_at = NOW()
        WHERE id=$1 AND point >= $2 RETURNING id, point, point_used`
	}

	var bal models.Balance
	err := sqlx.GetContext(ctx, q, &bal, query, userID, amount)
	if errors.Is(err, sql.ErrNoRows) {
		if _, lookupErr := r.GetBalance(ctx, q, userID); lookupErr != nil {
			return models.Balance{}, lookupErr
		}
		return models.Balance{}, ErrInsufficientBalance
	}
	return bal, errors.Wrap(err, "debit balance")
}

// Credit adds amount to the balance.
func (r *UserRepo) Credit(ctx context.Context, q sqlx.ExtContext, userID int, amount int64) (models.Balance, error) {
	var bal models.Balance
	err := sqlx.GetContext(ctx, q, &bal, `UPDATE users SET point = point + $2, updated_at = NOW()
        WHERE id=$1 RETURNING id, point, point_used`, userID, amount)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Balance{}, ErrUserNotFound
	}
	return bal, errors.Wrap(err, "credit balance")
}

// ExistingIDs returns the subset of userIDs that have an account.
func (r *UserRepo) ExistingIDs(ctx context.Context, q sqlx.ExtContext, userIDs []int) ([]int, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var ids []int
	err := sqlx.SelectContext(ctx, q, &ids, `SELECT id FROM users WHERE id = ANY($1) ORDER BY id`, pq.Array(userIDs))
	return ids, errors.Wrap(err, "existing users")
}

// LockUsers row-locks the given accounts in ascending id order and returns
// the ids it found. Transactions that touch several balances take these locks
// first so they always queue in the same order.
func (r *UserRepo) LockUsers(ctx context.Context, q sqlx.ExtContext, userIDs []int) ([]int, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var ids []int
	err := sqlx.SelectContext(ctx, q, &ids, `SELECT id FROM users WHERE id = ANY($1) ORDER BY id FOR UPDATE`, pq.Array(userIDs))
	return ids, errors.Wrap(err, "lock users")
}
