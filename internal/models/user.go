package models

import "time"

// Role is the account role owned by the account subsystem.
type Role string

const (
	RoleCast    Role = "cast"
	RoleGuest   Role = "guest"
	RoleAdmin   Role = "admin"
	RoleApplier Role = "applier"
)

// User is the slice of an account this service reads and whose balance it mutates.
type User struct {
	ID         int       `db:"id" json:"id"`
	Username   string    `db:"username" json:"username"`
	Nickname   string    `db:"nickname" json:"nickname"`
	Role       Role      `db:"role" json:"role"`
	Point      int64     `db:"point" json:"point"`
	PointUsed  int64     `db:"point_used" json:"point_used"`
	IsActive   bool      `db:"is_active" json:"is_active"`
	IsVerified bool      `db:"is_verified" json:"is_verified"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Balance is the point snapshot returned after a movement.
type Balance struct {
	UserID    int   `db:"id" json:"user_id"`
	Point     int64 `db:"point" json:"point"`
	PointUsed int64 `db:"point_used" json:"point_used"`
}
