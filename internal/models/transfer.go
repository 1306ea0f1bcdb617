package models

import "time"

// TransferStatus is the payout application lifecycle.
type TransferStatus int

const (
	TransferPending   TransferStatus = 0
	TransferProcessed TransferStatus = 1
)

// TransferApplication is a cast's request to convert points to a payout.
// Point is fixed at request time and is what processing debits.
type TransferApplication struct {
	ID          int            `db:"id" json:"id"`
	UserID      int            `db:"user_id" json:"user_id"`
	Point       int64          `db:"point" json:"point"`
	Fee         int64          `db:"fee" json:"fee"`
	Amount      int64          `db:"amount" json:"amount"`
	Status      TransferStatus `db:"status" json:"status"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	ProcessedAt *time.Time     `db:"processed_at" json:"processed_at"`
}

// TransferFilter narrows the admin listing. Nil fields are not applied.
type TransferFilter struct {
	Status   *TransferStatus
	UserID   *int
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}
