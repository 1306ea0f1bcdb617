package models

import "time"

// InvoiceType is the kind of point movement recorded in the ledger.
type InvoiceType string

const (
	InvoiceGift     InvoiceType = "GIFT"
	InvoiceBuy      InvoiceType = "BUY"
	InvoiceTransfer InvoiceType = "TRANSFER"
	InvoiceAdjust   InvoiceType = "ADJUST"
)

// CountsAsUsage reports whether debits of this kind also accrue point_used.
func (t InvoiceType) CountsAsUsage() bool {
	return t == InvoiceGift
}

// Valid reports whether t is a known movement kind.
func (t InvoiceType) Valid() bool {
	switch t {
	case InvoiceGift, InvoiceBuy, InvoiceTransfer, InvoiceAdjust:
		return true
	}
	return false
}

// Invoice is an immutable ledger row.
type Invoice struct {
	ID          int         `db:"id" json:"id"`
	InvoiceType InvoiceType `db:"invoice_type" json:"invoice_type"`
	GiverID     *int        `db:"giver_id" json:"giver_id"`
	TakerID     *int        `db:"taker_id" json:"taker_id"`
	GiveAmount  int64       `db:"give_amount" json:"give_amount"`
	TakeAmount  int64       `db:"take_amount" json:"take_amount"`
	GiftID      *int        `db:"gift_id" json:"gift_id"`
	RoomID      *int        `db:"room_id" json:"room_id"`
	OrderID     *int        `db:"order_id" json:"order_id"`
	Reason      string      `db:"reason" json:"reason"`
	ExternalRef *string     `db:"external_ref" json:"external_ref,omitempty"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
}

// Movement is a single ledger operation: one invoice row plus the matching
// balance changes on giver and taker.
type Movement struct {
	Kind        InvoiceType `json:"kind"`
	GiverID     *int        `json:"giver_id,omitempty"`
	TakerID     *int        `json:"taker_id,omitempty"`
	GiveAmount  int64       `json:"give_amount"`
	TakeAmount  int64       `json:"take_amount"`
	GiftID      *int        `json:"gift_id,omitempty"`
	RoomID      *int        `json:"room_id,omitempty"`
	OrderID     *int        `json:"order_id,omitempty"`
	Reason      string      `json:"reason,omitempty"`
	ExternalRef string      `json:"external_ref,omitempty"`
}
