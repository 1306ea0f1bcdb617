package models

import (
	"time"

	"github.com/lib/pq"
)

// Message is one recipient's copy of a chat event. The sender's own copy has
// SenderID == ReceiverID and IsRead set; the other copies point back to it
// through FollowerID.
type Message struct {
	ID         int           `db:"id" json:"id"`
	RoomID     int           `db:"room_id" json:"room_id"`
	SenderID   int           `db:"sender_id" json:"sender_id"`
	ReceiverID int           `db:"receiver_id" json:"receiver_id"`
	Content    string        `db:"content" json:"content"`
	MediaIDs   pq.Int64Array `db:"media_ids" json:"media_ids"`
	GiftID     *int          `db:"gift_id" json:"gift_id"`
	IsLike     bool          `db:"is_like" json:"is_like"`
	IsRead     bool          `db:"is_read" json:"is_read"`
	FollowerID *int          `db:"follower_id" json:"follower_id"`
	CreatedAt  time.Time     `db:"created_at" json:"created_at"`
}

// NewMessage is the input for one stored copy.
type NewMessage struct {
	RoomID     int
	SenderID   int
	ReceiverID int
	Content    string
	MediaIDs   []int64
	GiftID     *int
	IsLike     bool
	IsRead     bool
	FollowerID *int
}

// Gift is a catalog sticker: the giver pays Point, every other member gets Back.
type Gift struct {
	ID    int    `db:"id" json:"id"`
	Name  string `db:"name" json:"name"`
	Point int64  `db:"point" json:"point"`
	Back  int64  `db:"back" json:"back"`
}
