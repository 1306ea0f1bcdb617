package models

import "time"

// RoomType classifies a chat room.
type RoomType string

const (
	RoomPrivate RoomType = "private"
	RoomGroup   RoomType = "group"
	RoomSystem  RoomType = "system"
	RoomAdmin   RoomType = "admin"
)

// Room is a conversation container with a denormalized last-message preview.
type Room struct {
	ID           int       `db:"id" json:"id"`
	RoomType     RoomType  `db:"room_type" json:"room_type"`
	Title        string    `db:"title" json:"title"`
	IsGroup      bool      `db:"is_group" json:"is_group"`
	PairLow      *int      `db:"pair_low" json:"-"`
	PairHigh     *int      `db:"pair_high" json:"-"`
	LastMessage  string    `db:"last_message" json:"last_message"`
	LastSenderID *int      `db:"last_sender_id" json:"last_sender_id"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
	MemberIDs    []int     `db:"-" json:"member_ids"`
}

// RoomSummary is a room as listed for one user, with that user's unread count.
type RoomSummary struct {
	Room
	Unread int `db:"unread" json:"unread"`
}

// MembershipChange reports who gained and who lost access to a room.
type MembershipChange struct {
	Granted   []int `json:"granted"`
	Revoked   []int `json:"revoked"`
	Remaining []int `json:"remaining"`
}

// HasMember reports whether userID is in the loaded member list.
func (r Room) HasMember(userID int) bool {
	for _, id := range r.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// OtherMembers returns the loaded members except userID.
func (r Room) OtherMembers(userID int) []int {
	others := make([]int, 0, len(r.MemberIDs))
	for _, id := range r.MemberIDs {
		if id != userID {
			others = append(others, id)
		}
	}
	return others
}
