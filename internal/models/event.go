package models

// Push event types delivered to a user's live channel.
const (
	EventMessage    = "message"
	EventRoomCreate = "room_create"
	EventRoomDelete = "room_delete"
	EventUserUpdate = "user_update"
)

// PushEvent is the envelope written to a user's channel and websockets.
type PushEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}
