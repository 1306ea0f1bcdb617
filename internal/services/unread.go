package services

import (
	"context"

	"meetup-chat/internal/repositories"
)

// UnreadTracker derives unread counts from the read flags of stored copies.
type UnreadTracker struct {
	rooms    repositories.RoomRepository
	messages repositories.MessageRepository
}

// NewUnreadTracker constructs an UnreadTracker.
func NewUnreadTracker(rooms repositories.RoomRepository, messages repositories.MessageRepository) *UnreadTracker {
	return &UnreadTracker{rooms: rooms, messages: messages}
}

// UnreadCount counts the copies addressed to userID that are still unread.
func (t *UnreadTracker) UnreadCount(ctx context.Context, userID int) (int, error) {
	return t.messages.UnreadCount(ctx, userID)
}

// MarkRoomRead clears the user's unread copies in one room. Other rooms keep
// their flags.
func (t *UnreadTracker) MarkRoomRead(ctx context.Context, roomID, userID int) (int64, error) {
	member, err := t.rooms.IsMember(ctx, roomID, userID)
	if err != nil {
		return 0, err
	}
	if !member {
		return 0, repositories.ErrRoomNotFound
	}
	return t.messages.MarkRoomRead(ctx, roomID, userID)
}
