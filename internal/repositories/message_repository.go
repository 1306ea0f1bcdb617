package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"meetup-chat/internal/models"
)

// MessageRepository stores per-recipient message copies and their read flags.
type MessageRepository interface {
	CreateMessage(ctx context.Context, q sqlx.ExtContext, msg models.NewMessage) (models.Message, error)
	ListForReceiver(ctx context.Context, roomID int, userID int, limit, offset int) ([]models.Message, error)
	UnreadCount(ctx context.Context, userID int) (int, error)
	MarkRoomRead(ctx context.Context, roomID int, userID int) (int64, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, room_id, sender_id, receiver_id, content, media_ids, gift_id, is_like, is_read, follower_id, created_at`

// CreateMessage inserts one recipient copy.
func (r *MessageRepo) CreateMessage(ctx context.Context, q sqlx.ExtContext, msg models.NewMessage) (models.Message, error) {
	media := msg.MediaIDs
	if media == nil {
		media = []int64{}
	}

	var created models.Message
	err := sqlx.GetContext(ctx, q, &created, `INSERT INTO messages
        (room_id, sender_id, receiver_id, content, media_ids, gift_id, is_like, is_read, follower_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING `+messageColumns,
		msg.RoomID, msg.SenderID, msg.ReceiverID, msg.Content, pq.Int64Array(media),
		nullInt(msg.GiftID), msg.IsLike, msg.IsRead, nullInt(msg.FollowerID))
	return created, errors.Wrap(err, "create message")
}

// ListForReceiver returns the user's own copies in a room, newest first.
func (r *MessageRepo) ListForReceiver(ctx context.Context, roomID int, userID int, limit, offset int) ([]models.Message, error) {
	msgs := []models.Message{}
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages
        WHERE room_id=$1 AND receiver_id=$2
        ORDER BY created_at DESC, id DESC
        LIMIT $3 OFFSET $4`, roomID, userID, limit, offset)
	return msgs, errors.Wrap(err, "list messages")
}

// UnreadCount counts the user's unread copies across all rooms.
func (r *MessageRepo) UnreadCount(ctx context.Context, userID int) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM messages WHERE receiver_id=$1 AND is_read = FALSE`, userID)
	return count, errors.Wrap(err, "unread count")
}

// MarkRoomRead flags every unread copy of the user in the room as read and
// reports how many rows changed.
func (r *MessageRepo) MarkRoomRead(ctx context.Context, roomID int, userID int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET is_read = TRUE WHERE room_id=$1 AND receiver_id=$2 AND is_read = FALSE`, roomID, userID)
	if err != nil {
		return 0, errors.Wrap(err, "mark room read")
	}
	count, err := res.RowsAffected()
	return count, errors.Wrap(err, "mark room read")
}
