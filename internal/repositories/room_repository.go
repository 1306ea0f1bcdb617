package repositories

import (
	"context"
	"database/sql"
	"sort"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"meetup-chat/internal/models"
)

// RoomRepository abstracts room and membership persistence.
type RoomRepository interface {
	FindOrCreatePairRoom(ctx context.Context, q sqlx.ExtContext, roomType models.RoomType, userA, userB int, preview string, senderID int) (models.Room, bool, error)
	CreateRoom(ctx context.Context, q sqlx.ExtContext, roomType models.RoomType, title string, isGroup bool) (models.Room, error)
	AddMembers(ctx context.Context, q sqlx.ExtContext, roomID int, userIDs []int) ([]int, error)
	RemoveMembers(ctx context.Context, q sqlx.ExtContext, roomID int, userIDs []int) ([]int, error)
	ReleasePair(ctx context.Context, q sqlx.ExtContext, roomID int) error
	MemberIDs(ctx context.Context, q sqlx.ExtContext, roomID int) ([]int, error)
	LockRoom(ctx context.Context, q sqlx.ExtContext, roomID int) (models.Room, error)
	UpdatePreview(ctx context.Context, q sqlx.ExtContext, roomID int, senderID int, text string) error
	GetRoom(ctx context.Context, roomID int) (models.Room, error)
	IsMember(ctx context.Context, roomID int, userID int) (bool, error)
	ListForUser(ctx context.Context, userID int, groupOnly bool, keyword string, limit, offset int) ([]models.RoomSummary, error)
	ListAll(ctx context.Context, userID int, limit, offset int) ([]models.Room, int, error)
}

// RoomRepo is a sqlx implementation of RoomRepository.
type RoomRepo struct {
	db *sqlx.DB
}

// NewRoomRepo constructs a RoomRepo.
func NewRoomRepo(db *sqlx.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

const roomColumns = `id, room_type, title, is_group, pair_low, pair_high, last_message, last_sender_id, created_at, updated_at`

// FindOrCreatePairRoom returns the room of roomType holding exactly the pair
// (userA, userB), creating it with both members and the given preview when
// missing. The pair unique index settles races: a concurrent loser's insert
// is a no-op and it reads the winner's row.
func (r *RoomRepo) FindOrCreatePairRoom(ctx context.Context, q sqlx.ExtContext, roomType models.RoomType, userA, userB int, preview string, senderID int) (models.Room, bool, error) {
	pair := []int{userA, userB}
	sort.Ints(pair)
	low, high := pair[0], pair[1]

	var room models.Room
	err := sqlx.GetContext(ctx, q, &room, `INSERT INTO rooms (room_type, is_group, pair_low, pair_high, last_message, last_sender_id)
        VALUES ($1, FALSE, $2, $3, $4, $5)
        ON CONFLICT (room_type, pair_low, pair_high) WHERE pair_low IS NOT NULL DO NOTHING
        RETURNING `+roomColumns, roomType, low, high, preview, senderID)
	switch {
	case err == nil:
		if _, err := r.AddMembers(ctx, q, room.ID, pair); err != nil {
			return models.Room{}, false, err
		}
		room.MemberIDs = pair
		return room, true, nil
	case !errors.Is(err, sql.ErrNoRows):
		return models.Room{}, false, errors.Wrap(err, "insert pair room")
	}

	err = sqlx.GetContext(ctx, q, &room, `SELECT `+roomColumns+` FROM rooms
        WHERE room_type=$1 AND pair_low=$2 AND pair_high=$3`, roomType, low, high)
	if err != nil {
		return models.Room{}, false, errors.Wrap(err, "select pair room")
	}
	room.MemberIDs, err = r.MemberIDs(ctx, q, room.ID)
	if err != nil {
		return models.Room{}, false, err
	}
	return room, false, nil
}

// CreateRoom inserts a room without members.
func (r *RoomRepo) CreateRoom(ctx context.Context, q sqlx.ExtContext, roomType models.RoomType, title string, isGroup bool) (models.Room, error) {
	var room models.Room
	err := sqlx.GetContext(ctx, q, &room, `INSERT INTO rooms (room_type, title, is_group)
        VALUES ($1, $2, $3) RETURNING `+roomColumns, roomType, title, isGroup)
	return room, errors.Wrap(err, "create room")
}

// AddMembers inserts memberships and returns only the users that were not
// members before.
func (r *RoomRepo) AddMembers(ctx context.Context, q sqlx.ExtContext, roomID int, userIDs []int) ([]int, error) {
	granted := []int{}
	if len(userIDs) == 0 {
		return granted, nil
	}
	err := sqlx.SelectContext(ctx, q, &granted, `INSERT INTO room_members (room_id, user_id)
        SELECT $1, u FROM unnest($2::int[]) AS u
        ON CONFLICT (room_id, user_id) DO NOTHING
        RETURNING user_id`, roomID, pq.Array(userIDs))
	if isForeignKeyViolation(err) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "add members")
	}
	sort.Ints(granted)
	return granted, nil
}

// RemoveMembers deletes memberships and returns the users that were removed.
func (r *RoomRepo) RemoveMembers(ctx context.Context, q sqlx.ExtContext, roomID int, userIDs []int) ([]int, error) {
	revoked := []int{}
	if len(userIDs) == 0 {
		return revoked, nil
	}
	err := sqlx.SelectContext(ctx, q, &revoked, `DELETE FROM room_members
        WHERE room_id=$1 AND user_id = ANY($2::int[])
        RETURNING user_id`, roomID, pq.Array(userIDs))
	if err != nil {
		return nil, errors.Wrap(err, "remove members")
	}
	sort.Ints(revoked)
	return revoked, nil
}

// ReleasePair clears the pair key of a one-to-one room so the next
// FindOrCreatePairRoom for the same two users opens a fresh room.
func (r *RoomRepo) ReleasePair(ctx context.Context, q sqlx.ExtContext, roomID int) error {
	_, err := q.ExecContext(ctx, `UPDATE rooms SET pair_low=NULL, pair_high=NULL, updated_at=NOW() WHERE id=$1`, roomID)
	return errors.Wrap(err, "release pair")
}

// MemberIDs lists the room's members in id order.
func (r *RoomRepo) MemberIDs(ctx context.Context, q sqlx.ExtContext, roomID int) ([]int, error) {
	ids := []int{}
	err := sqlx.SelectContext(ctx, q, &ids, `SELECT user_id FROM room_members WHERE room_id=$1 ORDER BY user_id`, roomID)
	return ids, errors.Wrap(err, "room members")
}

// LockRoom reads the room under a row lock held until the transaction ends,
// then loads its members.
func (r *RoomRepo) LockRoom(ctx context.Context, q sqlx.ExtContext, roomID int) (models.Room, error) {
	var room models.Room
	err := sqlx.GetContext(ctx, q, &room, `SELECT `+roomColumns+` FROM rooms WHERE id=$1 FOR UPDATE`, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, ErrRoomNotFound
	}
	if err != nil {
		return models.Room{}, errors.Wrap(err, "lock room")
	}
	room.MemberIDs, err = r.MemberIDs(ctx, q, roomID)
	if err != nil {
		return models.Room{}, err
	}
	return room, nil
}

// UpdatePreview sets the denormalized last message and bumps updated_at.
func (r *RoomRepo) UpdatePreview(ctx context.Context, q sqlx.ExtContext, roomID int, senderID int, text string) error {
	res, err := q.ExecContext(ctx, `UPDATE rooms SET last_message=$2, last_sender_id=$3, updated_at=NOW() WHERE id=$1`, roomID, text, senderID)
	if err != nil {
		return errors.Wrap(err, "update preview")
	}
	count, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "update preview")
	}
	if count == 0 {
		return ErrRoomNotFound
	}
	return nil
}

// GetRoom fetches a room with its members.
func (r *RoomRepo) GetRoom(ctx context.Context, roomID int) (models.Room, error) {
	var room models.Room
	err := r.db.GetContext(ctx, &room, `SELECT `+roomColumns+` FROM rooms WHERE id=$1`, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, ErrRoomNotFound
	}
	if err != nil {
		return models.Room{}, errors.Wrap(err, "get room")
	}
	room.MemberIDs, err = r.MemberIDs(ctx, r.db, roomID)
	if err != nil {
		return models.Room{}, err
	}
	return room, nil
}

// IsMember checks whether a user belongs to the room.
func (r *RoomRepo) IsMember(ctx context.Context, roomID int, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM room_members WHERE room_id=$1 AND user_id=$2)`, roomID, userID)
	return exists, errors.Wrap(err, "is member")
}

// ListForUser returns the user's rooms, most recently active first, each with
// the user's unread count. keyword filters by a member nickname.
func (r *RoomRepo) ListForUser(ctx context.Context, userID int, groupOnly bool, keyword string, limit, offset int) ([]models.RoomSummary, error) {
	query := `SELECT r.id, r.room_type, r.title, r.is_group, r.pair_low, r.pair_high, r.last_message, r.last_sender_id, r.created_at, r.updated_at,
            (SELECT COUNT(*) FROM messages m WHERE m.room_id = r.id AND m.receiver_id = $1 AND m.is_read = FALSE) AS unread
        FROM rooms r
        INNER JOIN room_members rm ON rm.room_id = r.id AND rm.user_id = $1
        WHERE ($2 = FALSE OR r.is_group = TRUE)
        AND ($3 = '' OR EXISTS (
            SELECT 1 FROM room_members km INNER JOIN users u ON u.id = km.user_id
            WHERE km.room_id = r.id AND u.nickname ILIKE '%' || $3 || '%'))
        ORDER BY r.updated_at DESC, r.id DESC
        LIMIT $4 OFFSET $5`
	rooms := []models.RoomSummary{}
	if err := r.db.SelectContext(ctx, &rooms, query, userID, groupOnly, keyword, limit, offset); err != nil {
		return nil, errors.Wrap(err, "list rooms")
	}
	for i := range rooms {
		members, err := r.MemberIDs(ctx, r.db, rooms[i].ID)
		if err != nil {
			return nil, err
		}
		rooms[i].MemberIDs = members
	}
	return rooms, nil
}

// ListAll is the admin listing: every room, or the rooms of userID when it is
// positive, with the total count for paging.
func (r *RoomRepo) ListAll(ctx context.Context, userID int, limit, offset int) ([]models.Room, int, error) {
	filter := `WHERE $1 <= 0 OR EXISTS (SELECT 1 FROM room_members rm WHERE rm.room_id = r.id AND rm.user_id = $1)`

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM rooms r `+filter, userID); err != nil {
		return nil, 0, errors.Wrap(err, "count rooms")
	}

	rooms := []models.Room{}
	err := r.db.SelectContext(ctx, &rooms, `SELECT `+roomColumns+` FROM rooms r `+filter+`
        ORDER BY r.updated_at DESC, r.id DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list all rooms")
	}
	for i := range rooms {
		members, err := r.MemberIDs(ctx, r.db, rooms[i].ID)
		if err != nil {
			return nil, 0, err
		}
		rooms[i].MemberIDs = members
	}
	return rooms, total, nil
}
