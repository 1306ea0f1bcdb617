package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"meetup-chat/internal/apperr"
	"meetup-chat/internal/db"
	"meetup-chat/internal/models"
	"meetup-chat/internal/notify"
	"meetup-chat/internal/repositories"
)

// Listing modes for ListRoomsForUser.
const (
	RoomModeAll   = "all"
	RoomModeGroup = "group"
)

const kickNoticeFormat = "残念ですが管理画面より%sから却下されました。"

// CreateRoomInput is an admin request for a new group or admin room.
type CreateRoomInput struct {
	RoomType  models.RoomType `json:"room_type"`
	Title     string          `json:"title"`
	MemberIDs []int           `json:"member_ids"`
}

// RoomService owns room creation and membership.
type RoomService struct {
	tx       db.TxRunner
	rooms    repositories.RoomRepository
	users    repositories.UserRepository
	joins    repositories.JoinRepository
	notifier notify.Notifier
	log      *zap.Logger
}

// NewRoomService constructs a RoomService.
func NewRoomService(tx db.TxRunner, rooms repositories.RoomRepository, users repositories.UserRepository,
	joins repositories.JoinRepository, notifier notify.Notifier, log *zap.Logger) *RoomService {
	return &RoomService{
		tx:       tx,
		rooms:    rooms,
		users:    users,
		joins:    joins,
		notifier: notifier,
		log:      log.With(zap.String("component", "rooms")),
	}
}

// FindOrCreatePrivateRoom returns the private room of the pair, creating it on
// first contact. Concurrent callers for the same pair get the same room.
func (s *RoomService) FindOrCreatePrivateRoom(ctx context.Context, userA, userB int) (models.Room, bool, error) {
	if userA == userB {
		return models.Room{}, false, apperr.Validation("cannot open a room with yourself")
	}

	var (
		room    models.Room
		created bool
	)
	err := s.tx.InTx(ctx, func(q sqlx.ExtContext) error {
		if err := s.requireUsers(ctx, q, []int{userA, userB}); err != nil {
			return err
		}
		var err error
		room, created, err = s.rooms.FindOrCreatePairRoom(ctx, q, models.RoomPrivate, userA, userB, "", userA)
		return err
	})
	if err != nil {
		return models.Room{}, false, err
	}
	if created {
		s.pushRoom(models.EventRoomCreate, room, room.MemberIDs)
	}
	return room, created, nil
}

// UpdateMembership adds and removes members in one transaction. Removed users
// also have their open joins on the room's orders ended. A one-to-one room that
// loses a member stops being the pair's room. Everyone still in the room gets
// the refreshed room; removed users get room_delete.
func (s *RoomService) UpdateMembership(ctx context.Context, roomID int, added, removed []int) (models.MembershipChange, error) {
	added, removed = dedupe(added), dedupe(removed)
	if overlaps(added, removed) {
		return models.MembershipChange{}, apperr.Validation("a user cannot be added and removed at once")
	}

	var (
		change models.MembershipChange
		room   models.Room
	)
	err := s.tx.InTx(ctx, func(q sqlx.ExtContext) error {
		var err error
		room, err = s.rooms.LockRoom(ctx, q, roomID)
		if err != nil {
			return err
		}
		if len(added) > 0 && isPairRoom(room.RoomType) {
			return apperr.Validation("members of a one-to-one room cannot be added")
		}
		if err := s.requireUsers(ctx, q, added); err != nil {
			return err
		}

		if change.Granted, err = s.rooms.AddMembers(ctx, q, roomID, added); err != nil {
			return err
		}
		if change.Revoked, err = s.rooms.RemoveMembers(ctx, q, roomID, removed); err != nil {
			return err
		}
		if _, err = s.joins.EndJoinsForRoom(ctx, q, roomID, change.Revoked); err != nil {
			return err
		}
		if len(change.Revoked) > 0 && isPairRoom(room.RoomType) {
			if err = s.rooms.ReleasePair(ctx, q, roomID); err != nil {
				return err
			}
		}
		change.Remaining, err = s.rooms.MemberIDs(ctx, q, roomID)
		return err
	})
	if err != nil {
		return models.MembershipChange{}, err
	}

	room.MemberIDs = change.Remaining
	s.pushRoom(models.EventRoomCreate, room, change.Remaining)
	for _, userID := range change.Revoked {
		s.notifier.Publish(userID, models.EventRoomDelete, map[string]int{"room_id": roomID})
	}
	s.log.Info("membership updated", zap.Int("room_id", roomID),
		zap.Ints("granted", change.Granted), zap.Ints("revoked", change.Revoked))
	return change, nil
}

// AddMember grants one user access.
func (s *RoomService) AddMember(ctx context.Context, roomID, userID int) (models.MembershipChange, error) {
	return s.UpdateMembership(ctx, roomID, []int{userID}, nil)
}

// RemoveMember revokes one user's access.
func (s *RoomService) RemoveMember(ctx context.Context, roomID, userID int) (models.MembershipChange, error) {
	return s.UpdateMembership(ctx, roomID, nil, []int{userID})
}

// CreateRoom creates a group or admin room with its initial members.
func (s *RoomService) CreateRoom(ctx context.Context, in CreateRoomInput) (models.Room, error) {
	switch in.RoomType {
	case models.RoomGroup, models.RoomAdmin:
	case "":
		in.RoomType = models.RoomGroup
	default:
		return models.Room{}, apperr.Validation("only group and admin rooms can be created directly")
	}
	members := dedupe(in.MemberIDs)
	if len(members) == 0 {
		return models.Room{}, apperr.Validation("a room needs at least one member")
	}

	var room models.Room
	err := s.tx.InTx(ctx, func(q sqlx.ExtContext) error {
		if err := s.requireUsers(ctx, q, members); err != nil {
			return err
		}
		var err error
		room, err = s.rooms.CreateRoom(ctx, q, in.RoomType, in.Title, in.RoomType == models.RoomGroup)
		if err != nil {
			return err
		}
		room.MemberIDs, err = s.rooms.AddMembers(ctx, q, room.ID, members)
		return err
	})
	if err != nil {
		return models.Room{}, err
	}
	s.pushRoom(models.EventRoomCreate, room, room.MemberIDs)
	return room, nil
}

// GetRoom returns a room to one of its members, or to an admin.
func (s *RoomService) GetRoom(ctx context.Context, roomID, userID int, role models.Role) (models.Room, error) {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return models.Room{}, err
	}
	if role != models.RoleAdmin && !room.HasMember(userID) {
		return models.Room{}, apperr.Validation("not a member of the room")
	}
	return room, nil
}

// ListRoomsForUser pages through the user's rooms with unread counts.
func (s *RoomService) ListRoomsForUser(ctx context.Context, userID int, mode, keyword string, page, offset int) ([]models.RoomSummary, error) {
	var groupOnly bool
	switch mode {
	case "", RoomModeAll:
	case RoomModeGroup:
		groupOnly = true
	default:
		return nil, apperr.Validation(fmt.Sprintf("unknown mode %q", mode))
	}
	limit, start := pageBounds(page, offset)
	return s.rooms.ListForUser(ctx, userID, groupOnly, keyword, limit, start)
}

// ListAllRooms is the admin view over every room, optionally one user's.
func (s *RoomService) ListAllRooms(ctx context.Context, userID, page int) ([]models.Room, int, error) {
	limit, start := pageBounds(page, 0)
	return s.rooms.ListAll(ctx, userID, limit, start)
}

// KickNotice is the system message sent to a user removed from room by an
// admin. Private rooms are named after the remaining partner.
func (s *RoomService) KickNotice(ctx context.Context, room models.Room, userID int) (string, error) {
	if room.RoomType != models.RoomPrivate {
		return fmt.Sprintf(kickNoticeFormat, fmt.Sprintf("チャットルーム「%s」", room.Title)), nil
	}
	partners := room.OtherMembers(userID)
	if len(partners) == 0 {
		return "", apperr.Validation("room has no partner")
	}
	partner, err := s.users.GetUser(ctx, partners[0])
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(kickNoticeFormat, partner.Nickname+"とのチャットルーム"), nil
}

func (s *RoomService) requireUsers(ctx context.Context, q sqlx.ExtContext, ids []int) error {
	return requireUsers(ctx, s.users, q, ids)
}

// requireUsers fails with ErrUserNotFound unless every id has an account.
func requireUsers(ctx context.Context, users repositories.UserRepository, q sqlx.ExtContext, ids []int) error {
	if len(ids) == 0 {
		return nil
	}
	found, err := users.ExistingIDs(ctx, q, ids)
	if err != nil {
		return err
	}
	if len(found) != len(dedupe(ids)) {
		return repositories.ErrUserNotFound
	}
	return nil
}

func (s *RoomService) pushRoom(eventType string, room models.Room, targets []int) {
	for _, userID := range targets {
		s.notifier.Publish(userID, eventType, room)
	}
}

func isPairRoom(t models.RoomType) bool {
	return t == models.RoomPrivate || t == models.RoomSystem
}

func dedupe(ids []int) []int {
	seen := make(map[int]struct{}, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

func overlaps(a, b []int) bool {
	set := make(map[int]struct{}, len(a))
	for _, id := range a {
		set[id] = struct{}{}
	}
	for _, id := range b {
		if _, ok := set[id]; ok {
			return true
		}
	}
	return false
}
