package mocks

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"

	"meetup-chat/internal/db"
	"meetup-chat/internal/models"
	"meetup-chat/internal/repositories"
)

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) GetUser(ctx context.Context, userID int) (models.User, error) {
	args := m.Called(ctx, userID)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) GetBalance(ctx context.Context, q sqlx.ExtContext, userID int) (models.Balance, error) {
	args := m.Called(ctx, q, userID)
	var bal models.Balance
	if val := args.Get(0); val != nil {
		bal = val.(models.Balance)
	}
	return bal, args.Error(1)
}

func (m *UserRepositoryMock) Debit(ctx context.Context, q sqlx.ExtContext, userID int, amount int64, countUsage bool) (models.Balance, error) {
	args := m.Called(ctx, q, userID, amount, countUsage)
	var bal models.Balance
	if val := args.Get(0); val != nil {
		bal = val.(models.Balance)
	}
	return bal, args.Error(1)
}

func (m *UserRepositoryMock) Credit(ctx context.Context, q sqlx.ExtContext, userID int, amount int64) (models.Balance, error) {
	args := m.Called(ctx, q, userID, amount)
	var bal models.Balance
	if val := args.Get(0); val != nil {
		bal = val.(models.Balance)
	}
	return bal, args.Error(1)
}

func (m *UserRepositoryMock) LockUsers(ctx context.Context, q sqlx.ExtContext, userIDs []int) ([]int, error) {
	args := m.Called(ctx, q, userIDs)
	var ids []int
	if val := args.Get(0); val != nil {
		ids = val.([]int)
	}
	return ids, args.Error(1)
}

func (m *UserRepositoryMock) ExistingIDs(ctx context.Context, q sqlx.ExtContext, userIDs []int) ([]int, error) {
	args := m.Called(ctx, q, userIDs)
	var ids []int
	if val := args.Get(0); val != nil {
		ids = val.([]int)
	}
	return ids, args.Error(1)
}

type RoomRepositoryMock struct {
	mock.Mock
}

func (m *RoomRepositoryMock) FindOrCreatePairRoom(ctx context.Context, q sqlx.ExtContext, roomType models.RoomType, userA, userB int, preview string, senderID int) (models.Room, bool, error) {
	args := m.Called(ctx, q, roomType, userA, userB, preview, senderID)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Bool(1), args.Error(2)
}

func (m *RoomRepositoryMock) CreateRoom(ctx context.Context, q sqlx.ExtContext, roomType models.RoomType, title string, isGroup bool) (models.Room, error) {
	args := m.Called(ctx, q, roomType, title, isGroup)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Error(1)
}

func (m *RoomRepositoryMock) AddMembers(ctx context.Context, q sqlx.ExtContext, roomID int, userIDs []int) ([]int, error) {
	args := m.Called(ctx, q, roomID, userIDs)
	var ids []int
	if val := args.Get(0); val != nil {
		ids = val.([]int)
	}
	return ids, args.Error(1)
}

func (m *RoomRepositoryMock) RemoveMembers(ctx context.Context, q sqlx.ExtContext, roomID int, userIDs []int) ([]int, error) {
	args := m.Called(ctx, q, roomID, userIDs)
	var ids []int
	if val := args.Get(0); val != nil {
		ids = val.([]int)
	}
	return ids, args.Error(1)
}

func (m *RoomRepositoryMock) MemberIDs(ctx context.Context, q sqlx.ExtContext, roomID int) ([]int, error) {
	args := m.Called(ctx, q, roomID)
	var ids []int
	if val := args.Get(0); val != nil {
		ids = val.([]int)
	}
	return ids, args.Error(1)
}

func (m *RoomRepositoryMock) LockRoom(ctx context.Context, q sqlx.ExtContext, roomID int) (models.Room, error) {
	args := m.Called(ctx, q, roomID)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Error(1)
}

func (m *RoomRepositoryMock) ReleasePair(ctx context.Context, q sqlx.ExtContext, roomID int) error {
	args := m.Called(ctx, q, roomID)
	return args.Error(0)
}

func (m *RoomRepositoryMock) UpdatePreview(ctx context.Context, q sqlx.ExtContext, roomID int, senderID int, text string) error {
	args := m.Called(ctx, q, roomID, senderID, text)
	return args.Error(0)
}

func (m *RoomRepositoryMock) GetRoom(ctx context.Context, roomID int) (models.Room, error) {
	args := m.Called(ctx, roomID)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Error(1)
}

func (m *RoomRepositoryMock) IsMember(ctx context.Context, roomID int, userID int) (bool, error) {
	args := m.Called(ctx, roomID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *RoomRepositoryMock) ListForUser(ctx context.Context, userID int, groupOnly bool, keyword string, limit, offset int) ([]models.RoomSummary, error) {
	args := m.Called(ctx, userID, groupOnly, keyword, limit, offset)
	var list []models.RoomSummary
	if val := args.Get(0); val != nil {
		list = val.([]models.RoomSummary)
	}
	return list, args.Error(1)
}

func (m *RoomRepositoryMock) ListAll(ctx context.Context, userID int, limit, offset int) ([]models.Room, int, error) {
	args := m.Called(ctx, userID, limit, offset)
	var list []models.Room
	if val := args.Get(0); val != nil {
		list = val.([]models.Room)
	}
	return list, args.Int(1), args.Error(2)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, q sqlx.ExtContext, msg models.NewMessage) (models.Message, error) {
	args := m.Called(ctx, q, msg)
	var created models.Message
	if val := args.Get(0); val != nil {
		created = val.(models.Message)
	}
	return created, args.Error(1)
}

func (m *MessageRepositoryMock) ListForReceiver(ctx context.Context, roomID int, userID int, limit, offset int) ([]models.Message, error) {
	args := m.Called(ctx, roomID, userID, limit, offset)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) UnreadCount(ctx context.Context, userID int) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func (m *MessageRepositoryMock) MarkRoomRead(ctx context.Context, roomID int, userID int) (int64, error) {
	args := m.Called(ctx, roomID, userID)
	return args.Get(0).(int64), args.Error(1)
}

type InvoiceRepositoryMock struct {
	mock.Mock
}

func (m *InvoiceRepositoryMock) CreateInvoice(ctx context.Context, q sqlx.ExtContext, mv models.Movement) (models.Invoice, error) {
	args := m.Called(ctx, q, mv)
	var inv models.Invoice
	if val := args.Get(0); val != nil {
		inv = val.(models.Invoice)
	}
	return inv, args.Error(1)
}

func (m *InvoiceRepositoryMock) GetByExternalRef(ctx context.Context, ref string) (models.Invoice, error) {
	args := m.Called(ctx, ref)
	var inv models.Invoice
	if val := args.Get(0); val != nil {
		inv = val.(models.Invoice)
	}
	return inv, args.Error(1)
}

func (m *InvoiceRepositoryMock) ListForUser(ctx context.Context, userID int, limit, offset int) ([]models.Invoice, error) {
	args := m.Called(ctx, userID, limit, offset)
	var list []models.Invoice
	if val := args.Get(0); val != nil {
		list = val.([]models.Invoice)
	}
	return list, args.Error(1)
}

type GiftRepositoryMock struct {
	mock.Mock
}

func (m *GiftRepositoryMock) GetGift(ctx context.Context, q sqlx.ExtContext, giftID int) (models.Gift, error) {
	args := m.Called(ctx, q, giftID)
	var gift models.Gift
	if val := args.Get(0); val != nil {
		gift = val.(models.Gift)
	}
	return gift, args.Error(1)
}

type JoinRepositoryMock struct {
	mock.Mock
}

func (m *JoinRepositoryMock) EndJoinsForRoom(ctx context.Context, q sqlx.ExtContext, roomID int, userIDs []int) (int64, error) {
	args := m.Called(ctx, q, roomID, userIDs)
	return args.Get(0).(int64), args.Error(1)
}

func (m *JoinRepositoryMock) AddFavorite(ctx context.Context, q sqlx.ExtContext, followerID, favoriteID int) (bool, error) {
	args := m.Called(ctx, q, followerID, favoriteID)
	return args.Bool(0), args.Error(1)
}

type TransferRepositoryMock struct {
	mock.Mock
}

func (m *TransferRepositoryMock) CreateApplication(ctx context.Context, app models.TransferApplication) (models.TransferApplication, error) {
	args := m.Called(ctx, app)
	var created models.TransferApplication
	if val := args.Get(0); val != nil {
		created = val.(models.TransferApplication)
	}
	return created, args.Error(1)
}

func (m *TransferRepositoryMock) GetApplication(ctx context.Context, q sqlx.ExtContext, id int) (models.TransferApplication, error) {
	args := m.Called(ctx, q, id)
	var app models.TransferApplication
	if val := args.Get(0); val != nil {
		app = val.(models.TransferApplication)
	}
	return app, args.Error(1)
}

func (m *TransferRepositoryMock) MarkProcessed(ctx context.Context, q sqlx.ExtContext, id int) (models.TransferApplication, error) {
	args := m.Called(ctx, q, id)
	var app models.TransferApplication
	if val := args.Get(0); val != nil {
		app = val.(models.TransferApplication)
	}
	return app, args.Error(1)
}

func (m *TransferRepositoryMock) List(ctx context.Context, filter models.TransferFilter) ([]models.TransferApplication, int, error) {
	args := m.Called(ctx, filter)
	var list []models.TransferApplication
	if val := args.Get(0); val != nil {
		list = val.([]models.TransferApplication)
	}
	return list, args.Int(1), args.Error(2)
}

// TxRunner runs fn without a database. Commits counts successful runs and
// Rollbacks failed ones.
type TxRunner struct {
	Commits   int
	Rollbacks int
}

func (r *TxRunner) InTx(ctx context.Context, fn func(q sqlx.ExtContext) error) error {
	if err := fn(nil); err != nil {
		r.Rollbacks++
		return err
	}
	r.Commits++
	return nil
}

var (
	_ repositories.UserRepository     = (*UserRepositoryMock)(nil)
	_ repositories.RoomRepository     = (*RoomRepositoryMock)(nil)
	_ repositories.MessageRepository  = (*MessageRepositoryMock)(nil)
	_ repositories.InvoiceRepository  = (*InvoiceRepositoryMock)(nil)
	_ repositories.GiftRepository     = (*GiftRepositoryMock)(nil)
	_ repositories.JoinRepository     = (*JoinRepositoryMock)(nil)
	_ repositories.FavoriteRepository = (*JoinRepositoryMock)(nil)
	_ repositories.TransferRepository = (*TransferRepositoryMock)(nil)
	_ db.TxRunner                     = (*TxRunner)(nil)
)
