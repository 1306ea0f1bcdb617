package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"meetup-chat/internal/apperr"
	"meetup-chat/internal/mocks"
	"meetup-chat/internal/models"
	"meetup-chat/internal/repositories"
)

const systemUser = 99

type dispatcherDeps struct {
	*ledgerDeps
	rooms     *mocks.RoomRepositoryMock
	messages  *mocks.MessageRepositoryMock
	gifts     *mocks.GiftRepositoryMock
	favorites *mocks.JoinRepositoryMock
}

func newTestDispatcher() (*Dispatcher, *dispatcherDeps) {
	ledger, ld := newTestLedger()
	ld.events.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	deps := &dispatcherDeps{
		ledgerDeps: ld,
		rooms:      new(mocks.RoomRepositoryMock),
		messages:   new(mocks.MessageRepositoryMock),
		gifts:      new(mocks.GiftRepositoryMock),
		favorites:  new(mocks.JoinRepositoryMock),
	}
	d := NewDispatcher(ld.tx, deps.rooms, deps.messages, deps.gifts, deps.favorites, ledger, ld.notifier, systemUser, zap.NewNop())
	return d, deps
}

func selfCopy(senderID int) interface{} {
	return mock.MatchedBy(func(m models.NewMessage) bool {
		return m.ReceiverID == senderID && m.SenderID == senderID && m.IsRead && m.FollowerID == nil
	})
}

func otherCopy(receiverID, followerID int) interface{} {
	return mock.MatchedBy(func(m models.NewMessage) bool {
		return m.ReceiverID == receiverID && !m.IsRead && m.FollowerID != nil && *m.FollowerID == followerID
	})
}

func expectFanOut(deps *dispatcherDeps, roomID, senderID int, others ...int) {
	deps.messages.On("CreateMessage", mock.Anything, mock.Anything, selfCopy(senderID)).
		Return(models.Message{ID: 100, RoomID: roomID, SenderID: senderID, ReceiverID: senderID, IsRead: true}, nil).Once()
	for i, id := range others {
		deps.messages.On("CreateMessage", mock.Anything, mock.Anything, otherCopy(id, 100)).
			Return(models.Message{ID: 101 + i, RoomID: roomID, SenderID: senderID, ReceiverID: id}, nil).Once()
	}
}

func TestPostMessageFansOutToEveryMember(t *testing.T) {
	d, deps := newTestDispatcher()
	room := models.Room{ID: 5, RoomType: models.RoomGroup, IsGroup: true, MemberIDs: []int{1, 2, 3}}

	deps.rooms.On("LockRoom", mock.Anything, mock.Anything, 5).Return(room, nil)
	expectFanOut(deps, 5, 1, 2, 3)
	deps.rooms.On("UpdatePreview", mock.Anything, mock.Anything, 5, 1, "hello").Return(nil)

	res, err := d.PostMessage(context.Background(), PostInput{RoomID: 5, SenderID: 1, Content: "hello"})

	require.NoError(t, err)
	assert.True(t, res.Self.IsRead)
	require.Len(t, res.Copies, 2)
	for _, c := range res.Copies {
		assert.False(t, c.IsRead)
	}
	assert.Equal(t, []int{2, 3}, deps.notifier.Targets(models.EventMessage))
	assert.Equal(t, 1, deps.tx.Commits)
	deps.rooms.AssertExpectations(t)
	deps.messages.AssertExpectations(t)
}

func TestPostMessageRejectsNonMember(t *testing.T) {
	d, deps := newTestDispatcher()
	deps.rooms.On("LockRoom", mock.Anything, mock.Anything, 5).
		Return(models.Room{ID: 5, RoomType: models.RoomGroup, MemberIDs: []int{2, 3}}, nil)

	_, err := d.PostMessage(context.Background(), PostInput{RoomID: 5, SenderID: 1, Content: "hi"})

	require.Error(t, err)
	assert.Equal(t, apperr.CodeInvalidArgument, apperr.CodeOf(err))
	deps.messages.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, deps.notifier.Pushes)
}

func TestPostMessageMissingRoom(t *testing.T) {
	d, deps := newTestDispatcher()
	deps.rooms.On("LockRoom", mock.Anything, mock.Anything, 5).Return(nil, repositories.ErrRoomNotFound)

	_, err := d.PostMessage(context.Background(), PostInput{RoomID: 5, SenderID: 1, Content: "hi"})

	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestPostMessageRejectsEmptyPayload(t *testing.T) {
	d, deps := newTestDispatcher()

	_, err := d.PostMessage(context.Background(), PostInput{RoomID: 5, SenderID: 1, Content: "  "})

	assert.Equal(t, apperr.CodeInvalidArgument, apperr.CodeOf(err))
	deps.rooms.AssertNotCalled(t, "LockRoom", mock.Anything, mock.Anything, mock.Anything)
}

func TestPostMessageWithMediaUsesImagePreview(t *testing.T) {
	d, deps := newTestDispatcher()
	deps.rooms.On("LockRoom", mock.Anything, mock.Anything, 5).
		Return(models.Room{ID: 5, RoomType: models.RoomPrivate, MemberIDs: []int{1, 2}}, nil)
	expectFanOut(deps, 5, 1, 2)
	deps.rooms.On("UpdatePreview", mock.Anything, mock.Anything, 5, 1, ImagePreview).Return(nil)

	_, err := d.PostMessage(context.Background(), PostInput{RoomID: 5, SenderID: 1, MediaIDs: []int64{44}})

	require.NoError(t, err)
	deps.rooms.AssertExpectations(t)
}

func TestPostGiftInPrivateRoomMovesPoints(t *testing.T) {
	d, deps := newTestDispatcher()
	giftID := 9
	deps.rooms.On("LockRoom", mock.Anything, mock.Anything, 5).
		Return(models.Room{ID: 5, RoomType: models.RoomPrivate, MemberIDs: []int{1, 2}}, nil)
	deps.gifts.On("GetGift", mock.Anything, mock.Anything, 9).
		Return(models.Gift{ID: 9, Name: "rose", Point: 300, Back: 100}, nil)
	deps.users.On("LockUsers", mock.Anything, mock.Anything, []int{1, 2}).Return([]int{1, 2}, nil).Once()
	deps.users.On("Debit", mock.Anything, mock.Anything, 1, int64(300), true).
		Return(models.Balance{UserID: 1, Point: 700, PointUsed: 300}, nil)
	deps.users.On("Credit", mock.Anything, mock.Anything, 2, int64(100)).
		Return(models.Balance{UserID: 2, Point: 100}, nil)
	deps.invoices.On("CreateInvoice", mock.Anything, mock.Anything, mock.MatchedBy(func(m models.Movement) bool {
		return m.GiverID != nil && *m.GiverID == 1 && m.GiveAmount == 300 && m.TakeAmount == 0
	})).Return(models.Invoice{ID: 1, InvoiceType: models.InvoiceGift, GiveAmount: 300}, nil)
	deps.invoices.On("CreateInvoice", mock.Anything, mock.Anything, mock.MatchedBy(func(m models.Movement) bool {
		return m.TakerID != nil && *m.TakerID == 2 && m.TakeAmount == 100 && m.GiveAmount == 0
	})).Return(models.Invoice{ID: 2, InvoiceType: models.InvoiceGift, TakeAmount: 100}, nil)
	expectFanOut(deps, 5, 1, 2)
	deps.rooms.On("UpdatePreview", mock.Anything, mock.Anything, 5, 1, GiftPreview).Return(nil)

	res, err := d.PostMessage(context.Background(), PostInput{RoomID: 5, SenderID: 1, GiftID: &giftID})

	require.NoError(t, err)
	assert.Len(t, res.Invoices, 2)
	assert.ElementsMatch(t, []int{1, 2}, deps.notifier.Targets(models.EventUserUpdate))
	deps.users.AssertExpectations(t)
	deps.invoices.AssertExpectations(t)
}

func TestPostGiftWithoutPointsCreatesNothing(t *testing.T) {
	d, deps := newTestDispatcher()
	giftID := 9
	deps.rooms.On("LockRoom", mock.Anything, mock.Anything, 5).
		Return(models.Room{ID: 5, RoomType: models.RoomPrivate, MemberIDs: []int{1, 2}}, nil)
	deps.gifts.On("GetGift", mock.Anything, mock.Anything, 9).
		Return(models.Gift{ID: 9, Point: 300, Back: 100}, nil)
	deps.users.On("LockUsers", mock.Anything, mock.Anything, []int{1, 2}).Return([]int{1, 2}, nil)
	deps.users.On("Debit", mock.Anything, mock.Anything, 1, int64(300), true).
		Return(nil, repositories.ErrInsufficientBalance)

	_, err := d.PostMessage(context.Background(), PostInput{RoomID: 5, SenderID: 1, GiftID: &giftID})

	require.Error(t, err)
	assert.Equal(t, apperr.CodeInsufficientBalance, apperr.CodeOf(err))
	assert.Equal(t, 1, deps.tx.Rollbacks)
	deps.users.AssertNotCalled(t, "Credit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	deps.messages.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything, mock.Anything)
	deps.rooms.AssertNotCalled(t, "UpdatePreview", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, deps.notifier.Pushes)
}

func TestPostGiftInGroupRoomMovesNoPoints(t *testing.T) {
	d, deps := newTestDispatcher()
	giftID := 9
	deps.rooms.On("LockRoom", mock.Anything, mock.Anything, 5).
		Return(models.Room{ID: 5, RoomType: models.RoomGroup, IsGroup: true, MemberIDs: []int{1, 2, 3}}, nil)
	deps.gifts.On("GetGift", mock.Anything, mock.Anything, 9).Return(models.Gift{ID: 9, Point: 300, Back: 100}, nil)
	expectFanOut(deps, 5, 1, 2, 3)
	deps.rooms.On("UpdatePreview", mock.Anything, mock.Anything, 5, 1, GiftPreview).Return(nil)

	res, err := d.PostMessage(context.Background(), PostInput{RoomID: 5, SenderID: 1, GiftID: &giftID})

	require.NoError(t, err)
	assert.Empty(t, res.Invoices)
	deps.users.AssertNotCalled(t, "LockUsers", mock.Anything, mock.Anything, mock.Anything)
	deps.users.AssertNotCalled(t, "Debit", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestLikeOpensRoomOnFirstContact(t *testing.T) {
	d, deps := newTestDispatcher()
	deps.users.On("ExistingIDs", mock.Anything, mock.Anything, []int{1, 2}).Return([]int{1, 2}, nil)
	room := models.Room{ID: 8, RoomType: models.RoomPrivate, LastMessage: LikePreview, MemberIDs: []int{1, 2}}

	deps.favorites.On("AddFavorite", mock.Anything, mock.Anything, 1, 2).Return(true, nil)
	deps.rooms.On("FindOrCreatePairRoom", mock.Anything, mock.Anything, models.RoomPrivate, 1, 2, LikePreview, 1).Return(room, true, nil)
	deps.messages.On("CreateMessage", mock.Anything, mock.Anything, mock.MatchedBy(func(m models.NewMessage) bool {
		return m.IsLike && m.ReceiverID == 1 && m.IsRead
	})).Return(models.Message{ID: 100, ReceiverID: 1, IsLike: true, IsRead: true}, nil)
	deps.messages.On("CreateMessage", mock.Anything, mock.Anything, mock.MatchedBy(func(m models.NewMessage) bool {
		return m.IsLike && m.ReceiverID == 2 && !m.IsRead && m.FollowerID != nil && *m.FollowerID == 100
	})).Return(models.Message{ID: 101, ReceiverID: 2, IsLike: true}, nil)

	res, err := d.Like(context.Background(), 1, 2)

	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, 8, res.Room.ID)
	assert.Equal(t, []int{1, 2}, deps.notifier.Targets(models.EventRoomCreate))
	assert.Equal(t, []int{1, 2}, deps.notifier.Targets(models.EventMessage))
	deps.messages.AssertExpectations(t)
}

func TestLikeExistingRoomAddsNoMessages(t *testing.T) {
	d, deps := newTestDispatcher()
	deps.users.On("ExistingIDs", mock.Anything, mock.Anything, []int{1, 2}).Return([]int{1, 2}, nil)
	deps.favorites.On("AddFavorite", mock.Anything, mock.Anything, 1, 2).Return(false, nil)
	deps.rooms.On("FindOrCreatePairRoom", mock.Anything, mock.Anything, models.RoomPrivate, 1, 2, LikePreview, 1).
		Return(models.Room{ID: 8, MemberIDs: []int{1, 2}}, false, nil)

	res, err := d.Like(context.Background(), 1, 2)

	require.NoError(t, err)
	assert.False(t, res.Created)
	deps.messages.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, deps.notifier.Pushes)
}

func TestLikeSelfIsRejected(t *testing.T) {
	d, _ := newTestDispatcher()
	_, err := d.Like(context.Background(), 3, 3)
	assert.Equal(t, apperr.CodeInvalidArgument, apperr.CodeOf(err))
}

func TestSendBulkSystemMessages(t *testing.T) {
	d, deps := newTestDispatcher()
	deps.users.On("ExistingIDs", mock.Anything, mock.Anything, []int{3, 4}).Return([]int{3, 4}, nil)
	newRoom := models.Room{ID: 20, RoomType: models.RoomSystem, MemberIDs: []int{3, systemUser}}
	oldRoom := models.Room{ID: 21, RoomType: models.RoomSystem, MemberIDs: []int{4, systemUser}}

	deps.rooms.On("FindOrCreatePairRoom", mock.Anything, mock.Anything, models.RoomSystem, systemUser, 3, "maintenance", systemUser).Return(newRoom, true, nil)
	deps.rooms.On("FindOrCreatePairRoom", mock.Anything, mock.Anything, models.RoomSystem, systemUser, 4, "maintenance", systemUser).Return(oldRoom, false, nil)
	deps.rooms.On("UpdatePreview", mock.Anything, mock.Anything, 21, systemUser, "maintenance").Return(nil)
	deps.messages.On("CreateMessage", mock.Anything, mock.Anything, selfCopy(systemUser)).
		Return(models.Message{ID: 100, SenderID: systemUser, ReceiverID: systemUser, IsRead: true}, nil)
	deps.messages.On("CreateMessage", mock.Anything, mock.Anything, otherCopy(3, 100)).Return(models.Message{ID: 101, ReceiverID: 3}, nil)
	deps.messages.On("CreateMessage", mock.Anything, mock.Anything, otherCopy(4, 100)).Return(models.Message{ID: 102, ReceiverID: 4}, nil)

	results, err := d.SendBulkSystemMessages(context.Background(), []int{4, 3, 4}, "maintenance", nil)

	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, []int{3}, deps.notifier.Targets(models.EventRoomCreate))
	assert.ElementsMatch(t, []int{3, 4}, deps.notifier.Targets(models.EventMessage))
	deps.rooms.AssertExpectations(t)
}

func TestLikeMissingUserIsNotFound(t *testing.T) {
	d, deps := newTestDispatcher()
	deps.users.On("ExistingIDs", mock.Anything, mock.Anything, []int{1, 404}).Return([]int{1}, nil)

	_, err := d.Like(context.Background(), 1, 404)

	require.Error(t, err)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
	assert.Equal(t, 1, deps.tx.Rollbacks)
	deps.favorites.AssertNotCalled(t, "AddFavorite", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, deps.notifier.Pushes)
}

func TestSendBulkSystemMessagesMissingUserIsNotFound(t *testing.T) {
	d, deps := newTestDispatcher()
	deps.users.On("ExistingIDs", mock.Anything, mock.Anything, []int{3, 404}).Return([]int{3}, nil)

	_, err := d.SendBulkSystemMessages(context.Background(), []int{404, 3}, "maintenance", nil)

	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
	deps.rooms.AssertNotCalled(t, "FindOrCreatePairRoom", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPostGiftLocksMembersBeforeMovingPoints(t *testing.T) {
	d, deps := newTestDispatcher()
	giftID := 9
	deps.rooms.On("LockRoom", mock.Anything, mock.Anything, 5).
		Return(models.Room{ID: 5, RoomType: models.RoomPrivate, MemberIDs: []int{2, 7}}, nil)
	deps.gifts.On("GetGift", mock.Anything, mock.Anything, 9).Return(models.Gift{ID: 9, Point: 300, Back: 100}, nil)
	deps.users.On("LockUsers", mock.Anything, mock.Anything, []int{2, 7}).Return(nil, repositories.ErrUserNotFound)

	_, err := d.PostMessage(context.Background(), PostInput{RoomID: 5, SenderID: 7, GiftID: &giftID})

	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
	deps.users.AssertNotCalled(t, "Debit", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestListMessagesRequiresMembership(t *testing.T) {
	d, deps := newTestDispatcher()
	deps.rooms.On("IsMember", mock.Anything, 5, 1).Return(false, nil)

	_, err := d.ListMessages(context.Background(), 5, 1, 1, 0)

	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestListMessagesPaging(t *testing.T) {
	d, deps := newTestDispatcher()
	deps.rooms.On("IsMember", mock.Anything, 5, 1).Return(true, nil)
	deps.messages.On("ListForReceiver", mock.Anything, 5, 1, 10, 13).Return([]models.Message{{ID: 1}}, nil)

	msgs, err := d.ListMessages(context.Background(), 5, 1, 2, 3)

	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}
