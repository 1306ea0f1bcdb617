package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"meetup-chat/internal/middleware"
	"meetup-chat/internal/mocks"
	"meetup-chat/internal/models"
	"meetup-chat/internal/repositories"
	"meetup-chat/internal/services"
	"meetup-chat/internal/telemetry"
)

const (
	testSecret = "handler-secret"
	systemUser = 99
)

type testApp struct {
	router    *gin.Engine
	tx        *mocks.TxRunner
	users     *mocks.UserRepositoryMock
	rooms     *mocks.RoomRepositoryMock
	messages  *mocks.MessageRepositoryMock
	invoices  *mocks.InvoiceRepositoryMock
	gifts     *mocks.GiftRepositoryMock
	joins     *mocks.JoinRepositoryMock
	transfers *mocks.TransferRepositoryMock
	events    *mocks.PublisherMock
	notifier  *mocks.NotifierRecorder
}

func newTestApp() *testApp {
	gin.SetMode(gin.TestMode)
	app := &testApp{
		tx:        &mocks.TxRunner{},
		users:     new(mocks.UserRepositoryMock),
		rooms:     new(mocks.RoomRepositoryMock),
		messages:  new(mocks.MessageRepositoryMock),
		invoices:  new(mocks.InvoiceRepositoryMock),
		gifts:     new(mocks.GiftRepositoryMock),
		joins:     new(mocks.JoinRepositoryMock),
		transfers: new(mocks.TransferRepositoryMock),
		events:    new(mocks.PublisherMock),
		notifier:  &mocks.NotifierRecorder{},
	}
	app.events.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	log := zap.NewNop()
	emitter := telemetry.NewAuditEmitter(app.events, "meetup-chat", "test", log)
	ledger := services.NewLedger(app.tx, app.users, app.invoices, app.events, app.notifier, log)
	roomSvc := services.NewRoomService(app.tx, app.rooms, app.users, app.joins, app.notifier, log)
	dispatcher := services.NewDispatcher(app.tx, app.rooms, app.messages, app.gifts, app.joins, ledger, app.notifier, systemUser, log)
	unread := services.NewUnreadTracker(app.rooms, app.messages)
	desk := services.NewTransferDesk(app.tx, app.users, app.transfers, ledger, log)

	app.router = gin.New()
	RegisterRoutes(app.router, middleware.NewTokenValidator(testSecret), Handlers{
		Rooms:     NewRoomHandler(roomSvc, unread),
		Messages:  NewMessageHandler(dispatcher, unread, emitter),
		Points:    NewPointHandler(ledger, emitter),
		Transfers: NewTransferHandler(desk, emitter),
		Admin:     NewAdminHandler(roomSvc, dispatcher, ledger, emitter, log),
	})
	return app
}

func token(t *testing.T, userID int, role models.Role) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  userID,
		"role": string(role),
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (a *testApp) do(t *testing.T, method, path, body string, userID int, role models.Role) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		req.Header.Set("Authorization", "Bearer "+token(t, userID, role))
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestRoutesRequireToken(t *testing.T) {
	app := newTestApp()

	rec := app.do(t, http.MethodGet, "/rooms", "", 0, "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	app := newTestApp()

	rec := app.do(t, http.MethodGet, "/admin/transfers", "", 1, models.RoleCast)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestListRooms(t *testing.T) {
	app := newTestApp()
	app.rooms.On("ListForUser", mock.Anything, 1, false, "mi", 10, 0).
		Return([]models.RoomSummary{{Room: models.Room{ID: 3}, Unread: 4}}, nil).Once()

	rec := app.do(t, http.MethodGet, "/rooms?keyword=mi", "", 1, models.RoleGuest)

	require.Equal(t, http.StatusOK, rec.Code)
	rooms := decode(t, rec)["rooms"].([]any)
	require.Len(t, rooms, 1)
	assert.Equal(t, float64(4), rooms[0].(map[string]any)["unread"])
	app.rooms.AssertExpectations(t)
}

func TestListRoomsBadMode(t *testing.T) {
	app := newTestApp()

	rec := app.do(t, http.MethodGet, "/rooms?mode=archived", "", 1, models.RoleGuest)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOpenPrivateRoomCreated(t *testing.T) {
	app := newTestApp()
	app.users.On("ExistingIDs", mock.Anything, mock.Anything, []int{1, 2}).Return([]int{1, 2}, nil)
	app.rooms.On("FindOrCreatePairRoom", mock.Anything, mock.Anything, models.RoomPrivate, 1, 2, "", 1).
		Return(models.Room{ID: 8, MemberIDs: []int{1, 2}}, true, nil)

	rec := app.do(t, http.MethodPost, "/rooms/private", `{"user_id":2}`, 1, models.RoleGuest)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, true, decode(t, rec)["created"])
}

func TestPostMessageNonMemberIsBadRequest(t *testing.T) {
	app := newTestApp()
	app.rooms.On("LockRoom", mock.Anything, mock.Anything, 5).Return(models.Room{ID: 5, MemberIDs: []int{2, 3}}, nil)

	rec := app.do(t, http.MethodPost, "/rooms/5/messages", `{"content":"hi"}`, 1, models.RoleGuest)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "sender is not a member of the room", decode(t, rec)["error"])
}

func TestPostMessageCreated(t *testing.T) {
	app := newTestApp()
	app.rooms.On("LockRoom", mock.Anything, mock.Anything, 5).Return(models.Room{ID: 5, MemberIDs: []int{1, 2}}, nil)
	app.messages.On("CreateMessage", mock.Anything, mock.Anything, mock.MatchedBy(func(m models.NewMessage) bool {
		return m.ReceiverID == 1
	})).Return(models.Message{ID: 40, ReceiverID: 1, IsRead: true}, nil)
	app.messages.On("CreateMessage", mock.Anything, mock.Anything, mock.MatchedBy(func(m models.NewMessage) bool {
		return m.ReceiverID == 2
	})).Return(models.Message{ID: 41, ReceiverID: 2}, nil)
	app.rooms.On("UpdatePreview", mock.Anything, mock.Anything, 5, 1, "hi").Return(nil)

	rec := app.do(t, http.MethodPost, "/rooms/5/messages", `{"content":"hi"}`, 1, models.RoleGuest)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Len(t, decode(t, rec)["copies"], 1)
	assert.Equal(t, []int{2}, app.notifier.Targets(models.EventMessage))
}

func TestPostGiftCarriesCorrelationIDs(t *testing.T) {
	app := newTestApp()
	giftID, selfID := 9, 40
	app.rooms.On("LockRoom", mock.Anything, mock.Anything, 5).
		Return(models.Room{ID: 5, RoomType: models.RoomGroup, IsGroup: true, MemberIDs: []int{1, 2}}, nil)
	app.gifts.On("GetGift", mock.Anything, mock.Anything, 9).Return(models.Gift{ID: 9, Name: "rose", Point: 300, Back: 100}, nil)
	app.messages.On("CreateMessage", mock.Anything, mock.Anything, mock.MatchedBy(func(m models.NewMessage) bool {
		return m.ReceiverID == 1
	})).Return(models.Message{ID: selfID, RoomID: 5, SenderID: 1, ReceiverID: 1, GiftID: &giftID, IsRead: true}, nil)
	app.messages.On("CreateMessage", mock.Anything, mock.Anything, mock.MatchedBy(func(m models.NewMessage) bool {
		return m.ReceiverID == 2 && m.FollowerID != nil && *m.FollowerID == selfID
	})).Return(models.Message{ID: 41, RoomID: 5, SenderID: 1, ReceiverID: 2, GiftID: &giftID, FollowerID: &selfID}, nil)
	app.rooms.On("UpdatePreview", mock.Anything, mock.Anything, 5, 1, services.GiftPreview).Return(nil)

	rec := app.do(t, http.MethodPost, "/rooms/5/messages", `{"gift_id":9}`, 1, models.RoleGuest)

	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decode(t, rec)
	self := resp["self"].(map[string]any)
	assert.Nil(t, self["follower_id"])
	assert.Contains(t, self, "follower_id")
	assert.Equal(t, float64(giftID), self["gift_id"])
	copies := resp["copies"].([]any)
	require.Len(t, copies, 1)
	incoming := copies[0].(map[string]any)
	assert.Equal(t, float64(selfID), incoming["follower_id"])
	assert.Equal(t, float64(giftID), incoming["gift_id"])

	require.Len(t, app.notifier.Pushes, 1)
	push := app.notifier.Pushes[0]
	wire, err := json.Marshal(models.PushEvent{Type: push.Type, Payload: push.Payload})
	require.NoError(t, err)
	assert.Contains(t, string(wire), `"follower_id":40`)
	assert.Contains(t, string(wire), `"gift_id":9`)
}

func TestInvalidRoomID(t *testing.T) {
	app := newTestApp()

	rec := app.do(t, http.MethodGet, "/rooms/abc/messages", "", 1, models.RoleGuest)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMarkReadOutsideRoomIsNotFound(t *testing.T) {
	app := newTestApp()
	app.rooms.On("IsMember", mock.Anything, 5, 1).Return(false, nil)

	rec := app.do(t, http.MethodPut, "/rooms/5/read", "", 1, models.RoleGuest)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnreadCount(t *testing.T) {
	app := newTestApp()
	app.messages.On("UnreadCount", mock.Anything, 1).Return(6, nil)

	rec := app.do(t, http.MethodGet, "/messages/unread", "", 1, models.RoleGuest)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(6), decode(t, rec)["unread"])
}

func TestBuyPointsInsufficientPayloadAndSuccess(t *testing.T) {
	app := newTestApp()

	rec := app.do(t, http.MethodPost, "/points/buy", `{"points":100}`, 1, models.RoleGuest)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	app.users.On("Credit", mock.Anything, mock.Anything, 1, int64(100)).Return(models.Balance{UserID: 1, Point: 100}, nil)
	app.invoices.On("CreateInvoice", mock.Anything, mock.Anything, mock.Anything).
		Return(models.Invoice{ID: 3, InvoiceType: models.InvoiceBuy}, nil)

	rec = app.do(t, http.MethodPost, "/points/buy", `{"points":100,"payment_ref":"pi_1"}`, 1, models.RoleGuest)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(100), decode(t, rec)["balance"].(map[string]any)["point"])
}

func TestApplyTransferPaymentRequired(t *testing.T) {
	app := newTestApp()
	app.users.On("GetUser", mock.Anything, 1).Return(models.User{ID: 1, Role: models.RoleCast, Point: 500}, nil)

	rec := app.do(t, http.MethodPost, "/transfers", `{"point":600}`, 1, models.RoleCast)

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
}

func TestApplyTransferWithoutBody(t *testing.T) {
	app := newTestApp()
	app.users.On("GetUser", mock.Anything, 1).Return(models.User{ID: 1, Role: models.RoleCast, Point: 1000}, nil)
	app.transfers.On("CreateApplication", mock.Anything, mock.Anything).
		Return(models.TransferApplication{ID: 2, UserID: 1, Point: 1000, Fee: 460, Amount: 540}, nil)

	rec := app.do(t, http.MethodPost, "/transfers", "", 1, models.RoleCast)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, float64(540), decode(t, rec)["amount"])
}

func TestAdminListTransfersFilter(t *testing.T) {
	app := newTestApp()
	from := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	status := models.TransferPending
	userID := 7
	app.transfers.On("List", mock.Anything, models.TransferFilter{
		Status: &status, UserID: &userID, From: &from, To: &to, Page: 2, PageSize: 10,
	}).Return([]models.TransferApplication{{ID: 1}}, 11, nil)

	rec := app.do(t, http.MethodGet, "/admin/transfers?status=0&user_id=7&from=2024-05-01&to=2024-05-31&page=2", "", 9, models.RoleAdmin)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(11), decode(t, rec)["total"])
}

func TestAdminListTransfersBadDate(t *testing.T) {
	app := newTestApp()

	rec := app.do(t, http.MethodGet, "/admin/transfers?from=yesterday", "", 9, models.RoleAdmin)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcessTransferTwiceConflicts(t *testing.T) {
	app := newTestApp()
	app.transfers.On("MarkProcessed", mock.Anything, mock.Anything, 4).Return(nil, repositories.ErrTransferProcessed)

	rec := app.do(t, http.MethodPost, "/admin/transfers/4/process", "", 9, models.RoleAdmin)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRemoveMemberSendsKickNotice(t *testing.T) {
	app := newTestApp()
	room := models.Room{ID: 6, RoomType: models.RoomGroup, IsGroup: true, Title: "夜会", MemberIDs: []int{1, 2}}
	app.rooms.On("GetRoom", mock.Anything, 6).Return(room, nil)
	app.rooms.On("LockRoom", mock.Anything, mock.Anything, 6).Return(room, nil)
	app.rooms.On("AddMembers", mock.Anything, mock.Anything, 6, []int{}).Return([]int{}, nil)
	app.rooms.On("RemoveMembers", mock.Anything, mock.Anything, 6, []int{2}).Return([]int{2}, nil)
	app.joins.On("EndJoinsForRoom", mock.Anything, mock.Anything, 6, []int{2}).Return(int64(1), nil)
	app.rooms.On("MemberIDs", mock.Anything, mock.Anything, 6).Return([]int{1}, nil)

	systemRoom := models.Room{ID: 30, RoomType: models.RoomSystem, MemberIDs: []int{systemUser, 2}}
	app.users.On("ExistingIDs", mock.Anything, mock.Anything, []int{2}).Return([]int{2}, nil)
	app.rooms.On("FindOrCreatePairRoom", mock.Anything, mock.Anything, models.RoomSystem, systemUser, 2, mock.Anything, systemUser).
		Return(systemRoom, false, nil)
	app.rooms.On("UpdatePreview", mock.Anything, mock.Anything, 30, systemUser, mock.Anything).Return(nil)
	app.messages.On("CreateMessage", mock.Anything, mock.Anything, mock.MatchedBy(func(m models.NewMessage) bool {
		return m.ReceiverID == 2 && m.Content == "残念ですが管理画面よりチャットルーム「夜会」から却下されました。"
	})).Return(models.Message{ID: 51, ReceiverID: 2}, nil).Once()
	app.messages.On("CreateMessage", mock.Anything, mock.Anything, mock.MatchedBy(func(m models.NewMessage) bool {
		return m.ReceiverID == systemUser
	})).Return(models.Message{ID: 50, ReceiverID: systemUser}, nil).Once()

	rec := app.do(t, http.MethodDelete, "/admin/rooms/6/members/2", "", 9, models.RoleAdmin)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int{2}, app.notifier.Targets(models.EventRoomDelete))
	assert.Contains(t, app.notifier.Targets(models.EventMessage), 2)
	app.messages.AssertExpectations(t)
}

func TestAdminApplyMovementDefaultsToAdjust(t *testing.T) {
	app := newTestApp()
	app.users.On("Credit", mock.Anything, mock.Anything, 3, int64(50)).Return(models.Balance{UserID: 3, Point: 50}, nil)
	app.invoices.On("CreateInvoice", mock.Anything, mock.Anything, mock.MatchedBy(func(m models.Movement) bool {
		return m.Kind == models.InvoiceAdjust && m.Reason == "refund"
	})).Return(models.Invoice{ID: 9, InvoiceType: models.InvoiceAdjust}, nil)

	rec := app.do(t, http.MethodPost, "/admin/points/movements", `{"taker_id":3,"take_amount":50,"reason":"refund"}`, 9, models.RoleAdmin)

	require.Equal(t, http.StatusCreated, rec.Code)
	app.invoices.AssertExpectations(t)
}

func TestAdminListRooms(t *testing.T) {
	app := newTestApp()
	app.rooms.On("ListAll", mock.Anything, 4, 10, 10).Return([]models.Room{{ID: 1}}, 12, nil)

	rec := app.do(t, http.MethodGet, "/admin/rooms?user_id=4&page=2", "", 9, models.RoleAdmin)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(12), decode(t, rec)["total"])
}
