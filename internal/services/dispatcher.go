package services

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"meetup-chat/internal/apperr"
	"meetup-chat/internal/db"
	"meetup-chat/internal/models"
	"meetup-chat/internal/notify"
	"meetup-chat/internal/observability"
	"meetup-chat/internal/repositories"
)

// Room previews shown instead of the message text.
const (
	LikePreview  = "♥ いいね"
	ImagePreview = "『画像』"
	GiftPreview  = "『ステッカー』"
)

// PostInput is one logical chat event sent to a room.
type PostInput struct {
	RoomID   int     `json:"-"`
	SenderID int     `json:"-"`
	Content  string  `json:"content"`
	MediaIDs []int64 `json:"media_ids"`
	GiftID   *int    `json:"gift_id"`
}

// PostResult holds every copy written for one event and the ledger rows a
// gift produced.
type PostResult struct {
	Self     models.Message   `json:"self"`
	Copies   []models.Message `json:"copies"`
	Invoices []models.Invoice `json:"invoices,omitempty"`
}

// LikeResult is the private room a like landed in.
type LikeResult struct {
	Room    models.Room `json:"room"`
	Created bool        `json:"created"`
}

// Dispatcher writes one message copy per room member and pushes each copy
// after the transaction commits.
type Dispatcher struct {
	tx           db.TxRunner
	rooms        repositories.RoomRepository
	messages     repositories.MessageRepository
	gifts        repositories.GiftRepository
	favorites    repositories.FavoriteRepository
	users        repositories.UserRepository
	ledger       *Ledger
	notifier     notify.Notifier
	systemUserID int
	log          *zap.Logger
}

// NewDispatcher constructs a Dispatcher. systemUserID is the account that
// sends admin notices.
func NewDispatcher(tx db.TxRunner, rooms repositories.RoomRepository, messages repositories.MessageRepository,
	gifts repositories.GiftRepository, favorites repositories.FavoriteRepository, ledger *Ledger,
	notifier notify.Notifier, systemUserID int, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		tx:           tx,
		rooms:        rooms,
		messages:     messages,
		gifts:        gifts,
		favorites:    favorites,
		users:        ledger.users,
		ledger:       ledger,
		notifier:     notifier,
		systemUserID: systemUserID,
		log:          log.With(zap.String("component", "dispatcher")),
	}
}

// PostMessage fans a message out to every member of the room. The room row is
// locked for the whole transaction, so posts to one room are serialized and
// either every copy, the gift movements and the preview are written, or none.
func (d *Dispatcher) PostMessage(ctx context.Context, in PostInput) (PostResult, error) {
	if strings.TrimSpace(in.Content) == "" && len(in.MediaIDs) == 0 && in.GiftID == nil {
		return PostResult{}, apperr.Validation("message is empty")
	}
	if in.GiftID != nil && *in.GiftID <= 0 {
		return PostResult{}, apperr.Validation("invalid gift id")
	}

	var (
		res       PostResult
		movements []MovementResult
	)
	err := d.tx.InTx(ctx, func(q sqlx.ExtContext) error {
		room, err := d.rooms.LockRoom(ctx, q, in.RoomID)
		if err != nil {
			return err
		}
		if !room.HasMember(in.SenderID) {
			return apperr.Validation("sender is not a member of the room")
		}

		if in.GiftID != nil {
			gift, err := d.gifts.GetGift(ctx, q, *in.GiftID)
			if err != nil {
				return err
			}
			if room.RoomType == models.RoomPrivate && !room.IsGroup {
				movements, err = d.giftMovements(ctx, q, room, in.SenderID, gift)
				if err != nil {
					return err
				}
			}
		}

		res, err = d.fanOut(ctx, q, room, models.NewMessage{
			RoomID:   room.ID,
			SenderID: in.SenderID,
			Content:  in.Content,
			MediaIDs: in.MediaIDs,
			GiftID:   in.GiftID,
		})
		if err != nil {
			return err
		}
		return d.rooms.UpdatePreview(ctx, q, room.ID, in.SenderID, previewFor(in))
	})
	if err != nil {
		return PostResult{}, err
	}

	for _, mv := range movements {
		res.Invoices = append(res.Invoices, mv.Invoice)
	}
	d.ledger.Committed(ctx, movements)
	d.pushCopies(res)
	return res, nil
}

// giftMovements debits the giver once and credits every other member the
// gift's back amount, all inside the post's transaction. Every member's row is
// locked up front in id order.
func (d *Dispatcher) giftMovements(ctx context.Context, q sqlx.ExtContext, room models.Room, giverID int, gift models.Gift) ([]MovementResult, error) {
	if _, err := d.users.LockUsers(ctx, q, room.MemberIDs); err != nil {
		return nil, err
	}
	giftID, roomID := gift.ID, room.ID
	debit, err := d.ledger.ApplyIn(ctx, q, models.Movement{
		Kind:       models.InvoiceGift,
		GiverID:    &giverID,
		GiveAmount: gift.Point,
		GiftID:     &giftID,
		RoomID:     &roomID,
		Reason:     gift.Name,
	})
	if err != nil {
		return nil, err
	}
	results := []MovementResult{debit}

	for _, takerID := range room.OtherMembers(giverID) {
		credit, err := d.ledger.ApplyIn(ctx, q, models.Movement{
			Kind:       models.InvoiceGift,
			TakerID:    &takerID,
			TakeAmount: gift.Back,
			GiftID:     &giftID,
			RoomID:     &roomID,
			Reason:     gift.Name,
		})
		if err != nil {
			return nil, err
		}
		results = append(results, credit)
	}
	return results, nil
}

// fanOut writes the sender's read copy and one unread copy per other member
// pointing back to it.
func (d *Dispatcher) fanOut(ctx context.Context, q sqlx.ExtContext, room models.Room, msg models.NewMessage) (PostResult, error) {
	self := msg
	self.ReceiverID = msg.SenderID
	self.IsRead = true
	created, err := d.messages.CreateMessage(ctx, q, self)
	if err != nil {
		return PostResult{}, err
	}

	res := PostResult{Self: created}
	for _, receiverID := range room.OtherMembers(msg.SenderID) {
		copyMsg := msg
		copyMsg.ReceiverID = receiverID
		copyMsg.IsRead = false
		copyMsg.FollowerID = &created.ID
		stored, err := d.messages.CreateMessage(ctx, q, copyMsg)
		if err != nil {
			return PostResult{}, err
		}
		res.Copies = append(res.Copies, stored)
	}
	return res, nil
}

func (d *Dispatcher) pushCopies(res PostResult) {
	observability.AddMessageCopies(1 + len(res.Copies))
	for _, copyMsg := range res.Copies {
		d.notifier.Publish(copyMsg.ReceiverID, models.EventMessage, copyMsg)
	}
}

func previewFor(in PostInput) string {
	switch {
	case len(in.MediaIDs) > 0:
		return ImagePreview
	case in.GiftID != nil:
		return GiftPreview
	default:
		return in.Content
	}
}

// Like records that userID likes targetID. On first contact it opens their
// private room with the like as its first message pair; an existing room is
// returned untouched.
func (d *Dispatcher) Like(ctx context.Context, userID, targetID int) (LikeResult, error) {
	if userID == targetID {
		return LikeResult{}, apperr.Validation("cannot like yourself")
	}

	var (
		res  LikeResult
		post PostResult
	)
	err := d.tx.InTx(ctx, func(q sqlx.ExtContext) error {
		if err := requireUsers(ctx, d.users, q, []int{userID, targetID}); err != nil {
			return err
		}
		if _, err := d.favorites.AddFavorite(ctx, q, userID, targetID); err != nil {
			return err
		}
		room, created, err := d.rooms.FindOrCreatePairRoom(ctx, q, models.RoomPrivate, userID, targetID, LikePreview, userID)
		if err != nil {
			return err
		}
		res = LikeResult{Room: room, Created: created}
		if !created {
			return nil
		}
		post, err = d.fanOut(ctx, q, room, models.NewMessage{RoomID: room.ID, SenderID: userID, IsLike: true})
		return err
	})
	if err != nil {
		return LikeResult{}, err
	}

	if res.Created {
		for _, memberID := range res.Room.MemberIDs {
			d.notifier.Publish(memberID, models.EventRoomCreate, res.Room)
		}
		d.notifier.Publish(userID, models.EventMessage, post.Self)
		d.pushCopies(post)
	}
	return res, nil
}

// SendSystemMessage posts an admin notice into the user's system room,
// creating that room on first use.
func (d *Dispatcher) SendSystemMessage(ctx context.Context, userID int, content string, mediaIDs []int64) (PostResult, error) {
	results, err := d.SendBulkSystemMessages(ctx, []int{userID}, content, mediaIDs)
	if err != nil {
		return PostResult{}, err
	}
	return results[0], nil
}

// SendBulkSystemMessages posts the same notice to each user's system room in
// one transaction.
func (d *Dispatcher) SendBulkSystemMessages(ctx context.Context, userIDs []int, content string, mediaIDs []int64) ([]PostResult, error) {
	userIDs = dedupe(userIDs)
	if len(userIDs) == 0 {
		return nil, apperr.Validation("no recipients")
	}
	if strings.TrimSpace(content) == "" && len(mediaIDs) == 0 {
		return nil, apperr.Validation("message is empty")
	}
	preview := previewFor(PostInput{Content: content, MediaIDs: mediaIDs})

	var (
		results []PostResult
		opened  []models.Room
	)
	err := d.tx.InTx(ctx, func(q sqlx.ExtContext) error {
		if err := requireUsers(ctx, d.users, q, userIDs); err != nil {
			return err
		}
		for _, userID := range userIDs {
			if userID == d.systemUserID {
				return apperr.Validation("system account cannot receive notices")
			}
			room, created, err := d.rooms.FindOrCreatePairRoom(ctx, q, models.RoomSystem, d.systemUserID, userID, preview, d.systemUserID)
			if err != nil {
				return err
			}
			if created {
				opened = append(opened, room)
			} else if err := d.rooms.UpdatePreview(ctx, q, room.ID, d.systemUserID, preview); err != nil {
				return err
			}
			res, err := d.fanOut(ctx, q, room, models.NewMessage{
				RoomID:   room.ID,
				SenderID: d.systemUserID,
				Content:  content,
				MediaIDs: mediaIDs,
			})
			if err != nil {
				return err
			}
			results = append(results, res)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, room := range opened {
		for _, memberID := range room.OtherMembers(d.systemUserID) {
			d.notifier.Publish(memberID, models.EventRoomCreate, room)
		}
	}
	for _, res := range results {
		d.pushCopies(res)
	}
	d.log.Info("system notices sent", zap.Int("recipients", len(userIDs)))
	return results, nil
}

// ListMessages returns the caller's own copies in a room, newest first.
func (d *Dispatcher) ListMessages(ctx context.Context, roomID, userID, page, offset int) ([]models.Message, error) {
	member, err := d.rooms.IsMember(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, repositories.ErrRoomNotFound
	}
	limit, start := pageBounds(page, offset)
	return d.messages.ListForReceiver(ctx, roomID, userID, limit, start)
}
