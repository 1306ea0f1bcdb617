package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"meetup-chat/internal/models"
	"meetup-chat/internal/observability"
)

const channelPrefix = "chat_"

// Notifier pushes an event to a user's live channel. Implementations must not
// block and must not report failures to the caller.
type Notifier interface {
	Publish(userID int, eventType string, payload any)
}

// LocalDeliverer hands a payload to the connections of a user on this instance.
type LocalDeliverer interface {
	SendToUser(userID int, payload []byte) int
}

// PubSub is the slice of the go-redis client the broadcaster uses.
type PubSub interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	PSubscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// ChannelForUser names the pub/sub channel of a user.
func ChannelForUser(userID int) string {
	return channelPrefix + strconv.Itoa(userID)
}

func userFromChannel(channel string) (int, bool) {
	id, err := strconv.Atoi(strings.TrimPrefix(channel, channelPrefix))
	if err != nil || !strings.HasPrefix(channel, channelPrefix) {
		return 0, false
	}
	return id, true
}

type outbound struct {
	userID  int
	payload []byte
}

// Broadcaster queues push events and fans them out through Redis so every
// instance can reach its own websockets. Without Redis it delivers to the
// local hub directly.
type Broadcaster struct {
	redis PubSub
	local LocalDeliverer
	queue chan outbound
	log   *zap.Logger
	wg    sync.WaitGroup
}

// NewBroadcaster builds a broadcaster. rdb may be nil.
func NewBroadcaster(rdb PubSub, local LocalDeliverer, queueSize int, log *zap.Logger) *Broadcaster {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Broadcaster{
		redis: rdb,
		local: local,
		queue: make(chan outbound, queueSize),
		log:   log.With(zap.String("component", "broadcaster")),
	}
}

// Publish enqueues the event. A full queue drops it.
func (b *Broadcaster) Publish(userID int, eventType string, payload any) {
	data, err := json.Marshal(models.PushEvent{Type: eventType, Payload: payload})
	if err != nil {
		b.log.Error("push encode failed", zap.String("type", eventType), zap.Error(err))
		observability.IncPush("failed")
		return
	}

	select {
	case b.queue <- outbound{userID: userID, payload: data}:
		observability.IncPush("queued")
	default:
		b.log.Warn("push queue full, dropping event", zap.Int("user_id", userID), zap.String("type", eventType))
		observability.IncPush("dropped")
	}
}

// Start runs the queue worker and, with Redis, the channel subscriber until
// ctx is cancelled. Wait blocks until both have exited.
func (b *Broadcaster) Start(ctx context.Context) error {
	if b.redis != nil {
		sub := b.redis.PSubscribe(ctx, channelPrefix+"*")
		if _, err := sub.Receive(ctx); err != nil {
			_ = sub.Close()
			return fmt.Errorf("subscribe %s*: %w", channelPrefix, err)
		}
		b.wg.Add(1)
		go b.subscribe(ctx, sub)
	}

	b.wg.Add(1)
	go b.drain(ctx)
	return nil
}

// Wait blocks until the goroutines started by Start return.
func (b *Broadcaster) Wait() {
	b.wg.Wait()
}

func (b *Broadcaster) drain(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-b.queue:
			b.deliver(ctx, item)
		}
	}
}

func (b *Broadcaster) deliver(ctx context.Context, item outbound) {
	if b.redis == nil {
		b.deliverLocal(item.userID, item.payload)
		return
	}
	if err := b.redis.Publish(ctx, ChannelForUser(item.userID), item.payload).Err(); err != nil {
		b.log.Warn("redis publish failed, delivering locally", zap.Int("user_id", item.userID), zap.Error(err))
		observability.IncPush("failed")
		b.deliverLocal(item.userID, item.payload)
	}
}

func (b *Broadcaster) deliverLocal(userID int, payload []byte) {
	if b.local == nil {
		return
	}
	if n := b.local.SendToUser(userID, payload); n > 0 {
		observability.IncPush("delivered")
	}
}

func (b *Broadcaster) subscribe(ctx context.Context, sub *redis.PubSub) {
	defer b.wg.Done()
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			userID, ok := userFromChannel(msg.Channel)
			if !ok {
				b.log.Debug("ignoring message on unexpected channel", zap.String("channel", msg.Channel))
				continue
			}
			b.deliverLocal(userID, []byte(msg.Payload))
		}
	}
}
