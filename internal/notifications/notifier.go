package notifications

import (
	"context"
	"log"
	"runtime/debug"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const requestChannelPrefix = "chat:request:"

// Notifier publishes request channel events into Redis so every instance
// can deliver them to its own subscribers.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// Enabled reports whether a Redis client is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && n.rdb != nil
}

// PublishRequestEvent sends an encoded event to a request's channel.
func (n *Notifier) PublishRequestEvent(ctx context.Context, requestID uint, payload string) error {
	if !n.Enabled() {
		return nil
	}
	return n.rdb.Publish(ctx, RequestChannel(requestID), payload).Err()
}

// StartRequestSubscriber subscribes to chat:request:* and calls onMessage for
// each incoming message. It returns once Redis has confirmed the subscription.
func (n *Notifier) StartRequestSubscriber(
	ctx context.Context, onMessage func(channel string, payload string),
) error {
	if !n.Enabled() {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, requestChannelPrefix+"*")
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return err
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							log.Printf("PANIC in RequestSubscriber: %v\n%s", r, debug.Stack())
						}
					}()
					onMessage(msg.Channel, msg.Payload)
				}()
			}
		}
	}()

	return nil
}

// RequestChannel derives the Redis channel name for a request.
func RequestChannel(requestID uint) string {
	return requestChannelPrefix + strconv.FormatUint(uint64(requestID), 10)
}
