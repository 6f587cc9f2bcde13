// Package notifications delivers live events and reminders to connected users.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"

	"fanlive/internal/cache"
	"fanlive/internal/middleware"

	"github.com/redis/go-redis/v9"
)

const (
	userChannelPrefix  = "notifications:user:"
	userChannelPattern = "notifications:user:*"
	liveChannelPattern = "live:*:events"
)

// LiveEvent is the envelope published on a live's event channel.
type LiveEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Notifier provides helpers to publish notifications into Redis channels
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// PublishUser sends a notification payload to a user's channel.
func (n *Notifier) PublishUser(ctx context.Context, userID uint, payload string) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	return n.rdb.Publish(ctx, UserChannel(userID), payload).Err()
}

// PublishLiveEvent sends event to everyone connected to liveID.
func (n *Notifier) PublishLiveEvent(ctx context.Context, liveID uint, event string, payload any) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	body, err := json.Marshal(LiveEvent{Type: event, Payload: payload})
	if err != nil {
		return fmt.Errorf("marshal live event: %w", err)
	}
	return n.rdb.Publish(ctx, cache.LiveEventsChannel(liveID), body).Err()
}

// StartUserSubscriber subscribes to every user channel and calls onMessage
// for each incoming message.
func (n *Notifier) StartUserSubscriber(ctx context.Context, onMessage func(channel, payload string)) error {
	return n.subscribe(ctx, "UserSubscriber", onMessage, userChannelPattern)
}

// StartLiveSubscriber subscribes to the event channel of every live.
func (n *Notifier) StartLiveSubscriber(ctx context.Context, onMessage func(channel, payload string)) error {
	return n.subscribe(ctx, "LiveSubscriber", onMessage, liveChannelPattern)
}

func (n *Notifier) subscribe(ctx context.Context, name string, onMessage func(channel, payload string), patterns ...string) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, patterns...)
	// Wait for the subscription so publishes right after start are not lost.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %v: %w", patterns, err)
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
							middleware.Logger.Error("PANIC in "+name,
								slog.Any("panic", r),
								slog.String("stack", string(debug.Stack())),
							)
						}
					}()
					onMessage(msg.Channel, msg.Payload)
				}()
			}
		}
	}()

	return nil
}

// UserChannel derives the Redis channel name for a user.
func UserChannel(userID uint) string {
	return userChannelPrefix + strconv.FormatUint(uint64(userID), 10)
}

// ParseUserChannel extracts the user id from a UserChannel name.
func ParseUserChannel(channel string) (uint, bool) {
	var id uint
	if _, err := fmt.Sscanf(channel, userChannelPrefix+"%d", &id); err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// ParseLiveChannel extracts the live id from a live event channel name.
func ParseLiveChannel(channel string) (uint, bool) {
	var id uint
	if _, err := fmt.Sscanf(channel, cache.LiveEventsPrefix, &id); err != nil || id == 0 {
		return 0, false
	}
	return id, true
}
