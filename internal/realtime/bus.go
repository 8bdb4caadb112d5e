package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/vibeops/internal/logger"
)

// Message is the JSON body delivered on a user's ops channel.
type Message struct {
	ID      string          `json:"id"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	SentAt  time.Time       `json:"sent_at"`
}

// PubSub is the part of the redis client the bus uses.
type PubSub interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// Bus broadcasts ops messages on per-user Redis pub/sub channels.
type Bus struct {
	rdb    PubSub
	prefix string
	log    *logger.Logger
}

func NewBus(rdb PubSub, prefix string, log *logger.Logger) *Bus {
	if log == nil {
		log = logger.Nop()
	}
	if prefix == "" {
		prefix = "ops:user:"
	}
	return &Bus{rdb: rdb, prefix: prefix, log: log.Named("bus")}
}

// Channel returns the channel name for a user.
func (b *Bus) Channel(userID string) string { return b.prefix + userID }

// Send publishes msg to the user's channel and returns the number of live subscribers.
func (b *Bus) Send(ctx context.Context, userID string, msg Message) (int64, error) {
	if b == nil || b.rdb == nil {
		return 0, fmt.Errorf("realtime bus not initialized")
	}
	if strings.TrimSpace(userID) == "" {
		return 0, fmt.Errorf("user id required")
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return 0, err
	}
	return b.rdb.Publish(ctx, b.Channel(userID), raw).Result()
}

// Subscribe forwards messages from a user's channel to onMsg until ctx ends.
func (b *Bus) Subscribe(ctx context.Context, userID string, onMsg func(Message)) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("realtime bus not initialized")
	}
	if onMsg == nil {
		return fmt.Errorf("onMsg callback required")
	}
	sub := b.rdb.Subscribe(ctx, b.Channel(userID))
	// wait for the subscription confirmation
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var msg Message
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					b.log.Warn("bad ops channel payload", "channel", m.Channel, "error", err)
					continue
				}
				onMsg(msg)
			}
		}
	}()
	return nil
}
