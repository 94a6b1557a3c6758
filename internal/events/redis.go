package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const channelPrefix = "dm:events:"

// RedisBus fans events out across server instances with Redis Pub/Sub on
// one channel per user.
type RedisBus struct {
	rdb *redis.Client
}

func NewRedisBus(rdb *redis.Client) *RedisBus {
	return &RedisBus{rdb: rdb}
}

// NewRedisBusFromURL parses a redis:// URL and pings the server.
func NewRedisBusFromURL(ctx context.Context, url string) (*RedisBus, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisBus{rdb: rdb}, nil
}

func ChannelFor(userID uuid.UUID) string {
	return channelPrefix + userID.String()
}

func (b *RedisBus) Publish(ctx context.Context, userID uuid.UUID, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.rdb.Publish(ctx, ChannelFor(userID), data).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	ps := b.rdb.Subscribe(ctx, ChannelFor(userID))
	// Wait for the subscription to be confirmed so no event is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	out := make(chan Event, subscriberBuffer)
	done := make(chan struct{})
	go func() {
		defer close(out)
		in := ps.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					slog.Warn("discarding malformed event", "channel", msg.Channel, "error", err)
					continue
				}
				select {
				case out <- ev:
				default:
					slog.Warn("event dropped for slow subscriber", "user_id", userID, "type", ev.Type)
				}
			}
		}
	}()

	return &Subscription{
		C: out,
		closeFn: func() {
			close(done)
			_ = ps.Close()
		},
	}, nil
}

func (b *RedisBus) Close() error {
	return b.rdb.Close()
}
