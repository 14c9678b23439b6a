package redisx

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/rehearsal-go/internal/domain"
	"github.com/redis/go-redis/v9"
)

// BookingsPubSub fans booking lifecycle changes out to every instance
// subscribed on the shared channel.
type BookingsPubSub struct {
	rdb     *redis.Client
	channel string
}

func NewBookingsPubSub(rdb *redis.Client) *BookingsPubSub {
	return &BookingsPubSub{
		rdb:     rdb,
		channel: ChannelBookingsChanged(),
	}
}

// BookingChangedMsg is the wire form published on the channel. It carries
// only what a listener needs to drop stale state.
type BookingChangedMsg struct {
	EventID   uuid.UUID        `json:"event_id"`
	Type      domain.EventType `json:"type"`
	BookingID uuid.UUID        `json:"booking_id"`
	Start     time.Time        `json:"start"`
	End       time.Time        `json:"end"`
	TsUnix    int64            `json:"ts_unix"`
}

func (p *BookingsPubSub) PublishLifecycle(ctx context.Context, ev domain.LifecycleEvent) error {
	const op = "redisx.BookingsPubSub.PublishLifecycle"

	b, err := json.Marshal(BookingChangedMsg{
		EventID:   ev.EventID,
		Type:      ev.Type,
		BookingID: ev.Booking.ID,
		Start:     ev.Booking.Start,
		End:       ev.Booking.End,
		TsUnix:    ev.OccurredAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := p.rdb.Publish(ctx, p.channel, b).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Subscribe blocks delivering messages to handler until ctx is done or the
// subscription is closed. Malformed payloads are dropped.
func (p *BookingsPubSub) Subscribe(ctx context.Context, handler func(ctx context.Context, msg BookingChangedMsg)) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()

	ch := sub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg BookingChangedMsg
			if err := json.Unmarshal([]byte(m.Payload), &msg); err == nil &&
				msg.BookingID != uuid.Nil {
				handler(ctx, msg)
			}
		}
	}
}
