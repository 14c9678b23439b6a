package events

import (
	"context"
	"errors"
	"log/slog"

	"github.com/kirinyoku/rehearsal-go/internal/domain"
)

// AuditLog writes one structured line per event.
func AuditLog(log *slog.Logger) Subscriber {
	return SubscriberFunc{
		N: "audit-log",
		Fn: func(ctx context.Context, events []domain.LifecycleEvent) error {
			for _, ev := range events {
				log.InfoContext(ctx, "lifecycle event",
					slog.String("event_id", ev.EventID.String()),
					slog.String("type", string(ev.Type)),
					slog.String("booking_id", ev.Booking.ID.String()),
					slog.String("status", string(ev.Booking.Status)),
					slog.String("previous_status", string(ev.PreviousStatus)),
					slog.Bool("defer_credits", ev.DeferCredits),
					slog.Bool("refund", ev.Refund),
				)
			}
			return nil
		},
	}
}

type lifecyclePublisher interface {
	PublishLifecycle(ctx context.Context, ev domain.LifecycleEvent) error
}

// RedisChannel announces each event on the shared pub/sub channel.
func RedisChannel(p lifecyclePublisher) Subscriber {
	return SubscriberFunc{
		N: "redis-pubsub",
		Fn: func(ctx context.Context, events []domain.LifecycleEvent) error {
			var errs []error
			for _, ev := range events {
				if err := p.PublishLifecycle(ctx, ev); err != nil {
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		},
	}
}

type batchPublisher interface {
	PublishLifecycle(ctx context.Context, events ...domain.LifecycleEvent) error
}

// Kafka forwards the whole batch to the lifecycle topic.
func Kafka(p batchPublisher) Subscriber {
	return SubscriberFunc{
		N: "kafka",
		Fn: func(ctx context.Context, events []domain.LifecycleEvent) error {
			return p.PublishLifecycle(ctx, events...)
		},
	}
}
