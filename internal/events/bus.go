// Package events delivers committed lifecycle events to the subscribers
// wired at startup.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kirinyoku/rehearsal-go/internal/domain"
)

// Subscriber handles a batch of events from one transaction. A returned
// error is an integration failure: it is logged and never reaches the
// caller whose booking already committed.
type Subscriber interface {
	Name() string
	Handle(ctx context.Context, events []domain.LifecycleEvent) error
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc struct {
	N  string
	Fn func(ctx context.Context, events []domain.LifecycleEvent) error
}

func (f SubscriberFunc) Name() string { return f.N }

func (f SubscriberFunc) Handle(ctx context.Context, events []domain.LifecycleEvent) error {
	return f.Fn(ctx, events)
}

type Bus struct {
	mu      sync.RWMutex
	subs    []Subscriber
	timeout time.Duration
	log     *slog.Logger
}

func NewBus(log *slog.Logger, timeout time.Duration) *Bus {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Bus{log: log, timeout: timeout}
}

func (b *Bus) Subscribe(s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, s)
}

// Publish hands events to every subscriber in registration order. The
// request context may already be cancelled once the response is written,
// so delivery runs on a detached context with its own timeout.
func (b *Bus) Publish(ctx context.Context, events ...domain.LifecycleEvent) {
	if len(events) == 0 {
		return
	}

	b.mu.RLock()
	subs := make([]Subscriber, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
	defer cancel()

	for _, s := range subs {
		if err := s.Handle(dctx, events); err != nil {
			b.log.Error("event delivery failed",
				slog.String("subscriber", s.Name()),
				slog.Int("events", len(events)),
				slog.String("first_event_id", events[0].EventID.String()),
				slog.String("err", err.Error()),
			)
		}
	}
}
