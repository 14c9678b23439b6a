package events

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/rehearsal-go/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	got []domain.LifecycleEvent
}

func (r *recorder) Subscriber(name string) Subscriber {
	return SubscriberFunc{N: name, Fn: func(_ context.Context, evs []domain.LifecycleEvent) error {
		r.got = append(r.got, evs...)
		return nil
	}}
}

func sample() domain.LifecycleEvent {
	return domain.BookingCreated(domain.Booking{ID: uuid.New(), Status: domain.StatusScheduled}, time.Now())
}

func TestBus_FailingSubscriberDoesNotStopOthers(t *testing.T) {
	var buf bytes.Buffer
	bus := NewBus(slog.New(slog.NewTextHandler(&buf, nil)), time.Second)

	rec := &recorder{}
	bus.Subscribe(SubscriberFunc{N: "broken", Fn: func(context.Context, []domain.LifecycleEvent) error {
		return errors.New("broker down")
	}})
	bus.Subscribe(rec.Subscriber("ok"))

	ev := sample()
	bus.Publish(context.Background(), ev)

	require.Len(t, rec.got, 1)
	assert.Equal(t, ev.EventID, rec.got[0].EventID)
	assert.Contains(t, buf.String(), "subscriber=broken")
	assert.Contains(t, buf.String(), "broker down")
}

func TestBus_DeliversOnCancelledContext(t *testing.T) {
	bus := NewBus(nil, time.Second)

	var ctxErr error
	bus.Subscribe(SubscriberFunc{N: "ctx", Fn: func(ctx context.Context, _ []domain.LifecycleEvent) error {
		ctxErr = ctx.Err()
		return nil
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bus.Publish(ctx, sample())

	assert.NoError(t, ctxErr)
}

type fakeChannel struct {
	n int
}

func (f *fakeChannel) PublishLifecycle(context.Context, domain.LifecycleEvent) error {
	f.n++
	return nil
}

type fakeTopic struct {
	batches int
}

func (f *fakeTopic) PublishLifecycle(context.Context, ...domain.LifecycleEvent) error {
	f.batches++
	return nil
}

func TestAdapters(t *testing.T) {
	ch := &fakeChannel{}
	topic := &fakeTopic{}
	var buf bytes.Buffer

	bus := NewBus(nil, 0)
	bus.Subscribe(AuditLog(slog.New(slog.NewTextHandler(&buf, nil))))
	bus.Subscribe(RedisChannel(ch))
	bus.Subscribe(Kafka(topic))

	bus.Publish(context.Background(), sample(), sample())
	bus.Publish(context.Background())

	assert.Equal(t, 2, ch.n)
	assert.Equal(t, 1, topic.batches)
	assert.Equal(t, 2, bytes.Count(buf.Bytes(), []byte("lifecycle event")))
}
