package redisx

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/kirinyoku/rehearsal-go/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookingsPubSub_RoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb, err := New(ctx, Config{Addr: mr.Addr()})
	require.NoError(t, err)
	defer rdb.Close()

	ps := NewBookingsPubSub(rdb)
	got := make(chan BookingChangedMsg, 1)
	done := make(chan error, 1)
	go func() {
		done <- ps.Subscribe(ctx, func(_ context.Context, msg BookingChangedMsg) { got <- msg })
	}()

	channel := ChannelBookingsChanged()
	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(channel)[channel] == 1
	}, time.Second, 10*time.Millisecond)

	start := time.Date(2025, 6, 10, 14, 0, 0, 0, time.UTC)
	ev := domain.BookingCancelled(domain.Booking{ID: uuid.New(), Start: start, End: start.Add(time.Hour)},
		domain.StatusScheduled, true, start.Add(-time.Hour))
	require.NoError(t, ps.PublishLifecycle(ctx, ev))

	select {
	case msg := <-got:
		assert.Equal(t, ev.EventID, msg.EventID)
		assert.Equal(t, domain.EventBookingCancelled, msg.Type)
		assert.Equal(t, ev.Booking.ID, msg.BookingID)
		assert.True(t, start.Equal(msg.Start))
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not stop")
	}
}

func TestNew_FailsWithoutServer(t *testing.T) {
	_, err := New(context.Background(), Config{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}
