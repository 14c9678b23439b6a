package worker

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/rehearsal-go/internal/availability"
	"github.com/kirinyoku/rehearsal-go/internal/clock"
	"github.com/kirinyoku/rehearsal-go/internal/conflict"
	"github.com/kirinyoku/rehearsal-go/internal/domain"
	"github.com/kirinyoku/rehearsal-go/internal/repository/memory"
	"github.com/kirinyoku/rehearsal-go/internal/reservation"
	"github.com/kirinyoku/rehearsal-go/internal/uow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store     *memory.Store
	clock     *clock.Fake
	lifecycle *reservation.Lifecycle
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()

	store := memory.NewStore()
	clk := clock.NewFake(now)
	idx := conflict.NewIndex(store, nil, conflict.Config{Location: time.UTC}, clk, nil)
	engine := availability.NewEngine(idx, availability.DefaultConfig())

	return &fixture{
		store:     store,
		clock:     clk,
		lifecycle: reservation.NewLifecycle(uow.NewUoW(store), engine, reservation.DefaultPolicy(), clk, nil, nil),
	}
}

func (f *fixture) reserve(t *testing.T, start time.Time) *domain.Booking {
	t.Helper()
	reserved := domain.StatusReserved
	b, err := f.lifecycle.Create(context.Background(), reservation.Request{
		OwnerID: 3, Start: start, End: start.Add(2 * time.Hour), Status: &reserved,
	})
	require.NoError(t, err)
	return b
}

func day(d, h int) time.Time {
	return time.Date(2025, 6, d, h, 0, 0, 0, time.UTC)
}

func TestRunOnce_CancelsOnlyPastDeadline(t *testing.T) {
	f := newFixture(t, day(1, 10))
	ctx := context.Background()

	due := f.reserve(t, day(12, 14))
	notYet := f.reserve(t, day(14, 14))

	f.clock.Set(day(10, 14))
	s := NewSweeper(f.store.Bookings(), f.lifecycle, SweepConfig{}, f.clock, nil)

	stats, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Scanned)
	assert.Equal(t, 1, stats.Cancelled)
	assert.Zero(t, stats.Failed)

	got, err := f.store.Bookings().Get(ctx, due.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, got.Status)
	assert.Equal(t, reservation.AutoCancelReason, got.CancelReason)

	got, err = f.store.Bookings().Get(ctx, notYet.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReserved, got.Status, "four days out is left alone")

	again, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Scanned, "rerun finds nothing")
	assert.Equal(t, again, s.Last())
}

func TestRunOnce_DrainsInBatches(t *testing.T) {
	f := newFixture(t, day(1, 8))
	for h := 9; h < 21; h += 3 {
		f.reserve(t, day(5, h))
		f.reserve(t, day(6, h))
	}

	f.clock.Set(day(4, 0))
	s := NewSweeper(f.store.Bookings(), f.lifecycle, SweepConfig{BatchSize: 3}, f.clock, nil)

	stats, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, stats.Cancelled)

	left, err := f.store.Bookings().ListUnconfirmedStartingBefore(context.Background(), day(30, 0), 100)
	require.NoError(t, err)
	assert.Empty(t, left)
}

type flakyCanceller struct {
	*reservation.Lifecycle
	broken map[uuid.UUID]bool
}

func (c flakyCanceller) AutoCancel(ctx context.Context, id uuid.UUID, now time.Time) (*domain.Booking, bool, error) {
	if c.broken[id] {
		return nil, false, errors.New("row is poisoned")
	}
	return c.Lifecycle.AutoCancel(ctx, id, now)
}

func TestRunOnce_IsolatesFailures(t *testing.T) {
	f := newFixture(t, day(1, 8))
	first := f.reserve(t, day(5, 9))
	second := f.reserve(t, day(5, 12))
	third := f.reserve(t, day(5, 15))

	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	f.clock.Set(day(4, 0))
	canceller := flakyCanceller{Lifecycle: f.lifecycle, broken: map[uuid.UUID]bool{first.ID: true, second.ID: true}}
	s := NewSweeper(f.store.Bookings(), canceller, SweepConfig{BatchSize: 2}, f.clock, log)

	stats, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Failed)
	assert.Equal(t, 1, stats.Cancelled)
	assert.Contains(t, buf.String(), first.ID.String())
	assert.Contains(t, buf.String(), "row is poisoned")

	got, err := f.store.Bookings().Get(context.Background(), third.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, got.Status)
}

func TestStartStop(t *testing.T) {
	f := newFixture(t, day(1, 10))
	due := f.reserve(t, day(12, 14))
	f.clock.Set(day(10, 14))

	s := NewSweeper(f.store.Bookings(), f.lifecycle, SweepConfig{Interval: time.Hour}, f.clock, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.Start(ctx))
	assert.Error(t, s.Start(ctx), "second start is refused")

	assert.Eventually(t, func() bool {
		b, err := f.store.Bookings().Get(context.Background(), due.ID)
		return err == nil && b.Status == domain.StatusCancelled
	}, time.Second, 10*time.Millisecond)

	s.Stop()
	s.Stop()

	require.NoError(t, s.Start(ctx), "restart after stop")
	s.Stop()
}
