package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/rehearsal-go/internal/domain"
	"github.com/kirinyoku/rehearsal-go/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func booking(start time.Time, hours int, buffer int) *domain.Booking {
	return &domain.Booking{
		ID:            uuid.New(),
		Kind:          domain.KindRehearsal,
		OwnerID:       1,
		Start:         start,
		End:           start.Add(time.Duration(hours) * time.Hour),
		Status:        domain.StatusScheduled,
		Settlement:    domain.SettlementUnpaid,
		BufferMinutes: buffer,
	}
}

var day = time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)

func TestStore_InsertRejectsBufferedOverlap(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	first := booking(day.Add(14*time.Hour), 2, 15)
	require.NoError(t, s.Bookings().Insert(ctx, first))

	tooClose := booking(day.Add(16*time.Hour), 1, 15)
	err := s.Bookings().Insert(ctx, tooClose)
	assert.ErrorIs(t, err, repository.ErrOverlap)

	afterBuffer := booking(day.Add(16*time.Hour+15*time.Minute), 1, 15)
	assert.NoError(t, s.Bookings().Insert(ctx, afterBuffer))
}

func TestStore_CancelledBookingsDoNotBlock(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	first := booking(day.Add(10*time.Hour), 2, 0)
	require.NoError(t, s.Bookings().Insert(ctx, first))

	first.Status = domain.StatusCancelled
	require.NoError(t, s.Bookings().Update(ctx, first))

	again := booking(day.Add(10*time.Hour), 2, 0)
	assert.NoError(t, s.Bookings().Insert(ctx, again))
}

func TestStore_DuplicateSeriesInstance(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	seriesID := uuid.New()
	date := "2025-06-10"

	first := booking(day.Add(10*time.Hour), 1, 0)
	first.SeriesID, first.InstanceDate = &seriesID, &date
	first.Status = domain.StatusCancelled
	require.NoError(t, s.Bookings().Insert(ctx, first))

	second := booking(day.Add(12*time.Hour), 1, 0)
	second.SeriesID, second.InstanceDate = &seriesID, &date
	assert.ErrorIs(t, s.Bookings().Insert(ctx, second), repository.ErrDuplicateInstance)
}

func TestStore_RunTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	boom := errors.New("boom")

	b := booking(day.Add(9*time.Hour), 1, 0)
	err := s.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		require.NoError(t, tx.Bookings().Insert(ctx, b))

		got, err := tx.Bookings().Get(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, b.ID, got.ID)

		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.Bookings().Get(ctx, b.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestStore_ListQueries(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	early := booking(day.Add(9*time.Hour), 1, 0)
	late := booking(day.Add(15*time.Hour), 1, 0)
	late.Status = domain.StatusReserved
	done := booking(day.Add(12*time.Hour), 1, 0)
	done.Status = domain.StatusConfirmed
	for _, b := range []*domain.Booking{late, done, early} {
		require.NoError(t, s.Bookings().Insert(ctx, b))
	}

	got, err := s.Bookings().ListBetween(ctx, day, day.Add(24*time.Hour), repository.BookingFilter{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, early.ID, got[0].ID)
	assert.Equal(t, done.ID, got[1].ID)
	assert.Equal(t, late.ID, got[2].ID)

	pending, err := s.Bookings().ListUnconfirmedStartingBefore(ctx, day.Add(24*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, early.ID, pending[0].ID)

	owned, err := s.Bookings().ListByOwner(ctx, 1, 2, 0)
	require.NoError(t, err)
	require.Len(t, owned, 2)
	assert.Equal(t, late.ID, owned[0].ID)
}

func TestStore_Closures(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	c := &domain.Closure{ID: uuid.New(), Start: day.Add(8 * time.Hour), End: day.Add(20 * time.Hour), Reason: "floor repair"}
	require.NoError(t, s.Closures().Insert(ctx, c))

	got, err := s.Closures().ListBetween(ctx, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, got, 1)

	require.NoError(t, s.Closures().Delete(ctx, c.ID))
	assert.ErrorIs(t, s.Closures().Delete(ctx, c.ID), repository.ErrNotFound)
}

func TestCredits(t *testing.T) {
	c := NewCredits()
	c.Set(7, 10, 4)

	bal, err := c.Balance(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 10, bal)

	alloc, err := c.MonthlyAllocation(context.Background(), 8)
	require.NoError(t, err)
	assert.Zero(t, alloc)
}
