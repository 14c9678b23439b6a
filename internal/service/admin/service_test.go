package admin

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/rehearsal-go/internal/conflict"
	"github.com/kirinyoku/rehearsal-go/internal/domain"
	"github.com/kirinyoku/rehearsal-go/internal/repository/memory"
	"github.com/kirinyoku/rehearsal-go/internal/uow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(h int) time.Time {
	return time.Date(2025, 6, 10, h, 0, 0, 0, time.UTC)
}

func TestClosures(t *testing.T) {
	store := memory.NewStore()
	idx := conflict.NewIndex(store, nil, conflict.Config{Location: time.UTC}, nil, nil)
	svc := New(uow.NewUoW(store), idx, nil, nil)
	ctx := context.Background()

	b := domain.Booking{
		ID: uuid.New(), Kind: domain.KindRehearsal, OwnerID: 1,
		Start: at(10), End: at(12), Status: domain.StatusScheduled, Settlement: domain.SettlementUnpaid,
	}
	require.NoError(t, store.Bookings().Insert(ctx, &b))

	res, err := svc.CreateClosure(ctx, ClosureRequest{Start: at(11), End: at(15), Reason: "plumbing"})
	require.NoError(t, err)
	require.Len(t, res.Overlapping, 1)
	assert.Equal(t, b.ID, res.Overlapping[0].ID)

	snap, err := idx.Snapshot(ctx, "2025-06-10", nil)
	require.NoError(t, err)
	assert.Len(t, snap.Occupants, 2)

	list, err := svc.ListClosures(ctx, at(0), at(23))
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, svc.DeleteClosure(ctx, res.Closure.ID))
	assert.ErrorIs(t, svc.DeleteClosure(ctx, res.Closure.ID), ErrClosureNotFound)

	list, err = svc.ListClosures(ctx, at(0), at(23))
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = svc.CreateClosure(ctx, ClosureRequest{Start: at(15), End: at(11)})
	var verrs domain.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs, 2)
}

func TestCreateClosure_ReportsBookingsInsideTurnover(t *testing.T) {
	store := memory.NewStore()
	idx := conflict.NewIndex(store, nil, conflict.Config{BufferMinutes: 15, Location: time.UTC}, nil, nil)
	svc := New(uow.NewUoW(store), idx, nil, nil)
	ctx := context.Background()

	near := domain.Booking{
		ID: uuid.New(), Kind: domain.KindRehearsal, OwnerID: 1,
		Start: at(9), End: at(11).Add(-10 * time.Minute), Status: domain.StatusScheduled, Settlement: domain.SettlementUnpaid,
	}
	far := domain.Booking{
		ID: uuid.New(), Kind: domain.KindRehearsal, OwnerID: 2,
		Start: at(16).Add(30 * time.Minute), End: at(18), Status: domain.StatusScheduled, Settlement: domain.SettlementUnpaid,
	}
	require.NoError(t, store.Bookings().Insert(ctx, &near))
	require.NoError(t, store.Bookings().Insert(ctx, &far))

	res, err := svc.CreateClosure(ctx, ClosureRequest{Start: at(11), End: at(16), Reason: "plumbing"})
	require.NoError(t, err)
	require.Len(t, res.Overlapping, 1, "10:50 end sits within the 15 minute turnover")
	assert.Equal(t, near.ID, res.Overlapping[0].ID)
}
