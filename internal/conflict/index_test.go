package conflict

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/kirinyoku/rehearsal-go/internal/clock"
	"github.com/kirinyoku/rehearsal-go/internal/domain"
	"github.com/kirinyoku/rehearsal-go/internal/repository"
	"github.com/kirinyoku/rehearsal-go/internal/repository/memory"
	redisrepo "github.com/kirinyoku/rehearsal-go/internal/repository/redis"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)

type mapCache struct {
	mu      sync.Mutex
	entries map[string]domain.ConflictSnapshot
	builds  int
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string]domain.ConflictSnapshot)}
}

func (c *mapCache) Load(ctx context.Context, date string, build func(context.Context) (domain.ConflictSnapshot, error)) (domain.ConflictSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.entries[date]; ok {
		return s, nil
	}
	s, err := build(ctx)
	if err != nil {
		return s, err
	}
	c.builds++
	c.entries[date] = s
	return s, nil
}

func (c *mapCache) Invalidate(_ context.Context, dates ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range dates {
		delete(c.entries, d)
	}
	return nil
}

func seed(t *testing.T, s *memory.Store) (rehearsal, hold domain.Booking, closure domain.Closure) {
	t.Helper()
	ctx := context.Background()

	rehearsal = domain.Booking{
		ID: uuid.New(), Kind: domain.KindRehearsal, OwnerID: 3,
		Start: day.Add(14 * time.Hour), End: day.Add(16 * time.Hour),
		Status: domain.StatusScheduled, Settlement: domain.SettlementUnpaid,
	}
	hold = domain.Booking{
		ID: uuid.New(), Kind: domain.KindEventHold, EventRef: "gig-77",
		Start: day.Add(19 * time.Hour), End: day.Add(23 * time.Hour),
		Status: domain.StatusConfirmed, Settlement: domain.SettlementComped,
	}
	cancelled := domain.Booking{
		ID: uuid.New(), Kind: domain.KindRehearsal, OwnerID: 4,
		Start: day.Add(10 * time.Hour), End: day.Add(11 * time.Hour),
		Status: domain.StatusCancelled, Settlement: domain.SettlementUnpaid,
	}
	closure = domain.Closure{
		ID: uuid.New(), Start: day.Add(6 * time.Hour), End: day.Add(8 * time.Hour), Reason: "cleaning",
	}

	require.NoError(t, s.Bookings().Insert(ctx, &rehearsal))
	require.NoError(t, s.Bookings().Insert(ctx, &hold))
	require.NoError(t, s.Bookings().Insert(ctx, &cancelled))
	require.NoError(t, s.Closures().Insert(ctx, &closure))

	return rehearsal, hold, closure
}

func TestIndex_SnapshotCollectsEverySource(t *testing.T) {
	s := memory.NewStore()
	rehearsal, hold, closure := seed(t, s)

	idx := NewIndex(s, nil, Config{BufferMinutes: 15}, clock.NewFake(day), nil)

	snap, err := idx.Snapshot(context.Background(), "2025-06-10", nil)
	require.NoError(t, err)
	require.Len(t, snap.Occupants, 3)

	assert.Equal(t, closure.ID, snap.Occupants[0].ID)
	assert.Equal(t, domain.SourceClosure, snap.Occupants[0].Source)
	assert.Equal(t, rehearsal.ID, snap.Occupants[1].ID)
	assert.Equal(t, day.Add(13*time.Hour+45*time.Minute), snap.Occupants[1].Buffered.Start)
	assert.Equal(t, day.Add(16*time.Hour+15*time.Minute), snap.Occupants[1].Buffered.End)
	assert.Equal(t, hold.ID, snap.Occupants[2].ID)
	assert.Equal(t, domain.SourceEventHold, snap.Occupants[2].Source)
	assert.Equal(t, "gig-77", snap.Occupants[2].Label)
}

func TestIndex_ExcludeAppliedAfterCache(t *testing.T) {
	s := memory.NewStore()
	rehearsal, _, _ := seed(t, s)
	cache := newMapCache()

	idx := NewIndex(s, cache, Config{BufferMinutes: 15}, nil, nil)
	ctx := context.Background()

	filtered, err := idx.Snapshot(ctx, "2025-06-10", &rehearsal.ID)
	require.NoError(t, err)
	assert.Len(t, filtered.Occupants, 2)

	full, err := idx.Snapshot(ctx, "2025-06-10", nil)
	require.NoError(t, err)
	assert.Len(t, full.Occupants, 3)
	assert.Equal(t, 1, cache.builds)
}

func TestIndex_BypassAndInvalidate(t *testing.T) {
	s := memory.NewStore()
	seed(t, s)
	ctx := context.Background()

	cache := newMapCache()
	idx := NewIndex(s, cache, Config{Bypass: true}, nil, nil)
	_, err := idx.Snapshot(ctx, "2025-06-10", nil)
	require.NoError(t, err)
	assert.Zero(t, cache.builds)

	idx = NewIndex(s, cache, Config{}, nil, nil)
	_, err = idx.Snapshot(ctx, "2025-06-10", nil)
	require.NoError(t, err)

	late := domain.Closure{ID: uuid.New(), Start: day.Add(12 * time.Hour), End: day.Add(13 * time.Hour), Reason: "leak"}
	require.NoError(t, s.Closures().Insert(ctx, &late))

	stale, err := idx.Snapshot(ctx, "2025-06-10", nil)
	require.NoError(t, err)
	assert.Len(t, stale.Occupants, 3)

	idx.Invalidate(ctx, "2025-06-10")
	fresh, err := idx.Snapshot(ctx, "2025-06-10", nil)
	require.NoError(t, err)
	assert.Len(t, fresh.Occupants, 4)
}

func TestIndex_FreshReadsThroughTx(t *testing.T) {
	s := memory.NewStore()
	seed(t, s)
	cache := newMapCache()
	idx := NewIndex(s, cache, Config{}, nil, nil)

	err := s.RunTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		c := domain.Closure{ID: uuid.New(), Start: day.Add(9 * time.Hour), End: day.Add(10 * time.Hour), Reason: "inspection"}
		require.NoError(t, tx.Closures().Insert(ctx, &c))

		snap, err := idx.Fresh(ctx, tx, "2025-06-10", nil)
		require.NoError(t, err)
		assert.Len(t, snap.Occupants, 4)
		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, cache.builds)
}

func TestIndex_BufferPullsInNeighbouringDay(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()

	lateNight := domain.Booking{
		ID: uuid.New(), Kind: domain.KindEventHold, EventRef: "night",
		Start: day.Add(-3 * time.Hour), End: day.Add(-10 * time.Minute),
		Status: domain.StatusConfirmed, Settlement: domain.SettlementComped,
	}
	require.NoError(t, s.Bookings().Insert(ctx, &lateNight))

	idx := NewIndex(s, nil, Config{BufferMinutes: 30}, nil, nil)
	snap, err := idx.Snapshot(ctx, "2025-06-10", nil)
	require.NoError(t, err)
	require.Len(t, snap.Occupants, 1)

	idx = NewIndex(s, nil, Config{BufferMinutes: 5}, nil, nil)
	snap, err = idx.Snapshot(ctx, "2025-06-10", nil)
	require.NoError(t, err)
	assert.Empty(t, snap.Occupants)
}

func TestIndex_DatesOf(t *testing.T) {
	idx := NewIndex(memory.NewStore(), nil, Config{BufferMinutes: 15}, nil, nil)

	dates := idx.DatesOf(domain.NewInterval(day.Add(23*time.Hour), day.Add(25*time.Hour)))
	assert.Equal(t, []string{"2025-06-10", "2025-06-11"}, dates)

	dates = idx.DatesOf(domain.NewInterval(day.Add(10*time.Hour), day.Add(11*time.Hour)))
	assert.Equal(t, []string{"2025-06-10"}, dates)
}

func TestCollisions_GroupsBySource(t *testing.T) {
	s := memory.NewStore()
	seed(t, s)
	idx := NewIndex(s, nil, Config{BufferMinutes: 15}, nil, nil)

	snap, err := idx.Snapshot(context.Background(), "2025-06-10", nil)
	require.NoError(t, err)

	report := Collisions(domain.NewInterval(day.Add(16*time.Hour), day.Add(20*time.Hour)), snap, snap)
	assert.Len(t, report.Bookings, 1)
	assert.Len(t, report.EventHolds, 1)
	assert.Empty(t, report.Closures)

	report = Collisions(domain.NewInterval(day.Add(16*time.Hour+15*time.Minute), day.Add(18*time.Hour+45*time.Minute)), snap)
	assert.True(t, report.Empty())
}

var errDiskGone = errors.New("disk gone")

type brokenBookings struct{ repository.BookingRepository }

func (brokenBookings) ListBetween(context.Context, time.Time, time.Time, repository.BookingFilter) ([]domain.Booking, error) {
	return nil, errDiskGone
}

type brokenStore struct{ *memory.Store }

func (brokenStore) Bookings() repository.BookingRepository { return brokenBookings{} }

func TestIndex_CacheOutageFallsBackToStore(t *testing.T) {
	s := memory.NewStore()
	rehearsal, _, _ := seed(t, s)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	cache := redisrepo.NewSnapshotCache(redisrepo.New(rdb), domain.ResourceRehearsalRoom, time.Minute)

	var logs bytes.Buffer
	idx := NewIndex(s, cache, Config{BufferMinutes: 15}, nil, slog.New(slog.NewTextHandler(&logs, nil)))
	ctx := context.Background()

	_, err := idx.Snapshot(ctx, "2025-06-10", nil)
	require.NoError(t, err)

	mr.Close()

	snap, err := idx.Snapshot(ctx, "2025-06-10", &rehearsal.ID)
	require.NoError(t, err)
	assert.Len(t, snap.Occupants, 2)
	assert.Contains(t, logs.String(), "snapshot cache unavailable")
}

func TestIndex_StoreFailureIsNotMaskedByCache(t *testing.T) {
	var logs bytes.Buffer
	idx := NewIndex(brokenStore{memory.NewStore()}, newMapCache(), Config{}, nil, slog.New(slog.NewTextHandler(&logs, nil)))

	_, err := idx.Snapshot(context.Background(), "2025-06-10", nil)
	require.ErrorIs(t, err, errDiskGone)
	assert.NotContains(t, logs.String(), "snapshot cache unavailable")
}
