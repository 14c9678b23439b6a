package redis

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/kirinyoku/rehearsal-go/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return mr, rdb
}

func TestSnapshotCache_LoadsOnceAndInvalidates(t *testing.T) {
	ctx := context.Background()
	_, rdb := newClient(t)
	sc := NewSnapshotCache(New(rdb), domain.ResourceRehearsalRoom, time.Minute)

	var calls atomic.Int32
	build := func(context.Context) (domain.ConflictSnapshot, error) {
		calls.Add(1)
		return domain.ConflictSnapshot{Date: "2025-06-10"}, nil
	}

	first, err := sc.Load(ctx, "2025-06-10", build)
	require.NoError(t, err)
	second, err := sc.Load(ctx, "2025-06-10", build)
	require.NoError(t, err)

	assert.Equal(t, "2025-06-10", first.Date)
	assert.Equal(t, first.Date, second.Date)
	assert.Equal(t, int32(1), calls.Load())

	require.NoError(t, sc.Invalidate(ctx, "2025-06-10"))
	_, err = sc.Load(ctx, "2025-06-10", build)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSnapshotCache_ExpiresWithTTL(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newClient(t)
	sc := NewSnapshotCache(New(rdb), domain.ResourceRehearsalRoom, 45*time.Minute)

	var calls atomic.Int32
	build := func(context.Context) (domain.ConflictSnapshot, error) {
		calls.Add(1)
		return domain.ConflictSnapshot{Date: "2025-06-11"}, nil
	}

	_, err := sc.Load(ctx, "2025-06-11", build)
	require.NoError(t, err)

	mr.FastForward(46 * time.Minute)

	_, err = sc.Load(ctx, "2025-06-11", build)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestIdempotencyStore(t *testing.T) {
	ctx := context.Background()
	_, rdb := newClient(t)
	s := NewIdempotencyStore(rdb, time.Hour)

	ok, err := s.AcquireLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.AcquireLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	locked, err := s.IsLocked(ctx, "k")
	require.NoError(t, err)
	assert.True(t, locked)

	require.NoError(t, s.SaveResult(ctx, "k", `{"id":"x"}`))

	res, found, err := s.GetResult(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `{"id":"x"}`, res)

	require.NoError(t, s.Release(ctx, "k"))
	_, found, err = s.GetResult(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSlidingWindowLimiter(t *testing.T) {
	ctx := context.Background()
	_, rdb := newClient(t)

	l := NewSlidingWindowLimiter(rdb, "bookings", 2, time.Minute)
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		allowed, _, _, err := l.Allow(ctx, "42")
		require.NoError(t, err)
		assert.True(t, allowed)
	}

	allowed, current, retry, err := l.Allow(ctx, "42")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, int64(2), current)
	assert.Equal(t, time.Minute, retry)

	allowed, _, _, err = l.Allow(ctx, "43")
	require.NoError(t, err)
	assert.True(t, allowed, "limits are per id")

	now = now.Add(time.Minute + time.Millisecond)
	allowed, _, _, err = l.Allow(ctx, "42")
	require.NoError(t, err)
	assert.True(t, allowed)
}
