package availability

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/rehearsal-go/internal/conflict"
	"github.com/kirinyoku/rehearsal-go/internal/domain"
	"github.com/kirinyoku/rehearsal-go/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const date = "2025-06-10"

var day = time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func newEngine(t *testing.T, buffer int) (*Engine, *memory.Store) {
	t.Helper()
	s := memory.NewStore()
	idx := conflict.NewIndex(s, nil, conflict.Config{BufferMinutes: buffer, Location: time.UTC}, nil, nil)
	return NewEngine(idx, DefaultConfig()), s
}

func addBooking(t *testing.T, s *memory.Store, start, end time.Time) domain.Booking {
	t.Helper()
	b := domain.Booking{
		ID: uuid.New(), Kind: domain.KindRehearsal, OwnerID: 1,
		Start: start, End: end,
		Status: domain.StatusScheduled, Settlement: domain.SettlementUnpaid,
	}
	require.NoError(t, s.Bookings().Insert(context.Background(), &b))
	return b
}

func TestCheck_EmptyDayAcceptsTwoHours(t *testing.T) {
	e, _ := newEngine(t, 0)

	report, err := e.Check(context.Background(), at(14, 0), at(16, 0), nil)
	require.NoError(t, err)
	assert.True(t, report.Empty())
}

func TestCheck_BufferFifteen(t *testing.T) {
	e, s := newEngine(t, 15)
	existing := addBooking(t, s, at(14, 0), at(16, 0))
	ctx := context.Background()

	report, err := e.Check(ctx, at(16, 0), at(17, 0), nil)
	require.NoError(t, err)
	require.Len(t, report.Bookings, 1)
	assert.Equal(t, existing.ID, report.Bookings[0].ID)

	ok, err := e.IsAvailable(ctx, at(16, 15), at(17, 15), nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.IsAvailable(ctx, at(16, 0), at(17, 0), &existing.ID)
	require.NoError(t, err)
	assert.True(t, ok, "excluded booking does not conflict with itself")
}

func TestCheck_RulesAreValidationErrors(t *testing.T) {
	e, _ := newEngine(t, 0)
	ctx := context.Background()

	tests := []struct {
		name       string
		start, end time.Time
	}{
		{"before opening", at(8, 0), at(10, 0)},
		{"after closing", at(21, 0), at(23, 0)},
		{"too short", at(10, 0), at(10, 30)},
		{"too long", at(9, 0), at(18, 0)},
		{"reversed", at(12, 0), at(11, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Check(ctx, tt.start, tt.end, nil)
			var verrs domain.ValidationErrors
			require.ErrorAs(t, err, &verrs)
			assert.NotEmpty(t, verrs)

			ok, err := e.IsAvailable(ctx, tt.start, tt.end, nil)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestIsAvailable_DegenerateWindow(t *testing.T) {
	e, _ := newEngine(t, 0)

	ok, err := e.IsAvailable(context.Background(), at(10, 0), at(10, 0), nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListOpenSlots_FullDay(t *testing.T) {
	e, s := newEngine(t, 15)
	c := domain.Closure{ID: uuid.New(), Start: at(9, 0), End: at(22, 0), Reason: "festival"}
	require.NoError(t, s.Closures().Insert(context.Background(), &c))

	slots, err := e.ListOpenSlots(context.Background(), date, 60)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestListOpenSlots_AroundOneBooking(t *testing.T) {
	t.Run("no buffer", func(t *testing.T) {
		e, s := newEngine(t, 0)
		addBooking(t, s, at(12, 0), at(13, 0))

		slots, err := e.ListOpenSlots(context.Background(), date, 60)
		require.NoError(t, err)
		require.Len(t, slots, 22)
		assert.Equal(t, at(9, 0), slots[0].Start)
		assert.Equal(t, at(11, 0), slots[4].Start)
		assert.Equal(t, at(13, 0), slots[5].Start)
		assert.Equal(t, at(22, 0), slots[len(slots)-1].End)
		assert.Equal(t, 60, slots[0].DurationMinutes)
	})

	t.Run("buffer fifteen", func(t *testing.T) {
		e, s := newEngine(t, 15)
		addBooking(t, s, at(12, 0), at(13, 0))

		slots, err := e.ListOpenSlots(context.Background(), date, 60)
		require.NoError(t, err)
		require.Len(t, slots, 20)
		assert.Equal(t, at(10, 30), slots[3].Start)
		assert.Equal(t, at(13, 30), slots[4].Start)
	})
}

func TestListOpenSlots_RejectsDurationOutOfBounds(t *testing.T) {
	e, _ := newEngine(t, 0)

	_, err := e.ListOpenSlots(context.Background(), date, 20)
	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestListValidEndTimes(t *testing.T) {
	e, s := newEngine(t, 0)
	addBooking(t, s, at(12, 0), at(13, 0))
	ctx := context.Background()

	ends, err := e.ListValidEndTimes(ctx, date, at(9, 0))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{at(10, 0), at(10, 30), at(11, 0), at(11, 30), at(12, 0)}, ends)

	ends, err = e.ListValidEndTimes(ctx, date, at(20, 0))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{at(21, 0), at(21, 30), at(22, 0)}, ends)

	ends, err = e.ListValidEndTimes(ctx, date, at(21, 30))
	require.NoError(t, err)
	assert.Empty(t, ends)

	_, err = e.ListValidEndTimes(ctx, date, at(7, 0))
	assert.Error(t, err)
}

func TestFindGaps(t *testing.T) {
	e, s := newEngine(t, 15)
	addBooking(t, s, at(12, 0), at(13, 0))
	ctx := context.Background()

	gaps, err := e.FindGaps(ctx, date, 0)
	require.NoError(t, err)
	assert.Equal(t, []domain.Interval{
		{Start: at(9, 0), End: at(11, 45)},
		{Start: at(13, 15), End: at(22, 0)},
	}, gaps)

	gaps, err = e.FindGaps(ctx, date, 180)
	require.NoError(t, err)
	require.Len(t, gaps, 1)
	assert.Equal(t, at(13, 15), gaps[0].Start)
}

func TestBufferIsMonotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 300; i++ {
		occupied := domain.NewInterval(at(9, rng.Intn(600)), time.Time{})
		occupied.End = occupied.Start.Add(time.Duration(30+rng.Intn(180)) * time.Minute)
		candidate := domain.NewInterval(at(9, rng.Intn(600)), time.Time{})
		candidate.End = candidate.Start.Add(time.Duration(30+rng.Intn(180)) * time.Minute)

		small := rng.Intn(60)
		large := small + rng.Intn(60)

		snap := func(buffer int) domain.ConflictSnapshot {
			return domain.ConflictSnapshot{Occupants: []domain.Occupant{{
				ID: uuid.Nil, Source: domain.SourceBooking, Interval: occupied,
				Buffered: occupied.Expand(time.Duration(buffer) * time.Minute),
			}}}
		}

		if !conflict.Collisions(candidate, snap(small)).Empty() {
			assert.False(t, conflict.Collisions(candidate, snap(large)).Empty(),
				"buffer %d conflicted but %d did not", small, large)
		}
	}
}
