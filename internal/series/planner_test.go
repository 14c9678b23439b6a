package series

import (
	"context"
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
	planner *Planner
	store   *memory.Store
	credits *memory.Credits
	clock   *clock.Fake
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()

	store := memory.NewStore()
	credits := memory.NewCredits()
	clk := clock.NewFake(now)
	u := uow.NewUoW(store)

	idx := conflict.NewIndex(store, nil, conflict.Config{BufferMinutes: 15, Location: time.UTC}, clk, nil)
	engine := availability.NewEngine(idx, availability.DefaultConfig())
	lc := reservation.NewLifecycle(u, engine, reservation.DefaultPolicy(), clk, nil, nil)

	return &fixture{
		planner: NewPlanner(u, lc, credits, clk, nil),
		store:   store,
		credits: credits,
		clock:   clk,
	}
}

func at(month time.Month, d, h int) time.Time {
	return time.Date(2025, month, d, h, 0, 0, 0, time.UTC)
}

func weekly(start time.Time, weeks int) SeriesRequest {
	return SeriesRequest{OwnerID: 7, FirstStart: start, FirstEnd: start.Add(2 * time.Hour), Weeks: weeks}
}

func TestCreateSeries_SkipsClosedWeek(t *testing.T) {
	f := newFixture(t, at(time.June, 1, 10))
	ctx := context.Background()

	closure := domain.Closure{ID: uuid.New(), Start: at(time.June, 24, 13), End: at(time.June, 24, 17), Reason: "floor repair"}
	require.NoError(t, f.store.Closures().Insert(ctx, &closure))

	s, res, err := f.planner.CreateSeries(ctx, weekly(at(time.June, 10, 14), 4))
	require.NoError(t, err)

	assert.Equal(t, time.Tuesday, s.Weekday)
	assert.Equal(t, 14*60, s.StartMinute)
	assert.Equal(t, 16*60, s.EndMinute)
	assert.Equal(t, "2025-06-10", s.ValidFrom)
	assert.Equal(t, "2025-07-01", s.ValidUntil)

	require.Len(t, res.Created, 3)
	for _, b := range res.Created {
		assert.Equal(t, domain.StatusReserved, b.Status)
		assert.True(t, b.DeferCredits)
		require.NotNil(t, b.SeriesID)
		assert.Equal(t, s.ID, *b.SeriesID)
	}
	assert.Equal(t, "2025-07-01", *res.Created[2].InstanceDate)

	require.Len(t, res.Skipped, 1)
	skipped := res.Skipped[0]
	assert.Equal(t, "2025-06-24", skipped.Date)
	assert.Equal(t, SkipConflict, skipped.Reason)
	require.NotNil(t, skipped.Conflicts)
	require.Len(t, skipped.Conflicts.Closures, 1)
	assert.Equal(t, closure.ID, skipped.Conflicts.Closures[0].ID)
}

func TestGenerateInstances_RerunSkipsGenerated(t *testing.T) {
	f := newFixture(t, at(time.June, 1, 10))
	ctx := context.Background()

	s, first, err := f.planner.CreateSeries(ctx, weekly(at(time.June, 10, 14), 4))
	require.NoError(t, err)
	require.Len(t, first.Created, 4)

	res, err := f.planner.GenerateInstances(ctx, *s, at(time.June, 1, 0), at(time.August, 1, 0), Pattern{})
	require.NoError(t, err)
	assert.Empty(t, res.Created)
	require.Len(t, res.Skipped, 4)
	for _, sk := range res.Skipped {
		assert.Equal(t, SkipDuplicate, sk.Reason)
	}

	res, err = f.planner.GenerateInstances(ctx, *s, at(time.June, 16, 0), at(time.June, 30, 0), Pattern{})
	require.NoError(t, err)
	require.Len(t, res.Skipped, 2, "window bounds the run")
	assert.Equal(t, "2025-06-17", res.Skipped[0].Date)
}

func TestCreateSeries_SkipsPassedDeadline(t *testing.T) {
	f := newFixture(t, at(time.June, 8, 10))

	_, res, err := f.planner.CreateSeries(context.Background(), weekly(at(time.June, 10, 14), 3))
	require.NoError(t, err)

	require.Len(t, res.Skipped, 1)
	assert.Equal(t, SkipDeadlinePassed, res.Skipped[0].Reason)
	assert.Len(t, res.Created, 2)
}

func TestCreateSeries_Validation(t *testing.T) {
	f := newFixture(t, at(time.June, 1, 10))
	ctx := context.Background()

	_, _, err := f.planner.CreateSeries(ctx, weekly(at(time.June, 10, 14), 0))
	var verrs domain.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "weeks", verrs[0].Field)

	req := weekly(at(time.June, 10, 21), 2)
	req.FirstEnd = at(time.June, 11, 1)
	_, _, err = f.planner.CreateSeries(ctx, req)
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "first_end", verrs[0].Field)
}

func TestCreateSeries_OutsideHoursSkipsEveryInstance(t *testing.T) {
	f := newFixture(t, at(time.June, 1, 10))

	req := weekly(at(time.June, 10, 21), 2)
	_, res, err := f.planner.CreateSeries(context.Background(), req)
	require.NoError(t, err)

	assert.Empty(t, res.Created)
	require.Len(t, res.Skipped, 2)
	assert.Equal(t, SkipInvalid, res.Skipped[0].Reason)
	assert.NotEmpty(t, res.Skipped[0].Detail)
}

func TestSeriesStatus(t *testing.T) {
	f := newFixture(t, at(time.June, 1, 10))
	ctx := context.Background()

	s, res, err := f.planner.CreateSeries(ctx, weekly(at(time.June, 10, 14), 3))
	require.NoError(t, err)
	require.Len(t, res.Created, 3)

	paused, err := f.planner.Pause(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SeriesPaused, paused.Status)

	_, err = f.planner.Pause(ctx, s.ID)
	require.NoError(t, err)

	_, err = f.planner.GenerateInstances(ctx, *paused, at(time.June, 1, 0), at(time.July, 1, 0), Pattern{})
	assert.ErrorIs(t, err, ErrSeriesNotActive)

	resumed, err := f.planner.Resume(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SeriesActive, resumed.Status)

	f.clock.Set(at(time.June, 11, 9))
	cancelled, err := f.planner.CancelSeries(ctx, s.ID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.SeriesCancelled, cancelled.Series.Status)
	assert.Equal(t, 2, cancelled.Cancelled, "instance already in the past is left alone")
	assert.Zero(t, cancelled.Failed)

	bookings, err := f.store.Bookings().ListBySeries(ctx, s.ID)
	require.NoError(t, err)
	statuses := map[domain.BookingStatus]int{}
	for _, b := range bookings {
		statuses[b.Status]++
	}
	assert.Equal(t, map[domain.BookingStatus]int{domain.StatusReserved: 1, domain.StatusCancelled: 2}, statuses)

	_, err = f.planner.Resume(ctx, s.ID)
	assert.ErrorIs(t, err, ErrSeriesClosed)

	_, err = f.planner.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrSeriesNotFound)
}

func TestEstimateCreditSufficiency(t *testing.T) {
	f := newFixture(t, at(time.June, 1, 10))
	ctx := context.Background()
	f.credits.Set(7, 4, 4)

	t.Run("short within one month", func(t *testing.T) {
		fc, err := f.planner.EstimateCreditSufficiency(ctx, 7, at(time.June, 10, 14), at(time.June, 10, 16), Pattern{Weeks: 4})
		require.NoError(t, err)

		assert.False(t, fc.Sufficient)
		assert.Equal(t, 4, fc.Shortfall)
		assert.Equal(t, -4, fc.FinalBalance)
		assert.Equal(t, 4, fc.Instances)
		require.Len(t, fc.Steps, 4)
		assert.Equal(t, at(time.June, 7, 14), fc.Steps[0].Deadline)
		assert.Equal(t, []int{2, 0, -2, -4}, balances(fc))
	})

	t.Run("allocation arrives with the next month", func(t *testing.T) {
		fc, err := f.planner.EstimateCreditSufficiency(ctx, 7, at(time.June, 10, 14), at(time.June, 10, 16), Pattern{Weeks: 6})
		require.NoError(t, err)

		require.Len(t, fc.Steps, 6)
		assert.Equal(t, 4, fc.Steps[4].Allocation)
		assert.Equal(t, []int{2, 0, -2, -4, -2, -4}, balances(fc))
		assert.Equal(t, 4, fc.Shortfall)
	})

	t.Run("fortnightly fits", func(t *testing.T) {
		fc, err := f.planner.EstimateCreditSufficiency(ctx, 7, at(time.June, 10, 14), at(time.June, 10, 15), Pattern{Weeks: 4, IntervalWeeks: 2})
		require.NoError(t, err)

		assert.True(t, fc.Sufficient)
		assert.Zero(t, fc.Shortfall)
		assert.Equal(t, 4, fc.FinalBalance)
	})

	t.Run("rejects bad input", func(t *testing.T) {
		_, err := f.planner.EstimateCreditSufficiency(ctx, 0, at(time.June, 10, 14), at(time.June, 10, 14), Pattern{})
		var verrs domain.ValidationErrors
		require.ErrorAs(t, err, &verrs)
		assert.Len(t, verrs, 3)
	})
}

func balances(fc domain.Forecast) []int {
	out := make([]int, 0, len(fc.Steps))
	for _, s := range fc.Steps {
		out = append(out, s.Balance)
	}
	return out
}
