// Package availability answers whether the room can be booked and which
// windows are still open on a given day.
package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/rehearsal-go/internal/conflict"
	"github.com/kirinyoku/rehearsal-go/internal/domain"
)

type Config struct {
	// OpenMinute and CloseMinute are minutes after local midnight.
	OpenMinute  int
	CloseMinute int
	MinDuration time.Duration
	MaxDuration time.Duration
	Granularity time.Duration
}

func DefaultConfig() Config {
	return Config{
		OpenMinute:  9 * 60,
		CloseMinute: 22 * 60,
		MinDuration: time.Hour,
		MaxDuration: 8 * time.Hour,
		Granularity: 30 * time.Minute,
	}
}

type Engine struct {
	idx *conflict.Index
	cfg Config
}

func NewEngine(idx *conflict.Index, cfg Config) *Engine {
	if cfg.Granularity <= 0 {
		cfg.Granularity = DefaultConfig().Granularity
	}
	return &Engine{idx: idx, cfg: cfg}
}

func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) Index() *conflict.Index { return e.idx }

// BusinessHours is the bookable window of date.
func (e *Engine) BusinessHours(date string) (domain.Interval, error) {
	day, err := e.idx.DayBounds(date)
	if err != nil {
		return domain.Interval{}, domain.Invalid("date", "must be YYYY-MM-DD")
	}
	return e.hoursOf(day.Start), nil
}

func (e *Engine) hoursOf(midnight time.Time) domain.Interval {
	y, m, d := midnight.Date()
	loc := e.idx.Location()
	return domain.NewInterval(
		time.Date(y, m, d, 0, e.cfg.OpenMinute, 0, 0, loc),
		time.Date(y, m, d, 0, e.cfg.CloseMinute, 0, 0, loc),
	)
}

// Rules validates a direct booking window: positive length, inside the
// business hours of its start date, and within the duration limits.
func (e *Engine) Rules(iv domain.Interval) error {
	if !iv.Valid() {
		return domain.ValidationErrors{domain.Invalid("end", "must be after start")}
	}

	var errs domain.ValidationErrors

	local := iv.Start.In(e.idx.Location())
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, e.idx.Location())
	if !e.hoursOf(midnight).Contains(iv) {
		errs = append(errs, domain.Invalid("start", "outside business hours %s-%s",
			clockString(e.cfg.OpenMinute), clockString(e.cfg.CloseMinute)))
	}

	if d := iv.Duration(); d < e.cfg.MinDuration || d > e.cfg.MaxDuration {
		errs = append(errs, domain.Invalid("end", "duration must be between %s and %s",
			e.cfg.MinDuration, e.cfg.MaxDuration))
	}

	return errs.Err()
}

// CheckWith checks a candidate against already loaded snapshots. Both the
// cached read path and the transactional write path go through it.
func (e *Engine) CheckWith(iv domain.Interval, snaps ...domain.ConflictSnapshot) (domain.ConflictReport, error) {
	if err := e.Rules(iv); err != nil {
		return domain.ConflictReport{}, err
	}
	return conflict.Collisions(iv, snaps...), nil
}

// Check validates the window and returns what it collides with. Business
// rule failures come back as domain.ValidationErrors.
func (e *Engine) Check(ctx context.Context, start, end time.Time, excludeID *uuid.UUID) (domain.ConflictReport, error) {
	const op = "availability.Engine.Check"

	iv := domain.NewInterval(start, end)
	if err := e.Rules(iv); err != nil {
		return domain.ConflictReport{}, err
	}

	snaps, err := e.snapshots(ctx, iv, excludeID)
	if err != nil {
		return domain.ConflictReport{}, fmt.Errorf("%s: %w", op, err)
	}

	return e.CheckWith(iv, snaps...)
}

// IsAvailable reports whether the window passes every rule and collides
// with nothing. A degenerate window is unavailable without a store read.
func (e *Engine) IsAvailable(ctx context.Context, start, end time.Time, excludeID *uuid.UUID) (bool, error) {
	if !end.After(start) {
		return false, nil
	}

	report, err := e.Check(ctx, start, end, excludeID)
	if err != nil {
		if isValidation(err) {
			return false, nil
		}
		return false, err
	}

	return report.Empty(), nil
}

// ListOpenSlots walks start times at the configured granularity across the
// business hours and returns each conflict-free slot of the duration.
func (e *Engine) ListOpenSlots(ctx context.Context, date string, durationMinutes int) ([]domain.Slot, error) {
	const op = "availability.Engine.ListOpenSlots"

	dur := time.Duration(durationMinutes) * time.Minute
	if dur < e.cfg.MinDuration || dur > e.cfg.MaxDuration {
		return nil, domain.Invalid("duration_minutes", "must be between %d and %d",
			int(e.cfg.MinDuration/time.Minute), int(e.cfg.MaxDuration/time.Minute))
	}

	hours, err := e.BusinessHours(date)
	if err != nil {
		return nil, err
	}

	snap, err := e.idx.Snapshot(ctx, date, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	slots := []domain.Slot{}
	for start := hours.Start; !start.Add(dur).After(hours.End); start = start.Add(e.cfg.Granularity) {
		iv := domain.NewInterval(start, start.Add(dur))
		if conflict.Collisions(iv, snap).Empty() {
			slots = append(slots, domain.Slot{Start: iv.Start, End: iv.End, DurationMinutes: durationMinutes})
		}
	}

	return slots, nil
}

// ListValidEndTimes returns every end time for start that respects the
// duration limits, closing time and existing occupants.
func (e *Engine) ListValidEndTimes(ctx context.Context, date string, start time.Time) ([]time.Time, error) {
	const op = "availability.Engine.ListValidEndTimes"

	hours, err := e.BusinessHours(date)
	if err != nil {
		return nil, err
	}
	if start.Before(hours.Start) || !start.Before(hours.End) {
		return nil, domain.Invalid("start", "outside business hours %s-%s",
			clockString(e.cfg.OpenMinute), clockString(e.cfg.CloseMinute))
	}

	snap, err := e.idx.Snapshot(ctx, date, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	latest := start.Add(e.cfg.MaxDuration)
	if latest.After(hours.End) {
		latest = hours.End
	}

	ends := []time.Time{}
	for end := start.Add(e.cfg.MinDuration); !end.After(latest); end = end.Add(e.cfg.Granularity) {
		// A longer window contains the shorter one, so the first
		// collision ends the search.
		if !conflict.Collisions(domain.NewInterval(start, end), snap).Empty() {
			break
		}
		ends = append(ends, end)
	}

	return ends, nil
}

// FindGaps subtracts every buffered occupant from the business hours and
// keeps the free spans of at least minGapMinutes.
func (e *Engine) FindGaps(ctx context.Context, date string, minGapMinutes int) ([]domain.Interval, error) {
	const op = "availability.Engine.FindGaps"

	if minGapMinutes < 0 {
		return nil, domain.Invalid("min_gap_minutes", "must not be negative")
	}

	hours, err := e.BusinessHours(date)
	if err != nil {
		return nil, err
	}

	snap, err := e.idx.Snapshot(ctx, date, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	minGap := time.Duration(minGapMinutes) * time.Minute
	gaps := []domain.Interval{}
	for _, free := range domain.Subtract(hours, snap.Occupied()) {
		if free.Duration() >= minGap {
			gaps = append(gaps, free)
		}
	}

	return gaps, nil
}

func (e *Engine) snapshots(ctx context.Context, iv domain.Interval, excludeID *uuid.UUID) ([]domain.ConflictSnapshot, error) {
	dates := e.idx.DatesOf(iv)
	out := make([]domain.ConflictSnapshot, 0, len(dates))
	for _, d := range dates {
		snap, err := e.idx.Snapshot(ctx, d, excludeID)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

func isValidation(err error) bool {
	switch err.(type) {
	case domain.ValidationErrors, *domain.ValidationError:
		return true
	default:
		return false
	}
}

func clockString(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}
