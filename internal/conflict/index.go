// Package conflict builds per-day snapshots of everything occupying the
// room and caches them for the read paths.
package conflict

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/rehearsal-go/internal/clock"
	"github.com/kirinyoku/rehearsal-go/internal/domain"
	"github.com/kirinyoku/rehearsal-go/internal/repository"
	"golang.org/x/sync/errgroup"
)

// Cache stores unfiltered snapshots keyed by date.
type Cache interface {
	Load(ctx context.Context, date string, build func(ctx context.Context) (domain.ConflictSnapshot, error)) (domain.ConflictSnapshot, error)
	Invalidate(ctx context.Context, dates ...string) error
}

type Config struct {
	BufferMinutes int
	Location      *time.Location
	// Bypass disables the cache so every read is built from the store.
	Bypass bool
}

type Index struct {
	store repository.Tx
	cache Cache
	cfg   Config
	clock clock.Clock
	log   *slog.Logger
}

// NewIndex wires an index over store. cache may be nil.
func NewIndex(store repository.Tx, cache Cache, cfg Config, clk clock.Clock, log *slog.Logger) *Index {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if clk == nil {
		clk = clock.Real()
	}
	if log == nil {
		log = slog.Default()
	}

	return &Index{
		store: store,
		cache: cache,
		cfg:   cfg,
		clock: clk,
		log:   log,
	}
}

func (x *Index) Location() *time.Location { return x.cfg.Location }

func (x *Index) Buffer() time.Duration {
	return time.Duration(x.cfg.BufferMinutes) * time.Minute
}

// DayBounds returns [00:00, next 00:00) of date in the studio time zone.
func (x *Index) DayBounds(date string) (domain.Interval, error) {
	d, err := time.ParseInLocation(domain.DateLayout, date, x.cfg.Location)
	if err != nil {
		return domain.Interval{}, err
	}
	return domain.NewInterval(d, d.AddDate(0, 0, 1)), nil
}

// DateOf is the studio-local civil date of t.
func (x *Index) DateOf(t time.Time) string {
	return t.In(x.cfg.Location).Format(domain.DateLayout)
}

// DatesOf lists every civil date the buffered interval touches.
func (x *Index) DatesOf(iv domain.Interval) []string {
	iv = iv.Expand(x.Buffer())
	if !iv.Valid() {
		return nil
	}

	var out []string
	last := iv.End.Add(-time.Nanosecond).In(x.cfg.Location)
	y, m, d := iv.Start.In(x.cfg.Location).Date()
	for day := time.Date(y, m, d, 0, 0, 0, 0, x.cfg.Location); !day.After(last); day = day.AddDate(0, 0, 1) {
		out = append(out, day.Format(domain.DateLayout))
	}

	return out
}

// Snapshot returns the occupants of date, from cache when possible.
// excludeID is removed after the read so cached entries stay unfiltered.
func (x *Index) Snapshot(ctx context.Context, date string, excludeID *uuid.UUID) (domain.ConflictSnapshot, error) {
	const op = "conflict.Index.Snapshot"

	build := func(ctx context.Context) (domain.ConflictSnapshot, error) {
		return x.build(ctx, x.store, date, true)
	}

	var (
		snap domain.ConflictSnapshot
		err  error
	)
	if x.cache == nil || x.cfg.Bypass {
		snap, err = build(ctx)
	} else {
		snap, err = x.cache.Load(ctx, date, func(ctx context.Context) (domain.ConflictSnapshot, error) {
			s, err := build(ctx)
			if err != nil {
				return s, &storeError{err: err}
			}
			return s, nil
		})

		var serr *storeError
		switch {
		case errors.As(err, &serr):
			err = serr.err
		case err != nil:
			x.log.Warn("snapshot cache unavailable",
				slog.String("date", date),
				slog.String("err", err.Error()),
			)
			snap, err = build(ctx)
		}
	}
	if err != nil {
		return domain.ConflictSnapshot{}, fmt.Errorf("%s: %w", op, err)
	}

	return snap.Without(excludeID), nil
}

// Fresh builds the snapshot through tx and never touches the cache. The
// write path uses it after taking the day lock.
func (x *Index) Fresh(ctx context.Context, tx repository.Tx, date string, excludeID *uuid.UUID) (domain.ConflictSnapshot, error) {
	const op = "conflict.Index.Fresh"

	snap, err := x.build(ctx, tx, date, false)
	if err != nil {
		return domain.ConflictSnapshot{}, fmt.Errorf("%s: %w", op, err)
	}

	return snap.Without(excludeID), nil
}

// Invalidate drops cached snapshots. Failures are logged only: entries
// expire with their TTL anyway.
func (x *Index) Invalidate(ctx context.Context, dates ...string) {
	if x.cache == nil || len(dates) == 0 {
		return
	}

	if err := x.cache.Invalidate(ctx, dates...); err != nil {
		x.log.Warn("snapshot invalidation failed",
			slog.Any("dates", dates),
			slog.String("err", err.Error()),
		)
	}
}

// build runs one query per source over the day widened by the buffer.
// A transaction connection cannot run statements concurrently, so
// parallel is only set for pool-backed reads.
func (x *Index) build(ctx context.Context, r repository.Tx, date string, parallel bool) (domain.ConflictSnapshot, error) {
	day, err := x.DayBounds(date)
	if err != nil {
		return domain.ConflictSnapshot{}, err
	}
	window := day.Expand(x.Buffer())

	rehearsal := domain.KindRehearsal
	holds := domain.KindEventHold

	var (
		bookings []domain.Booking
		events   []domain.Booking
		closures []domain.Closure
	)

	loads := []func(ctx context.Context) error{
		func(ctx context.Context) (err error) {
			bookings, err = r.Bookings().ListBetween(ctx, window.Start, window.End,
				repository.BookingFilter{Kind: &rehearsal, ActiveOnly: true})
			return err
		},
		func(ctx context.Context) (err error) {
			events, err = r.Bookings().ListBetween(ctx, window.Start, window.End,
				repository.BookingFilter{Kind: &holds, ActiveOnly: true})
			return err
		},
		func(ctx context.Context) (err error) {
			closures, err = r.Closures().ListBetween(ctx, window.Start, window.End)
			return err
		},
	}

	if parallel {
		g, gctx := errgroup.WithContext(ctx)
		for _, load := range loads {
			g.Go(func() error { return load(gctx) })
		}
		if err := g.Wait(); err != nil {
			return domain.ConflictSnapshot{}, err
		}
	} else {
		for _, load := range loads {
			if err := load(ctx); err != nil {
				return domain.ConflictSnapshot{}, err
			}
		}
	}

	snap := domain.ConflictSnapshot{
		Date:    date,
		BuiltAt: x.clock.Now().UTC(),
	}
	for _, b := range append(bookings, events...) {
		if !b.Kind.BlocksDirectBookings() {
			continue
		}
		snap.Occupants = append(snap.Occupants, x.occupant(b.ID, b.Kind.Source(), bookingLabel(b), b.Interval()))
	}
	for _, c := range closures {
		snap.Occupants = append(snap.Occupants, x.occupant(c.ID, domain.SourceClosure, c.Reason, c.Interval()))
	}

	kept := snap.Occupants[:0]
	for _, o := range snap.Occupants {
		if o.Buffered.Overlaps(day) {
			kept = append(kept, o)
		}
	}
	snap.Occupants = kept

	sort.Slice(snap.Occupants, func(i, j int) bool {
		return snap.Occupants[i].Buffered.Start.Before(snap.Occupants[j].Buffered.Start)
	})

	return snap, nil
}

// storeError marks a failure of the snapshot build itself, as opposed to
// a failure of the cache around it.
type storeError struct{ err error }

func (e *storeError) Error() string { return e.err.Error() }
func (e *storeError) Unwrap() error { return e.err }

func (x *Index) occupant(id uuid.UUID, src domain.OccupantSource, label string, iv domain.Interval) domain.Occupant {
	return domain.Occupant{
		ID:       id,
		Source:   src,
		Label:    label,
		Interval: iv,
		Buffered: iv.Expand(x.Buffer()),
	}
}

func bookingLabel(b domain.Booking) string {
	switch b.Kind {
	case domain.KindEventHold:
		return b.EventRef
	case domain.KindRehearsal:
		return "owner " + strconv.FormatInt(b.OwnerID, 10)
	default:
		return string(b.Kind)
	}
}
