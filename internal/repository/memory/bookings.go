package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/rehearsal-go/internal/domain"
	"github.com/kirinyoku/rehearsal-go/internal/repository"
)

type bookingRepo struct {
	a access
}

func (r bookingRepo) Get(_ context.Context, id uuid.UUID) (*domain.Booking, error) {
	const op = "memory.BookingRepo.Get"

	var out domain.Booking
	err := r.a.read(func(st *state) error {
		b, ok := st.bookings[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &out, nil
}

func (r bookingRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	return r.Get(ctx, id)
}

func (r bookingRepo) Insert(ctx context.Context, b *domain.Booking) error {
	const op = "memory.BookingRepo.Insert"

	err := r.a.write(ctx, func(st *state) error {
		if _, ok := st.bookings[b.ID]; ok {
			return repository.ErrConflict
		}
		if err := st.checkBooking(*b); err != nil {
			return err
		}
		st.bookings[b.ID] = *b
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r bookingRepo) Update(ctx context.Context, b *domain.Booking) error {
	const op = "memory.BookingRepo.Update"

	err := r.a.write(ctx, func(st *state) error {
		cur, ok := st.bookings[b.ID]
		if !ok {
			return repository.ErrNotFound
		}
		next := cur
		next.Start = b.Start
		next.End = b.End
		next.BufferMinutes = b.BufferMinutes
		next.Status = b.Status
		next.Settlement = b.Settlement
		next.Note = b.Note
		next.DeferCredits = b.DeferCredits
		next.CancelReason = b.CancelReason
		next.ConfirmedAt = b.ConfirmedAt
		next.CancelledAt = b.CancelledAt
		next.UpdatedAt = b.UpdatedAt
		if err := st.checkBooking(next); err != nil {
			return err
		}
		st.bookings[b.ID] = next
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r bookingRepo) ListBetween(
	_ context.Context,
	from, to time.Time,
	f repository.BookingFilter,
) ([]domain.Booking, error) {
	window := domain.NewInterval(from, to)

	return r.collect(func(b domain.Booking) bool {
		if f.Kind != nil && b.Kind != *f.Kind {
			return false
		}
		if f.ActiveOnly && b.Status == domain.StatusCancelled {
			return false
		}
		return b.Interval().Overlaps(window)
	}, byStart, 0, 0)
}

func (r bookingRepo) ListByOwner(_ context.Context, ownerID int64, limit, offset int) ([]domain.Booking, error) {
	return r.collect(func(b domain.Booking) bool {
		return b.Kind == domain.KindRehearsal && b.OwnerID == ownerID
	}, byStartDesc, limit, offset)
}

func (r bookingRepo) ListBySeries(_ context.Context, seriesID uuid.UUID) ([]domain.Booking, error) {
	return r.collect(func(b domain.Booking) bool {
		return b.SeriesID != nil && *b.SeriesID == seriesID
	}, byStart, 0, 0)
}

func (r bookingRepo) ListUnconfirmedStartingBefore(
	_ context.Context,
	cutoff time.Time,
	limit int,
) ([]domain.Booking, error) {
	return r.collect(func(b domain.Booking) bool {
		pending := b.Status == domain.StatusScheduled || b.Status == domain.StatusReserved
		return pending && b.Start.Before(cutoff)
	}, byStart, limit, 0)
}

func (r bookingRepo) collect(
	keep func(domain.Booking) bool,
	less func(a, b domain.Booking) bool,
	limit, offset int,
) ([]domain.Booking, error) {
	var out []domain.Booking
	_ = r.a.read(func(st *state) error {
		for _, b := range st.bookings {
			if keep(b) {
				out = append(out, b)
			}
		}
		return nil
	})

	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })

	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

func byStart(a, b domain.Booking) bool {
	if a.Start.Equal(b.Start) {
		return a.ID.String() < b.ID.String()
	}
	return a.Start.Before(b.Start)
}

func byStartDesc(a, b domain.Booking) bool {
	return byStart(b, a)
}

// checkBooking mirrors the bookings_no_overlap exclusion constraint and the
// bookings_series_instance_uq index.
func (st *state) checkBooking(b domain.Booking) error {
	if !b.Interval().Valid() {
		return fmt.Errorf("invalid interval: %w", repository.ErrConflict)
	}

	if b.SeriesID != nil && b.InstanceDate != nil {
		for id, other := range st.bookings {
			if id == b.ID || other.SeriesID == nil || other.InstanceDate == nil {
				continue
			}
			if *other.SeriesID == *b.SeriesID && *other.InstanceDate == *b.InstanceDate {
				return repository.ErrDuplicateInstance
			}
		}
	}

	if b.Status == domain.StatusCancelled {
		return nil
	}

	span := storedRange(b)
	for id, other := range st.bookings {
		if id == b.ID || other.Status == domain.StatusCancelled {
			continue
		}
		if span.Overlaps(storedRange(other)) {
			return repository.ErrOverlap
		}
	}

	return nil
}

// storedRange is the range covered by the exclusion constraint: the
// booking extended by its buffer at the end.
func storedRange(b domain.Booking) domain.Interval {
	return domain.NewInterval(b.Start, b.End.Add(time.Duration(b.BufferMinutes)*time.Minute))
}
