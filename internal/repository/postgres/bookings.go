package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/rehearsal-go/internal/domain"
	"github.com/kirinyoku/rehearsal-go/internal/repository"
)

const bookingColumns = `id, kind, owner_id, event_ref, start_at, end_at, buffer_minutes,
	status, settlement, note, series_id, instance_date, defer_credits, cancel_reason,
	confirmed_at, cancelled_at, created_at, updated_at`

type BookingRepo struct {
	pool *pgxpool.Pool
	db   DB
}

var _ repository.BookingRepository = (*BookingRepo)(nil)

func (r *BookingRepo) With(db DB) *BookingRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *BookingRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Get retrieves a booking by its ID.
//
// Returns:
//   - *domain.Booking: the booking when found.
//   - error: repository.ErrNotFound if the booking does not exist.
func (r *BookingRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	const op = "postgres.BookingRepo.Get"

	b, err := scanBooking(r.handle().QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return b, nil
}

// GetForUpdate is Get with a row lock held until the transaction ends.
func (r *BookingRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	const op = "postgres.BookingRepo.GetForUpdate"

	b, err := scanBooking(r.handle().QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`,
		id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return b, nil
}

// Insert stores a new booking.
//
// Returns:
//   - error: repository.ErrOverlap if the bookings_no_overlap exclusion
//     constraint rejects the row.
//   - error: repository.ErrDuplicateInstance if the series instance exists.
func (r *BookingRepo) Insert(ctx context.Context, b *domain.Booking) error {
	const op = "postgres.BookingRepo.Insert"

	instanceDate, err := dateParam(b.InstanceDate)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if _, err := r.handle().Exec(ctx,
		`INSERT INTO bookings(
			id, kind, owner_id, event_ref, start_at, end_at, buffer_minutes, buffered_end,
			status, settlement, note, series_id, instance_date, defer_credits, cancel_reason,
			confirmed_at, cancelled_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		b.ID, string(b.Kind), nullableOwner(b), nullableString(b.EventRef),
		b.Start, b.End, b.BufferMinutes, bufferedEnd(b),
		string(b.Status), string(b.Settlement), b.Note, b.SeriesID, instanceDate,
		b.DeferCredits, b.CancelReason, b.ConfirmedAt, b.CancelledAt, b.CreatedAt, b.UpdatedAt,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// Update rewrites every mutable column of the booking.
func (r *BookingRepo) Update(ctx context.Context, b *domain.Booking) error {
	const op = "postgres.BookingRepo.Update"

	tag, err := r.handle().Exec(ctx,
		`UPDATE bookings
		 SET start_at = $2, end_at = $3, buffer_minutes = $4, buffered_end = $5,
		     status = $6, settlement = $7, note = $8, defer_credits = $9,
		     cancel_reason = $10, confirmed_at = $11, cancelled_at = $12, updated_at = $13
		 WHERE id = $1`,
		b.ID, b.Start, b.End, b.BufferMinutes, bufferedEnd(b),
		string(b.Status), string(b.Settlement), b.Note, b.DeferCredits,
		b.CancelReason, b.ConfirmedAt, b.CancelledAt, b.UpdatedAt,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}

	return nil
}

// ListBetween returns bookings intersecting [from, to) ordered by start.
func (r *BookingRepo) ListBetween(
	ctx context.Context,
	from, to time.Time,
	f repository.BookingFilter,
) ([]domain.Booking, error) {
	const op = "postgres.BookingRepo.ListBetween"

	var kind *string
	if f.Kind != nil {
		k := string(*f.Kind)
		kind = &k
	}

	rows, err := r.handle().Query(ctx,
		`SELECT `+bookingColumns+`
		 FROM bookings
		 WHERE start_at < $2 AND end_at > $1
		   AND ($3::text IS NULL OR kind = $3)
		   AND (NOT $4 OR status <> 'cancelled')
		 ORDER BY start_at`,
		from, to, kind, f.ActiveOnly,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return collectBookings(op, rows)
}

func (r *BookingRepo) ListByOwner(ctx context.Context, ownerID int64, limit, offset int) ([]domain.Booking, error) {
	const op = "postgres.BookingRepo.ListByOwner"

	rows, err := r.handle().Query(ctx,
		`SELECT `+bookingColumns+`
		 FROM bookings
		 WHERE owner_id = $1
		 ORDER BY start_at DESC
		 LIMIT $2 OFFSET $3`,
		ownerID, limit, offset,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return collectBookings(op, rows)
}

func (r *BookingRepo) ListBySeries(ctx context.Context, seriesID uuid.UUID) ([]domain.Booking, error) {
	const op = "postgres.BookingRepo.ListBySeries"

	rows, err := r.handle().Query(ctx,
		`SELECT `+bookingColumns+`
		 FROM bookings
		 WHERE series_id = $1
		 ORDER BY start_at`,
		seriesID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return collectBookings(op, rows)
}

func (r *BookingRepo) ListUnconfirmedStartingBefore(
	ctx context.Context,
	cutoff time.Time,
	limit int,
) ([]domain.Booking, error) {
	const op = "postgres.BookingRepo.ListUnconfirmedStartingBefore"

	rows, err := r.handle().Query(ctx,
		`SELECT `+bookingColumns+`
		 FROM bookings
		 WHERE status IN ('scheduled', 'reserved') AND start_at < $1
		 ORDER BY start_at
		 LIMIT $2`,
		cutoff, limit,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return collectBookings(op, rows)
}

func collectBookings(op string, rows pgx.Rows) ([]domain.Booking, error) {
	defer rows.Close()

	var out []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var (
		b            domain.Booking
		kind         string
		status       string
		settlement   string
		ownerID      *int64
		eventRef     *string
		seriesID     pgtype.UUID
		instanceDate pgtype.Date
	)

	if err := row.Scan(
		&b.ID,
		&kind,
		&ownerID,
		&eventRef,
		&b.Start,
		&b.End,
		&b.BufferMinutes,
		&status,
		&settlement,
		&b.Note,
		&seriesID,
		&instanceDate,
		&b.DeferCredits,
		&b.CancelReason,
		&b.ConfirmedAt,
		&b.CancelledAt,
		&b.CreatedAt,
		&b.UpdatedAt,
	); err != nil {
		return nil, err
	}

	b.Kind = domain.BookingKind(kind)
	b.Status = domain.BookingStatus(status)
	b.Settlement = domain.Settlement(settlement)
	if ownerID != nil {
		b.OwnerID = *ownerID
	}
	if eventRef != nil {
		b.EventRef = *eventRef
	}
	b.SeriesID = uuidPtr(seriesID)
	b.InstanceDate = datePtr(instanceDate)

	return &b, nil
}

func nullableOwner(b *domain.Booking) *int64 {
	if b.Kind == domain.KindEventHold && b.OwnerID == 0 {
		return nil
	}
	id := b.OwnerID
	return &id
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
