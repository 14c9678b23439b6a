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

const seriesColumns = `id, owner_id, weekday, start_minute, end_minute, interval_weeks,
	valid_from, valid_until, status, note, created_at, updated_at`

type SeriesRepo struct {
	pool *pgxpool.Pool
	db   DB
}

var _ repository.SeriesRepository = (*SeriesRepo)(nil)

func (r *SeriesRepo) With(db DB) *SeriesRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *SeriesRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

func (r *SeriesRepo) Get(ctx context.Context, id uuid.UUID) (*domain.RecurringSeries, error) {
	const op = "postgres.SeriesRepo.Get"

	s, err := scanSeries(r.handle().QueryRow(ctx,
		`SELECT `+seriesColumns+` FROM recurring_series WHERE id = $1`, id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return s, nil
}

func (r *SeriesRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.RecurringSeries, error) {
	const op = "postgres.SeriesRepo.GetForUpdate"

	s, err := scanSeries(r.handle().QueryRow(ctx,
		`SELECT `+seriesColumns+` FROM recurring_series WHERE id = $1 FOR UPDATE`, id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return s, nil
}

func (r *SeriesRepo) Insert(ctx context.Context, s *domain.RecurringSeries) error {
	const op = "postgres.SeriesRepo.Insert"

	from, err := time.Parse(domain.DateLayout, s.ValidFrom)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	until, err := time.Parse(domain.DateLayout, s.ValidUntil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if _, err := r.handle().Exec(ctx,
		`INSERT INTO recurring_series(
			id, owner_id, weekday, start_minute, end_minute, interval_weeks,
			valid_from, valid_until, status, note, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		s.ID, s.OwnerID, int16(s.Weekday), s.StartMinute, s.EndMinute, s.IntervalWeeks,
		from, until, string(s.Status), s.Note, s.CreatedAt, s.UpdatedAt,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *SeriesRepo) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	status domain.SeriesStatus,
	at time.Time,
) error {
	const op = "postgres.SeriesRepo.UpdateStatus"

	tag, err := r.handle().Exec(ctx,
		`UPDATE recurring_series SET status = $2, updated_at = $3 WHERE id = $1`,
		id, string(status), at,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}

	return nil
}

func (r *SeriesRepo) ListByOwner(ctx context.Context, ownerID int64) ([]domain.RecurringSeries, error) {
	const op = "postgres.SeriesRepo.ListByOwner"

	rows, err := r.handle().Query(ctx,
		`SELECT `+seriesColumns+`
		 FROM recurring_series
		 WHERE owner_id = $1
		 ORDER BY created_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.RecurringSeries
	for rows.Next() {
		s, err := scanSeries(rows)
		if err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func scanSeries(row pgx.Row) (*domain.RecurringSeries, error) {
	var (
		s       domain.RecurringSeries
		weekday int16
		from    pgtype.Date
		until   pgtype.Date
		status  string
	)

	if err := row.Scan(
		&s.ID,
		&s.OwnerID,
		&weekday,
		&s.StartMinute,
		&s.EndMinute,
		&s.IntervalWeeks,
		&from,
		&until,
		&status,
		&s.Note,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		return nil, err
	}

	s.Weekday = time.Weekday(weekday)
	s.ValidFrom = from.Time.Format(domain.DateLayout)
	s.ValidUntil = until.Time.Format(domain.DateLayout)
	s.Status = domain.SeriesStatus(status)

	return &s, nil
}
