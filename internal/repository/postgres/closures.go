package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/rehearsal-go/internal/domain"
	"github.com/kirinyoku/rehearsal-go/internal/repository"
)

type ClosureRepo struct {
	pool *pgxpool.Pool
	db   DB
}

var _ repository.ClosureRepository = (*ClosureRepo)(nil)

func (r *ClosureRepo) With(db DB) *ClosureRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *ClosureRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

func (r *ClosureRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Closure, error) {
	const op = "postgres.ClosureRepo.Get"

	var c domain.Closure
	err := r.handle().QueryRow(ctx,
		`SELECT id, start_at, end_at, reason, created_at
		 FROM closures WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.Start, &c.End, &c.Reason, &c.CreatedAt)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &c, nil
}

func (r *ClosureRepo) Insert(ctx context.Context, c *domain.Closure) error {
	const op = "postgres.ClosureRepo.Insert"

	if _, err := r.handle().Exec(ctx,
		`INSERT INTO closures(id, start_at, end_at, reason, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.Start, c.End, c.Reason, c.CreatedAt,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *ClosureRepo) Delete(ctx context.Context, id uuid.UUID) error {
	const op = "postgres.ClosureRepo.Delete"

	tag, err := r.handle().Exec(ctx, `DELETE FROM closures WHERE id = $1`, id)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}

	return nil
}

func (r *ClosureRepo) ListBetween(ctx context.Context, from, to time.Time) ([]domain.Closure, error) {
	const op = "postgres.ClosureRepo.ListBetween"

	rows, err := r.handle().Query(ctx,
		`SELECT id, start_at, end_at, reason, created_at
		 FROM closures
		 WHERE start_at < $2 AND end_at > $1
		 ORDER BY start_at`,
		from, to,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.Closure
	for rows.Next() {
		var c domain.Closure
		if err := rows.Scan(&c.ID, &c.Start, &c.End, &c.Reason, &c.CreatedAt); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}
