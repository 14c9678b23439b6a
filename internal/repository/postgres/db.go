package postgres

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/rehearsal-go/internal/repository"
)

//go:embed schema.sql
var schemaSQL string

// maxTxAttempts bounds retries of serialization and deadlock failures.
const maxTxAttempts = 3

type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type Store struct {
	pool *pgxpool.Pool
}

var _ repository.Store = (*Store)(nil)

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool: pool,
	}
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	const op = "postgres.Store.Migrate"

	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// RunTx runs fn in a read-committed transaction. Write paths serialise on
// LockDay, so read committed is enough for them to observe each other.
func (s *Store) RunTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	return s.RunTxWithOpts(ctx, &pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	}, fn)
}

func (s *Store) RunTxWithOpts(
	ctx context.Context,
	opts *pgx.TxOptions,
	fn func(ctx context.Context, tx repository.Tx) error,
) error {
	txOpts := pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	}

	if opts != nil {
		txOpts.IsoLevel = opts.IsoLevel
		txOpts.AccessMode = opts.AccessMode
		txOpts.DeferrableMode = opts.DeferrableMode
	}

	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.runTxOnce(ctx, txOpts, fn)
		if err == nil || !IsRetryable(err) || ctx.Err() != nil {
			return err
		}
	}

	return err
}

func (s *Store) runTxOnce(
	ctx context.Context,
	txOpts pgx.TxOptions,
	fn func(ctx context.Context, tx repository.Tx) error,
) error {
	tx, err := s.pool.BeginTx(ctx, txOpts)
	if err != nil {
		return err
	}

	defer tx.Rollback(ctx)

	if err := fn(ctx, scope{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

func (s *Store) Bookings() repository.BookingRepository { return &BookingRepo{pool: s.pool} }
func (s *Store) Closures() repository.ClosureRepository { return &ClosureRepo{pool: s.pool} }
func (s *Store) Series() repository.SeriesRepository    { return &SeriesRepo{pool: s.pool} }
func (s *Store) Credits() *CreditRepo                   { return &CreditRepo{pool: s.pool} }

// LockDay outside a transaction is a no-op: advisory xact locks are
// released as soon as the implicit transaction ends.
func (s *Store) LockDay(ctx context.Context, resource, date string) error {
	return nil
}

// scope binds every repository to one transaction.
type scope struct {
	db DB
}

func (t scope) Bookings() repository.BookingRepository {
	return (&BookingRepo{}).With(t.db)
}

func (t scope) Closures() repository.ClosureRepository {
	return (&ClosureRepo{}).With(t.db)
}

func (t scope) Series() repository.SeriesRepository {
	return (&SeriesRepo{}).With(t.db)
}

func (t scope) LockDay(ctx context.Context, resource, date string) error {
	const op = "postgres.scope.LockDay"

	if _, err := t.db.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
		resource+":"+date,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}
