package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/rehearsal-go/internal/repository"
)

// CreditRepo reads the billing service's credit_accounts table. An owner
// without a row has a zero balance and no allocation.
type CreditRepo struct {
	pool *pgxpool.Pool
}

var _ repository.CreditReader = (*CreditRepo)(nil)

func (r *CreditRepo) Balance(ctx context.Context, ownerID int64) (int, error) {
	const op = "postgres.CreditRepo.Balance"

	var balance int
	err := r.pool.QueryRow(ctx,
		`SELECT balance FROM credit_accounts WHERE owner_id = $1`,
		ownerID,
	).Scan(&balance)
	if err != nil {
		if errors.Is(translateDBErr(err), repository.ErrNotFound) {
			return 0, nil
		}
		return 0, wrapDBErr(op, err)
	}

	return balance, nil
}

func (r *CreditRepo) MonthlyAllocation(ctx context.Context, ownerID int64) (int, error) {
	const op = "postgres.CreditRepo.MonthlyAllocation"

	var allocation int
	err := r.pool.QueryRow(ctx,
		`SELECT monthly_allocation FROM credit_accounts WHERE owner_id = $1`,
		ownerID,
	).Scan(&allocation)
	if err != nil {
		if errors.Is(translateDBErr(err), repository.ErrNotFound) {
			return 0, nil
		}
		return 0, wrapDBErr(op, err)
	}

	return allocation, nil
}
