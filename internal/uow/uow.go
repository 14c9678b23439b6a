package uow

import (
	"context"

	"github.com/kirinyoku/rehearsal-go/internal/repository"
)

// AfterCommit is a function that runs after a successful transaction commit.
type AfterCommit func(ctx context.Context)

// UoW runs a callback in one store transaction and fires the hooks it
// registered only once that transaction committed.
type UoW struct {
	store repository.Store
}

func NewUoW(store repository.Store) *UoW {
	return &UoW{store: store}
}

// Store exposes the underlying store for reads outside a transaction.
func (u *UoW) Store() repository.Store {
	return u.store
}

// Do runs fn inside a transaction. Hooks registered by an attempt that was
// rolled back and retried are discarded with it.
func (u *UoW) Do(
	ctx context.Context,
	fn func(ctx context.Context, tx repository.Tx, after func(AfterCommit)) error,
) error {
	var hooks []AfterCommit

	err := u.store.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		hooks = hooks[:0]
		return fn(ctx, tx, func(h AfterCommit) {
			hooks = append(hooks, h)
		})
	})
	if err != nil {
		return err
	}

	for _, h := range hooks {
		h(ctx)
	}

	return nil
}
