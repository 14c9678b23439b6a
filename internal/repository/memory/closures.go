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

type closureRepo struct {
	a access
}

func (r closureRepo) Get(_ context.Context, id uuid.UUID) (*domain.Closure, error) {
	const op = "memory.ClosureRepo.Get"

	var out domain.Closure
	err := r.a.read(func(st *state) error {
		c, ok := st.closures[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &out, nil
}

func (r closureRepo) Insert(ctx context.Context, c *domain.Closure) error {
	const op = "memory.ClosureRepo.Insert"

	err := r.a.write(ctx, func(st *state) error {
		if _, ok := st.closures[c.ID]; ok {
			return repository.ErrConflict
		}
		st.closures[c.ID] = *c
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r closureRepo) Delete(ctx context.Context, id uuid.UUID) error {
	const op = "memory.ClosureRepo.Delete"

	err := r.a.write(ctx, func(st *state) error {
		if _, ok := st.closures[id]; !ok {
			return repository.ErrNotFound
		}
		delete(st.closures, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r closureRepo) ListBetween(_ context.Context, from, to time.Time) ([]domain.Closure, error) {
	window := domain.NewInterval(from, to)

	var out []domain.Closure
	_ = r.a.read(func(st *state) error {
		for _, c := range st.closures {
			if c.Interval().Overlaps(window) {
				out = append(out, c)
			}
		}
		return nil
	})

	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })

	return out, nil
}
