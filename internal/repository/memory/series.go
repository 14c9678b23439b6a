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

type seriesRepo struct {
	a access
}

func (r seriesRepo) Get(_ context.Context, id uuid.UUID) (*domain.RecurringSeries, error) {
	const op = "memory.SeriesRepo.Get"

	var out domain.RecurringSeries
	err := r.a.read(func(st *state) error {
		s, ok := st.series[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = s
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &out, nil
}

func (r seriesRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.RecurringSeries, error) {
	return r.Get(ctx, id)
}

func (r seriesRepo) Insert(ctx context.Context, s *domain.RecurringSeries) error {
	const op = "memory.SeriesRepo.Insert"

	err := r.a.write(ctx, func(st *state) error {
		if _, ok := st.series[s.ID]; ok {
			return repository.ErrConflict
		}
		st.series[s.ID] = *s
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r seriesRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.SeriesStatus, at time.Time) error {
	const op = "memory.SeriesRepo.UpdateStatus"

	err := r.a.write(ctx, func(st *state) error {
		s, ok := st.series[id]
		if !ok {
			return repository.ErrNotFound
		}
		s.Status = status
		s.UpdatedAt = at
		st.series[id] = s
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r seriesRepo) ListByOwner(_ context.Context, ownerID int64) ([]domain.RecurringSeries, error) {
	var out []domain.RecurringSeries
	_ = r.a.read(func(st *state) error {
		for _, s := range st.series {
			if s.OwnerID == ownerID {
				out = append(out, s)
			}
		}
		return nil
	})

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	return out, nil
}
