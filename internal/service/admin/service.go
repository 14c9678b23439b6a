package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/rehearsal-go/internal/clock"
	"github.com/kirinyoku/rehearsal-go/internal/conflict"
	"github.com/kirinyoku/rehearsal-go/internal/domain"
	"github.com/kirinyoku/rehearsal-go/internal/repository"
	"github.com/kirinyoku/rehearsal-go/internal/uow"
	"github.com/kirinyoku/rehearsal-go/internal/validation"
)

type ClosureRequest struct {
	Start  time.Time `json:"start" validate:"required"`
	End    time.Time `json:"end" validate:"required,gtfield=Start"`
	Reason string    `json:"reason" validate:"required,max=200"`
}

// ClosureResult lists the active bookings the new closure overlaps. They
// are kept; staff decide what happens to them.
type ClosureResult struct {
	Closure     domain.Closure   `json:"closure"`
	Overlapping []domain.Booking `json:"overlapping"`
}

type Service struct {
	uow      *uow.UoW
	index    *conflict.Index
	clock    clock.Clock
	validate *validation.Validator
	log      *slog.Logger
}

func New(u *uow.UoW, index *conflict.Index, clk clock.Clock, log *slog.Logger) *Service {
	if clk == nil {
		clk = clock.Real()
	}
	if log == nil {
		log = slog.Default()
	}

	return &Service{
		uow:      u,
		index:    index,
		clock:    clk,
		validate: validation.New(),
		log:      log,
	}
}

// CreateClosure blacks out the room. Closures are never checked against
// other occupants, but the days they touch are locked so a concurrent
// booking either commits first or sees the closure.
//
// Returns:
//   - ClosureResult with the active bookings now overlapping the closure.
//   - domain.ValidationErrors for a bad window or missing reason.
func (s *Service) CreateClosure(ctx context.Context, req ClosureRequest) (ClosureResult, error) {
	const op = "service.admin.CreateClosure"

	if err := s.validate.Struct(req); err != nil {
		return ClosureResult{}, err
	}

	c := domain.Closure{
		ID:        uuid.New(),
		Start:     req.Start.UTC(),
		End:       req.End.UTC(),
		Reason:    req.Reason,
		CreatedAt: s.clock.Now().UTC(),
	}

	var res ClosureResult
	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.Tx, after func(uow.AfterCommit)) error {
		dates := s.index.DatesOf(c.Interval())
		for _, d := range dates {
			if err := tx.LockDay(ctx, domain.ResourceRehearsalRoom, d); err != nil {
				return err
			}
		}

		if err := tx.Closures().Insert(ctx, &c); err != nil {
			return err
		}

		reach := c.Interval().Expand(s.index.Buffer())
		overlapping, err := tx.Bookings().ListBetween(ctx, reach.Start, reach.End, repository.BookingFilter{ActiveOnly: true})
		if err != nil {
			return err
		}
		res = ClosureResult{Closure: c, Overlapping: overlapping}

		after(func(ctx context.Context) {
			s.index.Invalidate(ctx, dates...)
		})
		return nil
	})
	if err != nil {
		return ClosureResult{}, fmt.Errorf("%s: %w", op, err)
	}

	if len(res.Overlapping) > 0 {
		s.log.Warn("closure overlaps active bookings",
			slog.String("closure_id", c.ID.String()),
			slog.Int("bookings", len(res.Overlapping)),
		)
	}
	if res.Overlapping == nil {
		res.Overlapping = []domain.Booking{}
	}

	return res, nil
}

func (s *Service) ListClosures(ctx context.Context, from, to time.Time) ([]domain.Closure, error) {
	const op = "service.admin.ListClosures"

	if !to.After(from) {
		return nil, domain.ValidationErrors{domain.Invalid("to", "must be after from")}
	}

	out, err := s.uow.Store().Closures().ListBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if out == nil {
		out = []domain.Closure{}
	}

	return out, nil
}

func (s *Service) DeleteClosure(ctx context.Context, id uuid.UUID) error {
	const op = "service.admin.DeleteClosure"

	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.Tx, after func(uow.AfterCommit)) error {
		c, err := tx.Closures().Get(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.Closures().Delete(ctx, id); err != nil {
			return err
		}

		dates := s.index.DatesOf(c.Interval())
		after(func(ctx context.Context) {
			s.index.Invalidate(ctx, dates...)
		})
		return nil
	})
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, ErrClosureNotFound)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
