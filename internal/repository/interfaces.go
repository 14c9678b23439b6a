package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/rehearsal-go/internal/domain"
)

// BookingFilter narrows ListBetween. A nil Kind matches every kind.
type BookingFilter struct {
	Kind       *domain.BookingKind
	ActiveOnly bool
}

type BookingRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	// GetForUpdate reads the row and locks it until the surrounding
	// transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	Insert(ctx context.Context, b *domain.Booking) error
	Update(ctx context.Context, b *domain.Booking) error
	// ListBetween returns bookings whose interval intersects [from, to).
	ListBetween(ctx context.Context, from, to time.Time, f BookingFilter) ([]domain.Booking, error)
	ListByOwner(ctx context.Context, ownerID int64, limit, offset int) ([]domain.Booking, error)
	ListBySeries(ctx context.Context, seriesID uuid.UUID) ([]domain.Booking, error)
	// ListUnconfirmedStartingBefore returns scheduled or reserved bookings
	// starting before cutoff, oldest first.
	ListUnconfirmedStartingBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Booking, error)
}

type ClosureRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Closure, error)
	Insert(ctx context.Context, c *domain.Closure) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListBetween(ctx context.Context, from, to time.Time) ([]domain.Closure, error)
}

type SeriesRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.RecurringSeries, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.RecurringSeries, error)
	Insert(ctx context.Context, s *domain.RecurringSeries) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.SeriesStatus, at time.Time) error
	ListByOwner(ctx context.Context, ownerID int64) ([]domain.RecurringSeries, error)
}

// CreditReader is the read-only billing capability used by forecasts.
type CreditReader interface {
	Balance(ctx context.Context, ownerID int64) (int, error)
	MonthlyAllocation(ctx context.Context, ownerID int64) (int, error)
}

// Tx is the set of repositories bound to one transaction (or to the
// pool, outside of one).
type Tx interface {
	Bookings() BookingRepository
	Closures() ClosureRepository
	Series() SeriesRepository
	// LockDay serialises writers touching the same resource-day until the
	// transaction ends.
	LockDay(ctx context.Context, resource, date string) error
}

type Store interface {
	Tx
	RunTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
