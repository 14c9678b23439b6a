// Package memory is an in-process implementation of the repository
// interfaces. It enforces the same buffered no-overlap and unique series
// instance rules as the Postgres schema and backs the service and
// transport tests.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/kirinyoku/rehearsal-go/internal/domain"
	"github.com/kirinyoku/rehearsal-go/internal/repository"
)

// Store keeps all rows in maps. Transactions are serialised by txMu and
// run against a copy of the state that replaces the live one on success,
// so a failed transaction leaves nothing behind.
//
// Writes made through the non-transactional repositories open their own
// transaction and must not be issued from inside RunTx.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	st   *state
}

var _ repository.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{st: newState()}
}

func (s *Store) RunTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	return s.write(ctx, func(st *state) error {
		return fn(ctx, scope{st: st})
	})
}

func (s *Store) Bookings() repository.BookingRepository { return bookingRepo{a: s} }
func (s *Store) Closures() repository.ClosureRepository { return closureRepo{a: s} }
func (s *Store) Series() repository.SeriesRepository    { return seriesRepo{a: s} }

func (s *Store) LockDay(context.Context, string, string) error { return nil }

func (s *Store) read(fn func(st *state) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.st)
}

func (s *Store) write(ctx context.Context, fn func(st *state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	work := s.st.clone()
	s.mu.RUnlock()

	if err := fn(work); err != nil {
		return err
	}

	s.mu.Lock()
	s.st = work
	s.mu.Unlock()

	return nil
}

// access abstracts over the live store and a transaction's working copy.
type access interface {
	read(fn func(st *state) error) error
	write(ctx context.Context, fn func(st *state) error) error
}

// scope is the repository set handed to a RunTx callback. The day lock is
// a no-op because the whole transaction already runs exclusively.
type scope struct {
	st *state
}

func (t scope) Bookings() repository.BookingRepository { return bookingRepo{a: t} }
func (t scope) Closures() repository.ClosureRepository { return closureRepo{a: t} }
func (t scope) Series() repository.SeriesRepository    { return seriesRepo{a: t} }

func (t scope) LockDay(context.Context, string, string) error { return nil }

func (t scope) read(fn func(st *state) error) error { return fn(t.st) }

func (t scope) write(_ context.Context, fn func(st *state) error) error { return fn(t.st) }

type state struct {
	bookings map[uuid.UUID]domain.Booking
	closures map[uuid.UUID]domain.Closure
	series   map[uuid.UUID]domain.RecurringSeries
}

func newState() *state {
	return &state{
		bookings: make(map[uuid.UUID]domain.Booking),
		closures: make(map[uuid.UUID]domain.Closure),
		series:   make(map[uuid.UUID]domain.RecurringSeries),
	}
}

func (st *state) clone() *state {
	out := &state{
		bookings: make(map[uuid.UUID]domain.Booking, len(st.bookings)),
		closures: make(map[uuid.UUID]domain.Closure, len(st.closures)),
		series:   make(map[uuid.UUID]domain.RecurringSeries, len(st.series)),
	}
	for k, v := range st.bookings {
		out.bookings[k] = v
	}
	for k, v := range st.closures {
		out.closures[k] = v
	}
	for k, v := range st.series {
		out.series[k] = v
	}
	return out
}
