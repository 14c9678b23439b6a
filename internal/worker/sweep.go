// Package worker runs the periodic auto-cancellation sweep.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/rehearsal-go/internal/clock"
	"github.com/kirinyoku/rehearsal-go/internal/domain"
	"github.com/kirinyoku/rehearsal-go/internal/repository"
	"github.com/kirinyoku/rehearsal-go/internal/reservation"
)

// Canceller is the part of the lifecycle the sweep drives.
type Canceller interface {
	AutoCancel(ctx context.Context, id uuid.UUID, now time.Time) (*domain.Booking, bool, error)
	Policy() reservation.ConfirmationPolicy
}

type SweepConfig struct {
	Interval  time.Duration
	BatchSize int
}

func DefaultSweepConfig() SweepConfig {
	return SweepConfig{
		Interval:  24 * time.Hour,
		BatchSize: 100,
	}
}

type SweepStats struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Scanned   int           `json:"scanned"`
	Cancelled int           `json:"cancelled"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
}

// Sweeper cancels scheduled and reserved bookings whose confirmation
// deadline passed. A pass can be interrupted and rerun at any point.
type Sweeper struct {
	bookings  repository.BookingRepository
	lifecycle Canceller
	clock     clock.Clock
	cfg       SweepConfig
	log       *slog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	last    SweepStats
	passMu  sync.Mutex
}

func NewSweeper(bookings repository.BookingRepository, lifecycle Canceller, cfg SweepConfig, clk clock.Clock, log *slog.Logger) *Sweeper {
	def := DefaultSweepConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if clk == nil {
		clk = clock.Real()
	}
	if log == nil {
		log = slog.Default()
	}

	return &Sweeper{
		bookings:  bookings,
		lifecycle: lifecycle,
		clock:     clk,
		cfg:       cfg,
		log:       log.With(slog.String("component", "sweep")),
	}
}

// RunOnce drains every due booking in batches. Per-record failures are
// logged and counted; only a failing list query aborts the pass.
func (s *Sweeper) RunOnce(ctx context.Context) (stats SweepStats, err error) {
	const op = "worker.Sweeper.RunOnce"

	s.passMu.Lock()
	defer s.passMu.Unlock()

	now := s.clock.Now().UTC()
	stats = SweepStats{StartedAt: now}
	defer func() {
		stats.Duration = s.clock.Now().Sub(now)
		s.mu.Lock()
		s.last = stats
		s.mu.Unlock()
	}()

	// start < cutoff is the same as deadline <= now.
	cutoff := now.Add(s.lifecycle.Policy().DeadlineBefore).Add(time.Microsecond)
	seen := make(map[uuid.UUID]struct{})

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		// Records that were skipped or failed stay due, so the limit grows
		// past them.
		limit := s.cfg.BatchSize + stats.Skipped + stats.Failed
		batch, err := s.bookings.ListUnconfirmedStartingBefore(ctx, cutoff, limit)
		if err != nil {
			return stats, fmt.Errorf("%s: %w", op, err)
		}

		progressed := false
		for _, b := range batch {
			if _, ok := seen[b.ID]; ok {
				continue
			}
			seen[b.ID] = struct{}{}
			progressed = true
			stats.Scanned++

			_, changed, err := s.lifecycle.AutoCancel(ctx, b.ID, now)
			switch {
			case err == nil && changed:
				stats.Cancelled++
			case err == nil, errors.Is(err, reservation.ErrNotDue):
				stats.Skipped++
			default:
				stats.Failed++
				s.log.Error("auto-cancel failed",
					slog.String("booking_id", b.ID.String()),
					slog.String("err", err.Error()),
				)
			}
		}

		if !progressed || len(batch) < limit {
			break
		}
	}

	s.log.Info("sweep finished",
		slog.Int("scanned", stats.Scanned),
		slog.Int("cancelled", stats.Cancelled),
		slog.Int("skipped", stats.Skipped),
		slog.Int("failed", stats.Failed),
	)

	return stats, nil
}

// Start runs a pass immediately and then every Interval until ctx is done
// or Stop is called.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("sweeper already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(ctx, s.stopCh)

	return nil
}

func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
}

// Last returns the stats of the most recent pass.
func (s *Sweeper) Last() SweepStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Sweeper) loop(ctx context.Context, stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.pass(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			s.pass(ctx)
		}
	}
}

func (s *Sweeper) pass(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Error("sweep pass failed", slog.String("err", err.Error()))
	}
}
