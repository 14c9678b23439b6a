// Package service assembles the booking core into the set of services the
// transport layer talks to.
package service

import (
	"log/slog"

	"github.com/kirinyoku/rehearsal-go/internal/availability"
	"github.com/kirinyoku/rehearsal-go/internal/clock"
	"github.com/kirinyoku/rehearsal-go/internal/conflict"
	"github.com/kirinyoku/rehearsal-go/internal/repository"
	"github.com/kirinyoku/rehearsal-go/internal/reservation"
	"github.com/kirinyoku/rehearsal-go/internal/series"
	"github.com/kirinyoku/rehearsal-go/internal/service/admin"
	"github.com/kirinyoku/rehearsal-go/internal/uow"
	"github.com/kirinyoku/rehearsal-go/internal/worker"
)

type Config struct {
	Index        conflict.Config
	Availability availability.Config
	Policy       reservation.ConfirmationPolicy
	Sweep        worker.SweepConfig
}

type Services struct {
	Availability *availability.Engine
	Reservation  *reservation.Lifecycle
	Series       *series.Planner
	Admin        *admin.Service
	Sweep        *worker.Sweeper
}

// NewServices wires every service over one store. cache and events may be
// nil; credits is only needed for forecasts.
func NewServices(
	store repository.Store,
	cache conflict.Cache,
	credits repository.CreditReader,
	events reservation.Publisher,
	clk clock.Clock,
	log *slog.Logger,
	cfg Config,
) *Services {
	if clk == nil {
		clk = clock.Real()
	}
	if log == nil {
		log = slog.Default()
	}

	u := uow.NewUoW(store)
	idx := conflict.NewIndex(store, cache, cfg.Index, clk, log)
	engine := availability.NewEngine(idx, cfg.Availability)
	lifecycle := reservation.NewLifecycle(u, engine, cfg.Policy, clk, events, log)

	return &Services{
		Availability: engine,
		Reservation:  lifecycle,
		Series:       series.NewPlanner(u, lifecycle, credits, clk, log),
		Admin:        admin.New(u, idx, clk, log),
		Sweep:        worker.NewSweeper(store.Bookings(), lifecycle, cfg.Sweep, clk, log),
	}
}
