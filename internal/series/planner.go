// Package series expands weekly recurrences into bookings and forecasts
// whether an owner's credits will cover them.
package series

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/rehearsal-go/internal/clock"
	"github.com/kirinyoku/rehearsal-go/internal/domain"
	"github.com/kirinyoku/rehearsal-go/internal/repository"
	"github.com/kirinyoku/rehearsal-go/internal/reservation"
	"github.com/kirinyoku/rehearsal-go/internal/uow"
	"github.com/kirinyoku/rehearsal-go/internal/validation"
)

const maxWeeks = 52

// Pattern limits a generation run. Weeks caps the number of instances
// considered; IntervalWeeks overrides the series cadence when positive.
type Pattern struct {
	Weeks         int `json:"weeks"`
	IntervalWeeks int `json:"interval_weeks"`
}

type SeriesRequest struct {
	OwnerID       int64     `json:"owner_id" validate:"required,gt=0"`
	FirstStart    time.Time `json:"first_start" validate:"required"`
	FirstEnd      time.Time `json:"first_end" validate:"required,gtfield=FirstStart"`
	Weeks         int       `json:"weeks" validate:"required,min=1,max=52"`
	IntervalWeeks int       `json:"interval_weeks" validate:"omitempty,min=1,max=4"`
	Note          string    `json:"note" validate:"max=500"`
}

type SkipReason string

const (
	SkipConflict       SkipReason = "conflict"
	SkipInvalid        SkipReason = "invalid"
	SkipDuplicate      SkipReason = "already generated"
	SkipDeadlinePassed SkipReason = "confirmation deadline already passed"
	SkipFailed         SkipReason = "failed"
)

type SkippedInstance struct {
	Date      string                 `json:"date"`
	Start     time.Time              `json:"start"`
	End       time.Time              `json:"end"`
	Reason    SkipReason             `json:"reason"`
	Detail    string                 `json:"detail,omitempty"`
	Conflicts *domain.ConflictReport `json:"conflicts,omitempty"`
}

// GenerateResult is the outcome of one generation run. Partial success is
// normal: every instance that could not be booked is listed in Skipped.
type GenerateResult struct {
	Created []domain.Booking  `json:"created"`
	Skipped []SkippedInstance `json:"skipped"`
}

type CancelResult struct {
	Series    *domain.RecurringSeries `json:"series"`
	Cancelled int                     `json:"cancelled"`
	Failed    int                     `json:"failed"`
}

type Planner struct {
	uow       *uow.UoW
	lifecycle *reservation.Lifecycle
	credits   repository.CreditReader
	clock     clock.Clock
	validate  *validation.Validator
	log       *slog.Logger
}

func NewPlanner(
	u *uow.UoW,
	lifecycle *reservation.Lifecycle,
	credits repository.CreditReader,
	clk clock.Clock,
	log *slog.Logger,
) *Planner {
	if clk == nil {
		clk = clock.Real()
	}
	if log == nil {
		log = slog.Default()
	}

	return &Planner{
		uow:       u,
		lifecycle: lifecycle,
		credits:   credits,
		clock:     clk,
		validate:  validation.New(),
		log:       log,
	}
}

// CreateSeries stores the recurrence and books every instance it can.
func (p *Planner) CreateSeries(ctx context.Context, req SeriesRequest) (*domain.RecurringSeries, GenerateResult, error) {
	const op = "series.Planner.CreateSeries"

	if err := p.validate.Struct(req); err != nil {
		return nil, GenerateResult{}, err
	}

	loc := p.lifecycle.Location()
	first, last := req.FirstStart.In(loc), req.FirstEnd.In(loc)
	if first.Format(domain.DateLayout) != last.Add(-time.Nanosecond).Format(domain.DateLayout) {
		return nil, GenerateResult{}, domain.ValidationErrors{domain.Invalid("first_end", "must be on the same day as first_start")}
	}

	interval := req.IntervalWeeks
	if interval == 0 {
		interval = 1
	}

	now := p.clock.Now().UTC()
	midnight := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, loc)
	s := &domain.RecurringSeries{
		ID:            uuid.New(),
		OwnerID:       req.OwnerID,
		Weekday:       first.Weekday(),
		StartMinute:   minuteOfDay(first),
		EndMinute:     minuteOfDay(first) + int(last.Sub(first)/time.Minute),
		IntervalWeeks: interval,
		ValidFrom:     midnight.Format(domain.DateLayout),
		ValidUntil:    midnight.AddDate(0, 0, 7*interval*(req.Weeks-1)).Format(domain.DateLayout),
		Status:        domain.SeriesActive,
		Note:          req.Note,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := p.uow.Do(ctx, func(ctx context.Context, tx repository.Tx, _ func(uow.AfterCommit)) error {
		return tx.Series().Insert(ctx, s)
	})
	if err != nil {
		return nil, GenerateResult{}, fmt.Errorf("%s: %w", op, err)
	}

	res, err := p.GenerateInstances(ctx, *s, first, midnight.AddDate(0, 0, 7*interval*(req.Weeks-1)+1), Pattern{Weeks: req.Weeks})
	if err != nil {
		return nil, GenerateResult{}, fmt.Errorf("%s: %w", op, err)
	}

	p.log.Info("series created",
		slog.String("series_id", s.ID.String()),
		slog.Int64("owner_id", s.OwnerID),
		slog.Int("created", len(res.Created)),
		slog.Int("skipped", len(res.Skipped)),
	)

	return s, res, nil
}

// GenerateInstances books the instances of s starting in [from, to).
// Failures are recorded per instance and never abort the run.
func (p *Planner) GenerateInstances(ctx context.Context, s domain.RecurringSeries, from, to time.Time, pat Pattern) (GenerateResult, error) {
	const op = "series.Planner.GenerateInstances"

	res := GenerateResult{Created: []domain.Booking{}, Skipped: []SkippedInstance{}}

	if s.Status != domain.SeriesActive {
		return res, &domain.StateError{Op: "generate instances", From: string(s.Status), Reason: ErrSeriesNotActive}
	}

	existing, err := p.uow.Store().Bookings().ListBySeries(ctx, s.ID)
	if err != nil {
		return res, fmt.Errorf("%s: %w", op, err)
	}
	generated := make(map[string]struct{}, len(existing))
	for _, b := range existing {
		if b.InstanceDate != nil {
			generated[*b.InstanceDate] = struct{}{}
		}
	}

	instances, err := p.instances(s, pat)
	if err != nil {
		return res, fmt.Errorf("%s: %w", op, err)
	}

	policy := p.lifecycle.Policy()
	now := p.clock.Now()

	for _, in := range instances {
		if in.Start.Before(from) {
			continue
		}
		if !in.Start.Before(to) {
			break
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		skip := func(reason SkipReason, detail string) {
			res.Skipped = append(res.Skipped, SkippedInstance{
				Date: in.Date, Start: in.Start, End: in.End, Reason: reason, Detail: detail,
			})
		}

		if _, ok := generated[in.Date]; ok {
			skip(SkipDuplicate, "")
			continue
		}
		if policy.DeadlinePassed(in.Start, now) {
			skip(SkipDeadlinePassed, "")
			continue
		}

		id, date := s.ID, in.Date
		b, err := p.lifecycle.Create(ctx, reservation.Request{
			OwnerID:      s.OwnerID,
			Start:        in.Start,
			End:          in.End,
			Note:         s.Note,
			SeriesID:     &id,
			InstanceDate: &date,
		})

		var (
			conflict *domain.ConflictError
			verrs    domain.ValidationErrors
		)
		switch {
		case err == nil:
			res.Created = append(res.Created, *b)
		case errors.As(err, &conflict):
			report := conflict.Report
			res.Skipped = append(res.Skipped, SkippedInstance{
				Date: in.Date, Start: in.Start, End: in.End, Reason: SkipConflict, Conflicts: &report,
			})
		case errors.As(err, &verrs):
			skip(SkipInvalid, verrs.Error())
		case errors.Is(err, reservation.ErrDuplicateInstance):
			skip(SkipDuplicate, "")
		default:
			p.log.Warn("series instance failed",
				slog.String("series_id", s.ID.String()),
				slog.String("date", in.Date),
				slog.String("err", err.Error()),
			)
			skip(SkipFailed, err.Error())
		}
	}

	return res, nil
}

type instance struct {
	Date       string
	Start, End time.Time
}

// instances lists the occurrences of s between ValidFrom and ValidUntil in
// chronological order, capped by pat.Weeks.
func (p *Planner) instances(s domain.RecurringSeries, pat Pattern) ([]instance, error) {
	loc := p.lifecycle.Location()

	from, err := time.ParseInLocation(domain.DateLayout, s.ValidFrom, loc)
	if err != nil {
		return nil, fmt.Errorf("valid_from: %w", err)
	}
	until, err := time.ParseInLocation(domain.DateLayout, s.ValidUntil, loc)
	if err != nil {
		return nil, fmt.Errorf("valid_until: %w", err)
	}

	for from.Weekday() != s.Weekday {
		from = from.AddDate(0, 0, 1)
	}

	interval := s.IntervalWeeks
	if pat.IntervalWeeks > 0 {
		interval = pat.IntervalWeeks
	}
	if interval <= 0 {
		interval = 1
	}
	limit := pat.Weeks
	if limit <= 0 || limit > maxWeeks {
		limit = maxWeeks
	}

	var out []instance
	for day := from; !day.After(until) && len(out) < limit; day = day.AddDate(0, 0, 7*interval) {
		y, m, d := day.Date()
		out = append(out, instance{
			Date:  day.Format(domain.DateLayout),
			Start: time.Date(y, m, d, 0, s.StartMinute, 0, 0, loc),
			End:   time.Date(y, m, d, 0, s.EndMinute, 0, 0, loc),
		})
	}

	return out, nil
}

func (p *Planner) Get(ctx context.Context, id uuid.UUID) (*domain.RecurringSeries, error) {
	const op = "series.Planner.Get"

	s, err := p.uow.Store().Series().Get(ctx, id)
	if err != nil {
		return nil, p.wrap(op, err)
	}

	return s, nil
}

// Pause stops the series from generating. Pausing twice is a no-op.
func (p *Planner) Pause(ctx context.Context, id uuid.UUID) (*domain.RecurringSeries, error) {
	return p.transition(ctx, "series.Planner.Pause", "pause", id, domain.SeriesPaused, domain.SeriesActive)
}

func (p *Planner) Resume(ctx context.Context, id uuid.UUID) (*domain.RecurringSeries, error) {
	return p.transition(ctx, "series.Planner.Resume", "resume", id, domain.SeriesActive, domain.SeriesPaused)
}

// CancelSeries closes the series and cancels every instance that has not
// started and is not final yet. Instance failures are logged and counted.
func (p *Planner) CancelSeries(ctx context.Context, id uuid.UUID, reason string) (CancelResult, error) {
	const op = "series.Planner.CancelSeries"

	s, err := p.transition(ctx, op, "cancel", id, domain.SeriesCancelled, domain.SeriesActive, domain.SeriesPaused)
	if err != nil {
		return CancelResult{}, err
	}
	res := CancelResult{Series: s}

	bookings, err := p.uow.Store().Bookings().ListBySeries(ctx, id)
	if err != nil {
		return res, fmt.Errorf("%s: %w", op, err)
	}

	if reason == "" {
		reason = "series cancelled"
	}
	now := p.clock.Now()
	for _, b := range bookings {
		if b.Status.Terminal() || !b.Start.After(now) {
			continue
		}
		if _, err := p.lifecycle.Cancel(ctx, b.ID, reason); err != nil {
			res.Failed++
			p.log.Warn("series instance cancel failed",
				slog.String("series_id", id.String()),
				slog.String("booking_id", b.ID.String()),
				slog.String("err", err.Error()),
			)
			continue
		}
		res.Cancelled++
	}

	return res, nil
}

// transition moves the series to target when its status is one of from.
// Already being in target is a no-op.
func (p *Planner) transition(
	ctx context.Context,
	op, verb string,
	id uuid.UUID,
	target domain.SeriesStatus,
	from ...domain.SeriesStatus,
) (*domain.RecurringSeries, error) {
	var out *domain.RecurringSeries
	err := p.uow.Do(ctx, func(ctx context.Context, tx repository.Tx, _ func(uow.AfterCommit)) error {
		s, err := tx.Series().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		out = s

		if s.Status == target {
			return nil
		}
		allowed := false
		for _, f := range from {
			allowed = allowed || s.Status == f
		}
		if !allowed {
			return &domain.StateError{Op: verb + " series", From: string(s.Status), Reason: ErrSeriesClosed}
		}

		now := p.clock.Now().UTC()
		if err := tx.Series().UpdateStatus(ctx, id, target, now); err != nil {
			return err
		}
		s.Status, s.UpdatedAt = target, now
		return nil
	})
	if err != nil {
		return nil, p.wrap(op, err)
	}

	return out, nil
}

func (p *Planner) wrap(op string, err error) error {
	var state *domain.StateError
	switch {
	case errors.As(err, &state):
		return err
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%s: %w", op, ErrSeriesNotFound)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}
