// Package reservation owns the booking state machine. Every status change
// happens inside one transaction and lifecycle events leave only after it
// commits.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/rehearsal-go/internal/availability"
	"github.com/kirinyoku/rehearsal-go/internal/clock"
	"github.com/kirinyoku/rehearsal-go/internal/conflict"
	"github.com/kirinyoku/rehearsal-go/internal/domain"
	"github.com/kirinyoku/rehearsal-go/internal/repository"
	"github.com/kirinyoku/rehearsal-go/internal/uow"
	"github.com/kirinyoku/rehearsal-go/internal/validation"
)

// AutoCancelReason is recorded on bookings cancelled by the sweep.
const AutoCancelReason = "not confirmed within window"

const defaultCancelReason = "cancelled by owner"

const defaultReleaseReason = "event called off"

// Publisher receives lifecycle events after commit.
type Publisher interface {
	Publish(ctx context.Context, events ...domain.LifecycleEvent)
}

type Request struct {
	OwnerID      int64                 `json:"owner_id" validate:"required,gt=0"`
	Start        time.Time             `json:"start" validate:"required"`
	End          time.Time             `json:"end" validate:"required,gtfield=Start"`
	Note         string                `json:"note" validate:"max=500"`
	SeriesID     *uuid.UUID            `json:"series_id"`
	InstanceDate *string               `json:"instance_date" validate:"omitempty,datetime=2006-01-02"`
	Status       *domain.BookingStatus `json:"status" validate:"omitempty,oneof=scheduled reserved"`
}

type HoldRequest struct {
	EventRef string    `json:"event_ref" validate:"required,max=120"`
	Start    time.Time `json:"start" validate:"required"`
	End      time.Time `json:"end" validate:"required,gtfield=Start"`
	Note     string    `json:"note" validate:"max=500"`
}

// UpdateRequest changes the window, the note, or both. Nil fields are kept.
type UpdateRequest struct {
	Start *time.Time `json:"start"`
	End   *time.Time `json:"end"`
	Note  *string    `json:"note" validate:"omitempty,max=500"`
}

type Lifecycle struct {
	uow      *uow.UoW
	engine   *availability.Engine
	policy   ConfirmationPolicy
	clock    clock.Clock
	events   Publisher
	validate *validation.Validator
	log      *slog.Logger
}

func NewLifecycle(
	u *uow.UoW,
	engine *availability.Engine,
	policy ConfirmationPolicy,
	clk clock.Clock,
	events Publisher,
	log *slog.Logger,
) *Lifecycle {
	if clk == nil {
		clk = clock.Real()
	}
	if log == nil {
		log = slog.Default()
	}

	return &Lifecycle{
		uow:      u,
		engine:   engine,
		policy:   policy,
		clock:    clk,
		events:   events,
		validate: validation.New(),
		log:      log,
	}
}

func (l *Lifecycle) Policy() ConfirmationPolicy { return l.policy }

// Location is the studio time zone civil dates are resolved in.
func (l *Lifecycle) Location() *time.Location { return l.engine.Index().Location() }

// Create books a rehearsal. The accept decision is made on a fresh read
// under the day lock; the exclusion constraint backs it up.
//
// Initial status:
//   - explicit override (scheduled or reserved) when given;
//   - reserved with deferred credits for series instances;
//   - scheduled otherwise.
//
// A non-series booking whose confirmation deadline already passed is
// confirmed in the same transaction.
func (l *Lifecycle) Create(ctx context.Context, req Request) (*domain.Booking, error) {
	const op = "reservation.Lifecycle.Create"

	if err := l.validate.Struct(req); err != nil {
		return nil, err
	}

	now := l.clock.Now().UTC()
	iv := domain.NewInterval(req.Start.UTC(), req.End.UTC())

	if err := l.engine.Rules(iv); err != nil {
		return nil, err
	}
	if !iv.Start.After(now) {
		return nil, domain.ValidationErrors{domain.Invalid("start", "must be in the future")}
	}
	if (req.SeriesID == nil) != (req.InstanceDate == nil) {
		return nil, domain.ValidationErrors{domain.Invalid("instance_date", "series_id and instance_date go together")}
	}

	b := &domain.Booking{
		ID:            uuid.New(),
		Kind:          domain.KindRehearsal,
		OwnerID:       req.OwnerID,
		Start:         iv.Start,
		End:           iv.End,
		Status:        domain.StatusScheduled,
		Settlement:    domain.SettlementUnpaid,
		Note:          req.Note,
		SeriesID:      req.SeriesID,
		InstanceDate:  req.InstanceDate,
		BufferMinutes: l.bufferMinutes(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	switch {
	case req.Status != nil:
		b.Status = *req.Status
	case req.SeriesID != nil:
		b.Status = domain.StatusReserved
	}
	b.DeferCredits = b.Status == domain.StatusReserved

	autoConfirm := req.SeriesID == nil && l.policy.DeadlinePassed(b.Start, now)
	initial := *b

	err := l.uow.Do(ctx, func(ctx context.Context, tx repository.Tx, after func(uow.AfterCommit)) error {
		*b = initial

		dates, err := l.claim(ctx, tx, iv, nil, l.engine.CheckWith)
		if err != nil {
			return err
		}

		if err := l.insert(ctx, tx, b); err != nil {
			return err
		}

		created := *b
		evs := []domain.LifecycleEvent{domain.BookingCreated(created, now)}

		if autoConfirm {
			previous := b.Status
			b.Status = domain.StatusConfirmed
			b.ConfirmedAt = &now
			if err := tx.Bookings().Update(ctx, b); err != nil {
				return err
			}
			evs = append(evs, domain.BookingConfirmed(*b, previous, now))
		}

		l.afterWrite(after, dates, evs...)
		return nil
	})
	if err != nil {
		return nil, l.wrap(op, err)
	}

	l.log.Info("booking created",
		slog.String("booking_id", b.ID.String()),
		slog.Int64("owner_id", b.OwnerID),
		slog.String("status", string(b.Status)),
		slog.Time("start", b.Start),
	)

	return b, nil
}

// CreateEventHold blocks the room for a public event. Holds skip business
// hours and duration limits but never override an existing occupant.
func (l *Lifecycle) CreateEventHold(ctx context.Context, req HoldRequest) (*domain.Booking, error) {
	const op = "reservation.Lifecycle.CreateEventHold"

	if err := l.validate.Struct(req); err != nil {
		return nil, err
	}

	now := l.clock.Now().UTC()
	iv := domain.NewInterval(req.Start.UTC(), req.End.UTC())

	b := &domain.Booking{
		ID:            uuid.New(),
		Kind:          domain.KindEventHold,
		EventRef:      req.EventRef,
		Start:         iv.Start,
		End:           iv.End,
		Status:        domain.StatusConfirmed,
		Settlement:    domain.SettlementComped,
		Note:          req.Note,
		BufferMinutes: l.bufferMinutes(),
		ConfirmedAt:   &now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := l.uow.Do(ctx, func(ctx context.Context, tx repository.Tx, after func(uow.AfterCommit)) error {
		dates, err := l.claim(ctx, tx, iv, nil, holdCheck)
		if err != nil {
			return err
		}

		if err := l.insert(ctx, tx, b); err != nil {
			return err
		}

		l.afterWrite(after, dates, domain.BookingCreated(*b, now))
		return nil
	})
	if err != nil {
		return nil, l.wrap(op, err)
	}

	return b, nil
}

// Confirm moves a scheduled or reserved booking to confirmed. Confirming
// an already confirmed booking returns it unchanged and emits nothing.
func (l *Lifecycle) Confirm(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	const op = "reservation.Lifecycle.Confirm"

	var out *domain.Booking
	err := l.uow.Do(ctx, func(ctx context.Context, tx repository.Tx, after func(uow.AfterCommit)) error {
		b, err := tx.Bookings().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		out = b

		switch b.Status {
		case domain.StatusConfirmed:
			return nil
		case domain.StatusCancelled:
			return &domain.StateError{Op: "confirm", From: string(b.Status), Reason: ErrTerminal}
		}

		now := l.clock.Now().UTC()
		if now.Before(l.policy.OpensAt(b.Start)) {
			return &domain.StateError{Op: "confirm", From: string(b.Status), Reason: ErrConfirmTooEarly}
		}
		if l.policy.DeadlinePassed(b.Start, now) {
			return &domain.StateError{Op: "confirm", From: string(b.Status), Reason: ErrDeadlinePassed}
		}

		previous := b.Status
		b.Status = domain.StatusConfirmed
		b.ConfirmedAt = &now
		b.UpdatedAt = now
		if err := tx.Bookings().Update(ctx, b); err != nil {
			return err
		}

		l.afterWrite(after, nil, domain.BookingConfirmed(*b, previous, now))
		return nil
	})
	if err != nil {
		return nil, l.wrap(op, err)
	}

	return out, nil
}

// Cancel cancels a scheduled or reserved booking before it starts.
// Cancelling twice is a no-op.
func (l *Lifecycle) Cancel(ctx context.Context, id uuid.UUID, reason string) (*domain.Booking, error) {
	const op = "reservation.Lifecycle.Cancel"

	if reason == "" {
		reason = defaultCancelReason
	}

	var out *domain.Booking
	err := l.uow.Do(ctx, func(ctx context.Context, tx repository.Tx, after func(uow.AfterCommit)) error {
		b, err := tx.Bookings().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		out = b

		switch b.Status {
		case domain.StatusCancelled:
			return nil
		case domain.StatusConfirmed:
			return &domain.StateError{Op: "cancel", From: string(b.Status), Reason: ErrTerminal}
		}

		now := l.clock.Now().UTC()
		if !now.Before(b.Start) {
			return &domain.StateError{Op: "cancel", From: string(b.Status), Reason: ErrAlreadyStarted}
		}

		return l.cancel(ctx, tx, after, b, reason, now)
	})
	if err != nil {
		return nil, l.wrap(op, err)
	}

	return out, nil
}

// AutoCancel cancels a booking whose confirmation deadline passed. It is
// reserved for the sweep. changed is false when there was nothing to do.
func (l *Lifecycle) AutoCancel(ctx context.Context, id uuid.UUID, now time.Time) (b *domain.Booking, changed bool, err error) {
	const op = "reservation.Lifecycle.AutoCancel"

	err = l.uow.Do(ctx, func(ctx context.Context, tx repository.Tx, after func(uow.AfterCommit)) error {
		cur, err := tx.Bookings().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		b, changed = cur, false

		switch cur.Status {
		case domain.StatusCancelled, domain.StatusConfirmed:
			return nil
		}

		if !l.policy.DeadlinePassed(cur.Start, now) {
			return &domain.StateError{Op: "auto-cancel", From: string(cur.Status), Reason: ErrNotDue}
		}

		changed = true
		return l.cancel(ctx, tx, after, cur, AutoCancelReason, now.UTC())
	})
	if err != nil {
		return nil, false, l.wrap(op, err)
	}

	return b, changed, nil
}

// ReleaseEventHold frees the room held for a public event that was called
// off or moved. Only event holds can be released; releasing twice is a
// no-op.
func (l *Lifecycle) ReleaseEventHold(ctx context.Context, id uuid.UUID, reason string) (*domain.Booking, error) {
	const op = "reservation.Lifecycle.ReleaseEventHold"

	if reason == "" {
		reason = defaultReleaseReason
	}

	var out *domain.Booking
	err := l.uow.Do(ctx, func(ctx context.Context, tx repository.Tx, after func(uow.AfterCommit)) error {
		b, err := tx.Bookings().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		out = b

		if b.Kind != domain.KindEventHold {
			return &domain.StateError{Op: "release", From: string(b.Status), Reason: ErrNotEventHold}
		}
		if b.Status == domain.StatusCancelled {
			return nil
		}

		return l.cancel(ctx, tx, after, b, reason, l.clock.Now().UTC())
	})
	if err != nil {
		return nil, l.wrap(op, err)
	}

	return out, nil
}

func (l *Lifecycle) cancel(
	ctx context.Context,
	tx repository.Tx,
	after func(uow.AfterCommit),
	b *domain.Booking,
	reason string,
	now time.Time,
) error {
	previous := b.Status
	refund := b.Refundable()

	b.Status = domain.StatusCancelled
	b.CancelReason = reason
	b.CancelledAt = &now
	b.UpdatedAt = now
	if err := tx.Bookings().Update(ctx, b); err != nil {
		return err
	}

	l.afterWrite(after, l.engine.Index().DatesOf(b.Interval()), domain.BookingCancelled(*b, previous, refund, now))
	return nil
}

// Update reschedules a pending booking or edits its note. Moving a settled
// booking is refused.
func (l *Lifecycle) Update(ctx context.Context, id uuid.UUID, req UpdateRequest) (*domain.Booking, error) {
	const op = "reservation.Lifecycle.Update"

	if err := l.validate.Struct(req); err != nil {
		return nil, err
	}

	var out *domain.Booking
	err := l.uow.Do(ctx, func(ctx context.Context, tx repository.Tx, after func(uow.AfterCommit)) error {
		b, err := tx.Bookings().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		out = b

		if b.Status.Terminal() {
			return &domain.StateError{Op: "update", From: string(b.Status), Reason: ErrTerminal}
		}

		now := l.clock.Now().UTC()
		if !now.Before(b.Start) {
			return &domain.StateError{Op: "update", From: string(b.Status), Reason: ErrAlreadyStarted}
		}

		next := b.Interval()
		if req.Start != nil {
			next.Start = req.Start.UTC()
		}
		if req.End != nil {
			next.End = req.End.UTC()
		}
		moved := !next.Start.Equal(b.Start) || !next.End.Equal(b.End)
		renoted := req.Note != nil && *req.Note != b.Note

		if !moved && !renoted {
			return nil
		}

		var dates []string
		if moved {
			if b.Settlement.Settled() {
				return &domain.StateError{Op: "reschedule", From: string(b.Status), Reason: ErrSettled}
			}
			if !next.Start.After(now) {
				return domain.ValidationErrors{domain.Invalid("start", "must be in the future")}
			}

			old := l.engine.Index().DatesOf(b.Interval())
			fresh, err := l.claim(ctx, tx, next, &b.ID, l.engine.CheckWith, old...)
			if err != nil {
				return err
			}
			dates = fresh
		}

		oldUnits := b.BillableUnits()
		b.Start, b.End = next.Start, next.End
		if req.Note != nil {
			b.Note = *req.Note
		}
		b.UpdatedAt = now

		if err := tx.Bookings().Update(ctx, b); err != nil {
			if errors.Is(err, repository.ErrOverlap) {
				return &domain.ConflictError{}
			}
			return err
		}

		l.afterWrite(after, dates, domain.BookingUpdated(*b, oldUnits, now))
		return nil
	})
	if err != nil {
		return nil, l.wrap(op, err)
	}

	return out, nil
}

// MarkSettlement records the billing outcome. Repeating the same value
// is a no-op.
func (l *Lifecycle) MarkSettlement(ctx context.Context, id uuid.UUID, s domain.Settlement) (*domain.Booking, error) {
	const op = "reservation.Lifecycle.MarkSettlement"

	if !s.Valid() {
		return nil, domain.ValidationErrors{domain.Invalid("settlement", "unknown value %q", s)}
	}

	var out *domain.Booking
	err := l.uow.Do(ctx, func(ctx context.Context, tx repository.Tx, _ func(uow.AfterCommit)) error {
		b, err := tx.Bookings().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		out = b

		if b.Settlement == s {
			return nil
		}

		b.Settlement = s
		b.UpdatedAt = l.clock.Now().UTC()
		return tx.Bookings().Update(ctx, b)
	})
	if err != nil {
		return nil, l.wrap(op, err)
	}

	return out, nil
}

func (l *Lifecycle) Get(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	const op = "reservation.Lifecycle.Get"

	b, err := l.uow.Store().Bookings().Get(ctx, id)
	if err != nil {
		return nil, l.wrap(op, err)
	}

	return b, nil
}

func (l *Lifecycle) ListByOwner(ctx context.Context, ownerID int64, limit, offset int) ([]domain.Booking, error) {
	const op = "reservation.Lifecycle.ListByOwner"

	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	out, err := l.uow.Store().Bookings().ListByOwner(ctx, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

func (l *Lifecycle) ListBetween(ctx context.Context, from, to time.Time) ([]domain.Booking, error) {
	const op = "reservation.Lifecycle.ListBetween"

	if !to.After(from) {
		return nil, domain.ValidationErrors{domain.Invalid("to", "must be after from")}
	}

	out, err := l.uow.Store().Bookings().ListBetween(ctx, from, to, repository.BookingFilter{})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

// claim locks every day the buffered interval touches (plus extra days,
// for reschedules) in date order, then runs check against a fresh read.
// It returns the locked dates.
func (l *Lifecycle) claim(
	ctx context.Context,
	tx repository.Tx,
	iv domain.Interval,
	excludeID *uuid.UUID,
	check checkFunc,
	extra ...string,
) ([]string, error) {
	idx := l.engine.Index()
	target := idx.DatesOf(iv)
	dates := unionSorted(target, extra)

	for _, d := range dates {
		if err := tx.LockDay(ctx, domain.ResourceRehearsalRoom, d); err != nil {
			return nil, err
		}
	}

	snaps := make([]domain.ConflictSnapshot, 0, len(target))
	for _, d := range target {
		snap, err := idx.Fresh(ctx, tx, d, excludeID)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}

	report, err := check(iv, snaps...)
	if err != nil {
		return nil, err
	}
	if !report.Empty() {
		return nil, &domain.ConflictError{Report: report}
	}

	return dates, nil
}

type checkFunc func(iv domain.Interval, snaps ...domain.ConflictSnapshot) (domain.ConflictReport, error)

// holdCheck tests event holds against occupants only.
func holdCheck(iv domain.Interval, snaps ...domain.ConflictSnapshot) (domain.ConflictReport, error) {
	if !iv.Valid() {
		return domain.ConflictReport{}, domain.ValidationErrors{domain.Invalid("end", "must be after start")}
	}
	return conflict.Collisions(iv, snaps...), nil
}

func (l *Lifecycle) insert(ctx context.Context, tx repository.Tx, b *domain.Booking) error {
	err := tx.Bookings().Insert(ctx, b)
	switch {
	case errors.Is(err, repository.ErrOverlap):
		return &domain.ConflictError{}
	case errors.Is(err, repository.ErrDuplicateInstance):
		return ErrDuplicateInstance
	default:
		return err
	}
}

func (l *Lifecycle) afterWrite(after func(uow.AfterCommit), dates []string, evs ...domain.LifecycleEvent) {
	after(func(ctx context.Context) {
		l.engine.Index().Invalidate(ctx, dates...)
		if l.events != nil {
			l.events.Publish(ctx, evs...)
		}
	})
}

func (l *Lifecycle) bufferMinutes() int {
	return int(l.engine.Index().Buffer() / time.Minute)
}

// wrap maps repository sentinels to lifecycle ones and leaves the
// caller-facing error types untouched.
func (l *Lifecycle) wrap(op string, err error) error {
	var (
		verrs    domain.ValidationErrors
		verr     *domain.ValidationError
		conflict *domain.ConflictError
		state    *domain.StateError
	)
	switch {
	case errors.As(err, &verrs), errors.As(err, &verr), errors.As(err, &conflict), errors.As(err, &state):
		return err
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%s: %w", op, ErrBookingNotFound)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func unionSorted(a, b []string) []string {
	set := make(map[string]struct{}, len(a)+len(b))
	for _, s := range a {
		set[s] = struct{}{}
	}
	for _, s := range b {
		set[s] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
