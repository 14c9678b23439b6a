package domain

import (
	"time"

	"github.com/google/uuid"
)

// ResourceRehearsalRoom is the only physical space modelled.
const ResourceRehearsalRoom = "rehearsal_room"

// DateLayout is the civil-date key format used for days and instance dates.
const DateLayout = "2006-01-02"

type BookingKind string

const (
	KindRehearsal BookingKind = "rehearsal"
	KindEventHold BookingKind = "event_hold"
)

// Valid reports whether k is a known kind.
func (k BookingKind) Valid() bool {
	switch k {
	case KindRehearsal, KindEventHold:
		return true
	default:
		return false
	}
}

// BlocksDirectBookings reports whether bookings of this kind occupy the
// room for new direct bookings.
func (k BookingKind) BlocksDirectBookings() bool {
	switch k {
	case KindRehearsal:
		return true
	case KindEventHold:
		return true
	default:
		return false
	}
}

// Source maps a booking kind onto the conflict bucket it is reported in.
func (k BookingKind) Source() OccupantSource {
	switch k {
	case KindEventHold:
		return SourceEventHold
	case KindRehearsal:
		return SourceBooking
	default:
		return SourceBooking
	}
}

type BookingStatus string

const (
	StatusScheduled BookingStatus = "scheduled"
	StatusReserved  BookingStatus = "reserved"
	StatusConfirmed BookingStatus = "confirmed"
	StatusCancelled BookingStatus = "cancelled"
)

// Terminal reports whether no further lifecycle transition is possible.
func (s BookingStatus) Terminal() bool {
	return s == StatusConfirmed || s == StatusCancelled
}

func (s BookingStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusReserved, StatusConfirmed, StatusCancelled:
		return true
	default:
		return false
	}
}

type Settlement string

const (
	SettlementUnpaid   Settlement = "unpaid"
	SettlementPaid     Settlement = "paid"
	SettlementComped   Settlement = "comped"
	SettlementRefunded Settlement = "refunded"
)

// Settled reports whether billing has already closed this booking.
func (s Settlement) Settled() bool {
	switch s {
	case SettlementPaid, SettlementComped, SettlementRefunded:
		return true
	default:
		return false
	}
}

func (s Settlement) Valid() bool {
	return s == SettlementUnpaid || s.Settled()
}

// Booking is a claim on the room. Rehearsal bookings carry an owner;
// event holds carry the public event reference instead.
type Booking struct {
	ID            uuid.UUID     `json:"id"`
	Kind          BookingKind   `json:"kind"`
	OwnerID       int64         `json:"owner_id,omitempty"`
	EventRef      string        `json:"event_ref,omitempty"`
	Start         time.Time     `json:"start"`
	End           time.Time     `json:"end"`
	Status        BookingStatus `json:"status"`
	Settlement    Settlement    `json:"settlement"`
	Note          string        `json:"note,omitempty"`
	SeriesID      *uuid.UUID    `json:"series_id,omitempty"`
	InstanceDate  *string       `json:"instance_date,omitempty"`
	DeferCredits  bool          `json:"defer_credits"`
	BufferMinutes int           `json:"buffer_minutes"`
	CancelReason  string        `json:"cancel_reason,omitempty"`
	ConfirmedAt   *time.Time    `json:"confirmed_at,omitempty"`
	CancelledAt   *time.Time    `json:"cancelled_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

func (b Booking) Interval() Interval {
	return Interval{Start: b.Start, End: b.End}
}

// BillableUnits is the number of started hours the booking spans.
func (b Booking) BillableUnits() int {
	minutes := int(b.Interval().Duration() / time.Minute)
	if minutes <= 0 {
		return 0
	}
	return (minutes + 59) / 60
}

// Refundable reports whether cancelling b hands credits back to its owner.
// Only a scheduled booking is charged at creation; reserved bookings defer
// the charge and event holds are never charged.
func (b Booking) Refundable() bool {
	return b.Kind == KindRehearsal && b.Status == StatusScheduled && !b.DeferCredits
}

type Closure struct {
	ID        uuid.UUID `json:"id"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

func (c Closure) Interval() Interval {
	return Interval{Start: c.Start, End: c.End}
}

type SeriesStatus string

const (
	SeriesActive    SeriesStatus = "active"
	SeriesPaused    SeriesStatus = "paused"
	SeriesCancelled SeriesStatus = "cancelled"
	SeriesCompleted SeriesStatus = "completed"
)

// RecurringSeries repeats a weekly time-of-day window every IntervalWeeks
// between ValidFrom and ValidUntil (civil dates, inclusive).
type RecurringSeries struct {
	ID            uuid.UUID    `json:"id"`
	OwnerID       int64        `json:"owner_id"`
	Weekday       time.Weekday `json:"weekday"`
	StartMinute   int          `json:"start_minute"`
	EndMinute     int          `json:"end_minute"`
	IntervalWeeks int          `json:"interval_weeks"`
	ValidFrom     string       `json:"valid_from"`
	ValidUntil    string       `json:"valid_until"`
	Status        SeriesStatus `json:"status"`
	Note          string       `json:"note,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

type OccupantSource string

const (
	SourceBooking   OccupantSource = "booking"
	SourceEventHold OccupantSource = "event_hold"
	SourceClosure   OccupantSource = "closure"
)

// Occupant is one entry of a conflict snapshot. Buffered is the interval
// used for testing; Interval is kept for display.
type Occupant struct {
	ID       uuid.UUID      `json:"id"`
	Source   OccupantSource `json:"source"`
	Label    string         `json:"label,omitempty"`
	Interval Interval       `json:"interval"`
	Buffered Interval       `json:"buffered"`
}

// ConflictSnapshot is everything occupying the room on one civil date.
type ConflictSnapshot struct {
	Date      string     `json:"date"`
	Occupants []Occupant `json:"occupants"`
	BuiltAt   time.Time  `json:"built_at"`
}

// Without returns a copy of the snapshot minus the occupant with id.
func (s ConflictSnapshot) Without(id *uuid.UUID) ConflictSnapshot {
	if id == nil {
		return s
	}
	out := ConflictSnapshot{Date: s.Date, BuiltAt: s.BuiltAt}
	for _, o := range s.Occupants {
		if o.ID == *id {
			continue
		}
		out.Occupants = append(out.Occupants, o)
	}
	return out
}

// Occupied returns the buffered intervals of all occupants.
func (s ConflictSnapshot) Occupied() []Interval {
	out := make([]Interval, 0, len(s.Occupants))
	for _, o := range s.Occupants {
		out = append(out, o.Buffered)
	}
	return out
}

// ConflictReport groups the occupants a candidate interval collides with.
type ConflictReport struct {
	Bookings   []Occupant `json:"bookings"`
	EventHolds []Occupant `json:"event_holds"`
	Closures   []Occupant `json:"closures"`
}

func (r *ConflictReport) Add(o Occupant) {
	switch o.Source {
	case SourceEventHold:
		r.EventHolds = append(r.EventHolds, o)
	case SourceClosure:
		r.Closures = append(r.Closures, o)
	default:
		r.Bookings = append(r.Bookings, o)
	}
}

func (r ConflictReport) Empty() bool {
	return len(r.Bookings) == 0 && len(r.EventHolds) == 0 && len(r.Closures) == 0
}

func (r ConflictReport) Count() int {
	return len(r.Bookings) + len(r.EventHolds) + len(r.Closures)
}

type Slot struct {
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationMinutes int       `json:"duration_minutes"`
}

type ForecastStep struct {
	InstanceStart time.Time `json:"instance_start"`
	Deadline      time.Time `json:"deadline"`
	Allocation    int       `json:"allocation"`
	Cost          int       `json:"cost"`
	Balance       int       `json:"balance"`
}

// Forecast is an advisory simulation of credit sufficiency for a series.
type Forecast struct {
	Sufficient   bool           `json:"sufficient"`
	Shortfall    int            `json:"shortfall"`
	FinalBalance int            `json:"final_balance"`
	Instances    int            `json:"instances"`
	Steps        []ForecastStep `json:"steps"`
}
