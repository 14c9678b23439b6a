package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventBookingCreated   EventType = "booking.created"
	EventBookingConfirmed EventType = "booking.confirmed"
	EventBookingCancelled EventType = "booking.cancelled"
	EventBookingUpdated   EventType = "booking.updated"
)

// LifecycleEvent is emitted after the transaction that caused it commits.
// EventID is stable per transition so consumers can deduplicate.
type LifecycleEvent struct {
	EventID          uuid.UUID     `json:"event_id"`
	Type             EventType     `json:"type"`
	OccurredAt       time.Time     `json:"occurred_at"`
	Booking          Booking       `json:"booking"`
	DeferCredits     bool          `json:"defer_credits"`
	PreviousStatus   BookingStatus `json:"previous_status,omitempty"`
	Reason           string        `json:"reason,omitempty"`
	Refund           bool          `json:"refund,omitempty"`
	OldBillableUnits int           `json:"old_billable_units,omitempty"`
}

func BookingCreated(b Booking, at time.Time) LifecycleEvent {
	return LifecycleEvent{
		EventID:      uuid.New(),
		Type:         EventBookingCreated,
		OccurredAt:   at,
		Booking:      b,
		DeferCredits: b.DeferCredits,
	}
}

func BookingConfirmed(b Booking, previous BookingStatus, at time.Time) LifecycleEvent {
	return LifecycleEvent{
		EventID:        uuid.New(),
		Type:           EventBookingConfirmed,
		OccurredAt:     at,
		Booking:        b,
		DeferCredits:   previous == StatusReserved,
		PreviousStatus: previous,
	}
}

func BookingCancelled(b Booking, previous BookingStatus, refund bool, at time.Time) LifecycleEvent {
	return LifecycleEvent{
		EventID:        uuid.New(),
		Type:           EventBookingCancelled,
		OccurredAt:     at,
		Booking:        b,
		DeferCredits:   b.DeferCredits,
		PreviousStatus: previous,
		Reason:         b.CancelReason,
		Refund:         refund,
	}
}

func BookingUpdated(b Booking, oldUnits int, at time.Time) LifecycleEvent {
	return LifecycleEvent{
		EventID:          uuid.New(),
		Type:             EventBookingUpdated,
		OccurredAt:       at,
		Booking:          b,
		DeferCredits:     b.DeferCredits,
		OldBillableUnits: oldUnits,
	}
}
