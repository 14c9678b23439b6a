package httpgin

import (
	"time"

	"github.com/kirinyoku/rehearsal-go/internal/domain"
)

type CreateBookingRequest struct {
	OwnerID int64                 `json:"owner_id" binding:"required"`
	Start   time.Time             `json:"start" binding:"required"`
	End     time.Time             `json:"end" binding:"required"`
	Note    string                `json:"note"`
	Status  *domain.BookingStatus `json:"status"`
}

type UpdateBookingRequest struct {
	Start *time.Time `json:"start"`
	End   *time.Time `json:"end"`
	Note  *string    `json:"note"`
}

type CancelBookingRequest struct {
	Reason string `json:"reason"`
}

type SettlementRequest struct {
	Settlement domain.Settlement `json:"settlement" binding:"required"`
}

type CreateEventHoldRequest struct {
	EventRef string    `json:"event_ref" binding:"required"`
	Start    time.Time `json:"start" binding:"required"`
	End      time.Time `json:"end" binding:"required"`
	Note     string    `json:"note"`
}

type CreateSeriesRequest struct {
	OwnerID       int64     `json:"owner_id" binding:"required"`
	FirstStart    time.Time `json:"first_start" binding:"required"`
	FirstEnd      time.Time `json:"first_end" binding:"required"`
	Weeks         int       `json:"weeks" binding:"required"`
	IntervalWeeks int       `json:"interval_weeks"`
	Note          string    `json:"note"`
}

type ForecastRequest struct {
	OwnerID       int64     `json:"owner_id" binding:"required"`
	Start         time.Time `json:"start" binding:"required"`
	End           time.Time `json:"end" binding:"required"`
	Weeks         int       `json:"weeks" binding:"required"`
	IntervalWeeks int       `json:"interval_weeks"`
}

type CreateClosureRequest struct {
	Start  time.Time `json:"start" binding:"required"`
	End    time.Time `json:"end" binding:"required"`
	Reason string    `json:"reason" binding:"required"`
}

type ErrorResponse struct {
	Error     string                  `json:"error"`
	Details   domain.ValidationErrors `json:"details,omitempty"`
	Conflicts *domain.ConflictReport  `json:"conflicts,omitempty"`
}

type CheckResponse struct {
	Available  bool                    `json:"available"`
	Violations domain.ValidationErrors `json:"violations,omitempty"`
	Conflicts  *domain.ConflictReport  `json:"conflicts,omitempty"`
}

type SlotsResponse struct {
	Date  string        `json:"date"`
	Slots []domain.Slot `json:"slots"`
}

type EndTimesResponse struct {
	Date     string      `json:"date"`
	Start    time.Time   `json:"start"`
	EndTimes []time.Time `json:"end_times"`
}

type GapsResponse struct {
	Date string            `json:"date"`
	Gaps []domain.Interval `json:"gaps"`
}
