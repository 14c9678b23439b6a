package reservation

import "errors"

var (
	ErrBookingNotFound   = errors.New("booking not found")
	ErrConfirmTooEarly   = errors.New("confirmation window has not opened yet")
	ErrDeadlinePassed    = errors.New("confirmation deadline has passed")
	ErrNotDue            = errors.New("confirmation deadline has not passed yet")
	ErrTerminal          = errors.New("booking is already final")
	ErrAlreadyStarted    = errors.New("booking has already started")
	ErrSettled           = errors.New("booking is already settled; cancel and rebook instead")
	ErrDuplicateInstance = errors.New("series instance already booked")
	ErrNotEventHold      = errors.New("booking is not an event hold")
)
