package reservation

import "time"

// ConfirmationPolicy is the single source of the confirmation window.
// A booking may be confirmed from OpensBefore until DeadlineBefore its
// start. Requests made after the deadline are confirmed on creation, and
// the sweep cancels anything still unconfirmed once it passes.
type ConfirmationPolicy struct {
	OpensBefore    time.Duration
	DeadlineBefore time.Duration
}

func DefaultPolicy() ConfirmationPolicy {
	return ConfirmationPolicy{
		OpensBefore:    5 * 24 * time.Hour,
		DeadlineBefore: 3 * 24 * time.Hour,
	}
}

func (p ConfirmationPolicy) OpensAt(start time.Time) time.Time {
	return start.Add(-p.OpensBefore)
}

func (p ConfirmationPolicy) Deadline(start time.Time) time.Time {
	return start.Add(-p.DeadlineBefore)
}

// DeadlinePassed reports whether now is at or after the deadline of start.
func (p ConfirmationPolicy) DeadlinePassed(start, now time.Time) bool {
	return !now.Before(p.Deadline(start))
}
