package domain

import (
	"fmt"
	"strings"
)

// ValidationError is a rejected input. It is reported to the caller as is
// and never retried.
type ValidationError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

// ValidationErrors collects every problem found in one request.
type ValidationErrors []*ValidationError

func (es ValidationErrors) Error() string {
	parts := make([]string, 0, len(es))
	for _, e := range es {
		parts = append(parts, e.Error())
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Err returns nil for an empty list so callers can return it directly.
func (es ValidationErrors) Err() error {
	if len(es) == 0 {
		return nil
	}
	return es
}

func Invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ConflictError carries the occupants a candidate collided with.
type ConflictError struct {
	Report ConflictReport
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflicts with %d booking(s), %d event hold(s), %d closure(s)",
		len(e.Report.Bookings), len(e.Report.EventHolds), len(e.Report.Closures))
}

// StateError is an illegal lifecycle transition. Unwrap exposes the
// sentinel naming the rule that was broken.
type StateError struct {
	Op     string
	From   string
	Reason error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s from %s: %v", e.Op, e.From, e.Reason)
}

func (e *StateError) Unwrap() error {
	return e.Reason
}
