package repository

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	// ErrOverlap is returned when a write would make two active bookings
	// overlap after buffering.
	ErrOverlap = errors.New("buffered interval overlaps an active booking")
	// ErrDuplicateInstance is returned when a series already generated a
	// booking for the instance date.
	ErrDuplicateInstance = errors.New("series instance already exists")
)
