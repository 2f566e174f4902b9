package calendar

import "errors"

var (
	// ErrInvalidDate marks a date string that is not a real YYYY-MM-DD day.
	ErrInvalidDate = errors.New("invalid date")
	// ErrEmptyEvent is returned for an empty event text.
	ErrEmptyEvent = errors.New("empty event text")
	// ErrPersist wraps snapshot write failures. The in-memory calendar has
	// been rolled back when this is returned.
	ErrPersist = errors.New("persist calendar")
	// ErrLoadCorruption is returned by Open when a stored key is not a date.
	ErrLoadCorruption = errors.New("corrupt calendar snapshot")
)
