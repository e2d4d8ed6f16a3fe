package domain

import "errors"

// Generic sentinel errors.
var (
	ErrNotFound         = errors.New("not found")
	ErrForbidden        = errors.New("forbidden")
	ErrInvalidInput     = errors.New("invalid input")
	ErrSubgroupNotFound = errors.New("subgroup not found for event")
)

// Enrollment taxonomy. Each maps to a distinct, stable API error code.
var (
	ErrEventNotFound       = errors.New("event not found")
	ErrEventNotActive      = errors.New("event is not active")
	ErrDeadlinePassed      = errors.New("deadline passed")
	ErrAlreadyEnrolled     = errors.New("user already enrolled in this event")
	ErrCapacityExhausted   = errors.New("no capacity available, including waitlist")
	ErrNotEnrolled         = errors.New("user is not enrolled in this event")
	ErrInvalidCapacityEdit = errors.New("capacity edit would violate current occupancy")
	ErrTransactionConflict = errors.New("transaction conflict, retry later")
)
