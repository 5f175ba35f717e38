package persistence

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a uniqueness constraint rejects the write.
	ErrDuplicate = errors.New("persistence: duplicate")
	// ErrConstraintViolation is returned when a check constraint rejects the write.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
	// ErrStaleRevision is returned when an update was issued against an outdated revision.
	ErrStaleRevision = errors.New("persistence: stale revision")
)

// WindowConflictError is returned by ApproveAppointment when the approved window overlaps
// another approved appointment on the same date.
type WindowConflictError struct {
	AppointmentID string
	ArrivalTime   string
	FinishedTime  string
}

func (e *WindowConflictError) Error() string {
	return fmt.Sprintf("persistence: window overlaps approved appointment %s (%s-%s)", e.AppointmentID, e.ArrivalTime, e.FinishedTime)
}
