package application

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/example/appointment-desk/internal/scheduler"
)

var (
	// ErrForbidden is returned when the acting principal lacks permission for an operation.
	ErrForbidden = errors.New("application: forbidden")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrQuotaExceeded is returned when a requester already holds the maximum number of active requests.
	ErrQuotaExceeded = errors.New("application: active request quota exceeded")
	// ErrDateClosed is returned when availability rules close the requested date.
	ErrDateClosed = errors.New("application: date closed")
	// ErrDuplicateRule is returned when a rule with the same type and value already exists.
	ErrDuplicateRule = errors.New("application: duplicate availability rule")
	// ErrTimeConflict is matched by every *TimeConflictError.
	ErrTimeConflict = errors.New("application: time conflict")
	// ErrConcurrentUpdate is returned when an appointment changed underneath a transition.
	ErrConcurrentUpdate = errors.New("application: concurrent update")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	if len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, ", ")
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

func fieldError(field, message string) *ValidationError {
	vErr := &ValidationError{}
	vErr.add(field, message)
	return vErr
}

// TimeConflictError reports the approved window a candidate window overlaps.
type TimeConflictError struct {
	AppointmentID string
	Window        scheduler.Window
}

func (e *TimeConflictError) Error() string {
	return fmt.Sprintf("application: time conflicts with approved appointment %s (%s)", e.AppointmentID, e.Window)
}

// Is lets errors.Is(err, ErrTimeConflict) match.
func (e *TimeConflictError) Is(target error) bool {
	return target == ErrTimeConflict
}
