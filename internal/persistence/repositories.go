package persistence

import "context"

// AppointmentFilter narrows appointment queries. Zero values do not constrain.
// DateFrom is inclusive and DateTo exclusive.
type AppointmentFilter struct {
	UserID   string
	Date     string
	DateFrom string
	DateTo   string
	Statuses []string
	Limit    int
}

// AppointmentRepository stores appointments. Listings are ordered by creation time, newest first.
type AppointmentRepository interface {
	CreateAppointment(ctx context.Context, appointment Appointment) error
	GetAppointment(ctx context.Context, id string) (Appointment, error)
	// UpdateAppointment writes the record when the stored revision equals expectedRevision and
	// bumps it, otherwise it returns ErrStaleRevision.
	UpdateAppointment(ctx context.Context, appointment Appointment, expectedRevision int) (Appointment, error)
	// ApproveAppointment is UpdateAppointment for an approved record with a window. It fails with
	// *WindowConflictError when another approved appointment on the date overlaps the window.
	// The check and the write are atomic.
	ApproveAppointment(ctx context.Context, appointment Appointment, expectedRevision int) (Appointment, error)
	DeleteAppointment(ctx context.Context, id string) error
	ListAppointments(ctx context.Context, filter AppointmentFilter) ([]Appointment, error)
	CountAppointments(ctx context.Context, filter AppointmentFilter) (int, error)
}

// AvailabilityRuleRepository stores availability rules. A (type, value) pair is unique.
type AvailabilityRuleRepository interface {
	CreateRule(ctx context.Context, rule AvailabilityRule) error
	GetRule(ctx context.Context, id string) (AvailabilityRule, error)
	UpdateRule(ctx context.Context, rule AvailabilityRule) error
	DeleteRule(ctx context.Context, id string) error
	ListRules(ctx context.Context) ([]AvailabilityRule, error)
}
