package application

import (
	"time"

	"github.com/example/appointment-desk/internal/scheduler"
)

// Principal represents the authenticated user invoking a service method.
type Principal struct {
	UserID  string
	IsAdmin bool
}

// AppointmentStatus is the lifecycle state of an appointment.
type AppointmentStatus string

const (
	StatusPending  AppointmentStatus = "pending"
	StatusApproved AppointmentStatus = "approved"
	StatusRejected AppointmentStatus = "rejected"
)

// Valid reports whether s is a known status.
func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Active reports whether the status counts against the requester's quota.
func (s AppointmentStatus) Active() bool {
	return s == StatusPending || s == StatusApproved
}

// Appointment is a requested visit. ArrivalTime and FinishedTime are empty until approval.
type Appointment struct {
	ID            string
	UserID        string
	UserName      string
	UserEmail     string
	Date          string
	RequestedTime string
	ArrivalTime   string
	FinishedTime  string
	Description   string
	ImageIDs      []string
	Status        AppointmentStatus
	Revision      int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Window returns the confirmed window [ArrivalTime, FinishedTime).
func (a Appointment) Window() scheduler.Window {
	return scheduler.Window{Start: a.ArrivalTime, End: a.FinishedTime}
}

// AppointmentView is the read model returned to callers. Restricted views carry only
// schedule fields.
type AppointmentView struct {
	Appointment
	ImageURLs  []string
	Restricted bool
}

// AppointmentInput captures caller provided appointment fields.
type AppointmentInput struct {
	UserName      string
	UserEmail     string
	Date          string
	RequestedTime string
	Description   string
}

// ImageUpload is a reference image submitted with a request.
type ImageUpload struct {
	Name        string
	ContentType string
	Data        []byte
	// Err is set when the transport could not read the part.
	Err error
}

// CreateAppointmentParams wraps the data required to request an appointment.
type CreateAppointmentParams struct {
	Principal Principal
	Input     AppointmentInput
	Images    []ImageUpload
}

// SetAppointmentStatusParams wraps an administrator decision on an appointment.
type SetAppointmentStatusParams struct {
	Principal     Principal
	AppointmentID string
	Status        AppointmentStatus
	ArrivalTime   string
	FinishedTime  string
}

// ListAppointmentsParams filters appointment listings. Month is YYYY-MM.
type ListAppointmentsParams struct {
	Principal Principal
	Month     string
	Status    AppointmentStatus
	Date      string
	UserID    string
}

// WarningCode classifies advisory issues that do not block a request.
type WarningCode string

const (
	WarningRequestedTimeConflict WarningCode = "requested_time_conflict"
	WarningOutsideOperatingHours WarningCode = "outside_operating_hours"
	WarningImageUploadFailed     WarningCode = "image_upload_failed"
)

// Warning is an advisory issue surfaced alongside a successful create.
type Warning struct {
	Code   WarningCode
	Detail string
}

// DaySchedule is the booking view of a single date.
type DaySchedule struct {
	Date       string
	Resolution scheduler.Resolution
	Slots      []scheduler.Slot
	Booked     []scheduler.Window
}

// AvailabilityRule is a closure or operating-hours rule.
type AvailabilityRule struct {
	ID        string
	Type      scheduler.RuleType
	Value     string
	Reason    string
	StartTime string
	EndTime   string
	IsClosed  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r AvailabilityRule) schedulerRule() scheduler.Rule {
	return scheduler.Rule{
		ID:        r.ID,
		Type:      r.Type,
		Value:     r.Value,
		StartTime: r.StartTime,
		EndTime:   r.EndTime,
		IsClosed:  r.IsClosed,
	}
}

// RuleInput captures caller provided rule fields.
type RuleInput struct {
	Type      scheduler.RuleType
	Value     string
	Reason    string
	StartTime string
	EndTime   string
	IsClosed  bool
}

// RulePatch lists the mutable rule fields. Nil fields are left unchanged.
type RulePatch struct {
	Reason    *string
	StartTime *string
	EndTime   *string
	IsClosed  *bool
}

// CreateRuleParams wraps the data required to create an availability rule.
type CreateRuleParams struct {
	Principal Principal
	Input     RuleInput
}

// UpdateRuleParams wraps the data required to patch an availability rule.
type UpdateRuleParams struct {
	Principal Principal
	RuleID    string
	Patch     RulePatch
}
