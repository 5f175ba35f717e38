package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/appointment-desk/internal/persistence"
)

var (
	appointmentCounter uint64
	ruleCounter        uint64
)

var referenceTime = time.Date(2024, time.June, 3, 9, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
// It falls on a Monday.
func ReferenceTime() time.Time {
	return referenceTime
}

// ------------------------- Appointment fixtures -------------------------

// AppointmentFixture is a deterministic appointment record.
type AppointmentFixture struct {
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
	Status        string
	Revision      int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AppointmentOption configures the generated appointment fixture.
type AppointmentOption func(*AppointmentFixture)

// NewAppointmentFixture returns a pending appointment on the reference date.
// Each call yields a distinct ID and a creation time one minute after the previous one.
func NewAppointmentFixture(opts ...AppointmentOption) AppointmentFixture {
	idx := atomic.AddUint64(&appointmentCounter, 1)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	fixture := AppointmentFixture{
		ID:            fmt.Sprintf("apt-%03d", idx),
		UserID:        "user-001",
		UserName:      "Requester",
		UserEmail:     "requester@example.com",
		Date:          referenceTime.Format("2006-01-02"),
		RequestedTime: "10:00",
		Status:        "pending",
		Revision:      1,
		CreatedAt:     created,
		UpdatedAt:     created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithAppointmentID overrides the generated ID.
func WithAppointmentID(id string) AppointmentOption {
	return func(f *AppointmentFixture) {
		f.ID = id
	}
}

// WithAppointmentOwner sets the requesting user.
func WithAppointmentOwner(userID, email string) AppointmentOption {
	return func(f *AppointmentFixture) {
		f.UserID = userID
		f.UserEmail = email
	}
}

// WithAppointmentDate sets the date and requested time.
func WithAppointmentDate(date, requestedTime string) AppointmentOption {
	return func(f *AppointmentFixture) {
		f.Date = date
		f.RequestedTime = requestedTime
	}
}

// WithAppointmentWindow marks the appointment approved for the given window.
func WithAppointmentWindow(arrival, finished string) AppointmentOption {
	return func(f *AppointmentFixture) {
		f.Status = "approved"
		f.ArrivalTime = arrival
		f.FinishedTime = finished
	}
}

// WithAppointmentStatus overrides the status.
func WithAppointmentStatus(status string) AppointmentOption {
	return func(f *AppointmentFixture) {
		f.Status = status
	}
}

// WithAppointmentImages attaches stored image IDs.
func WithAppointmentImages(ids ...string) AppointmentOption {
	return func(f *AppointmentFixture) {
		f.ImageIDs = append([]string(nil), ids...)
	}
}

// WithAppointmentCreatedAt sets both timestamps.
func WithAppointmentCreatedAt(t time.Time) AppointmentOption {
	return func(f *AppointmentFixture) {
		f.CreatedAt = t
		f.UpdatedAt = t
	}
}

// Persistence converts the fixture into a persistence record.
func (f AppointmentFixture) Persistence() persistence.Appointment {
	return persistence.Appointment{
		ID:            f.ID,
		UserID:        f.UserID,
		UserName:      optional(f.UserName),
		UserEmail:     f.UserEmail,
		Date:          f.Date,
		RequestedTime: f.RequestedTime,
		ArrivalTime:   optional(f.ArrivalTime),
		FinishedTime:  optional(f.FinishedTime),
		Description:   f.Description,
		ImageIDs:      append([]string(nil), f.ImageIDs...),
		Status:        f.Status,
		Revision:      f.Revision,
		CreatedAt:     f.CreatedAt,
		UpdatedAt:     f.UpdatedAt,
	}
}

// ---------------------------- Rule fixtures -----------------------------

// RuleFixture is a deterministic availability rule record.
type RuleFixture struct {
	ID        string
	Type      string
	Value     string
	Reason    string
	StartTime string
	EndTime   string
	IsClosed  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RuleOption configures the generated rule fixture.
type RuleOption func(*RuleFixture)

// NewRuleFixture returns a closure of Sundays unless overridden.
func NewRuleFixture(opts ...RuleOption) RuleFixture {
	idx := atomic.AddUint64(&ruleCounter, 1)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	fixture := RuleFixture{
		ID:        fmt.Sprintf("rule-%03d", idx),
		Type:      "weekday",
		Value:     "0",
		IsClosed:  true,
		CreatedAt: created,
		UpdatedAt: created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithRuleID overrides the generated ID.
func WithRuleID(id string) RuleOption {
	return func(f *RuleFixture) {
		f.ID = id
	}
}

// WithRuleKind sets the rule type and value.
func WithRuleKind(ruleType, value string) RuleOption {
	return func(f *RuleFixture) {
		f.Type = ruleType
		f.Value = value
	}
}

// WithRuleHours turns the rule into an open window.
func WithRuleHours(start, end string) RuleOption {
	return func(f *RuleFixture) {
		f.IsClosed = false
		f.StartTime = start
		f.EndTime = end
	}
}

// WithRuleReason sets the reason text.
func WithRuleReason(reason string) RuleOption {
	return func(f *RuleFixture) {
		f.Reason = reason
	}
}

// WithRuleCreatedAt sets both timestamps.
func WithRuleCreatedAt(t time.Time) RuleOption {
	return func(f *RuleFixture) {
		f.CreatedAt = t
		f.UpdatedAt = t
	}
}

// Persistence converts the fixture into a persistence record.
func (f RuleFixture) Persistence() persistence.AvailabilityRule {
	return persistence.AvailabilityRule{
		ID:        f.ID,
		Type:      f.Type,
		Value:     f.Value,
		Reason:    f.Reason,
		StartTime: optional(f.StartTime),
		EndTime:   optional(f.EndTime),
		IsClosed:  f.IsClosed,
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
