package persistence

import "time"

// Appointment is the stored record of a requested visit.
type Appointment struct {
	ID            string
	UserID        string
	UserName      *string
	UserEmail     string
	Date          string
	RequestedTime string
	ArrivalTime   *string
	FinishedTime  *string
	Description   string
	ImageIDs      []string
	Status        string
	Revision      int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// StatusApproved is the stored status of an approved appointment.
const StatusApproved = "approved"

// AvailabilityRule is the stored record of a closure or operating-hours rule.
type AvailabilityRule struct {
	ID        string
	Type      string
	Value     string
	Reason    string
	StartTime *string
	EndTime   *string
	IsClosed  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
