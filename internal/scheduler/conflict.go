package scheduler

// Booking is a confirmed window held by an approved appointment.
type Booking struct {
	AppointmentID string
	Window        Window
}

// Conflict details an overlapping booking that callers can present to users.
type Conflict struct {
	WithAppointmentID string
	Window            Window
}

// DetectConflicts identifies bookings overlapping the candidate window. The
// candidate's own appointment is excluded so re-approval never conflicts with
// itself. Bookings whose window does not parse are skipped.
func DetectConflicts(existing []Booking, candidate Booking) []Conflict {
	start, end, err := candidate.Window.Bounds()
	if err != nil {
		return nil
	}

	var conflicts []Conflict
	for _, booking := range existing {
		if candidate.AppointmentID != "" && booking.AppointmentID == candidate.AppointmentID {
			continue
		}
		bStart, bEnd, err := booking.Window.Bounds()
		if err != nil {
			continue
		}
		if IntervalsOverlap(start, end, bStart, bEnd) {
			conflicts = append(conflicts, Conflict{WithAppointmentID: booking.AppointmentID, Window: booking.Window})
		}
	}
	return conflicts
}

// HasConflict reports whether the candidate overlaps any booking.
func HasConflict(existing []Booking, candidate Booking) bool {
	return len(DetectConflicts(existing, candidate)) > 0
}

// DetectInstantConflicts treats an HH:MM instant as [t, t+1) and reports the
// bookings with start <= t < end.
func DetectInstantConflicts(existing []Booking, at string) ([]Conflict, error) {
	minutes, err := TimeToMinutes(at)
	if err != nil {
		return nil, err
	}

	var conflicts []Conflict
	for _, booking := range existing {
		start, end, err := booking.Window.Bounds()
		if err != nil {
			continue
		}
		if IntervalsOverlap(minutes, minutes+1, start, end) {
			conflicts = append(conflicts, Conflict{WithAppointmentID: booking.AppointmentID, Window: booking.Window})
		}
	}
	return conflicts, nil
}
