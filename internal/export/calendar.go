// Package export renders appointments as an iCalendar feed and an XLSX report.
package export

import (
	"fmt"
	"io"
	"sort"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/example/appointment-desk/internal/application"
	"github.com/example/appointment-desk/internal/scheduler"
)

const productID = "-//appointment-desk//calendar//JA"

// CalendarOptions controls how events are rendered.
type CalendarOptions struct {
	Name     string
	Location *time.Location
	// Detailed includes requester names and descriptions.
	Detailed bool
	Now      time.Time
}

// WriteCalendar writes approved appointments with a confirmed window as VEVENTs.
// Other appointments are skipped.
func WriteCalendar(w io.Writer, appointments []application.Appointment, opts CalendarOptions) error {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(productID)
	if opts.Name != "" {
		cal.SetXWRCalName(opts.Name)
	}
	cal.SetXWRTimezone(loc.String())

	approved := make([]application.Appointment, 0, len(appointments))
	for _, appointment := range appointments {
		if appointment.Status == application.StatusApproved && !appointment.Window().IsZero() {
			approved = append(approved, appointment)
		}
	}
	sort.Slice(approved, func(i, j int) bool {
		if approved[i].Date != approved[j].Date {
			return approved[i].Date < approved[j].Date
		}
		return approved[i].ArrivalTime < approved[j].ArrivalTime
	})

	for _, appointment := range approved {
		start, end, err := windowTimes(appointment, loc)
		if err != nil {
			return err
		}

		event := cal.AddEvent(appointment.ID)
		event.SetDtStampTime(now)
		if !appointment.CreatedAt.IsZero() {
			event.SetCreatedTime(appointment.CreatedAt)
		}
		if !appointment.UpdatedAt.IsZero() {
			event.SetModifiedAt(appointment.UpdatedAt)
		}
		event.SetStartAt(start)
		event.SetEndAt(end)
		event.SetSummary(summary(appointment, opts.Detailed))
		if opts.Detailed && appointment.Description != "" {
			event.SetDescription(appointment.Description)
		}
	}

	return cal.SerializeTo(w)
}

func summary(appointment application.Appointment, detailed bool) string {
	if detailed && appointment.UserName != "" {
		return appointment.UserName
	}
	return "Appointment"
}

func windowTimes(appointment application.Appointment, loc *time.Location) (time.Time, time.Time, error) {
	day, err := scheduler.ParseDate(appointment.Date)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("export: appointment %s: %w", appointment.ID, err)
	}
	start, end, err := appointment.Window().Bounds()
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("export: appointment %s: %w", appointment.ID, err)
	}
	midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	return midnight.Add(time.Duration(start) * time.Minute), midnight.Add(time.Duration(end) * time.Minute), nil
}
