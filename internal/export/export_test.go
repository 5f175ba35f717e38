package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/example/appointment-desk/internal/application"
	"github.com/xuri/excelize/v2"
)

func sampleAppointments() []application.Appointment {
	created := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	return []application.Appointment{
		{
			ID: "apt-2", UserName: "Taro", Date: "2024-06-11", RequestedTime: "10:00",
			ArrivalTime: "10:00", FinishedTime: "11:30", Status: application.StatusApproved,
			Description: "repair", CreatedAt: created, UpdatedAt: created,
		},
		{
			ID: "apt-1", UserName: "Hanako", UserEmail: "hanako@example.com", Date: "2024-06-10", RequestedTime: "14:00",
			ArrivalTime: "14:00", FinishedTime: "15:00", Status: application.StatusApproved,
			CreatedAt: created, UpdatedAt: created,
		},
		{ID: "apt-3", Date: "2024-06-10", RequestedTime: "09:00", Status: application.StatusPending, CreatedAt: created},
	}
}

func TestWriteCalendar(t *testing.T) {
	tokyo := time.FixedZone("Asia/Tokyo", 9*60*60)

	var buf bytes.Buffer
	err := WriteCalendar(&buf, sampleAppointments(), CalendarOptions{
		Name:     "Appointments",
		Location: tokyo,
		Detailed: true,
		Now:      time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("WriteCalendar failed: %v", err)
	}

	cal, err := ics.ParseCalendar(strings.NewReader(buf.String()))
	if err != nil {
		t.Fatalf("ParseCalendar failed: %v", err)
	}
	events := cal.Events()
	if len(events) != 2 {
		t.Fatalf("expected only approved appointments, got %d events", len(events))
	}
	if events[0].Id() != "apt-1" || events[1].Id() != "apt-2" {
		t.Fatalf("expected events ordered by date, got %s, %s", events[0].Id(), events[1].Id())
	}

	start, err := events[0].GetStartAt()
	if err != nil {
		t.Fatalf("GetStartAt failed: %v", err)
	}
	want := time.Date(2024, 6, 10, 14, 0, 0, 0, tokyo)
	if !start.Equal(want) {
		t.Fatalf("expected start %v, got %v", want, start)
	}
	end, err := events[1].GetEndAt()
	if err != nil {
		t.Fatalf("GetEndAt failed: %v", err)
	}
	if !end.Equal(time.Date(2024, 6, 11, 11, 30, 0, 0, tokyo)) {
		t.Fatalf("unexpected end %v", end)
	}

	if summary := events[0].GetProperty(ics.ComponentPropertySummary); summary == nil || summary.Value != "Hanako" {
		t.Fatalf("expected requester name as summary, got %#v", summary)
	}
}

func TestWriteCalendar_HidesDetails(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCalendar(&buf, sampleAppointments(), CalendarOptions{}); err != nil {
		t.Fatalf("WriteCalendar failed: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "Hanako") || strings.Contains(out, "repair") {
		t.Fatalf("expected requester details to be omitted:\n%s", out)
	}
	if !strings.Contains(out, "SUMMARY:Appointment") {
		t.Fatalf("expected generic summary:\n%s", out)
	}
}

func TestWriteWorkbook(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteWorkbook(&buf, "2024-06", sampleAppointments()); err != nil {
		t.Fatalf("WriteWorkbook failed: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader failed: %v", err)
	}
	defer f.Close()

	if sheets := f.GetSheetList(); len(sheets) != 1 || sheets[0] != SheetName {
		t.Fatalf("unexpected sheets %v", sheets)
	}

	rows, err := f.GetRows(SheetName)
	if err != nil {
		t.Fatalf("GetRows failed: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("expected title, header and 3 rows, got %d", len(rows))
	}
	if rows[0][0] != "2024-06" || rows[1][0] != "日付" {
		t.Fatalf("unexpected title or header: %v %v", rows[0], rows[1])
	}
	if rows[2][1] != "09:00" || rows[2][4] != "承認待ち" {
		t.Fatalf("expected earliest pending request first, got %v", rows[2])
	}
	if rows[3][5] != "Hanako" || rows[3][4] != "承認済み" {
		t.Fatalf("unexpected second row %v", rows[3])
	}
	if rows[4][0] != "2024-06-11" {
		t.Fatalf("unexpected last row %v", rows[4])
	}
}
