package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/appointment-desk/internal/persistence"
)

var (
	_ persistence.AppointmentRepository      = (*Storage)(nil)
	_ persistence.AvailabilityRuleRepository = (*Storage)(nil)
)

func TestStorage_Appointments(t *testing.T) {
	ctx := context.Background()
	storage := New()

	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	name := "Hanako"
	for i, id := range []string{"a", "b", "c"} {
		err := storage.CreateAppointment(ctx, persistence.Appointment{
			ID:            id,
			UserID:        "user-1",
			UserName:      &name,
			Date:          "2024-06-10",
			RequestedTime: "10:00",
			ImageIDs:      []string{"img-" + id},
			Status:        "pending",
			Revision:      1,
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("CreateAppointment(%s) failed: %v", id, err)
		}
	}

	if err := storage.CreateAppointment(ctx, persistence.Appointment{ID: "a"}); !errors.Is(err, persistence.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	name = "changed"
	fetched, err := storage.GetAppointment(ctx, "a")
	if err != nil {
		t.Fatalf("GetAppointment failed: %v", err)
	}
	if *fetched.UserName != "Hanako" {
		t.Fatalf("expected stored copy to be isolated, got %q", *fetched.UserName)
	}
	fetched.ImageIDs[0] = "mutated"
	if again, _ := storage.GetAppointment(ctx, "a"); again.ImageIDs[0] != "img-a" {
		t.Fatalf("expected returned copy to be isolated, got %v", again.ImageIDs)
	}

	list, err := storage.ListAppointments(ctx, persistence.AppointmentFilter{Limit: 2})
	if err != nil {
		t.Fatalf("ListAppointments failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != "c" || list[1].ID != "b" {
		t.Fatalf("expected newest first, got %#v", list)
	}

	fetched.Status = "approved"
	updated, err := storage.UpdateAppointment(ctx, fetched, 1)
	if err != nil {
		t.Fatalf("UpdateAppointment failed: %v", err)
	}
	if updated.Revision != 2 {
		t.Fatalf("expected revision 2, got %d", updated.Revision)
	}
	if _, err := storage.UpdateAppointment(ctx, fetched, 1); !errors.Is(err, persistence.ErrStaleRevision) {
		t.Fatalf("expected ErrStaleRevision, got %v", err)
	}

	count, err := storage.CountAppointments(ctx, persistence.AppointmentFilter{UserID: "user-1", Statuses: []string{"approved"}})
	if err != nil {
		t.Fatalf("CountAppointments failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 approved appointment, got %d", count)
	}

	if err := storage.DeleteAppointment(ctx, "a"); err != nil {
		t.Fatalf("DeleteAppointment failed: %v", err)
	}
	if err := storage.DeleteAppointment(ctx, "a"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStorage_Rules(t *testing.T) {
	ctx := context.Background()
	storage := New()

	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	if err := storage.CreateRule(ctx, persistence.AvailabilityRule{ID: "r2", Type: "weekday", Value: "0", CreatedAt: base.Add(time.Minute)}); err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}
	if err := storage.CreateRule(ctx, persistence.AvailabilityRule{ID: "r1", Type: "weekday", Value: "6", CreatedAt: base}); err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}

	err := storage.CreateRule(ctx, persistence.AvailabilityRule{ID: "r3", Type: "weekday", Value: "0"})
	if !errors.Is(err, persistence.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if err := storage.UpdateRule(ctx, persistence.AvailabilityRule{ID: "r1", Type: "weekday", Value: "0"}); !errors.Is(err, persistence.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate on update, got %v", err)
	}

	rules, err := storage.ListRules(ctx)
	if err != nil {
		t.Fatalf("ListRules failed: %v", err)
	}
	if len(rules) != 2 || rules[0].ID != "r1" {
		t.Fatalf("expected oldest first, got %#v", rules)
	}

	if err := storage.UpdateRule(ctx, persistence.AvailabilityRule{ID: "r1", Type: "weekday", Value: "6", Reason: "closed"}); err != nil {
		t.Fatalf("UpdateRule failed: %v", err)
	}
	rule, err := storage.GetRule(ctx, "r1")
	if err != nil {
		t.Fatalf("GetRule failed: %v", err)
	}
	if rule.Reason != "closed" || !rule.CreatedAt.Equal(base) {
		t.Fatalf("unexpected rule after update: %#v", rule)
	}

	if err := storage.DeleteRule(ctx, "missing"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
