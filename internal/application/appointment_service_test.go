package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/example/appointment-desk/internal/locking"
	"github.com/example/appointment-desk/internal/persistence"
	"github.com/example/appointment-desk/internal/scheduler"
	"github.com/example/appointment-desk/internal/testfixtures"
)

var (
	requester = Principal{UserID: "user-1"}
	stranger  = Principal{UserID: "user-2"}
	admin     = Principal{UserID: "admin-1", IsAdmin: true}
)

func newTestAppointmentService(repo *appointmentRepoStub, resolver AvailabilityResolver, opts ...AppointmentOption) *AppointmentService {
	clock := testfixtures.Ticking(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC), time.Second)
	return NewAppointmentService(repo, resolver, testfixtures.Sequence("apt"), clock.Now, opts...)
}

func validInput(date string) AppointmentInput {
	return AppointmentInput{
		UserName:      "Hanako",
		UserEmail:     "hanako@example.com",
		Date:          date,
		RequestedTime: "14:00",
		Description:   "Consultation",
	}
}

func approvedAppointment(id, userID, date, arrival, finished string) Appointment {
	return Appointment{
		ID:            id,
		UserID:        userID,
		UserEmail:     userID + "@example.com",
		Date:          date,
		RequestedTime: arrival,
		ArrivalTime:   arrival,
		FinishedTime:  finished,
		Description:   "seeded",
		Status:        StatusApproved,
		Revision:      2,
	}
}

func pendingAppointment(id, userID, date string) Appointment {
	return Appointment{
		ID:            id,
		UserID:        userID,
		UserEmail:     userID + "@example.com",
		Date:          date,
		RequestedTime: "14:00",
		Description:   "seeded",
		Status:        StatusPending,
		Revision:      1,
	}
}

func TestAppointmentService_CreateAppointment(t *testing.T) {
	ctx := context.Background()

	t.Run("third active request succeeds and fourth exceeds the quota", func(t *testing.T) {
		repo := newAppointmentRepoStub()
		svc := newTestAppointmentService(repo, nil)

		for i := 0; i < 3; i++ {
			if _, _, err := svc.CreateAppointment(ctx, CreateAppointmentParams{Principal: requester, Input: validInput("2024-06-10")}); err != nil {
				t.Fatalf("request %d failed: %v", i+1, err)
			}
		}

		_, _, err := svc.CreateAppointment(ctx, CreateAppointmentParams{Principal: requester, Input: validInput("2024-06-10")})
		if !errors.Is(err, ErrQuotaExceeded) {
			t.Fatalf("expected ErrQuotaExceeded, got %v", err)
		}
		if ErrorKind(err) != "quota_exceeded" {
			t.Fatalf("expected quota_exceeded kind, got %s", ErrorKind(err))
		}
	})

	t.Run("rejected requests do not count against the quota", func(t *testing.T) {
		seed := []Appointment{
			approvedAppointment("a", "user-1", "2024-06-10", "09:00", "10:00"),
			pendingAppointment("b", "user-1", "2024-06-11"),
			{ID: "c", UserID: "user-1", Date: "2024-06-12", Status: StatusRejected},
		}
		svc := newTestAppointmentService(newAppointmentRepoStub(seed...), nil)

		if _, _, err := svc.CreateAppointment(ctx, CreateAppointmentParams{Principal: requester, Input: validInput("2024-06-13")}); err != nil {
			t.Fatalf("expected third active request to succeed, got %v", err)
		}
	})

	t.Run("administrators are exempt from the quota", func(t *testing.T) {
		seed := []Appointment{
			pendingAppointment("a", "admin-1", "2024-06-10"),
			pendingAppointment("b", "admin-1", "2024-06-11"),
			pendingAppointment("c", "admin-1", "2024-06-12"),
		}
		svc := newTestAppointmentService(newAppointmentRepoStub(seed...), nil)

		if _, _, err := svc.CreateAppointment(ctx, CreateAppointmentParams{Principal: admin, Input: validInput("2024-06-13")}); err != nil {
			t.Fatalf("expected admin request to bypass quota, got %v", err)
		}
	})

	t.Run("quota is checked before availability", func(t *testing.T) {
		seed := []Appointment{
			pendingAppointment("a", "user-1", "2024-06-10"),
			pendingAppointment("b", "user-1", "2024-06-11"),
			pendingAppointment("c", "user-1", "2024-06-12"),
		}
		resolver := &resolverStub{resolution: scheduler.Resolution{State: scheduler.StateClosed}}
		svc := newTestAppointmentService(newAppointmentRepoStub(seed...), resolver)

		_, _, err := svc.CreateAppointment(ctx, CreateAppointmentParams{Principal: requester, Input: validInput("2024-12-25")})
		if !errors.Is(err, ErrQuotaExceeded) {
			t.Fatalf("expected ErrQuotaExceeded, got %v", err)
		}
		if resolver.calls != 0 {
			t.Fatalf("expected resolver not to be consulted, got %d calls", resolver.calls)
		}
	})

	t.Run("closed date is rejected", func(t *testing.T) {
		repo := newAppointmentRepoStub()
		resolver := &resolverStub{resolution: scheduler.Resolution{State: scheduler.StateClosed, RuleID: "xmas"}}
		svc := newTestAppointmentService(repo, resolver)

		_, _, err := svc.CreateAppointment(ctx, CreateAppointmentParams{Principal: requester, Input: validInput("2024-12-25")})
		if !errors.Is(err, ErrDateClosed) {
			t.Fatalf("expected ErrDateClosed, got %v", err)
		}
		if len(repo.items) != 0 {
			t.Fatalf("expected nothing to be persisted")
		}
	})

	t.Run("validates required fields", func(t *testing.T) {
		svc := newTestAppointmentService(newAppointmentRepoStub(), nil)

		_, _, err := svc.CreateAppointment(ctx, CreateAppointmentParams{
			Principal: requester,
			Input: AppointmentInput{
				UserEmail:     "not-an-email",
				Date:          "2024/06/10",
				RequestedTime: "25:00",
				Description:   "   ",
			},
		})

		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		for _, field := range []string{"user_email", "date", "requested_time", "description"} {
			if _, ok := vErr.FieldErrors[field]; !ok {
				t.Fatalf("expected %s validation error, got %v", field, vErr.FieldErrors)
			}
		}
	})

	t.Run("persists a pending request without a window", func(t *testing.T) {
		repo := newAppointmentRepoStub()
		svc := newTestAppointmentService(repo, nil)

		input := validInput("2024-06-10")
		input.RequestedTime = "9:30"
		appointment, warnings, err := svc.CreateAppointment(ctx, CreateAppointmentParams{Principal: requester, Input: input})
		if err != nil {
			t.Fatalf("CreateAppointment failed: %v", err)
		}
		if len(warnings) != 0 {
			t.Fatalf("expected no warnings, got %v", warnings)
		}
		if appointment.Status != StatusPending || appointment.ArrivalTime != "" || appointment.FinishedTime != "" {
			t.Fatalf("expected pending appointment without window, got %+v", appointment)
		}
		if appointment.RequestedTime != "09:30" || appointment.UserID != "user-1" || appointment.ID != "apt-1" {
			t.Fatalf("unexpected appointment %+v", appointment)
		}
	})

	t.Run("image failures degrade to warnings", func(t *testing.T) {
		repo := newAppointmentRepoStub()
		images := &imageStoreStub{failNames: map[string]bool{"broken.png": true}}
		svc := newTestAppointmentService(repo, nil, WithImageStore(images))

		appointment, warnings, err := svc.CreateAppointment(ctx, CreateAppointmentParams{
			Principal: requester,
			Input:     validInput("2024-06-10"),
			Images: []ImageUpload{
				{Name: "front.png", Data: []byte("a")},
				{Name: "broken.png", Data: []byte("b")},
				{Name: "unreadable.png", Err: errors.New("unexpected EOF")},
			},
		})
		if err != nil {
			t.Fatalf("expected creation to succeed, got %v", err)
		}
		if len(appointment.ImageIDs) != 1 || appointment.ImageIDs[0] != "img-front.png" {
			t.Fatalf("expected only the stored image, got %v", appointment.ImageIDs)
		}
		if len(warnings) != 2 || warnings[0].Detail != "broken.png" || warnings[1].Detail != "unreadable.png" {
			t.Fatalf("expected image warnings, got %+v", warnings)
		}
		for _, warning := range warnings {
			if warning.Code != WarningImageUploadFailed {
				t.Fatalf("unexpected warning code %q", warning.Code)
			}
		}
		if len(images.saved) != 1 {
			t.Fatalf("unreadable parts must not reach the store, got %d saves", len(images.saved))
		}
	})

	t.Run("warns about booked and out of hours requested times", func(t *testing.T) {
		repo := newAppointmentRepoStub(approvedAppointment("booked", "user-9", "2024-06-10", "18:00", "19:00"))
		resolver := &resolverStub{resolution: scheduler.Resolution{
			State:  scheduler.StateOpen,
			Window: scheduler.Window{Start: "09:00", End: "18:00"},
		}}
		svc := newTestAppointmentService(repo, resolver)

		input := validInput("2024-06-10")
		input.RequestedTime = "18:30"
		_, warnings, err := svc.CreateAppointment(ctx, CreateAppointmentParams{Principal: requester, Input: input})
		if err != nil {
			t.Fatalf("CreateAppointment failed: %v", err)
		}

		codes := map[WarningCode]string{}
		for _, warning := range warnings {
			codes[warning.Code] = warning.Detail
		}
		if codes[WarningOutsideOperatingHours] != "09:00-18:00" {
			t.Fatalf("expected outside hours warning, got %+v", warnings)
		}
		if codes[WarningRequestedTimeConflict] != "18:00-19:00" {
			t.Fatalf("expected conflict warning, got %+v", warnings)
		}
	})
}

func TestAppointmentService_SetAppointmentStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects overlapping approval naming the conflicting window", func(t *testing.T) {
		repo := newAppointmentRepoStub(
			approvedAppointment("existing", "user-9", "2024-06-10", "14:30", "15:30"),
			pendingAppointment("candidate", "user-1", "2024-06-10"),
		)
		svc := newTestAppointmentService(repo, nil)

		_, err := svc.SetAppointmentStatus(ctx, SetAppointmentStatusParams{
			Principal:     admin,
			AppointmentID: "candidate",
			Status:        StatusApproved,
			ArrivalTime:   "14:00",
			FinishedTime:  "15:00",
		})

		var conflict *TimeConflictError
		if !errors.As(err, &conflict) {
			t.Fatalf("expected TimeConflictError, got %v", err)
		}
		if conflict.Window.String() != "14:30-15:30" || conflict.AppointmentID != "existing" {
			t.Fatalf("unexpected conflict %+v", conflict)
		}
		if got := repo.get("candidate"); got.Status != StatusPending {
			t.Fatalf("expected candidate to stay pending, got %s", got.Status)
		}
	})

	t.Run("approves an adjacent window and notifies the requester", func(t *testing.T) {
		repo := newAppointmentRepoStub(
			approvedAppointment("existing", "user-9", "2024-06-10", "15:00", "16:00"),
			pendingAppointment("candidate", "user-1", "2024-06-10"),
		)
		notifier := &notifierStub{}
		svc := newTestAppointmentService(repo, nil, WithNotifier(notifier))

		appointment, err := svc.SetAppointmentStatus(ctx, SetAppointmentStatusParams{
			Principal:     admin,
			AppointmentID: "candidate",
			Status:        StatusApproved,
			ArrivalTime:   "14:00",
			FinishedTime:  "15:00",
		})
		if err != nil {
			t.Fatalf("SetAppointmentStatus failed: %v", err)
		}
		if appointment.Status != StatusApproved || appointment.ArrivalTime != "14:00" || appointment.FinishedTime != "15:00" {
			t.Fatalf("unexpected approved appointment %+v", appointment)
		}
		if appointment.Revision != 2 {
			t.Fatalf("expected revision to be bumped, got %d", appointment.Revision)
		}
		if len(notifier.notified) != 1 || notifier.notified[0].ID != "candidate" {
			t.Fatalf("expected requester notification, got %+v", notifier.notified)
		}
	})

	t.Run("notification failures do not fail the transition", func(t *testing.T) {
		repo := newAppointmentRepoStub(pendingAppointment("candidate", "user-1", "2024-06-10"))
		svc := newTestAppointmentService(repo, nil, WithNotifier(&notifierStub{err: errors.New("smtp down")}))

		if _, err := svc.SetAppointmentStatus(ctx, SetAppointmentStatusParams{
			Principal:     admin,
			AppointmentID: "candidate",
			Status:        StatusRejected,
		}); err != nil {
			t.Fatalf("expected rejection to succeed, got %v", err)
		}
	})

	t.Run("arrival at or after finish is a validation failure", func(t *testing.T) {
		repo := newAppointmentRepoStub(pendingAppointment("candidate", "user-1", "2024-06-10"))
		svc := newTestAppointmentService(repo, nil)

		for _, window := range [][2]string{{"15:00", "15:00"}, {"16:00", "15:00"}} {
			_, err := svc.SetAppointmentStatus(ctx, SetAppointmentStatusParams{
				Principal:     admin,
				AppointmentID: "candidate",
				Status:        StatusApproved,
				ArrivalTime:   window[0],
				FinishedTime:  window[1],
			})
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError for %v, got %v", window, err)
			}
		}
	})

	t.Run("approval requires both times", func(t *testing.T) {
		repo := newAppointmentRepoStub(pendingAppointment("candidate", "user-1", "2024-06-10"))
		svc := newTestAppointmentService(repo, nil)

		_, err := svc.SetAppointmentStatus(ctx, SetAppointmentStatusParams{
			Principal:     admin,
			AppointmentID: "candidate",
			Status:        StatusApproved,
			ArrivalTime:   "14:00",
		})
		var vErr *ValidationError
		if !errors.As(err, &vErr) || vErr.FieldErrors["finished_time"] == "" {
			t.Fatalf("expected finished_time validation error, got %v", err)
		}
	})

	t.Run("only administrators decide", func(t *testing.T) {
		repo := newAppointmentRepoStub(pendingAppointment("candidate", "user-1", "2024-06-10"))
		svc := newTestAppointmentService(repo, nil)

		_, err := svc.SetAppointmentStatus(ctx, SetAppointmentStatusParams{
			Principal:     requester,
			AppointmentID: "candidate",
			Status:        StatusRejected,
		})
		if !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("unknown appointment is not found", func(t *testing.T) {
		svc := newTestAppointmentService(newAppointmentRepoStub(), nil)

		_, err := svc.SetAppointmentStatus(ctx, SetAppointmentStatusParams{
			Principal:     admin,
			AppointmentID: "missing",
			Status:        StatusRejected,
		})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("terminal states cannot return to approval", func(t *testing.T) {
		rejected := pendingAppointment("done", "user-1", "2024-06-10")
		rejected.Status = StatusRejected
		repo := newAppointmentRepoStub(rejected, approvedAppointment("ok", "user-1", "2024-06-11", "10:00", "11:00"))
		svc := newTestAppointmentService(repo, nil)

		_, err := svc.SetAppointmentStatus(ctx, SetAppointmentStatusParams{
			Principal:     admin,
			AppointmentID: "done",
			Status:        StatusApproved,
			ArrivalTime:   "10:00",
			FinishedTime:  "11:00",
		})
		var vErr *ValidationError
		if !errors.As(err, &vErr) || vErr.FieldErrors["status"] == "" {
			t.Fatalf("expected status validation error, got %v", err)
		}

		_, err = svc.SetAppointmentStatus(ctx, SetAppointmentStatusParams{
			Principal:     admin,
			AppointmentID: "ok",
			Status:        StatusRejected,
		})
		if !errors.As(err, &vErr) {
			t.Fatalf("expected approved to rejected to fail validation, got %v", err)
		}

		_, err = svc.SetAppointmentStatus(ctx, SetAppointmentStatusParams{
			Principal:     admin,
			AppointmentID: "ok",
			Status:        StatusPending,
		})
		if !errors.As(err, &vErr) {
			t.Fatalf("expected transition back to pending to fail validation, got %v", err)
		}
	})

	t.Run("re-approval excludes the appointment's own window", func(t *testing.T) {
		repo := newAppointmentRepoStub(approvedAppointment("ok", "user-1", "2024-06-11", "10:00", "11:00"))
		svc := newTestAppointmentService(repo, nil)

		appointment, err := svc.SetAppointmentStatus(ctx, SetAppointmentStatusParams{
			Principal:     admin,
			AppointmentID: "ok",
			Status:        StatusApproved,
			ArrivalTime:   "10:30",
			FinishedTime:  "11:30",
		})
		if err != nil {
			t.Fatalf("expected window edit to succeed, got %v", err)
		}
		if appointment.ArrivalTime != "10:30" || appointment.FinishedTime != "11:30" {
			t.Fatalf("expected new window, got %s", appointment.Window())
		}
	})

	t.Run("retries a stale revision then gives up", func(t *testing.T) {
		repo := newAppointmentRepoStub(pendingAppointment("candidate", "user-1", "2024-06-10"))
		repo.staleTimes = 1
		svc := newTestAppointmentService(repo, nil)

		if _, err := svc.SetAppointmentStatus(ctx, SetAppointmentStatusParams{
			Principal:     admin,
			AppointmentID: "candidate",
			Status:        StatusRejected,
		}); err != nil {
			t.Fatalf("expected retry to succeed, got %v", err)
		}

		repo = newAppointmentRepoStub(pendingAppointment("candidate", "user-1", "2024-06-10"))
		repo.staleTimes = approveAttempts
		svc = newTestAppointmentService(repo, nil)

		_, err := svc.SetAppointmentStatus(ctx, SetAppointmentStatusParams{
			Principal:     admin,
			AppointmentID: "candidate",
			Status:        StatusRejected,
		})
		if !errors.Is(err, ErrConcurrentUpdate) {
			t.Fatalf("expected ErrConcurrentUpdate, got %v", err)
		}
	})

	t.Run("concurrent approvals never both take overlapping windows", func(t *testing.T) {
		repo := newAppointmentRepoStub(
			pendingAppointment("first", "user-1", "2024-06-10"),
			pendingAppointment("second", "user-2", "2024-06-10"),
		)
		svc := newTestAppointmentService(repo, nil)

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			approved int
			conflict int
		)
		for _, id := range []string{"first", "second"} {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				_, err := svc.SetAppointmentStatus(ctx, SetAppointmentStatusParams{
					Principal:     admin,
					AppointmentID: id,
					Status:        StatusApproved,
					ArrivalTime:   "14:00",
					FinishedTime:  "15:00",
				})
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					approved++
				case errors.Is(err, ErrTimeConflict):
					conflict++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(id)
		}
		wg.Wait()

		if approved != 1 || conflict != 1 {
			t.Fatalf("expected one approval and one conflict, got %d and %d", approved, conflict)
		}
	})
}

func TestAppointmentService_DeleteAppointment(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name      string
		principal Principal
		wantErr   error
	}{
		{name: "stranger is forbidden", principal: stranger, wantErr: ErrForbidden},
		{name: "owner may delete", principal: requester},
		{name: "administrator may delete", principal: admin},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newAppointmentRepoStub(pendingAppointment("apt", "user-1", "2024-06-10"))
			svc := newTestAppointmentService(repo, nil)

			err := svc.DeleteAppointment(ctx, tc.principal, "apt")
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				if _, ok := repo.items["apt"]; !ok {
					t.Fatalf("expected appointment to remain")
				}
				return
			}
			if err != nil {
				t.Fatalf("DeleteAppointment failed: %v", err)
			}
			if _, ok := repo.items["apt"]; ok {
				t.Fatalf("expected appointment to be removed")
			}
		})
	}

	t.Run("unknown appointment is not found", func(t *testing.T) {
		svc := newTestAppointmentService(newAppointmentRepoStub(), nil)
		if err := svc.DeleteAppointment(ctx, admin, "missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestAppointmentService_ListAppointments(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	mine := pendingAppointment("mine", "user-1", "2024-06-10")
	mine.CreatedAt = base
	mine.ImageIDs = []string{"img-1"}
	theirs := approvedAppointment("theirs", "user-2", "2024-06-12", "10:00", "11:00")
	theirs.CreatedAt = base.Add(time.Hour)
	july := pendingAppointment("july", "user-2", "2024-07-01")
	july.CreatedAt = base.Add(2 * time.Hour)

	repo := newAppointmentRepoStub(mine, theirs, july)
	svc := newTestAppointmentService(repo, nil, WithImageStore(&imageStoreStub{}))

	t.Run("filters by month and orders newest first", func(t *testing.T) {
		views, err := svc.ListAppointments(ctx, ListAppointmentsParams{Principal: requester, Month: "2024-06"})
		if err != nil {
			t.Fatalf("ListAppointments failed: %v", err)
		}
		if len(views) != 2 || views[0].ID != "theirs" || views[1].ID != "mine" {
			t.Fatalf("unexpected listing %+v", views)
		}
	})

	t.Run("projects other requesters to schedule fields", func(t *testing.T) {
		views, err := svc.ListAppointments(ctx, ListAppointmentsParams{Principal: requester, Month: "2024-06"})
		if err != nil {
			t.Fatalf("ListAppointments failed: %v", err)
		}
		other, own := views[0], views[1]
		if !other.Restricted || other.Description != "" || other.UserEmail != "" || other.UserID != "" {
			t.Fatalf("expected restricted view, got %+v", other)
		}
		if other.ArrivalTime != "10:00" || other.FinishedTime != "11:00" || other.RequestedTime != "10:00" {
			t.Fatalf("expected schedule fields to stay visible, got %+v", other)
		}
		if own.Restricted || own.Description == "" || len(own.ImageURLs) != 1 {
			t.Fatalf("expected full view of own appointment, got %+v", own)
		}
	})

	t.Run("administrators see everything", func(t *testing.T) {
		views, err := svc.ListAppointments(ctx, ListAppointmentsParams{Principal: admin, Status: StatusPending})
		if err != nil {
			t.Fatalf("ListAppointments failed: %v", err)
		}
		if len(views) != 2 {
			t.Fatalf("expected two pending appointments, got %d", len(views))
		}
		for _, view := range views {
			if view.Restricted {
				t.Fatalf("expected unrestricted admin view, got %+v", view)
			}
		}
	})

	t.Run("rejects malformed filters", func(t *testing.T) {
		_, err := svc.ListAppointments(ctx, ListAppointmentsParams{Principal: admin, Month: "June", Status: "done"})
		var vErr *ValidationError
		if !errors.As(err, &vErr) || vErr.FieldErrors["month"] == "" || vErr.FieldErrors["status"] == "" {
			t.Fatalf("expected month and status validation errors, got %v", err)
		}
	})
}

func TestCanSeeFullDetails(t *testing.T) {
	t.Parallel()

	appointment := Appointment{UserID: "user-1"}
	if !CanSeeFullDetails(requester, appointment) {
		t.Fatalf("expected owner to see details")
	}
	if !CanSeeFullDetails(admin, appointment) {
		t.Fatalf("expected admin to see details")
	}
	if CanSeeFullDetails(stranger, appointment) {
		t.Fatalf("expected stranger to be restricted")
	}
	if CanSeeFullDetails(Principal{}, Appointment{}) {
		t.Fatalf("expected anonymous viewer to be restricted")
	}
}

func TestAppointmentService_DaySchedule(t *testing.T) {
	repo := newAppointmentRepoStub(
		approvedAppointment("booked", "user-9", "2024-06-10", "10:00", "11:00"),
		pendingAppointment("pending", "user-1", "2024-06-10"),
	)
	resolver := &resolverStub{resolution: scheduler.Resolution{
		State:  scheduler.StateOpen,
		Window: scheduler.Window{Start: "09:00", End: "12:00"},
	}}
	svc := newTestAppointmentService(repo, resolver)

	day, err := svc.DaySchedule(context.Background(), "2024-06-10")
	if err != nil {
		t.Fatalf("DaySchedule failed: %v", err)
	}
	if len(day.Slots) != 6 {
		t.Fatalf("expected six slots, got %d", len(day.Slots))
	}
	conflicted := 0
	for _, slot := range day.Slots {
		if slot.Conflict {
			conflicted++
		}
	}
	if conflicted != 2 {
		t.Fatalf("expected 10:00 and 10:30 to be taken, got %d", conflicted)
	}
	if len(day.Booked) != 1 || day.Booked[0].String() != "10:00-11:00" {
		t.Fatalf("expected the approved window only, got %v", day.Booked)
	}

	if _, err := svc.DaySchedule(context.Background(), "tomorrow"); ErrorKind(err) != "validation" {
		t.Fatalf("expected validation error for malformed date, got %v", err)
	}
}

func TestAppointmentService_ApprovalCommitter(t *testing.T) {
	ctx := context.Background()
	decision := SetAppointmentStatusParams{
		Principal:     admin,
		AppointmentID: "candidate",
		Status:        StatusApproved,
		ArrivalTime:   "14:00",
		FinishedTime:  "15:00",
	}
	newService := func(repo *committingRepoStub) *AppointmentService {
		return NewAppointmentService(repo, nil, testfixtures.Sequence("apt"), testfixtures.NewClock(time.Time{}).Now)
	}

	t.Run("approval is written through the committer", func(t *testing.T) {
		repo := &committingRepoStub{appointmentRepoStub: newAppointmentRepoStub(pendingAppointment("candidate", "user-1", "2024-06-10"))}

		appointment, err := newService(repo).SetAppointmentStatus(ctx, decision)
		if err != nil {
			t.Fatalf("SetAppointmentStatus failed: %v", err)
		}
		if repo.commits != 1 || appointment.Status != StatusApproved || appointment.ArrivalTime != "14:00" {
			t.Fatalf("expected one committed approval, got %d commits and %+v", repo.commits, appointment)
		}
	})

	t.Run("overlap found by the store is a time conflict", func(t *testing.T) {
		repo := &committingRepoStub{
			appointmentRepoStub: newAppointmentRepoStub(pendingAppointment("candidate", "user-1", "2024-06-10")),
			commitErr:           &persistence.WindowConflictError{AppointmentID: "elsewhere", ArrivalTime: "14:30", FinishedTime: "15:30"},
		}

		_, err := newService(repo).SetAppointmentStatus(ctx, decision)
		var conflict *TimeConflictError
		if !errors.As(err, &conflict) || conflict.AppointmentID != "elsewhere" || conflict.Window.String() != "14:30-15:30" {
			t.Fatalf("expected TimeConflictError from the store, got %v", err)
		}
		if ErrorKind(err) != "time_conflict" {
			t.Fatalf("expected time_conflict kind, got %s", ErrorKind(err))
		}
		if got := repo.get("candidate"); got.Status != StatusPending {
			t.Fatalf("expected candidate to stay pending, got %s", got.Status)
		}
	})

	t.Run("rejection does not use the committer", func(t *testing.T) {
		repo := &committingRepoStub{appointmentRepoStub: newAppointmentRepoStub(pendingAppointment("candidate", "user-1", "2024-06-10"))}

		if _, err := newService(repo).SetAppointmentStatus(ctx, SetAppointmentStatusParams{
			Principal:     admin,
			AppointmentID: "candidate",
			Status:        StatusRejected,
		}); err != nil {
			t.Fatalf("SetAppointmentStatus failed: %v", err)
		}
		if repo.commits != 0 {
			t.Fatalf("expected plain update for rejection, got %d commits", repo.commits)
		}
	})
}

func TestAppointmentService_StoreConstraintFailuresAreUnexpected(t *testing.T) {
	repo := newAppointmentRepoStub()
	repo.createErr = fmt.Errorf("%w: appointment id is required", persistence.ErrConstraintViolation)
	svc := newTestAppointmentService(repo, nil)

	_, _, err := svc.CreateAppointment(context.Background(), CreateAppointmentParams{
		Principal: requester,
		Input:     validInput("2024-06-10"),
	})
	if ErrorKind(err) != "unexpected" || !errors.Is(err, persistence.ErrConstraintViolation) {
		t.Fatalf("expected wrapped infrastructure error, got %v (kind %s)", err, ErrorKind(err))
	}
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		t.Fatalf("store failures must not surface as validation errors: %v", vErr)
	}
}

func TestAppointmentService_QuotaHoldsUnderConcurrentCreates(t *testing.T) {
	ctx := context.Background()
	repo := newAppointmentRepoStub()
	locker := &recordingLocker{inner: locking.NewLocalLocker()}
	svc := newTestAppointmentService(repo, nil, WithDateLocker(locker))

	const attempts = 12
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		created  int
		rejected int
	)
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := svc.CreateAppointment(ctx, CreateAppointmentParams{Principal: requester, Input: validInput("2024-06-10")})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, ErrQuotaExceeded):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if created != 3 || rejected != attempts-3 {
		t.Fatalf("expected 3 created and %d rejected, got %d and %d", attempts-3, created, rejected)
	}
	active, _ := repo.CountAppointments(ctx, AppointmentRepositoryFilter{UserID: requester.UserID})
	if active != 3 {
		t.Fatalf("expected 3 stored appointments, got %d", active)
	}

	keys := locker.recorded()
	if len(keys) != attempts {
		t.Fatalf("expected %d lock acquisitions, got %v", attempts, keys)
	}
	for _, key := range keys {
		if key != "appointments:quota:"+requester.UserID {
			t.Fatalf("expected the requester's quota lock, got %q", key)
		}
	}

	t.Run("administrators skip the quota lock", func(t *testing.T) {
		if _, _, err := svc.CreateAppointment(ctx, CreateAppointmentParams{Principal: admin, Input: validInput("2024-06-10")}); err != nil {
			t.Fatalf("CreateAppointment failed: %v", err)
		}
		if got := locker.recorded(); len(got) != attempts {
			t.Fatalf("expected no lock for an administrator, got %v", got[attempts:])
		}
	})
}
