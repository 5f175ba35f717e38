package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"sort"
	"strings"
	"time"

	"github.com/example/appointment-desk/internal/locking"
	"github.com/example/appointment-desk/internal/persistence"
	"github.com/example/appointment-desk/internal/scheduler"
)

// listLimit caps a single listing.
const listLimit = 500

// approveAttempts bounds the optimistic retries of a status transition.
const approveAttempts = 3

// AppointmentRepository captures the persistence interactions needed by the service.
type AppointmentRepository interface {
	CreateAppointment(ctx context.Context, appointment Appointment) (Appointment, error)
	GetAppointment(ctx context.Context, id string) (Appointment, error)
	UpdateAppointment(ctx context.Context, appointment Appointment, expectedRevision int) (Appointment, error)
	DeleteAppointment(ctx context.Context, id string) error
	ListAppointments(ctx context.Context, filter AppointmentRepositoryFilter) ([]Appointment, error)
	CountAppointments(ctx context.Context, filter AppointmentRepositoryFilter) (int, error)
}

// ApprovalCommitter is implemented by repositories that can re-check the approved windows
// of the date and write an approval atomically, which also holds for other processes
// sharing the store.
type ApprovalCommitter interface {
	ApproveAppointment(ctx context.Context, appointment Appointment, expectedRevision int) (Appointment, error)
}

// AppointmentRepositoryFilter narrows queries issued to the appointment repository.
type AppointmentRepositoryFilter struct {
	UserID   string
	Date     string
	DateFrom string
	DateTo   string
	Statuses []AppointmentStatus
	Limit    int
}

// AvailabilityResolver resolves a date against the current availability rules.
type AvailabilityResolver interface {
	Resolve(ctx context.Context, date string) (scheduler.Resolution, error)
}

// ImageStore persists reference images and resolves their URLs.
type ImageStore interface {
	SaveImage(ctx context.Context, upload ImageUpload) (string, error)
	ImageURL(ctx context.Context, id string) (string, error)
}

// DateLocker serializes approvals that touch the same date and the quota check and
// insert of one requester.
type DateLocker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Notifier informs a requester about a decision on their appointment.
type Notifier interface {
	NotifyDecision(ctx context.Context, appointment Appointment) error
}

// Policy holds the admission and booking-grid settings.
type Policy struct {
	MaxActiveRequests int
	SlotGrid          scheduler.SlotGrid
}

// DefaultPolicy allows three active requests per requester on a half-hour grid.
func DefaultPolicy() Policy {
	return Policy{MaxActiveRequests: 3, SlotGrid: scheduler.DefaultSlotGrid()}
}

// AppointmentOption configures optional collaborators of the appointment service.
type AppointmentOption func(*AppointmentService)

// WithImageStore sets where reference images are stored.
func WithImageStore(store ImageStore) AppointmentOption {
	return func(s *AppointmentService) { s.images = store }
}

// WithDateLocker sets the lock used around approvals and quota-checked creates. The
// default only serializes within this process.
func WithDateLocker(locker DateLocker) AppointmentOption {
	return func(s *AppointmentService) {
		if locker != nil {
			s.locker = locker
		}
	}
}

// WithNotifier sets the decision notifier.
func WithNotifier(notifier Notifier) AppointmentOption {
	return func(s *AppointmentService) { s.notifier = notifier }
}

// WithPolicy overrides the default policy.
func WithPolicy(policy Policy) AppointmentOption {
	return func(s *AppointmentService) { s.policy = policy }
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) AppointmentOption {
	return func(s *AppointmentService) { s.logger = defaultLogger(logger) }
}

// AppointmentService implements the appointment lifecycle and admission control.
type AppointmentService struct {
	appointments AppointmentRepository
	availability AvailabilityResolver
	images       ImageStore
	locker       DateLocker
	notifier     Notifier
	policy       Policy
	idGenerator  func() string
	now          func() time.Time
	logger       *slog.Logger
}

// NewAppointmentService wires dependencies for appointment operations.
func NewAppointmentService(appointments AppointmentRepository, availability AvailabilityResolver, idGenerator func() string, now func() time.Time, opts ...AppointmentOption) *AppointmentService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	s := &AppointmentService{
		appointments: appointments,
		availability: availability,
		locker:       locking.NewLocalLocker(),
		policy:       DefaultPolicy(),
		idGenerator:  idGenerator,
		now:          now,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *AppointmentService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AppointmentService", operation, attrs...)
}

// CreateAppointment records a pending request. Validation runs first, then the active
// request quota, then the availability of the date. Image upload failures and
// booking-time conflicts are returned as warnings.
func (s *AppointmentService) CreateAppointment(ctx context.Context, params CreateAppointmentParams) (appointment Appointment, warnings []Warning, err error) {
	if s == nil {
		err = fmt.Errorf("AppointmentService is nil")
		return
	}

	principal := params.Principal
	logger := s.loggerWith(ctx, "CreateAppointment",
		"principal_id", principal.UserID,
		"date", params.Input.Date,
	)
	defer func() {
		if err != nil {
			logFailure(ctx, logger, "failed to create appointment", err)
			return
		}
		logger.With("appointment_id", appointment.ID, "warning_count", len(warnings)).InfoContext(ctx, "appointment created")
	}()

	if s.appointments == nil {
		err = fmt.Errorf("appointment repository not configured")
		return
	}

	input, vErr := normalizeAppointmentInput(principal, params.Input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	if s.quotaApplies(principal) {
		var release func()
		release, err = s.locker.Acquire(ctx, quotaLockKey(principal.UserID))
		if err != nil {
			err = fmt.Errorf("lock quota of %s: %w", principal.UserID, err)
			return
		}
		defer release()

		if err = s.checkQuota(ctx, principal); err != nil {
			return
		}
	}

	var resolution scheduler.Resolution
	resolution, err = s.resolve(ctx, input.Date)
	if err != nil {
		return
	}
	if resolution.Closed() {
		err = fmt.Errorf("%w: %s", ErrDateClosed, input.Date)
		return
	}

	warnings, err = s.bookingWarnings(ctx, resolution, input)
	if err != nil {
		return
	}

	imageIDs, imageWarnings := s.storeImages(ctx, logger, params.Images)
	warnings = append(warnings, imageWarnings...)

	createdAt := s.now()
	candidate := Appointment{
		ID:            s.idGenerator(),
		UserID:        principal.UserID,
		UserName:      input.UserName,
		UserEmail:     input.UserEmail,
		Date:          input.Date,
		RequestedTime: input.RequestedTime,
		Description:   input.Description,
		ImageIDs:      imageIDs,
		Status:        StatusPending,
		Revision:      1,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}

	appointment, err = s.appointments.CreateAppointment(ctx, candidate)
	if err != nil {
		err = mapAppointmentRepoError(err)
		return
	}
	return
}

// SetAppointmentStatus applies an administrator decision. Approval requires a window that
// does not overlap any other approved appointment on the same date; the check and the
// write happen under a per-date lock and the write is conditional on the revision read.
func (s *AppointmentService) SetAppointmentStatus(ctx context.Context, params SetAppointmentStatusParams) (appointment Appointment, err error) {
	if s == nil {
		err = fmt.Errorf("AppointmentService is nil")
		return
	}

	logger := s.loggerWith(ctx, "SetAppointmentStatus",
		"principal_id", params.Principal.UserID,
		"appointment_id", params.AppointmentID,
		"status", string(params.Status),
	)
	defer func() {
		if err != nil {
			logFailure(ctx, logger, "failed to change appointment status", err)
			return
		}
		logger.With("revision", appointment.Revision).InfoContext(ctx, "appointment status changed")
	}()

	if !params.Principal.IsAdmin {
		err = ErrForbidden
		return
	}
	if s.appointments == nil {
		err = fmt.Errorf("appointment repository not configured")
		return
	}

	var window scheduler.Window
	window, err = validateDecision(params)
	if err != nil {
		return
	}

	var current Appointment
	current, err = s.appointments.GetAppointment(ctx, params.AppointmentID)
	if err != nil {
		err = mapAppointmentRepoError(err)
		return
	}

	var release func()
	release, err = s.locker.Acquire(ctx, dateLockKey(current.Date))
	if err != nil {
		err = fmt.Errorf("lock %s: %w", current.Date, err)
		return
	}
	defer release()

	for attempt := 1; ; attempt++ {
		appointment, err = s.applyDecision(ctx, current, params.Status, window)
		if !errors.Is(err, persistence.ErrStaleRevision) {
			break
		}
		if attempt >= approveAttempts {
			err = ErrConcurrentUpdate
			return
		}
		logger.DebugContext(ctx, "appointment changed during transition, retrying", "attempt", attempt)
		current, err = s.appointments.GetAppointment(ctx, params.AppointmentID)
		if err != nil {
			err = mapAppointmentRepoError(err)
			return
		}
	}
	if err != nil {
		err = mapAppointmentRepoError(err)
		return
	}

	s.notify(ctx, logger, appointment)
	return
}

// applyDecision checks the transition and conflicts against a fresh snapshot and writes
// conditionally on current.Revision.
func (s *AppointmentService) applyDecision(ctx context.Context, current Appointment, status AppointmentStatus, window scheduler.Window) (Appointment, error) {
	if err := checkTransition(current.Status, status); err != nil {
		return Appointment{}, err
	}

	updated := current
	updated.Status = status
	updated.UpdatedAt = s.now()

	if status == StatusApproved {
		approved, err := s.appointments.ListAppointments(ctx, AppointmentRepositoryFilter{
			Date:     current.Date,
			Statuses: []AppointmentStatus{StatusApproved},
		})
		if err != nil {
			return Appointment{}, fmt.Errorf("list approved appointments: %w", err)
		}
		conflicts := scheduler.DetectConflicts(toBookings(approved), scheduler.Booking{AppointmentID: current.ID, Window: window})
		if len(conflicts) > 0 {
			return Appointment{}, &TimeConflictError{
				AppointmentID: conflicts[0].WithAppointmentID,
				Window:        conflicts[0].Window,
			}
		}
		updated.ArrivalTime = window.Start
		updated.FinishedTime = window.End

		if committer, ok := s.appointments.(ApprovalCommitter); ok {
			return committer.ApproveAppointment(ctx, updated, current.Revision)
		}
	}

	return s.appointments.UpdateAppointment(ctx, updated, current.Revision)
}

// DeleteAppointment removes an appointment on behalf of its owner or an administrator.
func (s *AppointmentService) DeleteAppointment(ctx context.Context, principal Principal, appointmentID string) error {
	if s == nil {
		return fmt.Errorf("AppointmentService is nil")
	}
	if s.appointments == nil {
		return fmt.Errorf("appointment repository not configured")
	}

	logger := s.loggerWith(ctx, "DeleteAppointment",
		"principal_id", principal.UserID,
		"appointment_id", appointmentID,
	)

	existing, err := s.appointments.GetAppointment(ctx, appointmentID)
	if err != nil {
		err = mapAppointmentRepoError(err)
		logFailure(ctx, logger, "failed to delete appointment", err)
		return err
	}

	if !CanSeeFullDetails(principal, existing) {
		logFailure(ctx, logger, "failed to delete appointment", ErrForbidden)
		return ErrForbidden
	}

	if err := s.appointments.DeleteAppointment(ctx, appointmentID); err != nil {
		err = mapAppointmentRepoError(err)
		logFailure(ctx, logger, "failed to delete appointment", err)
		return err
	}

	logger.InfoContext(ctx, "appointment deleted")
	return nil
}

// GetAppointment returns a single appointment projected for the principal.
func (s *AppointmentService) GetAppointment(ctx context.Context, principal Principal, appointmentID string) (AppointmentView, error) {
	if s == nil {
		return AppointmentView{}, fmt.Errorf("AppointmentService is nil")
	}
	if s.appointments == nil {
		return AppointmentView{}, fmt.Errorf("appointment repository not configured")
	}
	appointment, err := s.appointments.GetAppointment(ctx, appointmentID)
	if err != nil {
		return AppointmentView{}, mapAppointmentRepoError(err)
	}
	return s.project(ctx, principal, appointment), nil
}

// ListAppointments lists appointments newest first, projected through the visibility rule.
func (s *AppointmentService) ListAppointments(ctx context.Context, params ListAppointmentsParams) (views []AppointmentView, err error) {
	if s == nil {
		err = fmt.Errorf("AppointmentService is nil")
		return
	}
	if s.appointments == nil {
		return nil, nil
	}

	logger := s.loggerWith(ctx, "ListAppointments",
		"principal_id", params.Principal.UserID,
		"month", params.Month,
		"status", string(params.Status),
	)
	defer func() {
		if err != nil {
			logFailure(ctx, logger, "failed to list appointments", err)
			return
		}
		logger.With("result_count", len(views)).DebugContext(ctx, "appointments listed")
	}()

	var filter AppointmentRepositoryFilter
	filter, err = buildListFilter(params)
	if err != nil {
		return
	}

	var appointments []Appointment
	appointments, err = s.appointments.ListAppointments(ctx, filter)
	if err != nil {
		if isNotFoundError(err) {
			return nil, nil
		}
		return
	}

	sortNewestFirst(appointments)

	views = make([]AppointmentView, 0, len(appointments))
	for _, appointment := range appointments {
		views = append(views, s.project(ctx, params.Principal, appointment))
	}
	return
}

// DaySchedule returns the resolved availability of date, the bookable slots and the
// approved windows already taken.
func (s *AppointmentService) DaySchedule(ctx context.Context, date string) (DaySchedule, error) {
	if s == nil {
		return DaySchedule{}, fmt.Errorf("AppointmentService is nil")
	}
	day, err := scheduler.ParseDate(date)
	if err != nil {
		return DaySchedule{}, fieldError("date", "date must be YYYY-MM-DD")
	}
	date = day.Format(scheduler.DateLayout)

	resolution, err := s.resolve(ctx, date)
	if err != nil {
		return DaySchedule{}, err
	}

	var approved []Appointment
	if s.appointments != nil {
		approved, err = s.appointments.ListAppointments(ctx, AppointmentRepositoryFilter{
			Date:     date,
			Statuses: []AppointmentStatus{StatusApproved},
		})
		if err != nil {
			return DaySchedule{}, fmt.Errorf("list approved appointments: %w", err)
		}
	}
	bookings := toBookings(approved)

	slots, err := s.policy.SlotGrid.Slots(resolution, bookings)
	if err != nil {
		return DaySchedule{}, err
	}

	booked := make([]scheduler.Window, 0, len(bookings))
	for _, booking := range bookings {
		booked = append(booked, booking.Window)
	}
	sort.Slice(booked, func(i, j int) bool { return booked[i].Start < booked[j].Start })

	return DaySchedule{Date: date, Resolution: resolution, Slots: slots, Booked: booked}, nil
}

// ImageURL resolves a stored image id to a viewable URL.
func (s *AppointmentService) ImageURL(ctx context.Context, imageID string) (string, error) {
	if s == nil {
		return "", fmt.Errorf("AppointmentService is nil")
	}
	if s.images == nil || strings.TrimSpace(imageID) == "" {
		return "", ErrNotFound
	}
	url, err := s.images.ImageURL(ctx, imageID)
	if err != nil {
		return "", mapAppointmentRepoError(err)
	}
	return url, nil
}

// CanSeeFullDetails reports whether viewer may see the contact details, description and
// images of an appointment.
func CanSeeFullDetails(viewer Principal, appointment Appointment) bool {
	if viewer.IsAdmin {
		return true
	}
	return viewer.UserID != "" && viewer.UserID == appointment.UserID
}

func (s *AppointmentService) project(ctx context.Context, viewer Principal, appointment Appointment) AppointmentView {
	if !CanSeeFullDetails(viewer, appointment) {
		return AppointmentView{
			Appointment: Appointment{
				ID:            appointment.ID,
				Date:          appointment.Date,
				RequestedTime: appointment.RequestedTime,
				ArrivalTime:   appointment.ArrivalTime,
				FinishedTime:  appointment.FinishedTime,
				Status:        appointment.Status,
				CreatedAt:     appointment.CreatedAt,
				UpdatedAt:     appointment.UpdatedAt,
			},
			Restricted: true,
		}
	}

	view := AppointmentView{Appointment: appointment}
	view.ImageIDs = append([]string(nil), appointment.ImageIDs...)
	if s.images == nil {
		return view
	}
	for _, id := range appointment.ImageIDs {
		url, err := s.images.ImageURL(ctx, id)
		if err != nil {
			s.loggerWith(ctx, "ResolveImageURL", "image_id", id).WarnContext(ctx, "failed to resolve image url", "error", err)
			continue
		}
		view.ImageURLs = append(view.ImageURLs, url)
	}
	return view
}

func (s *AppointmentService) quotaApplies(principal Principal) bool {
	return !principal.IsAdmin && s.policy.MaxActiveRequests > 0
}

// checkQuota must run under the requester's quota lock, held until the insert.
func (s *AppointmentService) checkQuota(ctx context.Context, principal Principal) error {
	active, err := s.appointments.CountAppointments(ctx, AppointmentRepositoryFilter{
		UserID:   principal.UserID,
		Statuses: []AppointmentStatus{StatusPending, StatusApproved},
	})
	if err != nil {
		return fmt.Errorf("count active appointments: %w", err)
	}
	if active >= s.policy.MaxActiveRequests {
		return fmt.Errorf("%w: %d of %d", ErrQuotaExceeded, active, s.policy.MaxActiveRequests)
	}
	return nil
}

func (s *AppointmentService) resolve(ctx context.Context, date string) (scheduler.Resolution, error) {
	if s.availability == nil {
		return scheduler.Resolution{State: scheduler.StateUnrestricted}, nil
	}
	return s.availability.Resolve(ctx, date)
}

func (s *AppointmentService) bookingWarnings(ctx context.Context, resolution scheduler.Resolution, input AppointmentInput) ([]Warning, error) {
	var warnings []Warning

	admitted, err := resolution.Admits(input.RequestedTime)
	if err != nil {
		return nil, err
	}
	if !admitted {
		warnings = append(warnings, Warning{
			Code:   WarningOutsideOperatingHours,
			Detail: resolution.Window.String(),
		})
	}

	approved, err := s.appointments.ListAppointments(ctx, AppointmentRepositoryFilter{
		Date:     input.Date,
		Statuses: []AppointmentStatus{StatusApproved},
	})
	if err != nil {
		return nil, fmt.Errorf("list approved appointments: %w", err)
	}
	conflicts, err := scheduler.DetectInstantConflicts(toBookings(approved), input.RequestedTime)
	if err != nil {
		return nil, err
	}
	for _, conflict := range conflicts {
		warnings = append(warnings, Warning{
			Code:   WarningRequestedTimeConflict,
			Detail: conflict.Window.String(),
		})
	}
	return warnings, nil
}

func (s *AppointmentService) storeImages(ctx context.Context, logger *slog.Logger, uploads []ImageUpload) ([]string, []Warning) {
	if len(uploads) == 0 {
		return nil, nil
	}
	var (
		ids      []string
		warnings []Warning
	)
	for _, upload := range uploads {
		if upload.Err != nil {
			logger.WarnContext(ctx, "failed to read reference image", "image_name", upload.Name, "error", upload.Err)
			warnings = append(warnings, Warning{Code: WarningImageUploadFailed, Detail: upload.Name})
			continue
		}
		if s.images == nil {
			warnings = append(warnings, Warning{Code: WarningImageUploadFailed, Detail: upload.Name})
			continue
		}
		id, err := s.images.SaveImage(ctx, upload)
		if err != nil {
			logger.WarnContext(ctx, "failed to store reference image", "image_name", upload.Name, "error", err)
			warnings = append(warnings, Warning{Code: WarningImageUploadFailed, Detail: upload.Name})
			continue
		}
		ids = append(ids, id)
	}
	return ids, warnings
}

func (s *AppointmentService) notify(ctx context.Context, logger *slog.Logger, appointment Appointment) {
	if s.notifier == nil || appointment.UserEmail == "" {
		return
	}
	if err := s.notifier.NotifyDecision(ctx, appointment); err != nil {
		logger.WarnContext(ctx, "failed to notify requester", "error", err)
	}
}

func normalizeAppointmentInput(principal Principal, input AppointmentInput) (AppointmentInput, *ValidationError) {
	vErr := &ValidationError{}
	out := AppointmentInput{
		UserName:    strings.TrimSpace(input.UserName),
		UserEmail:   strings.TrimSpace(input.UserEmail),
		Description: strings.TrimSpace(input.Description),
	}

	if principal.UserID == "" {
		vErr.add("user_id", "requester is required")
	}

	if out.UserEmail == "" {
		vErr.add("user_email", "user_email is required")
	} else if addr, err := mail.ParseAddress(out.UserEmail); err != nil || addr.Address != out.UserEmail {
		vErr.add("user_email", "user_email must be a valid address")
	}

	if day, err := scheduler.ParseDate(input.Date); err != nil {
		vErr.add("date", "date must be YYYY-MM-DD")
	} else {
		out.Date = day.Format(scheduler.DateLayout)
	}

	if requested, err := scheduler.NormalizeTime(input.RequestedTime); err != nil {
		vErr.add("requested_time", "requested_time must be HH:MM")
	} else {
		out.RequestedTime = requested
	}

	if out.Description == "" {
		vErr.add("description", "description is required")
	}

	return out, vErr
}

func validateDecision(params SetAppointmentStatusParams) (scheduler.Window, error) {
	switch params.Status {
	case StatusApproved:
	case StatusRejected:
		return scheduler.Window{}, nil
	default:
		return scheduler.Window{}, fieldError("status", "status must be approved or rejected")
	}

	vErr := &ValidationError{}
	arrival, err := scheduler.NormalizeTime(params.ArrivalTime)
	if err != nil {
		vErr.add("arrival_time", "arrival_time must be HH:MM")
	}
	finished, err := scheduler.NormalizeTime(params.FinishedTime)
	if err != nil {
		vErr.add("finished_time", "finished_time must be HH:MM")
	}
	if vErr.HasErrors() {
		return scheduler.Window{}, vErr
	}

	window := scheduler.Window{Start: arrival, End: finished}
	if _, _, err := window.Bounds(); err != nil {
		return scheduler.Window{}, fieldError("finished_time", "arrival_time must be before finished_time")
	}
	return window, nil
}

// checkTransition allows pending to approved or rejected, and approved to approved for a
// window change.
func checkTransition(from, to AppointmentStatus) error {
	switch {
	case from == StatusPending && (to == StatusApproved || to == StatusRejected):
		return nil
	case from == StatusApproved && to == StatusApproved:
		return nil
	}
	return fieldError("status", fmt.Sprintf("cannot change status from %s to %s", from, to))
}

func buildListFilter(params ListAppointmentsParams) (AppointmentRepositoryFilter, error) {
	vErr := &ValidationError{}
	filter := AppointmentRepositoryFilter{UserID: strings.TrimSpace(params.UserID), Limit: listLimit}

	if month := strings.TrimSpace(params.Month); month != "" {
		from, to, err := scheduler.ParseMonth(month)
		if err != nil {
			vErr.add("month", "month must be YYYY-MM")
		}
		filter.DateFrom, filter.DateTo = from, to
	}
	if date := strings.TrimSpace(params.Date); date != "" {
		day, err := scheduler.ParseDate(date)
		if err != nil {
			vErr.add("date", "date must be YYYY-MM-DD")
		} else {
			filter.Date = day.Format(scheduler.DateLayout)
		}
	}
	if params.Status != "" {
		if !params.Status.Valid() {
			vErr.add("status", "status must be pending, approved or rejected")
		}
		filter.Statuses = []AppointmentStatus{params.Status}
	}

	if vErr.HasErrors() {
		return AppointmentRepositoryFilter{}, vErr
	}
	return filter, nil
}

func toBookings(appointments []Appointment) []scheduler.Booking {
	bookings := make([]scheduler.Booking, 0, len(appointments))
	for _, appointment := range appointments {
		if appointment.Status != StatusApproved || appointment.ArrivalTime == "" || appointment.FinishedTime == "" {
			continue
		}
		bookings = append(bookings, scheduler.Booking{AppointmentID: appointment.ID, Window: appointment.Window()})
	}
	return bookings
}

func sortNewestFirst(appointments []Appointment) {
	sort.SliceStable(appointments, func(i, j int) bool {
		if appointments[i].CreatedAt.Equal(appointments[j].CreatedAt) {
			return appointments[i].ID > appointments[j].ID
		}
		return appointments[i].CreatedAt.After(appointments[j].CreatedAt)
	})
}

func dateLockKey(date string) string {
	return "appointments:approve:" + date
}

func quotaLockKey(userID string) string {
	return "appointments:quota:" + userID
}

func mapAppointmentRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrStaleRevision) {
		return ErrConcurrentUpdate
	}
	var overlap *persistence.WindowConflictError
	if errors.As(err, &overlap) {
		return &TimeConflictError{
			AppointmentID: overlap.AppointmentID,
			Window:        scheduler.Window{Start: overlap.ArrivalTime, End: overlap.FinishedTime},
		}
	}
	if ErrorKind(err) != "unexpected" {
		return err
	}
	return fmt.Errorf("appointment store: %w", err)
}

func isNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, persistence.ErrNotFound)
}
