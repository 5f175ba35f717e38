package http

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/appointment-desk/internal/application"
	"github.com/example/appointment-desk/internal/export"
)

const workbookContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type appointmentLister interface {
	ListAppointments(ctx context.Context, params application.ListAppointmentsParams) ([]application.AppointmentView, error)
}

// ExportHandler renders appointments as an iCalendar feed and an XLSX report.
type ExportHandler struct {
	source    appointmentLister
	calendar  export.CalendarOptions
	now       func() time.Time
	responder responder
	logger    *slog.Logger
}

// NewExportHandler returns a handler using calendar as the template for feed options.
func NewExportHandler(source appointmentLister, calendar export.CalendarOptions, now func() time.Time, logger *slog.Logger) *ExportHandler {
	base := defaultLogger(logger)
	if now == nil {
		now = time.Now
	}
	return &ExportHandler{source: source, calendar: calendar, now: now, responder: newResponder(base), logger: base}
}

func (h *ExportHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "ExportHandler", operation, attrs...)
}

// Calendar serves approved appointments as text/calendar. Requester names are included
// for administrators only.
func (h *ExportHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.source == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	month := r.URL.Query().Get("month")
	logger := h.log(r.Context(), "Calendar", "principal_id", principal.UserID, "month", month)

	appointments, err := h.list(r.Context(), application.ListAppointmentsParams{
		Principal: principal,
		Month:     month,
		Status:    application.StatusApproved,
	})
	if err != nil {
		logger.WarnContext(r.Context(), "calendar listing failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	opts := h.calendar
	opts.Detailed = principal.IsAdmin
	opts.Now = h.now()

	var buf bytes.Buffer
	if err := export.WriteCalendar(&buf, appointments, opts); err != nil {
		logger.ErrorContext(r.Context(), "calendar rendering failed", "error", err)
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="appointments.ics"`)
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		logger.ErrorContext(r.Context(), "failed to write calendar", "error", err)
	}
}

// Workbook serves the month's appointments as an XLSX download. Administrators only.
func (h *ExportHandler) Workbook(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.source == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	month := strings.TrimSpace(r.URL.Query().Get("month"))
	logger := h.log(r.Context(), "Workbook", "principal_id", principal.UserID, "month", month)

	if !principal.IsAdmin {
		h.responder.handleServiceError(r.Context(), w, application.ErrForbidden)
		return
	}
	if month == "" {
		h.responder.handleServiceError(r.Context(), w, &application.ValidationError{
			FieldErrors: map[string]string{"month": "month must be YYYY-MM"},
		})
		return
	}

	appointments, err := h.list(r.Context(), application.ListAppointmentsParams{Principal: principal, Month: month})
	if err != nil {
		logger.WarnContext(r.Context(), "workbook listing failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteWorkbook(&buf, "予約一覧 "+month, appointments); err != nil {
		logger.ErrorContext(r.Context(), "workbook rendering failed", "error", err)
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	w.Header().Set("Content-Type", workbookContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="appointments-`+month+`.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		logger.ErrorContext(r.Context(), "failed to write workbook", "error", err)
		return
	}
	logger.With("result_count", len(appointments)).InfoContext(r.Context(), "workbook exported")
}

func (h *ExportHandler) list(ctx context.Context, params application.ListAppointmentsParams) ([]application.Appointment, error) {
	views, err := h.source.ListAppointments(ctx, params)
	if err != nil {
		return nil, err
	}
	appointments := make([]application.Appointment, 0, len(views))
	for _, view := range views {
		appointments = append(appointments, view.Appointment)
	}
	return appointments, nil
}
