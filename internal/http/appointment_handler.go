package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/example/appointment-desk/internal/application"
)

// maxMultipartMemory bounds the in-memory part of a multipart appointment request.
const maxMultipartMemory = 32 << 20

type appointmentService interface {
	CreateAppointment(ctx context.Context, params application.CreateAppointmentParams) (application.Appointment, []application.Warning, error)
	SetAppointmentStatus(ctx context.Context, params application.SetAppointmentStatusParams) (application.Appointment, error)
	DeleteAppointment(ctx context.Context, principal application.Principal, appointmentID string) error
	GetAppointment(ctx context.Context, principal application.Principal, appointmentID string) (application.AppointmentView, error)
	ListAppointments(ctx context.Context, params application.ListAppointmentsParams) ([]application.AppointmentView, error)
	ImageURL(ctx context.Context, imageID string) (string, error)
}

type AppointmentHandler struct {
	service   appointmentService
	responder responder
	logger    *slog.Logger
}

func NewAppointmentHandler(service appointmentService, logger *slog.Logger) *AppointmentHandler {
	base := defaultLogger(logger)
	return &AppointmentHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *AppointmentHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "AppointmentHandler", operation, attrs...)
}

// Create accepts either a JSON body or a multipart form whose "images" parts are
// reference images.
func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	req, images, err := decodeAppointmentRequest(r)
	if err != nil {
		h.log(r.Context(), "Create", "principal_id", principal.UserID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode appointment request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Create", "principal_id", principal.UserID, "date", req.Date, "image_count", len(images))

	appointment, warnings, err := h.service.CreateAppointment(r.Context(), application.CreateAppointmentParams{
		Principal: principal,
		Input:     req.toInput(),
		Images:    images,
	})
	if err != nil {
		logger.WarnContext(r.Context(), "appointment creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("appointment_id", appointment.ID, "warning_count", len(warnings)).InfoContext(r.Context(), "appointment created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, createAppointmentResponse{
		Appointment: toAppointmentDTO(application.AppointmentView{Appointment: appointment}),
		Warnings:    toWarningDTOs(warnings),
	})
}

func (h *AppointmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	appointmentID, ok := pathID(r)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidAppointmentID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	view, err := h.service.GetAppointment(r.Context(), principal, appointmentID)
	if err != nil {
		h.log(r.Context(), "Get", "appointment_id", appointmentID).WarnContext(r.Context(), "appointment lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, appointmentResponse{Appointment: toAppointmentDTO(view)})
}

// List supports the month (YYYY-MM), status and date query parameters. Only
// administrators may filter by user_id.
func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	query := r.URL.Query()
	params := application.ListAppointmentsParams{
		Principal: principal,
		Month:     query.Get("month"),
		Status:    application.AppointmentStatus(strings.TrimSpace(query.Get("status"))),
		Date:      query.Get("date"),
	}
	if query.Get("mine") == "true" {
		params.UserID = principal.UserID
	} else if principal.IsAdmin {
		params.UserID = query.Get("user_id")
	}

	logger := h.log(r.Context(), "List", "principal_id", principal.UserID, "month", params.Month)
	views, err := h.service.ListAppointments(r.Context(), params)
	if err != nil {
		logger.WarnContext(r.Context(), "appointment list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("result_count", len(views)).DebugContext(r.Context(), "appointments listed")
	dtos := make([]appointmentDTO, 0, len(views))
	for _, view := range views {
		dtos = append(dtos, toAppointmentDTO(view))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listAppointmentsResponse{Appointments: dtos})
}

// SetStatus records an administrator decision on an appointment.
func (h *AppointmentHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	appointmentID, ok := pathID(r)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidAppointmentID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "SetStatus", "principal_id", principal.UserID, "appointment_id", appointmentID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode status request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "SetStatus", "principal_id", principal.UserID, "appointment_id", appointmentID, "status", req.Status)

	appointment, err := h.service.SetAppointmentStatus(r.Context(), application.SetAppointmentStatusParams{
		Principal:     principal,
		AppointmentID: appointmentID,
		Status:        application.AppointmentStatus(strings.TrimSpace(req.Status)),
		ArrivalTime:   strings.TrimSpace(req.ArrivalTime),
		FinishedTime:  strings.TrimSpace(req.FinishedTime),
	})
	if err != nil {
		logger.WarnContext(r.Context(), "appointment status change failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "appointment status changed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, appointmentResponse{Appointment: toAppointmentDTO(application.AppointmentView{Appointment: appointment})})
}

func (h *AppointmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	appointmentID, ok := pathID(r)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidAppointmentID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "Delete", "principal_id", principal.UserID, "appointment_id", appointmentID)
	if err := h.service.DeleteAppointment(r.Context(), principal, appointmentID); err != nil {
		logger.WarnContext(r.Context(), "appointment delete failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "appointment deleted")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// Image redirects to the stored location of a reference image.
func (h *AppointmentHandler) Image(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	imageID, ok := pathID(r)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidImageID)
		return
	}

	url, err := h.service.ImageURL(r.Context(), imageID)
	if err != nil {
		h.log(r.Context(), "Image", "image_id", imageID).WarnContext(r.Context(), "image lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

func pathID(r *http.Request) (string, bool) {
	id := strings.TrimSpace(mux.Vars(r)["id"])
	return id, id != ""
}

func decodeAppointmentRequest(r *http.Request) (appointmentRequest, []application.ImageUpload, error) {
	var req appointmentRequest

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return appointmentRequest{}, nil, err
		}
		return req, nil, nil
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return appointmentRequest{}, nil, err
	}
	req = appointmentRequest{
		UserName:      r.FormValue("user_name"),
		UserEmail:     r.FormValue("user_email"),
		Date:          r.FormValue("date"),
		RequestedTime: r.FormValue("requested_time"),
		Description:   r.FormValue("description"),
	}

	var images []application.ImageUpload
	for _, header := range r.MultipartForm.File["images"] {
		if upload, ok := readUpload(header); ok {
			images = append(images, upload)
		}
	}
	return req, images, nil
}

// readUpload reports false for empty parts. A part that cannot be read is still
// returned, carrying its error, so the service records an upload warning for it.
func readUpload(header *multipart.FileHeader) (application.ImageUpload, bool) {
	if header.Size == 0 {
		return application.ImageUpload{}, false
	}
	upload := application.ImageUpload{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
	}

	file, err := header.Open()
	if err != nil {
		upload.Err = err
		return upload, true
	}
	defer file.Close()

	upload.Data, upload.Err = io.ReadAll(file)
	if upload.Err == nil && len(upload.Data) == 0 {
		return application.ImageUpload{}, false
	}
	return upload, true
}

type appointmentRequest struct {
	UserName      string `json:"user_name"`
	UserEmail     string `json:"user_email"`
	Date          string `json:"date"`
	RequestedTime string `json:"requested_time"`
	Description   string `json:"description"`
}

func (r appointmentRequest) toInput() application.AppointmentInput {
	return application.AppointmentInput{
		UserName:      strings.TrimSpace(r.UserName),
		UserEmail:     strings.TrimSpace(r.UserEmail),
		Date:          strings.TrimSpace(r.Date),
		RequestedTime: strings.TrimSpace(r.RequestedTime),
		Description:   strings.TrimSpace(r.Description),
	}
}

type statusRequest struct {
	Status       string `json:"status"`
	ArrivalTime  string `json:"arrival_time"`
	FinishedTime string `json:"finished_time"`
}

type appointmentResponse struct {
	Appointment appointmentDTO `json:"appointment"`
}

type createAppointmentResponse struct {
	Appointment appointmentDTO `json:"appointment"`
	Warnings    []warningDTO   `json:"warnings"`
}

type listAppointmentsResponse struct {
	Appointments []appointmentDTO `json:"appointments"`
}

type appointmentDTO struct {
	ID            string   `json:"id"`
	UserID        string   `json:"user_id,omitempty"`
	UserName      string   `json:"user_name,omitempty"`
	UserEmail     string   `json:"user_email,omitempty"`
	Date          string   `json:"date"`
	RequestedTime string   `json:"requested_time"`
	ArrivalTime   string   `json:"arrival_time,omitempty"`
	FinishedTime  string   `json:"finished_time,omitempty"`
	Description   string   `json:"description,omitempty"`
	ImageIDs      []string `json:"image_ids,omitempty"`
	ImageURLs     []string `json:"image_urls,omitempty"`
	Status        string   `json:"status"`
	Restricted    bool     `json:"restricted"`
	CreatedAt     string   `json:"created_at"`
	UpdatedAt     string   `json:"updated_at"`
}

func toAppointmentDTO(view application.AppointmentView) appointmentDTO {
	return appointmentDTO{
		ID:            view.ID,
		UserID:        view.UserID,
		UserName:      view.UserName,
		UserEmail:     view.UserEmail,
		Date:          view.Date,
		RequestedTime: view.RequestedTime,
		ArrivalTime:   view.ArrivalTime,
		FinishedTime:  view.FinishedTime,
		Description:   view.Description,
		ImageIDs:      append([]string(nil), view.ImageIDs...),
		ImageURLs:     append([]string(nil), view.ImageURLs...),
		Status:        string(view.Status),
		Restricted:    view.Restricted,
		CreatedAt:     formatTimestamp(view.CreatedAt),
		UpdatedAt:     formatTimestamp(view.UpdatedAt),
	}
}

type warningDTO struct {
	Code   string `json:"code"`
	Detail string `json:"detail,omitempty"`
}

func toWarningDTOs(warnings []application.Warning) []warningDTO {
	out := make([]warningDTO, 0, len(warnings))
	for _, warning := range warnings {
		out = append(out, warningDTO{Code: string(warning.Code), Detail: warning.Detail})
	}
	return out
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
