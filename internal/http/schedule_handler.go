package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/example/appointment-desk/internal/application"
	"github.com/example/appointment-desk/internal/scheduler"
)

type scheduleService interface {
	DaySchedule(ctx context.Context, date string) (application.DaySchedule, error)
}

// ScheduleHandler serves the booking view of a single date.
type ScheduleHandler struct {
	service   scheduleService
	responder responder
	logger    *slog.Logger
}

func NewScheduleHandler(service scheduleService, logger *slog.Logger) *ScheduleHandler {
	base := defaultLogger(logger)
	return &ScheduleHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *ScheduleHandler) Day(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	date := mux.Vars(r)["date"]
	day, err := h.service.DaySchedule(r.Context(), date)
	if err != nil {
		handlerLogger(r.Context(), h.logger, "ScheduleHandler", "Day", "date", date).
			WarnContext(r.Context(), "day schedule failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toDayScheduleDTO(day))
}

type dayScheduleDTO struct {
	Date      string      `json:"date"`
	State     string      `json:"state"`
	OpenTime  string      `json:"open_time,omitempty"`
	CloseTime string      `json:"close_time,omitempty"`
	RuleID    string      `json:"rule_id,omitempty"`
	Slots     []slotDTO   `json:"slots"`
	Booked    []windowDTO `json:"booked"`
}

type slotDTO struct {
	Time     string `json:"time"`
	Conflict bool   `json:"conflict"`
}

type windowDTO struct {
	ArrivalTime  string `json:"arrival_time"`
	FinishedTime string `json:"finished_time"`
}

func toDayScheduleDTO(day application.DaySchedule) dayScheduleDTO {
	dto := dayScheduleDTO{
		Date:   day.Date,
		State:  string(day.Resolution.State),
		RuleID: day.Resolution.RuleID,
		Slots:  make([]slotDTO, 0, len(day.Slots)),
		Booked: make([]windowDTO, 0, len(day.Booked)),
	}
	if day.Resolution.State == scheduler.StateOpen {
		dto.OpenTime = day.Resolution.Window.Start
		dto.CloseTime = day.Resolution.Window.End
	}
	for _, slot := range day.Slots {
		dto.Slots = append(dto.Slots, slotDTO{Time: slot.Time, Conflict: slot.Conflict})
	}
	for _, window := range day.Booked {
		dto.Booked = append(dto.Booked, windowDTO{ArrivalTime: window.Start, FinishedTime: window.End})
	}
	return dto
}
