package main

import (
	"context"
	"errors"

	"github.com/example/appointment-desk/internal/application"
	"github.com/example/appointment-desk/internal/assets"
	"github.com/example/appointment-desk/internal/persistence"
	"github.com/example/appointment-desk/internal/scheduler"
)

type appointmentRepositoryAdapter struct {
	repo persistence.AppointmentRepository
}

func newAppointmentRepositoryAdapter(repo persistence.AppointmentRepository) *appointmentRepositoryAdapter {
	return &appointmentRepositoryAdapter{repo: repo}
}

func (a *appointmentRepositoryAdapter) CreateAppointment(ctx context.Context, appointment application.Appointment) (application.Appointment, error) {
	if err := a.repo.CreateAppointment(ctx, toPersistenceAppointment(appointment)); err != nil {
		return application.Appointment{}, err
	}
	stored, err := a.repo.GetAppointment(ctx, appointment.ID)
	if err != nil {
		return application.Appointment{}, err
	}
	return toApplicationAppointment(stored), nil
}

func (a *appointmentRepositoryAdapter) GetAppointment(ctx context.Context, id string) (application.Appointment, error) {
	stored, err := a.repo.GetAppointment(ctx, id)
	if err != nil {
		return application.Appointment{}, err
	}
	return toApplicationAppointment(stored), nil
}

func (a *appointmentRepositoryAdapter) UpdateAppointment(ctx context.Context, appointment application.Appointment, expectedRevision int) (application.Appointment, error) {
	stored, err := a.repo.UpdateAppointment(ctx, toPersistenceAppointment(appointment), expectedRevision)
	if err != nil {
		return application.Appointment{}, err
	}
	return toApplicationAppointment(stored), nil
}

func (a *appointmentRepositoryAdapter) ApproveAppointment(ctx context.Context, appointment application.Appointment, expectedRevision int) (application.Appointment, error) {
	stored, err := a.repo.ApproveAppointment(ctx, toPersistenceAppointment(appointment), expectedRevision)
	if err != nil {
		return application.Appointment{}, err
	}
	return toApplicationAppointment(stored), nil
}

func (a *appointmentRepositoryAdapter) DeleteAppointment(ctx context.Context, id string) error {
	return a.repo.DeleteAppointment(ctx, id)
}

func (a *appointmentRepositoryAdapter) ListAppointments(ctx context.Context, filter application.AppointmentRepositoryFilter) ([]application.Appointment, error) {
	models, err := a.repo.ListAppointments(ctx, toPersistenceFilter(filter))
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	appointments := make([]application.Appointment, 0, len(models))
	for _, model := range models {
		appointments = append(appointments, toApplicationAppointment(model))
	}
	return appointments, nil
}

func (a *appointmentRepositoryAdapter) CountAppointments(ctx context.Context, filter application.AppointmentRepositoryFilter) (int, error) {
	return a.repo.CountAppointments(ctx, toPersistenceFilter(filter))
}

type ruleRepositoryAdapter struct {
	repo persistence.AvailabilityRuleRepository
}

func newRuleRepositoryAdapter(repo persistence.AvailabilityRuleRepository) *ruleRepositoryAdapter {
	return &ruleRepositoryAdapter{repo: repo}
}

func (a *ruleRepositoryAdapter) CreateRule(ctx context.Context, rule application.AvailabilityRule) (application.AvailabilityRule, error) {
	if err := a.repo.CreateRule(ctx, toPersistenceRule(rule)); err != nil {
		return application.AvailabilityRule{}, err
	}
	return a.GetRule(ctx, rule.ID)
}

func (a *ruleRepositoryAdapter) GetRule(ctx context.Context, id string) (application.AvailabilityRule, error) {
	stored, err := a.repo.GetRule(ctx, id)
	if err != nil {
		return application.AvailabilityRule{}, err
	}
	return toApplicationRule(stored), nil
}

func (a *ruleRepositoryAdapter) UpdateRule(ctx context.Context, rule application.AvailabilityRule) (application.AvailabilityRule, error) {
	if err := a.repo.UpdateRule(ctx, toPersistenceRule(rule)); err != nil {
		return application.AvailabilityRule{}, err
	}
	return a.GetRule(ctx, rule.ID)
}

func (a *ruleRepositoryAdapter) DeleteRule(ctx context.Context, id string) error {
	return a.repo.DeleteRule(ctx, id)
}

func (a *ruleRepositoryAdapter) ListRules(ctx context.Context) ([]application.AvailabilityRule, error) {
	models, err := a.repo.ListRules(ctx)
	if err != nil {
		return nil, err
	}
	rules := make([]application.AvailabilityRule, 0, len(models))
	for _, model := range models {
		rules = append(rules, toApplicationRule(model))
	}
	return rules, nil
}

// imageStoreAdapter exposes an assets.Store as the service's image store. Unknown or
// malformed ids surface as not found.
type imageStoreAdapter struct {
	store assets.Store
}

func newImageStoreAdapter(store assets.Store) *imageStoreAdapter {
	return &imageStoreAdapter{store: store}
}

func (a *imageStoreAdapter) SaveImage(ctx context.Context, upload application.ImageUpload) (string, error) {
	return a.store.Put(ctx, assets.Object{Name: upload.Name, ContentType: upload.ContentType, Data: upload.Data})
}

func (a *imageStoreAdapter) ImageURL(ctx context.Context, id string) (string, error) {
	url, err := a.store.URL(ctx, id)
	if errors.Is(err, assets.ErrNotFound) || errors.Is(err, assets.ErrInvalidID) {
		return "", application.ErrNotFound
	}
	return url, err
}

func toApplicationAppointment(model persistence.Appointment) application.Appointment {
	return application.Appointment{
		ID:            model.ID,
		UserID:        model.UserID,
		UserName:      deref(model.UserName),
		UserEmail:     model.UserEmail,
		Date:          model.Date,
		RequestedTime: model.RequestedTime,
		ArrivalTime:   deref(model.ArrivalTime),
		FinishedTime:  deref(model.FinishedTime),
		Description:   model.Description,
		ImageIDs:      append([]string(nil), model.ImageIDs...),
		Status:        application.AppointmentStatus(model.Status),
		Revision:      model.Revision,
		CreatedAt:     model.CreatedAt,
		UpdatedAt:     model.UpdatedAt,
	}
}

func toPersistenceAppointment(appointment application.Appointment) persistence.Appointment {
	return persistence.Appointment{
		ID:            appointment.ID,
		UserID:        appointment.UserID,
		UserName:      optional(appointment.UserName),
		UserEmail:     appointment.UserEmail,
		Date:          appointment.Date,
		RequestedTime: appointment.RequestedTime,
		ArrivalTime:   optional(appointment.ArrivalTime),
		FinishedTime:  optional(appointment.FinishedTime),
		Description:   appointment.Description,
		ImageIDs:      append([]string(nil), appointment.ImageIDs...),
		Status:        string(appointment.Status),
		Revision:      appointment.Revision,
		CreatedAt:     appointment.CreatedAt,
		UpdatedAt:     appointment.UpdatedAt,
	}
}

func toPersistenceFilter(filter application.AppointmentRepositoryFilter) persistence.AppointmentFilter {
	statuses := make([]string, 0, len(filter.Statuses))
	for _, status := range filter.Statuses {
		statuses = append(statuses, string(status))
	}
	return persistence.AppointmentFilter{
		UserID:   filter.UserID,
		Date:     filter.Date,
		DateFrom: filter.DateFrom,
		DateTo:   filter.DateTo,
		Statuses: statuses,
		Limit:    filter.Limit,
	}
}

func toApplicationRule(model persistence.AvailabilityRule) application.AvailabilityRule {
	return application.AvailabilityRule{
		ID:        model.ID,
		Type:      scheduler.RuleType(model.Type),
		Value:     model.Value,
		Reason:    model.Reason,
		StartTime: deref(model.StartTime),
		EndTime:   deref(model.EndTime),
		IsClosed:  model.IsClosed,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
}

func toPersistenceRule(rule application.AvailabilityRule) persistence.AvailabilityRule {
	return persistence.AvailabilityRule{
		ID:        rule.ID,
		Type:      string(rule.Type),
		Value:     rule.Value,
		Reason:    rule.Reason,
		StartTime: optional(rule.StartTime),
		EndTime:   optional(rule.EndTime),
		IsClosed:  rule.IsClosed,
		CreatedAt: rule.CreatedAt,
		UpdatedAt: rule.UpdatedAt,
	}
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
