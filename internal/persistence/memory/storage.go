// Package memory provides an in-process implementation of the persistence
// contracts. It backs development runs and service-level tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/example/appointment-desk/internal/persistence"
)

// Storage keeps appointments and availability rules in maps guarded by a single lock.
type Storage struct {
	mu           sync.RWMutex
	appointments map[string]persistence.Appointment
	rules        map[string]persistence.AvailabilityRule
}

// New returns an empty Storage.
func New() *Storage {
	return &Storage{
		appointments: make(map[string]persistence.Appointment),
		rules:        make(map[string]persistence.AvailabilityRule),
	}
}

// Close releases resources held by the storage. No-op for the in-memory implementation.
func (s *Storage) Close() error {
	return nil
}

// --- AppointmentRepository implementation ---

// CreateAppointment stores a new appointment.
func (s *Storage) CreateAppointment(ctx context.Context, appointment persistence.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.appointments[appointment.ID]; ok {
		return fmt.Errorf("%w: appointment %s", persistence.ErrDuplicate, appointment.ID)
	}

	s.appointments[appointment.ID] = cloneAppointment(appointment)
	return nil
}

// GetAppointment retrieves an appointment by ID.
func (s *Storage) GetAppointment(ctx context.Context, id string) (persistence.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	appointment, ok := s.appointments[id]
	if !ok {
		return persistence.Appointment{}, persistence.ErrNotFound
	}
	return cloneAppointment(appointment), nil
}

// UpdateAppointment writes the appointment when its stored revision equals
// expectedRevision. The identity fields and CreatedAt of the stored record are kept.
func (s *Storage) UpdateAppointment(ctx context.Context, appointment persistence.Appointment, expectedRevision int) (persistence.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(appointment, expectedRevision)
}

// ApproveAppointment checks the window against the other approved appointments of the
// date and writes the record under the same lock.
func (s *Storage) ApproveAppointment(ctx context.Context, appointment persistence.Appointment, expectedRevision int) (persistence.Appointment, error) {
	if appointment.ArrivalTime == nil || appointment.FinishedTime == nil {
		return persistence.Appointment{}, fmt.Errorf("%w: approval requires arrival and finished time", persistence.ErrConstraintViolation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.appointments[appointment.ID]; ok && current.Revision == expectedRevision {
		if conflict := s.overlapLocked(appointment); conflict != nil {
			return persistence.Appointment{}, conflict
		}
	}
	return s.updateLocked(appointment, expectedRevision)
}

func (s *Storage) updateLocked(appointment persistence.Appointment, expectedRevision int) (persistence.Appointment, error) {
	current, ok := s.appointments[appointment.ID]
	if !ok {
		return persistence.Appointment{}, persistence.ErrNotFound
	}
	if current.Revision != expectedRevision {
		return persistence.Appointment{}, persistence.ErrStaleRevision
	}

	updated := cloneAppointment(appointment)
	updated.UserID = current.UserID
	updated.CreatedAt = current.CreatedAt
	updated.Revision = current.Revision + 1
	s.appointments[updated.ID] = updated
	return cloneAppointment(updated), nil
}

// overlapLocked returns the earliest approved window on the date that intersects the
// candidate's window.
func (s *Storage) overlapLocked(candidate persistence.Appointment) *persistence.WindowConflictError {
	var found *persistence.WindowConflictError
	for _, other := range s.appointments {
		if other.ID == candidate.ID || other.Date != candidate.Date || other.Status != persistence.StatusApproved {
			continue
		}
		if other.ArrivalTime == nil || other.FinishedTime == nil {
			continue
		}
		if *other.ArrivalTime < *candidate.FinishedTime && *other.FinishedTime > *candidate.ArrivalTime {
			if found == nil || *other.ArrivalTime < found.ArrivalTime {
				found = &persistence.WindowConflictError{
					AppointmentID: other.ID,
					ArrivalTime:   *other.ArrivalTime,
					FinishedTime:  *other.FinishedTime,
				}
			}
		}
	}
	return found
}

// DeleteAppointment removes an appointment by ID.
func (s *Storage) DeleteAppointment(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.appointments[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.appointments, id)
	return nil
}

// ListAppointments returns appointments matching the filter ordered by CreatedAt descending.
func (s *Storage) ListAppointments(ctx context.Context, filter persistence.AppointmentFilter) ([]persistence.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var appointments []persistence.Appointment
	for _, appointment := range s.appointments {
		if matchesAppointmentFilter(appointment, filter) {
			appointments = append(appointments, cloneAppointment(appointment))
		}
	}

	sort.Slice(appointments, func(i, j int) bool {
		if appointments[i].CreatedAt.Equal(appointments[j].CreatedAt) {
			return appointments[i].ID > appointments[j].ID
		}
		return appointments[i].CreatedAt.After(appointments[j].CreatedAt)
	})

	if filter.Limit > 0 && len(appointments) > filter.Limit {
		appointments = appointments[:filter.Limit]
	}
	return appointments, nil
}

// CountAppointments counts appointments matching the filter. Limit is ignored.
func (s *Storage) CountAppointments(ctx context.Context, filter persistence.AppointmentFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, appointment := range s.appointments {
		if matchesAppointmentFilter(appointment, filter) {
			count++
		}
	}
	return count, nil
}

// --- AvailabilityRuleRepository implementation ---

// CreateRule stores a rule. The (Type, Value) pair must be unique.
func (s *Storage) CreateRule(ctx context.Context, rule persistence.AvailabilityRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[rule.ID]; ok {
		return fmt.Errorf("%w: rule %s", persistence.ErrDuplicate, rule.ID)
	}
	if err := s.ensureUniqueRuleLocked(rule); err != nil {
		return err
	}

	s.rules[rule.ID] = cloneRule(rule)
	return nil
}

// GetRule retrieves a rule by ID.
func (s *Storage) GetRule(ctx context.Context, id string) (persistence.AvailabilityRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, ok := s.rules[id]
	if !ok {
		return persistence.AvailabilityRule{}, persistence.ErrNotFound
	}
	return cloneRule(rule), nil
}

// UpdateRule replaces an existing rule.
func (s *Storage) UpdateRule(ctx context.Context, rule persistence.AvailabilityRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.rules[rule.ID]
	if !ok {
		return persistence.ErrNotFound
	}
	if err := s.ensureUniqueRuleLocked(rule); err != nil {
		return err
	}

	updated := cloneRule(rule)
	updated.CreatedAt = current.CreatedAt
	s.rules[rule.ID] = updated
	return nil
}

// DeleteRule removes a rule by ID.
func (s *Storage) DeleteRule(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.rules, id)
	return nil
}

// ListRules returns all rules ordered by CreatedAt ascending.
func (s *Storage) ListRules(ctx context.Context) ([]persistence.AvailabilityRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rules := make([]persistence.AvailabilityRule, 0, len(s.rules))
	for _, rule := range s.rules {
		rules = append(rules, cloneRule(rule))
	}

	sort.Slice(rules, func(i, j int) bool {
		if rules[i].CreatedAt.Equal(rules[j].CreatedAt) {
			return rules[i].ID < rules[j].ID
		}
		return rules[i].CreatedAt.Before(rules[j].CreatedAt)
	})
	return rules, nil
}

func (s *Storage) ensureUniqueRuleLocked(rule persistence.AvailabilityRule) error {
	for existingID, existing := range s.rules {
		if existingID == rule.ID {
			continue
		}
		if existing.Type == rule.Type && existing.Value == rule.Value {
			return fmt.Errorf("%w: rule %s %s", persistence.ErrDuplicate, rule.Type, rule.Value)
		}
	}
	return nil
}

func matchesAppointmentFilter(appointment persistence.Appointment, filter persistence.AppointmentFilter) bool {
	if filter.UserID != "" && appointment.UserID != filter.UserID {
		return false
	}
	if filter.Date != "" && appointment.Date != filter.Date {
		return false
	}
	if filter.DateFrom != "" && appointment.Date < filter.DateFrom {
		return false
	}
	if filter.DateTo != "" && appointment.Date >= filter.DateTo {
		return false
	}
	if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, appointment.Status) {
		return false
	}
	return true
}

func cloneAppointment(appointment persistence.Appointment) persistence.Appointment {
	clone := appointment
	clone.UserName = cloneString(appointment.UserName)
	clone.ArrivalTime = cloneString(appointment.ArrivalTime)
	clone.FinishedTime = cloneString(appointment.FinishedTime)
	clone.ImageIDs = slices.Clone(appointment.ImageIDs)
	return clone
}

func cloneRule(rule persistence.AvailabilityRule) persistence.AvailabilityRule {
	clone := rule
	clone.StartTime = cloneString(rule.StartTime)
	clone.EndTime = cloneString(rule.EndTime)
	return clone
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}
