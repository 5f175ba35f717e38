package application

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/example/appointment-desk/internal/persistence"
	"github.com/example/appointment-desk/internal/scheduler"
)

type appointmentRepoStub struct {
	mu    sync.Mutex
	items map[string]Appointment
	order []string

	createErr  error
	listErr    error
	staleTimes int
	updates    int
}

func newAppointmentRepoStub(seed ...Appointment) *appointmentRepoStub {
	repo := &appointmentRepoStub{items: make(map[string]Appointment)}
	for _, appointment := range seed {
		repo.put(appointment)
	}
	return repo
}

func (r *appointmentRepoStub) put(appointment Appointment) {
	if _, ok := r.items[appointment.ID]; !ok {
		r.order = append(r.order, appointment.ID)
	}
	r.items[appointment.ID] = appointment
}

func (r *appointmentRepoStub) CreateAppointment(ctx context.Context, appointment Appointment) (Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return Appointment{}, r.createErr
	}
	if _, ok := r.items[appointment.ID]; ok {
		return Appointment{}, persistence.ErrDuplicate
	}
	r.put(appointment)
	return appointment, nil
}

func (r *appointmentRepoStub) GetAppointment(ctx context.Context, id string) (Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	appointment, ok := r.items[id]
	if !ok {
		return Appointment{}, persistence.ErrNotFound
	}
	return appointment, nil
}

func (r *appointmentRepoStub) UpdateAppointment(ctx context.Context, appointment Appointment, expectedRevision int) (Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.items[appointment.ID]
	if !ok {
		return Appointment{}, persistence.ErrNotFound
	}
	if r.staleTimes > 0 {
		r.staleTimes--
		current.Revision++
		r.items[current.ID] = current
		return Appointment{}, persistence.ErrStaleRevision
	}
	if current.Revision != expectedRevision {
		return Appointment{}, persistence.ErrStaleRevision
	}
	appointment.Revision = expectedRevision + 1
	r.items[appointment.ID] = appointment
	r.updates++
	return appointment, nil
}

func (r *appointmentRepoStub) DeleteAppointment(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(r.items, id)
	r.order = slices.DeleteFunc(r.order, func(candidate string) bool { return candidate == id })
	return nil
}

func (r *appointmentRepoStub) ListAppointments(ctx context.Context, filter AppointmentRepositoryFilter) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []Appointment
	for _, id := range r.order {
		appointment := r.items[id]
		if matchesFilter(appointment, filter) {
			out = append(out, appointment)
		}
	}
	return out, nil
}

func (r *appointmentRepoStub) CountAppointments(ctx context.Context, filter AppointmentRepositoryFilter) (int, error) {
	list, err := r.ListAppointments(ctx, filter)
	return len(list), err
}

func (r *appointmentRepoStub) get(id string) Appointment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.items[id]
}

func matchesFilter(appointment Appointment, filter AppointmentRepositoryFilter) bool {
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

// committingRepoStub adds an atomic approval path to appointmentRepoStub.
type committingRepoStub struct {
	*appointmentRepoStub
	commits   int
	commitErr error
}

func (r *committingRepoStub) ApproveAppointment(ctx context.Context, appointment Appointment, expectedRevision int) (Appointment, error) {
	r.mu.Lock()
	r.commits++
	err := r.commitErr
	r.mu.Unlock()
	if err != nil {
		return Appointment{}, err
	}
	return r.UpdateAppointment(ctx, appointment, expectedRevision)
}

type ruleRepoStub struct {
	mu        sync.Mutex
	rules     []AvailabilityRule
	lists     int
	listErr   error
	createErr error
	// afterList runs once, after a listing has read the rules and before it returns.
	afterList func()
}

func (r *ruleRepoStub) CreateRule(ctx context.Context, rule AvailabilityRule) (AvailabilityRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return AvailabilityRule{}, r.createErr
	}
	r.rules = append(r.rules, rule)
	return rule, nil
}

func (r *ruleRepoStub) GetRule(ctx context.Context, id string) (AvailabilityRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rule := range r.rules {
		if rule.ID == id {
			return rule, nil
		}
	}
	return AvailabilityRule{}, persistence.ErrNotFound
}

func (r *ruleRepoStub) UpdateRule(ctx context.Context, rule AvailabilityRule) (AvailabilityRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.rules {
		if r.rules[i].ID == rule.ID {
			r.rules[i] = rule
			return rule, nil
		}
	}
	return AvailabilityRule{}, persistence.ErrNotFound
}

func (r *ruleRepoStub) DeleteRule(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.rules {
		if r.rules[i].ID == id {
			r.rules = append(r.rules[:i], r.rules[i+1:]...)
			return nil
		}
	}
	return persistence.ErrNotFound
}

func (r *ruleRepoStub) ListRules(ctx context.Context) ([]AvailabilityRule, error) {
	r.mu.Lock()
	r.lists++
	if r.listErr != nil {
		r.mu.Unlock()
		return nil, r.listErr
	}
	rules := cloneRules(r.rules)
	hook := r.afterList
	r.afterList = nil
	r.mu.Unlock()

	if hook != nil {
		hook()
	}
	return rules, nil
}

type resolverStub struct {
	resolution scheduler.Resolution
	err        error
	calls      int
}

func (r *resolverStub) Resolve(ctx context.Context, date string) (scheduler.Resolution, error) {
	r.calls++
	if r.err != nil {
		return scheduler.Resolution{}, r.err
	}
	if r.resolution.State == "" {
		return scheduler.Resolution{State: scheduler.StateUnrestricted}, nil
	}
	return r.resolution, nil
}

type imageStoreStub struct {
	failNames map[string]bool
	saved     []string
}

func (s *imageStoreStub) SaveImage(ctx context.Context, upload ImageUpload) (string, error) {
	if s.failNames[upload.Name] {
		return "", errors.New("bucket unavailable")
	}
	id := "img-" + upload.Name
	s.saved = append(s.saved, id)
	return id, nil
}

func (s *imageStoreStub) ImageURL(ctx context.Context, id string) (string, error) {
	return fmt.Sprintf("https://assets.example.com/%s", id), nil
}

type notifierStub struct {
	mu       sync.Mutex
	notified []Appointment
	err      error
}

func (n *notifierStub) NotifyDecision(ctx context.Context, appointment Appointment) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notified = append(n.notified, appointment)
	return n.err
}

type recordingLocker struct {
	mu    sync.Mutex
	inner DateLocker
	keys  []string
}

func (l *recordingLocker) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	l.keys = append(l.keys, key)
	l.mu.Unlock()
	return l.inner.Acquire(ctx, key)
}

func (l *recordingLocker) recorded() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.keys...)
}
