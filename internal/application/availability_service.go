package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/example/appointment-desk/internal/persistence"
	"github.com/example/appointment-desk/internal/scheduler"
)

// RuleRepository captures the persistence operations needed for availability rules.
type RuleRepository interface {
	CreateRule(ctx context.Context, rule AvailabilityRule) (AvailabilityRule, error)
	GetRule(ctx context.Context, id string) (AvailabilityRule, error)
	UpdateRule(ctx context.Context, rule AvailabilityRule) (AvailabilityRule, error)
	DeleteRule(ctx context.Context, id string) error
	ListRules(ctx context.Context) ([]AvailabilityRule, error)
}

// AvailabilityService manages closure and operating-hours rules and resolves dates against them.
type AvailabilityService struct {
	rules       RuleRepository
	cache       *ruleCache
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewAvailabilityService constructs an availability service with the provided dependencies.
func NewAvailabilityService(rules RuleRepository, idGenerator func() string, now func() time.Time) *AvailabilityService {
	return NewAvailabilityServiceWithLogger(rules, idGenerator, now, 0, nil)
}

// NewAvailabilityServiceWithLogger constructs an availability service with a rule snapshot TTL and logger.
func NewAvailabilityServiceWithLogger(rules RuleRepository, idGenerator func() string, now func() time.Time, cacheTTL time.Duration, logger *slog.Logger) *AvailabilityService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &AvailabilityService{
		rules:       rules,
		cache:       newRuleCache(cacheTTL, now),
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *AvailabilityService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AvailabilityService", operation, attrs...)
}

// ListRules returns every rule, oldest first.
func (s *AvailabilityService) ListRules(ctx context.Context) ([]AvailabilityRule, error) {
	if s == nil {
		return nil, fmt.Errorf("AvailabilityService is nil")
	}
	rules, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].CreatedAt.Equal(rules[j].CreatedAt) {
			return rules[i].ID < rules[j].ID
		}
		return rules[i].CreatedAt.Before(rules[j].CreatedAt)
	})
	return rules, nil
}

// CreateRule validates and persists a new rule for administrators. A rule sharing
// (type, value) with an existing one fails with ErrDuplicateRule.
func (s *AvailabilityService) CreateRule(ctx context.Context, params CreateRuleParams) (rule AvailabilityRule, err error) {
	if s == nil {
		err = fmt.Errorf("AvailabilityService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateRule",
		"principal_id", params.Principal.UserID,
		"rule_type", string(params.Input.Type),
		"rule_value", params.Input.Value,
	)
	defer func() {
		if err != nil {
			logFailure(ctx, logger, "failed to create availability rule", err)
			return
		}
		logger.With("rule_id", rule.ID).InfoContext(ctx, "availability rule created")
	}()

	if !params.Principal.IsAdmin {
		err = ErrForbidden
		return
	}

	candidate, vErr := buildRule(params.Input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	if s.rules == nil {
		err = fmt.Errorf("rule repository not configured")
		return
	}

	var existing []AvailabilityRule
	existing, err = s.rules.ListRules(ctx)
	if err != nil {
		return
	}
	key := candidate.schedulerRule().NormalizedValue()
	for _, other := range existing {
		if other.Type == candidate.Type && other.schedulerRule().NormalizedValue() == key {
			err = fmt.Errorf("%w: %s %s", ErrDuplicateRule, candidate.Type, key)
			return
		}
	}

	candidate.ID = s.idGenerator()
	candidate.CreatedAt = s.now()
	candidate.UpdatedAt = candidate.CreatedAt

	rule, err = s.rules.CreateRule(ctx, candidate)
	if err != nil {
		err = mapRuleRepoError(err)
		return
	}
	s.cache.Invalidate()
	return
}

// UpdateRule applies a patch to the mutable fields of a rule. Type and value never change.
func (s *AvailabilityService) UpdateRule(ctx context.Context, params UpdateRuleParams) (rule AvailabilityRule, err error) {
	if s == nil {
		err = fmt.Errorf("AvailabilityService is nil")
		return
	}

	logger := s.loggerWith(ctx, "UpdateRule",
		"principal_id", params.Principal.UserID,
		"rule_id", params.RuleID,
	)
	defer func() {
		if err != nil {
			logFailure(ctx, logger, "failed to update availability rule", err)
			return
		}
		logger.InfoContext(ctx, "availability rule updated")
	}()

	if !params.Principal.IsAdmin {
		err = ErrForbidden
		return
	}
	if s.rules == nil {
		err = fmt.Errorf("rule repository not configured")
		return
	}

	var existing AvailabilityRule
	existing, err = s.rules.GetRule(ctx, params.RuleID)
	if err != nil {
		err = mapRuleRepoError(err)
		return
	}

	updated := existing
	patch := params.Patch
	if patch.Reason != nil {
		updated.Reason = strings.TrimSpace(*patch.Reason)
	}
	if patch.StartTime != nil {
		updated.StartTime = strings.TrimSpace(*patch.StartTime)
	}
	if patch.EndTime != nil {
		updated.EndTime = strings.TrimSpace(*patch.EndTime)
	}
	if patch.IsClosed != nil {
		updated.IsClosed = *patch.IsClosed
	}

	vErr := validateRuleHours(&updated)
	if vErr.HasErrors() {
		err = vErr
		return
	}
	updated.UpdatedAt = s.now()

	rule, err = s.rules.UpdateRule(ctx, updated)
	if err != nil {
		err = mapRuleRepoError(err)
		return
	}
	s.cache.Invalidate()
	return
}

// DeleteRule removes a rule for administrators.
func (s *AvailabilityService) DeleteRule(ctx context.Context, principal Principal, ruleID string) error {
	if s == nil {
		return fmt.Errorf("AvailabilityService is nil")
	}
	if !principal.IsAdmin {
		return ErrForbidden
	}
	if s.rules == nil {
		return fmt.Errorf("rule repository not configured")
	}

	logger := s.loggerWith(ctx, "DeleteRule",
		"principal_id", principal.UserID,
		"rule_id", ruleID,
	)

	if err := s.rules.DeleteRule(ctx, ruleID); err != nil {
		err = mapRuleRepoError(err)
		logFailure(ctx, logger, "failed to delete availability rule", err)
		return err
	}
	s.cache.Invalidate()

	logger.InfoContext(ctx, "availability rule deleted")
	return nil
}

// Resolve decides whether date is closed, open within a window, or unrestricted.
func (s *AvailabilityService) Resolve(ctx context.Context, date string) (scheduler.Resolution, error) {
	if s == nil {
		return scheduler.Resolution{}, fmt.Errorf("AvailabilityService is nil")
	}
	if _, err := scheduler.ParseDate(date); err != nil {
		return scheduler.Resolution{}, fieldError("date", "date must be YYYY-MM-DD")
	}

	rules, err := s.snapshot(ctx)
	if err != nil {
		return scheduler.Resolution{}, err
	}

	converted := make([]scheduler.Rule, 0, len(rules))
	for _, rule := range rules {
		converted = append(converted, rule.schedulerRule())
	}
	return scheduler.Resolve(date, converted)
}

func (s *AvailabilityService) snapshot(ctx context.Context) ([]AvailabilityRule, error) {
	rules, generation, ok := s.cache.Get()
	if ok {
		return rules, nil
	}
	if s.rules == nil {
		return nil, nil
	}
	rules, err := s.rules.ListRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("list availability rules: %w", err)
	}
	s.cache.Store(generation, rules)
	return cloneRules(rules), nil
}

func buildRule(input RuleInput) (AvailabilityRule, *ValidationError) {
	vErr := &ValidationError{}
	rule := AvailabilityRule{
		Type:      scheduler.RuleType(strings.TrimSpace(string(input.Type))),
		Value:     strings.TrimSpace(input.Value),
		Reason:    strings.TrimSpace(input.Reason),
		StartTime: strings.TrimSpace(input.StartTime),
		EndTime:   strings.TrimSpace(input.EndTime),
		IsClosed:  input.IsClosed,
	}

	if !rule.Type.Valid() {
		vErr.add("type", "type must be one of weekday, specific_date, weekly_hours, date_override")
		return rule, vErr
	}

	if rule.Type.Recurring() {
		parsed := scheduler.Rule{Type: rule.Type, Value: rule.Value}
		if parsed.Validate() != nil {
			vErr.add("value", "value must be a weekday index 0-6")
		} else {
			rule.Value = parsed.NormalizedValue()
		}
	} else if date, err := scheduler.ParseDate(rule.Value); err != nil {
		vErr.add("value", "value must be a date in YYYY-MM-DD format")
	} else {
		rule.Value = date.Format(scheduler.DateLayout)
	}

	if rule.Type.CarriesHours() {
		vErr.merge(validateRuleHours(&rule))
	} else {
		rule.StartTime, rule.EndTime, rule.IsClosed = "", "", true
	}

	return rule, vErr
}

// validateRuleHours checks and normalizes the window of an hour-carrying rule in place.
func validateRuleHours(rule *AvailabilityRule) *ValidationError {
	vErr := &ValidationError{}
	if !rule.Type.CarriesHours() {
		return vErr
	}
	if (rule.StartTime == "") != (rule.EndTime == "") {
		vErr.add("time", "start_time and end_time must be set together")
		return vErr
	}
	if rule.StartTime == "" {
		return vErr
	}

	start, err := scheduler.NormalizeTime(rule.StartTime)
	if err != nil {
		vErr.add("start_time", "start_time must be HH:MM")
	}
	end, err := scheduler.NormalizeTime(rule.EndTime)
	if err != nil {
		vErr.add("end_time", "end_time must be HH:MM")
	}
	if vErr.HasErrors() {
		return vErr
	}
	if _, _, err := (scheduler.Window{Start: start, End: end}).Bounds(); err != nil {
		vErr.add("time", "start_time must be before end_time")
		return vErr
	}
	rule.StartTime, rule.EndTime = start, end
	return vErr
}

func mapRuleRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrDuplicate) {
		return ErrDuplicateRule
	}
	if ErrorKind(err) != "unexpected" {
		return err
	}
	return fmt.Errorf("rule store: %w", err)
}
