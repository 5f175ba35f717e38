package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RuleType tags the kind of availability rule.
type RuleType string

const (
	// RuleWeekday closes every occurrence of a weekday. Legacy kind, always a full closure.
	RuleWeekday RuleType = "weekday"
	// RuleSpecificDate closes a single date. Legacy kind, always a full closure.
	RuleSpecificDate RuleType = "specific_date"
	// RuleWeeklyHours sets operating hours (or a closure) for a weekday.
	RuleWeeklyHours RuleType = "weekly_hours"
	// RuleDateOverride sets operating hours (or a closure) for a single date.
	RuleDateOverride RuleType = "date_override"
)

// Valid reports whether t is a known rule kind.
func (t RuleType) Valid() bool {
	switch t {
	case RuleWeekday, RuleSpecificDate, RuleWeeklyHours, RuleDateOverride:
		return true
	}
	return false
}

// Recurring reports whether the rule value is a weekday index rather than a date.
func (t RuleType) Recurring() bool {
	return t == RuleWeekday || t == RuleWeeklyHours
}

// CarriesHours reports whether the kind may define an operating window.
func (t RuleType) CarriesHours() bool {
	return t == RuleWeeklyHours || t == RuleDateOverride
}

// Rule is the resolver's view of an availability rule.
type Rule struct {
	ID        string
	Type      RuleType
	Value     string
	StartTime string
	EndTime   string
	IsClosed  bool
}

// Validate checks the rule value against its kind and, for hour-carrying kinds, the window.
func (r Rule) Validate() error {
	if !r.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidRule, r.Type)
	}
	if r.Type.Recurring() {
		if _, err := parseWeekday(r.Value); err != nil {
			return err
		}
	} else if _, err := ParseDate(r.Value); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	if !r.Type.CarriesHours() || r.IsClosed {
		return nil
	}
	window, ok := r.window()
	if !ok {
		if (r.StartTime == "") != (r.EndTime == "") {
			return fmt.Errorf("%w: startTime and endTime must be set together", ErrInvalidRule)
		}
		return nil
	}
	if _, _, err := window.Bounds(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	return nil
}

// NormalizedValue returns the canonical form of the rule value used for duplicate detection.
func (r Rule) NormalizedValue() string {
	if r.Type.Recurring() {
		if day, err := parseWeekday(r.Value); err == nil {
			return strconv.Itoa(int(day))
		}
	}
	return strings.TrimSpace(r.Value)
}

func (r Rule) window() (Window, bool) {
	if r.StartTime == "" || r.EndTime == "" {
		return Window{}, false
	}
	return Window{Start: r.StartTime, End: r.EndTime}, true
}

func parseWeekday(value string) (time.Weekday, error) {
	day, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || day < 0 || day > 6 {
		return 0, fmt.Errorf("%w: weekday %q must be 0-6", ErrInvalidRule, value)
	}
	return time.Weekday(day), nil
}

// State is the outcome of resolving a date.
type State string

const (
	StateClosed       State = "closed"
	StateOpen         State = "open"
	StateUnrestricted State = "unrestricted"
)

// Resolution describes whether a date is bookable. Window is set only when State is StateOpen.
// RuleID names the rule that decided the outcome, empty for StateUnrestricted.
type Resolution struct {
	State  State
	Window Window
	RuleID string
}

// Closed reports whether the date cannot be booked.
func (r Resolution) Closed() bool {
	return r.State == StateClosed
}

// Resolve decides availability for date against the rule set.
//
// Precedence, first match wins:
//  1. date_override on the date: closed, or open with its window; without either it falls through.
//  2. specific_date on the date: closed.
//  3. weekly_hours on the weekday: closed, or open with its window; without either it falls through.
//  4. weekday on the weekday: closed.
//  5. otherwise unrestricted.
//
// Rules failing Validate are ignored.
func Resolve(date string, rules []Rule) (Resolution, error) {
	day, err := ParseDate(date)
	if err != nil {
		return Resolution{}, err
	}
	literal := day.Format(DateLayout)
	weekday := strconv.Itoa(int(day.Weekday()))

	valid := make([]Rule, 0, len(rules))
	for _, rule := range rules {
		if rule.Validate() == nil {
			valid = append(valid, rule)
		}
	}

	steps := []struct {
		kind  RuleType
		value string
	}{
		{RuleDateOverride, literal},
		{RuleSpecificDate, literal},
		{RuleWeeklyHours, weekday},
		{RuleWeekday, weekday},
	}

	for _, step := range steps {
		for _, rule := range valid {
			if rule.Type != step.kind || rule.NormalizedValue() != step.value {
				continue
			}
			if res, decided := decide(rule); decided {
				return res, nil
			}
		}
	}

	return Resolution{State: StateUnrestricted}, nil
}

func decide(rule Rule) (Resolution, bool) {
	if !rule.Type.CarriesHours() || rule.IsClosed {
		return Resolution{State: StateClosed, RuleID: rule.ID}, true
	}
	if window, ok := rule.window(); ok {
		start, _ := NormalizeTime(window.Start)
		end, _ := NormalizeTime(window.End)
		return Resolution{State: StateOpen, Window: Window{Start: start, End: end}, RuleID: rule.ID}, true
	}
	return Resolution{}, false
}

// Admits reports whether an HH:MM instant lies inside the operating window.
// Unrestricted dates admit every instant and closed dates none.
func (r Resolution) Admits(at string) (bool, error) {
	minutes, err := TimeToMinutes(at)
	if err != nil {
		return false, err
	}
	switch r.State {
	case StateClosed:
		return false, nil
	case StateOpen:
		start, end, err := r.Window.Bounds()
		if err != nil {
			return false, err
		}
		return start <= minutes && minutes < end, nil
	default:
		return true, nil
	}
}
