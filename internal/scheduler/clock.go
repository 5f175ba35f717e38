package scheduler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidFormat is returned when a wall-clock value is not HH:MM or a date is not YYYY-MM-DD.
	ErrInvalidFormat = errors.New("scheduler: invalid format")
	// ErrInvalidRule is returned when an availability rule cannot take part in resolution.
	ErrInvalidRule = errors.New("scheduler: invalid rule")
)

// DateLayout is the calendar date layout used by appointments and rules.
const DateLayout = "2006-01-02"

// MinutesPerDay bounds every minute offset produced by TimeToMinutes.
const MinutesPerDay = 24 * 60

// TimeToMinutes parses an HH:MM wall-clock value into minutes since midnight.
func TimeToMinutes(value string) (int, error) {
	hourPart, minutePart, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok || hourPart == "" || minutePart == "" || strings.Contains(minutePart, ":") {
		return 0, fmt.Errorf("%w: %q is not HH:MM", ErrInvalidFormat, value)
	}
	hour, ok := clockField(hourPart)
	if !ok || hour > 23 {
		return 0, fmt.Errorf("%w: hour in %q must be 0-23", ErrInvalidFormat, value)
	}
	minute, ok := clockField(minutePart)
	if !ok || minute > 59 {
		return 0, fmt.Errorf("%w: minute in %q must be 0-59", ErrInvalidFormat, value)
	}
	return hour*60 + minute, nil
}

// clockField parses one or two ASCII digits.
func clockField(part string) (int, bool) {
	if len(part) == 0 || len(part) > 2 {
		return 0, false
	}
	for i := 0; i < len(part); i++ {
		if part[i] < '0' || part[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(part)
	return n, err == nil
}

// FormatMinutes renders minutes since midnight as zero padded HH:MM.
func FormatMinutes(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// NormalizeTime parses and re-renders a wall-clock value, so "9:05" becomes "09:05".
func NormalizeTime(value string) (string, error) {
	minutes, err := TimeToMinutes(value)
	if err != nil {
		return "", err
	}
	return FormatMinutes(minutes), nil
}

// IntervalsOverlap reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
// Touching endpoints do not overlap.
func IntervalsOverlap(aStart, aEnd, bStart, bEnd int) bool {
	return aStart < bEnd && aEnd > bStart
}

// ParseDate parses a YYYY-MM-DD calendar date in the single implicit local zone (UTC).
func ParseDate(value string) (time.Time, error) {
	date, err := time.ParseInLocation(DateLayout, strings.TrimSpace(value), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is not YYYY-MM-DD", ErrInvalidFormat, value)
	}
	return date, nil
}

// ParseMonth parses a YYYY-MM month and returns the half-open date range it covers.
func ParseMonth(value string) (string, string, error) {
	start, err := time.ParseInLocation("2006-01", strings.TrimSpace(value), time.UTC)
	if err != nil {
		return "", "", fmt.Errorf("%w: %q is not YYYY-MM", ErrInvalidFormat, value)
	}
	return start.Format(DateLayout), start.AddDate(0, 1, 0).Format(DateLayout), nil
}

// Window is a half-open wall-clock interval [Start, End) on a single date.
type Window struct {
	Start string
	End   string
}

// Bounds converts the window into minute offsets and checks Start < End.
func (w Window) Bounds() (int, int, error) {
	start, err := TimeToMinutes(w.Start)
	if err != nil {
		return 0, 0, err
	}
	end, err := TimeToMinutes(w.End)
	if err != nil {
		return 0, 0, err
	}
	if start >= end {
		return 0, 0, fmt.Errorf("%w: window %s must start before it ends", ErrInvalidFormat, w)
	}
	return start, end, nil
}

// IsZero reports whether neither bound is set.
func (w Window) IsZero() bool {
	return w.Start == "" && w.End == ""
}

func (w Window) String() string {
	return w.Start + "-" + w.End
}
