package scheduler

import (
	"fmt"
	"time"
)

// Slot is a bookable instant on the day grid.
type Slot struct {
	Time     string
	Conflict bool
}

// SlotGrid is the fixed grid of instants offered to requesters.
type SlotGrid struct {
	Interval time.Duration
	Open     string
	Close    string
}

// DefaultSlotGrid offers half-hour slots from 08:00 through 20:30.
func DefaultSlotGrid() SlotGrid {
	return SlotGrid{Interval: 30 * time.Minute, Open: "08:00", Close: "21:00"}
}

// Validate checks the grid bounds and interval.
func (g SlotGrid) Validate() error {
	if g.Interval < time.Minute || g.Interval%time.Minute != 0 {
		return fmt.Errorf("%w: slot interval %s must be a whole number of minutes", ErrInvalidFormat, g.Interval)
	}
	if _, _, err := (Window{Start: g.Open, End: g.Close}).Bounds(); err != nil {
		return err
	}
	return nil
}

// Slots lists the grid instants inside the resolved operating window, flagging
// the ones that fall within an approved booking. Closed dates yield no slots and
// unrestricted dates yield the whole grid.
func (g SlotGrid) Slots(res Resolution, bookings []Booking) ([]Slot, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if res.Closed() {
		return nil, nil
	}

	step := int(g.Interval / time.Minute)
	origin, to, _ := Window{Start: g.Open, End: g.Close}.Bounds()
	from := origin
	if res.State == StateOpen {
		start, end, err := res.Window.Bounds()
		if err != nil {
			return nil, err
		}
		if start > from {
			// stay on the grid
			from = origin + (start-origin+step-1)/step*step
		}
		to = min(to, end)
	}

	var slots []Slot
	for at := from; at < to; at += step {
		label := FormatMinutes(at)
		conflicts, err := DetectInstantConflicts(bookings, label)
		if err != nil {
			return nil, err
		}
		slots = append(slots, Slot{Time: label, Conflict: len(conflicts) > 0})
	}
	return slots, nil
}
