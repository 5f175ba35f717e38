package testfixtures

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/example/appointment-desk/internal/scheduler"
)

// Clock is a manual time source. With a non-zero step every reading moves the
// clock forward, so records created in sequence get strictly increasing timestamps.
type Clock struct {
	mu   sync.Mutex
	at   time.Time
	step time.Duration
}

// NewClock starts a clock at start, or at ReferenceTime when start is zero.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{at: start}
}

// Ticking returns a clock starting at start that advances by step after each reading.
func Ticking(start time.Time, step time.Duration) *Clock {
	c := NewClock(start)
	c.step = step
	return c
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	current := c.at
	c.at = c.at.Add(c.step)
	return current
}

// Peek reads the clock without ticking it.
func (c *Clock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.at = c.at.Add(d)
	c.mu.Unlock()
}

// Date is the clock's current calendar date in UTC.
func (c *Clock) Date() string {
	return c.Peek().UTC().Format(scheduler.DateLayout)
}

// Sequence returns an id generator yielding prefix-1, prefix-2, ...
func Sequence(prefix string) func() string {
	var n atomic.Uint64
	return func() string {
		return fmt.Sprintf("%s-%d", prefix, n.Add(1))
	}
}
