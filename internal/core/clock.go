package core

import (
	"sync"
	"time"
)

// Clock supplies the timestamps stamped on versions and resolves "today".
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// FixedClock returns a settable instant. Each call to Now advances it by Step
// so consecutive versions never share a timestamp.
type FixedClock struct {
	mu   sync.Mutex
	now  time.Time
	Step time.Duration
}

func NewFixedClock(now time.Time) *FixedClock {
	return &FixedClock{now: now.UTC(), Step: time.Microsecond}
}

func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	c.now = c.now.Add(c.Step)
	return now
}

// Set moves the clock to t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}

// Today resolves the current calendar day of clock.
func Today(clock Clock) Date {
	return DateOf(clock.Now())
}
