package clock

import (
	"sync"
	"time"
)

// Clock stamps CreatedAt values. Timestamps are UTC, truncated to the
// microsecond precision Postgres keeps, and strictly increasing within the
// process.
type Clock struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

func New(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC().Truncate(time.Microsecond)
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}
