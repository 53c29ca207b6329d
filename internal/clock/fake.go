package clock

import "time"

// FakeClock is a fixed time source for tests that exercise period
// completeness and ingestion timestamps.
type FakeClock struct {
	now time.Time
}

func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t.UTC()}
}

func (c *FakeClock) Now() time.Time {
	return c.now
}

// Advance moves the clock forward, e.g. past a period boundary.
func (c *FakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}
