// Package clock provides the shared ledger clock. All lock-period and
// reward-accrual calculations read time through it, never from a local
// wall clock per caller, so concurrently submitted operations observe a
// consistent, non-decreasing time value.
package clock

import (
	"sync"
	"time"
)

// Clock is the ledger time source.
type Clock interface {
	Now() time.Time
}

// System reads the wall clock but clamps results so that observed ledger
// time never decreases, even across NTP step adjustments.
type System struct {
	mu   sync.Mutex
	last time.Time
}

// NewSystem creates a monotonically non-decreasing wall clock.
func NewSystem() *System {
	return &System{}
}

func (c *System) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UTC()
	if now.Before(c.last) {
		return c.last
	}
	c.last = now
	return now
}

// Manual is a hand-advanced clock for tests.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual creates a manual clock starting at the given instant.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start.UTC()}
}

func (c *Manual) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward. Negative durations are ignored to
// preserve the non-decreasing guarantee.
func (c *Manual) Advance(d time.Duration) {
	if d < 0 {
		return
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
