package clock

import (
	"sync"
	"time"
)

// Clock is the minimal time source used by the sync scheduler so tests can
// substitute a deterministic implementation.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// Wall is the real system clock.
type Wall struct{}

func (Wall) Now() time.Time { return time.Now() }

// SimulatedClock is a deterministic, manual-advance clock.
// It starts at startTime and only moves when Advance is called.
type SimulatedClock struct {
	mu      sync.Mutex
	current time.Time
}

// NewSimulatedClock creates a new simulated clock starting at the given time.
func NewSimulatedClock(startTime time.Time) *SimulatedClock {
	return &SimulatedClock{current: startTime}
}

// Now implements Clock.
func (c *SimulatedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Advance moves the clock forward by the provided duration.
// Negative durations are ignored.
func (c *SimulatedClock) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	c.current = c.current.Add(d)
	c.mu.Unlock()
}
