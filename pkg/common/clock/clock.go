// Package clock provides the logical clock that versions every write.
package clock

import "sync"

// VersionClock hands out strictly increasing versions. Unlike a wall clock two
// writes can never observe the same value, and Observe lets the engine resume
// above any version already persisted in a table.
type VersionClock struct {
	counter uint64
	mu      sync.Mutex
}

// NewVersionClock creates a clock whose first Tick returns start+1
func NewVersionClock(start uint64) *VersionClock {
	return &VersionClock{counter: start}
}

// Tick increments the clock and returns the new version
func (c *VersionClock) Tick() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counter++
	return c.counter
}

// Observe moves the clock forward so that the next Tick is above seen
func (c *VersionClock) Observe(seen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seen > c.counter {
		c.counter = seen
	}
}

// Current returns the last version handed out without incrementing the clock
func (c *VersionClock) Current() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counter
}
