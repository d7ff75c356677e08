// Package throttle implements the per-route rate counter: a fixed window
// that starts at the first message after an idle period and resets once it
// is a full window old.
package throttle

import (
	"sync"
	"time"
)

// Window is the counting period. The limit applies to messages accepted
// since the window epoch, not to a sliding interpolation.
const Window = 60 * time.Second

// Counter counts accepted messages against a per-window limit.
// maxRate <= 0 disables limiting; the counter still tracks totals for
// the routing dump.
type Counter struct {
	mu          sync.Mutex
	maxRate     int
	epoch       time.Time
	windowCount int
	totalCount  int64

	// now is swapped in tests.
	now func() time.Time
}

// NewCounter builds a Counter with the given per-window limit.
func NewCounter(maxRate int) *Counter {
	return &Counter{maxRate: maxRate, now: time.Now}
}

// Throttled reports whether the next message would exceed the limit.
// When it does not, the message is counted as accepted. A clock that
// moved backwards past the epoch also resets the window.
func (c *Counter) Throttled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if now.Sub(c.epoch) >= Window || now.Before(c.epoch) {
		c.epoch = now
		c.windowCount = 0
	}
	if c.maxRate > 0 && c.windowCount >= c.maxRate {
		return true
	}
	c.windowCount++
	c.totalCount++
	return false
}

// Snapshot is a point-in-time view of a Counter for the routing dump.
type Snapshot struct {
	MaxRate     int       `json:"maxRate"`
	Epoch       time.Time `json:"epoch"`
	WindowCount int       `json:"windowCount"`
	TotalCount  int64     `json:"totalCount"`
}

// Snapshot returns the current counter state. The window count is not
// rolled forward: an expired window reports its final tally until the
// next accepted message resets it.
func (c *Counter) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		MaxRate:     c.maxRate,
		Epoch:       c.epoch,
		WindowCount: c.windowCount,
		TotalCount:  c.totalCount,
	}
}
