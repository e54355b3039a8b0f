/*
Copyright (C) 2026 Slateboard Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package clock provides the kiosk's notion of current time: the system
// clock corrected by a server-derived offset, or a fixed simulated time for
// deterministic testing.
package clock

import (
	"sync"
	"time"
)

// Clock hands out the current wall-clock time. A simulated time, when set,
// takes precedence over both the offset and the system clock.
type Clock struct {
	mu        sync.RWMutex
	offset    time.Duration
	simulated time.Time
	useSim    bool
}

// New creates a clock with no offset.
func New() *Clock {
	return &Clock{}
}

// Now returns the corrected current time.
func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.useSim {
		return c.simulated
	}
	return time.Now().Add(c.offset)
}

// SetOffset records the measured drift between the local clock and the
// trusted source.
func (c *Clock) SetOffset(offset time.Duration) {
	c.mu.Lock()
	c.offset = offset
	c.mu.Unlock()
}

// Offset returns the currently applied drift correction.
func (c *Clock) Offset() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offset
}

// SetSimulatedTime pins Now to a fixed instant.
func (c *Clock) SetSimulatedTime(t time.Time) {
	c.mu.Lock()
	c.simulated = t
	c.useSim = true
	c.mu.Unlock()
}

// ClearSimulatedTime returns the clock to offset-corrected system time.
func (c *Clock) ClearSimulatedTime() {
	c.mu.Lock()
	c.useSim = false
	c.mu.Unlock()
}
