package testutil

import (
	"sync"
	"time"
)

// Epoch is where a FakeClock starts unless told otherwise: 2026-01-01T00:00:00Z.
var Epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// FakeClock is a wall clock that only moves when a test moves it.
//
// Pass clk.Now wherever a component takes a `func() time.Time`, so control
// timestamps, sleep deadlines and checkpoint names are reproducible.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock creates a clock at Epoch.
func NewFakeClock() *FakeClock {
	return &FakeClock{now: Epoch}
}

// NewFakeClockAt creates a clock at t.
func NewFakeClockAt(t time.Time) *FakeClock {
	return &FakeClock{now: t}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new time.
func (c *FakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Set moves the clock to t.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
