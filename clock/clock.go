// Package clock abstracts wall-clock time so atom aging (§5's atom_max_age
// computation, txn.Atom.Age) and the background commit daemon's wake
// scheduling can be driven deterministically in tests, instead of a test
// sleeping real wall time to observe an atom cross its age threshold.
package clock

import (
	"sync"
	"time"
)

// Clock is satisfied by RealClock and SimulatedClock. txn.Manager takes one
// at construction and threads it through every Atom it creates.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

var (
	_ Clock = RealClock{}
	_ Clock = (*SimulatedClock)(nil)
)

// RealClock is the production clock: every mount and format run constructs
// its txn.Manager with one (through vfs.Open / vfs.Format).
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// pendingWake is a still-unfired After call waiting for SimulatedClock's
// time to reach wakeAt.
type pendingWake struct {
	wakeAt time.Time
	ch     chan time.Time
}

// SimulatedClock lets a test push an atom's recorded start time arbitrarily
// far into the past without a real sleep, so atom_max_age commit-forcing
// (daemon.Daemon.sweep -> txn.Manager.AtomShouldCommit) is testable on a
// fixed schedule instead of a flaky real-time one.
type SimulatedClock struct {
	mu      sync.Mutex
	now     time.Time
	pending []*pendingWake
}

// NewSimulatedClock returns a clock fixed at start until advanced.
func NewSimulatedClock(start time.Time) *SimulatedClock {
	return &SimulatedClock{now: start}
}

func (c *SimulatedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock's current time forward by d, firing any After
// channels whose target has now been reached — this is how a test ages an
// atom past atom_max_age without waiting for it in real time.
func (c *SimulatedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.wake()
}

func (c *SimulatedClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	target := c.now.Add(d)
	if !target.After(c.now) {
		ch <- c.now
		return ch
	}
	c.pending = append(c.pending, &pendingWake{wakeAt: target, ch: ch})
	return ch
}

// wake fires and drops every pending wait whose target time has arrived.
// Called with mu held.
func (c *SimulatedClock) wake() {
	var still []*pendingWake
	for _, p := range c.pending {
		if !c.now.Before(p.wakeAt) {
			p.ch <- p.wakeAt
		} else {
			still = append(still, p)
		}
	}
	c.pending = still
}
