package olsr

import (
	"sort"
	"sync"
	"time"
)

// Clock is the discrete-event clock & timer service (§2, §5): it answers
// Now() and lets callers schedule a callback for a future instant. It is
// the generalization of the teacher's single time.Ticker-driven loop to
// arbitrary schedule-at-instant timers, real or virtual.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) func() bool
}

// RealClock backs the production engine with the wall clock and stdlib
// timers.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) AfterFunc(d time.Duration, f func()) func() bool {
	t := time.AfterFunc(d, f)
	return t.Stop
}

// VirtualClock is a manually-advanced clock for deterministic tests (used
// by the simnet test harness): callbacks fire only when Advance is called,
// in the order they were scheduled for, ties broken by insertion order —
// matching §5's "events scheduled for the same instant fire in insertion
// order".
type VirtualClock struct {
	mu      sync.Mutex
	now     time.Time
	seq     int
	pending []*virtualTimer
}

type virtualTimer struct {
	at       time.Time
	seq      int
	f        func()
	cancelled bool
}

// NewVirtualClock starts a virtual clock at the given instant.
func NewVirtualClock(start time.Time) *VirtualClock {
	return &VirtualClock{now: start}
}

func (c *VirtualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *VirtualClock) AfterFunc(d time.Duration, f func()) func() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &virtualTimer{at: c.now.Add(d), seq: c.seq, f: f}
	c.seq++
	c.pending = append(c.pending, t)
	return func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		already := t.cancelled
		t.cancelled = true
		return !already
	}
}

// Advance moves the clock forward by d, running every due callback in
// (instant, insertion-order) order, including callbacks newly scheduled by
// callbacks that already ran during this Advance.
func (c *VirtualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		sort.SliceStable(c.pending, func(i, j int) bool {
			if c.pending[i].at.Equal(c.pending[j].at) {
				return c.pending[i].seq < c.pending[j].seq
			}
			return c.pending[i].at.Before(c.pending[j].at)
		})
		var due *virtualTimer
		var rest []*virtualTimer
		for _, t := range c.pending {
			if due == nil && !t.at.After(target) && !t.cancelled {
				due = t
				continue
			}
			if due == nil && !t.at.After(target) && t.cancelled {
				continue
			}
			rest = append(rest, t)
		}
		c.pending = rest
		if due == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = due.at
		c.mu.Unlock()
		due.f()
	}
}
