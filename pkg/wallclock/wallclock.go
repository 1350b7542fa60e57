// Package wallclock abstracts the parts of package time the sampling loops
// depend on, so tests can control apparent time.
package wallclock

import (
	"sync"
	"time"
)

type Clock interface {
	After(d time.Duration) <-chan time.Time
	Now() time.Time
}

type wallClock struct{}

// After indirects time.After.
func (wallClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// Now indirects time.Now.
func (wallClock) Now() time.Time {
	return time.Now()
}

// Real is the Clock backed by package time.
var Real Clock = wallClock{}

// Fake is a Clock whose timers fire immediately. Every call to After moves
// Now forward by the requested duration, so a loop that sleeps N times for d
// observes N*d of elapsed time without waiting.
type Fake struct {
	mu    sync.Mutex
	now   time.Time
	slept time.Duration
	waits int
}

func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.slept += d
	f.waits++
	now := f.now
	f.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Slept returns the total duration requested through After.
func (f *Fake) Slept() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.slept
}

// Waits returns how many times After was called.
func (f *Fake) Waits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.waits
}
