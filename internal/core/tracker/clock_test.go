package tracker_test

import (
	"sync"
	"time"

	"worktally/internal/core/tracker"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (clock *fakeClock) Now() time.Time {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	return clock.now
}

func (clock *fakeClock) AfterFunc(d time.Duration, fn func()) tracker.Timer {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	timer := &fakeTimer{clock: clock, at: clock.now.Add(d), fn: fn}
	clock.timers = append(clock.timers, timer)
	return timer
}

func (clock *fakeClock) Advance(d time.Duration) {
	clock.mu.Lock()
	clock.now = clock.now.Add(d)
	clock.mu.Unlock()
}

// FireDue runs every due callback synchronously and returns how many ran.
func (clock *fakeClock) FireDue() int {
	clock.mu.Lock()
	var due []*fakeTimer
	for _, timer := range clock.timers {
		if !timer.stopped && !timer.fired && !timer.at.After(clock.now) {
			timer.fired = true
			due = append(due, timer)
		}
	}
	clock.mu.Unlock()

	for _, timer := range due {
		timer.fn()
	}
	return len(due)
}

// Pending counts scheduled callbacks that have neither fired nor been stopped.
func (clock *fakeClock) Pending() int {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	count := 0
	for _, timer := range clock.timers {
		if !timer.stopped && !timer.fired {
			count++
		}
	}
	return count
}

// Run advances one second at a time, firing the tick after each step.
func (clock *fakeClock) Run(seconds int) {
	for i := 0; i < seconds; i++ {
		clock.Advance(time.Second)
		clock.FireDue()
	}
}

func (timer *fakeTimer) Stop() bool {
	timer.clock.mu.Lock()
	defer timer.clock.mu.Unlock()
	if timer.stopped || timer.fired {
		return false
	}
	timer.stopped = true
	return true
}
