// Package sched provides an injectable scheduler abstraction.
//
// Time-dependent orchestration logic (save debouncing, staggered command
// dispatch, delayed re-polls) runs against the Scheduler interface so tests
// can drive time deterministically with Fake instead of sleeping.
package sched

import (
	"sort"
	"sync"
	"time"
)

// Timer is a cancellable pending callback.
type Timer interface {
	// Stop cancels the timer. It reports whether the callback was
	// prevented from running.
	Stop() bool
}

// Scheduler schedules callbacks for future execution.
type Scheduler interface {
	// After runs fn once d has elapsed.
	After(d time.Duration, fn func()) Timer
	// Now returns the scheduler's current time.
	Now() time.Time
}

type realScheduler struct{}

type realTimer struct {
	t *time.Timer
}

func (t realTimer) Stop() bool { return t.t.Stop() }

func (realScheduler) After(d time.Duration, fn func()) Timer {
	return realTimer{t: time.AfterFunc(d, fn)}
}

func (realScheduler) Now() time.Time { return time.Now() }

// Real returns a Scheduler backed by the wall clock.
func Real() Scheduler { return realScheduler{} }

// Fake is a deterministic Scheduler for tests. Callbacks fire only when
// Advance moves the fake clock past their deadline, in deadline order.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	pending []*fakeTimer
	seq     int
}

type fakeTimer struct {
	f       *Fake
	due     time.Time
	seq     int
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// NewFake creates a fake scheduler starting at an arbitrary fixed time.
func NewFake() *Fake {
	return &Fake{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *Fake) After(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	t := &fakeTimer{f: f, due: f.now.Add(d), seq: f.seq, fn: fn}
	f.pending = append(f.pending, t)
	return t
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the clock forward by d, firing due callbacks in order.
// Callbacks may schedule further timers; those fire too if they fall
// within the advanced window.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	for {
		t := f.nextDue(target)
		if t == nil {
			break
		}
		f.mu.Lock()
		f.now = t.due
		t.fired = true
		f.mu.Unlock()
		t.fn()
	}

	f.mu.Lock()
	f.now = target
	f.mu.Unlock()
}

// Pending reports the number of armed timers.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.pending {
		if !t.fired && !t.stopped {
			n++
		}
	}
	return n
}

func (f *Fake) nextDue(target time.Time) *fakeTimer {
	f.mu.Lock()
	defer f.mu.Unlock()

	live := f.pending[:0]
	for _, t := range f.pending {
		if !t.fired && !t.stopped {
			live = append(live, t)
		}
	}
	f.pending = live

	sort.SliceStable(f.pending, func(i, j int) bool {
		if f.pending[i].due.Equal(f.pending[j].due) {
			return f.pending[i].seq < f.pending[j].seq
		}
		return f.pending[i].due.Before(f.pending[j].due)
	})

	for _, t := range f.pending {
		if !t.due.After(target) {
			return t
		}
	}
	return nil
}
