// Package resilience provides a circuit breaker guarding the upstream
// REST collaborators. A flapping agent backend trips the breaker so the
// pollers stop hammering it; polls resume once the probe succeeds.
package resilience

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrOpen is returned while the breaker rejects calls outright.
	ErrOpen = errors.New("circuit breaker open")
	// ErrThrottled is returned when half-open probe capacity is exhausted.
	ErrThrottled = errors.New("circuit breaker half-open limit reached")
)

// State is the breaker state.
type State int

const (
	Closed State = iota
	HalfOpen
	Open
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case HalfOpen:
		return "half-open"
	case Open:
		return "open"
	}
	return "unknown"
}

// Counts tracks call outcomes within the current generation.
type Counts struct {
	Calls                uint32
	Successes            uint32
	Failures             uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// Settings configures breaker behavior. Zero values get sane defaults.
type Settings struct {
	// MaxProbes bounds calls allowed through in half-open state.
	MaxProbes uint32
	// Interval resets counts while closed; a slow trickle of failures
	// spread over hours should not trip the breaker.
	Interval time.Duration
	// Cooldown is how long the breaker stays open before probing.
	Cooldown time.Duration
	// TripAfter is the consecutive-failure threshold.
	TripAfter uint32
	// OnStateChange, if set, observes transitions.
	OnStateChange func(name string, from, to State)
}

// Breaker implements a three-state circuit breaker.
type Breaker struct {
	name     string
	settings Settings

	mu         sync.Mutex
	state      State
	counts     Counts
	generation uint64
	deadline   time.Time
}

// New creates a breaker with the given settings.
func New(name string, settings Settings) *Breaker {
	if settings.MaxProbes == 0 {
		settings.MaxProbes = 1
	}
	if settings.Interval == 0 {
		settings.Interval = 60 * time.Second
	}
	if settings.Cooldown == 0 {
		settings.Cooldown = 30 * time.Second
	}
	if settings.TripAfter == 0 {
		settings.TripAfter = 5
	}
	b := &Breaker{name: name, settings: settings}
	b.newGeneration(time.Now())
	return b
}

// Name returns the breaker's name.
func (b *Breaker) Name() string { return b.name }

// State returns the current state, accounting for cooldown expiry.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, _ := b.current(time.Now())
	return s
}

// Counts returns a copy of the current generation's counts.
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Do runs fn if the breaker allows it, recording the outcome.
func (b *Breaker) Do(fn func() error) error {
	gen, err := b.admit()
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			b.settle(gen, false)
			panic(r)
		}
	}()
	callErr := fn()
	b.settle(gen, callErr == nil)
	return callErr
}

func (b *Breaker) admit() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	state, gen := b.current(now)

	switch {
	case state == Open:
		return gen, ErrOpen
	case state == HalfOpen && b.counts.Calls >= b.settings.MaxProbes:
		return gen, ErrThrottled
	}
	b.counts.Calls++
	return gen, nil
}

func (b *Breaker) settle(gen uint64, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	state, current := b.current(now)
	if current != gen {
		// Outcome from a previous generation; state already moved on.
		return
	}

	if success {
		b.counts.Successes++
		b.counts.ConsecutiveSuccesses++
		b.counts.ConsecutiveFailures = 0
		if state == HalfOpen && b.counts.ConsecutiveSuccesses >= b.settings.MaxProbes {
			b.transition(Closed, now)
		}
		return
	}

	b.counts.Failures++
	b.counts.ConsecutiveFailures++
	b.counts.ConsecutiveSuccesses = 0
	switch state {
	case Closed:
		if b.counts.ConsecutiveFailures >= b.settings.TripAfter {
			b.transition(Open, now)
		}
	case HalfOpen:
		b.transition(Open, now)
	}
}

// current resolves the effective state, rolling generations on expiry.
// Caller must hold mu.
func (b *Breaker) current(now time.Time) (State, uint64) {
	switch b.state {
	case Closed:
		if !b.deadline.IsZero() && b.deadline.Before(now) {
			b.newGeneration(now)
		}
	case Open:
		if b.deadline.Before(now) {
			b.transition(HalfOpen, now)
		}
	}
	return b.state, b.generation
}

// transition moves to a new state. Caller must hold mu.
func (b *Breaker) transition(to State, now time.Time) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.newGeneration(now)
	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, from, to)
	}
}

// newGeneration resets counts and deadlines. Caller must hold mu.
func (b *Breaker) newGeneration(now time.Time) {
	b.generation++
	b.counts = Counts{}
	switch b.state {
	case Closed:
		b.deadline = now.Add(b.settings.Interval)
	case Open:
		b.deadline = now.Add(b.settings.Cooldown)
	default:
		b.deadline = time.Time{}
	}
}
