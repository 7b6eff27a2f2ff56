package ws

import (
	"sync"
	"time"

	"github.com/workbenchd/workbench/internal/shared/sched"
)

// Queue dispatches queued callbacks with a fixed inter-item delay. The
// activation engine routes navigate commands through it so many embedded
// views never load in the same tick. The first item of an idle queue
// runs immediately; each subsequent item waits out the delay.
type Queue struct {
	sched sched.Scheduler
	delay time.Duration

	mu       sync.Mutex
	items    []func()
	draining bool
}

// NewQueue creates a queue with the given inter-item delay.
func NewQueue(scheduler sched.Scheduler, delay time.Duration) *Queue {
	return &Queue{sched: scheduler, delay: delay}
}

// Enqueue adds one callback. Delivery order matches enqueue order;
// delivery timing is deliberately desynchronized.
func (q *Queue) Enqueue(fn func()) {
	q.mu.Lock()
	q.items = append(q.items, fn)
	if q.draining {
		q.mu.Unlock()
		return
	}
	q.draining = true
	q.mu.Unlock()
	q.drain()
}

// Len reports queued, not-yet-dispatched items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) drain() {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.draining = false
		q.mu.Unlock()
		return
	}
	fn := q.items[0]
	q.items = q.items[1:]
	q.mu.Unlock()

	fn()
	q.sched.After(q.delay, q.drain)
}
