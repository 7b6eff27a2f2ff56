package ws

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workbenchd/workbench/internal/shared/sched"
)

func TestQueueFirstItemRunsImmediately(t *testing.T) {
	clock := sched.NewFake()
	q := NewQueue(clock, 300*time.Millisecond)

	var fired []int
	q.Enqueue(func() { fired = append(fired, 1) })

	assert.Equal(t, []int{1}, fired, "an idle queue dispatches inline")
}

func TestQueueStaggersSubsequentItems(t *testing.T) {
	clock := sched.NewFake()
	q := NewQueue(clock, 300*time.Millisecond)

	var fired []int
	for i := 1; i <= 4; i++ {
		n := i
		q.Enqueue(func() { fired = append(fired, n) })
	}
	require.Equal(t, []int{1}, fired)

	clock.Advance(300 * time.Millisecond)
	assert.Equal(t, []int{1, 2}, fired)

	clock.Advance(299 * time.Millisecond)
	assert.Equal(t, []int{1, 2}, fired, "next item waits the full delay")

	clock.Advance(time.Millisecond)
	assert.Equal(t, []int{1, 2, 3}, fired)

	clock.Advance(time.Second)
	assert.Equal(t, []int{1, 2, 3, 4}, fired)
	assert.Equal(t, 0, q.Len())
}

func TestQueueGoesIdleAndRestartsInline(t *testing.T) {
	clock := sched.NewFake()
	q := NewQueue(clock, 300*time.Millisecond)

	var fired []string
	q.Enqueue(func() { fired = append(fired, "a") })
	clock.Advance(time.Second)

	// Queue drained; the next enqueue runs immediately again.
	q.Enqueue(func() { fired = append(fired, "b") })
	assert.Equal(t, []string{"a", "b"}, fired)
}
