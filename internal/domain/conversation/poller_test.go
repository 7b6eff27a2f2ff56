package conversation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workbenchd/workbench/internal/infrastructure/logging"
	"github.com/workbenchd/workbench/internal/shared/id"
	"github.com/workbenchd/workbench/internal/shared/sched"
)

type fakeSource struct {
	mu      sync.Mutex
	details []Key
	lists   int
	snap    Snapshot
}

func (f *fakeSource) Conversations(context.Context, string) ([]Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	return []Snapshot{f.snap}, nil
}

func (f *fakeSource) Detail(_ context.Context, key Key, _ int) (Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.details = append(f.details, key)
	snap := f.snap
	snap.Key = key
	return snap, nil
}

func (f *fakeSource) detailCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.details)
}

func newTestPoller(t *testing.T) (*Poller, *fakeSource, *sched.Fake) {
	t.Helper()
	src := &fakeSource{snap: Snapshot{Key: testKey, ProjectID: "p1", Status: StatusOngoing}}
	clock := sched.NewFake()
	reg := NewRegistry(logging.NewNop())
	p := NewPoller(src, reg, clock, logging.NewNop(), Intervals{
		Normal:    15 * time.Second,
		Live:      2 * time.Second,
		Aggregate: 60 * time.Second,
		TailCount: 20,
	})
	return p, src, clock
}

func TestWatchPollsImmediatelyThenAtCadence(t *testing.T) {
	p, src, clock := newTestPoller(t)
	pid := id.NewPanelID()

	p.Watch(pid, testKey, false)
	clock.Advance(0)
	assert.Equal(t, 1, src.detailCount(), "first poll seeds the registry")

	clock.Advance(15 * time.Second)
	assert.Equal(t, 2, src.detailCount())

	clock.Advance(30 * time.Second)
	assert.Equal(t, 4, src.detailCount())
}

func TestLiveCadencePollsFaster(t *testing.T) {
	p, src, clock := newTestPoller(t)
	pid := id.NewPanelID()

	p.Watch(pid, testKey, true)
	clock.Advance(0)
	require.Equal(t, 1, src.detailCount())

	clock.Advance(10 * time.Second)
	assert.Equal(t, 6, src.detailCount(), "live cadence is 2s")
}

func TestUnwatchStopsPolling(t *testing.T) {
	p, src, clock := newTestPoller(t)
	pid := id.NewPanelID()

	p.Watch(pid, testKey, false)
	clock.Advance(0)
	p.Unwatch(pid)

	clock.Advance(5 * time.Minute)
	assert.Equal(t, 1, src.detailCount())
}

func TestInvisibilityStopsTimerAndDowngradesLive(t *testing.T) {
	p, src, clock := newTestPoller(t)
	pid := id.NewPanelID()

	p.Watch(pid, testKey, true)
	clock.Advance(0)
	before := src.detailCount()

	p.SetVisible(pid, false)
	clock.Advance(time.Minute)
	assert.Equal(t, before, src.detailCount(), "hidden panels do not poll")

	// Returning to visibility restarts at normal cadence, not live.
	p.SetVisible(pid, true)
	clock.Advance(0)
	require.Equal(t, before+1, src.detailCount())

	clock.Advance(14 * time.Second)
	assert.Equal(t, before+1, src.detailCount(), "live cadence downgraded across the gap")
	clock.Advance(time.Second)
	assert.Equal(t, before+2, src.detailCount())
}

func TestScheduleFinalPollsCoversLagWindow(t *testing.T) {
	p, src, clock := newTestPoller(t)

	p.ScheduleFinalPolls(testKey)
	assert.Equal(t, 0, src.detailCount())

	clock.Advance(20 * time.Second)
	assert.Equal(t, 5, src.detailCount(), "re-polls at +0.5s, 2s, 5s, 10s, 20s")
}

func TestAggregatePollLoops(t *testing.T) {
	p, src, clock := newTestPoller(t)

	p.Start()
	clock.Advance(0)
	src.mu.Lock()
	first := src.lists
	src.mu.Unlock()
	require.Equal(t, 1, first)

	clock.Advance(2 * time.Minute)
	src.mu.Lock()
	total := src.lists
	src.mu.Unlock()
	assert.Equal(t, 3, total)
}

func TestStopTearsDownTimers(t *testing.T) {
	p, src, clock := newTestPoller(t)
	p.Start()
	p.Watch(id.NewPanelID(), testKey, false)
	clock.Advance(0)
	base := src.detailCount()

	p.Stop()
	clock.Advance(10 * time.Minute)
	assert.Equal(t, base, src.detailCount())
}
