package conversation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workbenchd/workbench/internal/infrastructure/logging"
)

var testKey = Key{AccountID: "acct-1", SessionID: "sess-1"}

func pollSnap(mutate func(*Snapshot)) Snapshot {
	snap := Snapshot{
		Key:       testKey,
		ProjectID: "p1",
		Status:    StatusOngoing,
		UpdatedAt: time.Now(),
	}
	if mutate != nil {
		mutate(&snap)
	}
	return snap
}

func TestApplyPollCreatesIdleConversation(t *testing.T) {
	r := NewRegistry(logging.NewNop())
	r.ApplyPoll(pollSnap(nil))

	c, ok := r.Get(testKey)
	require.True(t, ok)
	assert.Equal(t, StateIdle, c.State)
	assert.Equal(t, ReasonNone, c.Reason)
	assert.Equal(t, "p1", c.ProjectID)
}

func TestApplyPollRaisesAttentionFromArtifacts(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Snapshot)
		reason Reason
	}{
		{"permission", func(s *Snapshot) { s.PendingPermission = true }, ReasonPermission},
		{"plan", func(s *Snapshot) { s.PendingPlan = true }, ReasonPlan},
		{"question", func(s *Snapshot) { s.PendingQuestion = true }, ReasonQuestion},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewRegistry(logging.NewNop())
			r.ApplyPoll(pollSnap(tc.mutate))

			c, _ := r.Get(testKey)
			assert.Equal(t, StateNeedsAttention, c.State)
			assert.Equal(t, tc.reason, c.Reason)
		})
	}
}

func TestApplyPollStreamingMeansWorking(t *testing.T) {
	r := NewRegistry(logging.NewNop())
	r.ApplyPoll(pollSnap(func(s *Snapshot) { s.StreamingID = "stream-9" }))

	c, _ := r.Get(testKey)
	assert.Equal(t, StateWorking, c.State)
}

func TestCompletedPollSettlesWorkingWhenDonePushLost(t *testing.T) {
	r := NewRegistry(logging.NewNop())
	r.ApplyEvent(Event{Type: EventProcessing, Key: testKey, StreamingID: "stream-9"})

	// The "done" push never arrives; the poll shows the run finished.
	r.ApplyPoll(pollSnap(func(s *Snapshot) { s.Status = StatusCompleted }))

	c, _ := r.Get(testKey)
	assert.Equal(t, StatusCompleted, c.Status)
	assert.Equal(t, StateIdle, c.State)
	assert.Equal(t, ReasonDone, c.Reason)
}

func TestCompletedPollKeepsWorkingWhileStillStreaming(t *testing.T) {
	r := NewRegistry(logging.NewNop())
	r.ApplyEvent(Event{Type: EventProcessing, Key: testKey, StreamingID: "stream-9"})

	r.ApplyPoll(pollSnap(func(s *Snapshot) {
		s.Status = StatusCompleted
		s.StreamingID = "stream-9"
	}))

	c, _ := r.Get(testKey)
	assert.Equal(t, StateWorking, c.State)
}

func TestCleanPollClearsAttention(t *testing.T) {
	r := NewRegistry(logging.NewNop())
	r.ApplyPoll(pollSnap(func(s *Snapshot) { s.PendingQuestion = true }))
	r.ApplyPoll(pollSnap(nil))

	c, _ := r.Get(testKey)
	assert.Equal(t, StateIdle, c.State)
	assert.Equal(t, ReasonNone, c.Reason)
}

func TestRateLimitSurvivesCleanPolls(t *testing.T) {
	r := NewRegistry(logging.NewNop())
	r.ApplyEvent(Event{Type: EventNeedsAttention, Key: testKey, Reason: ReasonRateLimit})

	// Polling cannot see rate limiting, so clean polls must not clear it.
	for i := 0; i < 5; i++ {
		r.ApplyPoll(pollSnap(nil))
	}
	c, _ := r.Get(testKey)
	assert.Equal(t, StateNeedsAttention, c.State)
	assert.Equal(t, ReasonRateLimit, c.Reason)

	r.ApplyEvent(Event{Type: EventRateLimitCleared, Key: testKey})
	c, _ = r.Get(testKey)
	assert.Equal(t, StateIdle, c.State)
}

func TestRetryAfterRateLimit(t *testing.T) {
	r := NewRegistry(logging.NewNop())
	r.ApplyEvent(Event{Type: EventNeedsAttention, Key: testKey, Reason: ReasonRateLimit})

	require.True(t, r.RetryAfterRateLimit(testKey))
	c, _ := r.Get(testKey)
	assert.Equal(t, StateIdle, c.State)
	assert.Equal(t, ReasonNone, c.Reason)
}

func TestDoneEventRequestsRepoll(t *testing.T) {
	r := NewRegistry(logging.NewNop())
	repoll := r.ApplyEvent(Event{Type: EventDone, Key: testKey})

	assert.True(t, repoll)
	c, _ := r.Get(testKey)
	assert.Equal(t, StateIdle, c.State)
	assert.Equal(t, ReasonDone, c.Reason)
	assert.Empty(t, c.StreamingID)
}

func TestResponseReadyRequestsRepollWithoutTransition(t *testing.T) {
	r := NewRegistry(logging.NewNop())
	r.ApplyEvent(Event{Type: EventProcessing, Key: testKey, StreamingID: "s"})

	repoll := r.ApplyEvent(Event{Type: EventResponseReady, Key: testKey})
	assert.True(t, repoll)
	c, _ := r.Get(testKey)
	assert.Equal(t, StateWorking, c.State)
}

func TestUnknownEventIgnored(t *testing.T) {
	r := NewRegistry(logging.NewNop())
	repoll := r.ApplyEvent(Event{Type: EventType("mystery"), Key: testKey})
	assert.False(t, repoll)
}

func TestMarkSeenAcknowledgesDone(t *testing.T) {
	r := NewRegistry(logging.NewNop())
	r.ApplyEvent(Event{Type: EventDone, Key: testKey})

	require.True(t, r.MarkSeen(testKey))
	c, _ := r.Get(testKey)
	assert.Equal(t, StateIdle, c.State)
	assert.Equal(t, ReasonNone, c.Reason)
}

func TestMarkSeenClearsAttentionExceptRateLimit(t *testing.T) {
	r := NewRegistry(logging.NewNop())
	r.ApplyEvent(Event{Type: EventNeedsAttention, Key: testKey, Reason: ReasonQuestion})

	r.MarkSeen(testKey)
	c, _ := r.Get(testKey)
	assert.Equal(t, StateIdle, c.State)

	r.ApplyEvent(Event{Type: EventNeedsAttention, Key: testKey, Reason: ReasonRateLimit})
	r.MarkSeen(testKey)
	c, _ = r.Get(testKey)
	assert.Equal(t, StateNeedsAttention, c.State)
	assert.Equal(t, ReasonRateLimit, c.Reason)
}

func TestNoteSentMovesToWorking(t *testing.T) {
	r := NewRegistry(logging.NewNop())
	r.ApplyPoll(pollSnap(nil))

	require.True(t, r.NoteSent(testKey))
	c, _ := r.Get(testKey)
	assert.Equal(t, StateWorking, c.State)
	assert.False(t, c.LastPromptAt.IsZero())
}

func TestManualFinishedExcludedFromActive(t *testing.T) {
	r := NewRegistry(logging.NewNop())
	other := Key{AccountID: "acct-1", SessionID: "sess-2"}
	r.ApplyPoll(pollSnap(nil))
	r.ApplyPoll(pollSnap(func(s *Snapshot) { s.Key = other }))

	require.True(t, r.SetManualFinished(testKey, true))
	// Idempotent re-apply.
	require.True(t, r.SetManualFinished(testKey, true))

	active := r.Active("p1")
	require.Len(t, active, 1)
	assert.Equal(t, other, active[0].Key)

	// Still listed overall.
	assert.Len(t, r.List("p1"), 2)
}

func TestContinueTargetsSkipCompletedAndFinished(t *testing.T) {
	r := NewRegistry(logging.NewNop())
	done := Key{AccountID: "acct-1", SessionID: "sess-done"}
	finished := Key{AccountID: "acct-1", SessionID: "sess-fin"}
	r.ApplyPoll(pollSnap(nil))
	r.ApplyPoll(pollSnap(func(s *Snapshot) { s.Key = done; s.Status = StatusCompleted }))
	r.ApplyPoll(pollSnap(func(s *Snapshot) { s.Key = finished }))
	r.SetManualFinished(finished, true)

	targets := r.ContinueTargets("p1")
	require.Len(t, targets, 1)
	assert.Equal(t, testKey, targets[0].Key)
}

func TestOnChangeFiresOnTransitionsOnly(t *testing.T) {
	r := NewRegistry(logging.NewNop())
	var events []Conversation
	r.SetOnChange(func(c Conversation) { events = append(events, c) })

	r.ApplyPoll(pollSnap(nil))                               // status "" -> ongoing
	r.ApplyEvent(Event{Type: EventProcessing, Key: testKey}) // idle -> working
	r.ApplyEvent(Event{Type: EventProcessing, Key: testKey}) // no change
	r.ApplyEvent(Event{Type: EventNeedsAttention, Key: testKey, Reason: ReasonPlan}) // working -> attention

	require.Len(t, events, 3)
	assert.Equal(t, StateIdle, events[0].State)
	assert.Equal(t, StateWorking, events[1].State)
	assert.Equal(t, StateNeedsAttention, events[2].State)
	assert.Equal(t, ReasonPlan, events[2].Reason)
}

func TestDeleteDropsConversation(t *testing.T) {
	r := NewRegistry(logging.NewNop())
	r.ApplyPoll(pollSnap(nil))

	require.True(t, r.Delete(testKey))
	_, ok := r.Get(testKey)
	assert.False(t, ok)
	assert.False(t, r.Delete(testKey))
}
