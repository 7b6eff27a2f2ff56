package conversation

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/workbenchd/workbench/internal/infrastructure/logging"
	"github.com/workbenchd/workbench/internal/infrastructure/monitoring"
)

// Registry is the single source of truth for what every conversation is
// doing right now, assembled from polling and push events. The two signal
// sources are independent: either being unavailable degrades freshness
// but never corrupts state derived from the other.
type Registry struct {
	log     *logging.Logger
	metrics *monitoring.Metrics

	mu       sync.RWMutex
	convs    map[Key]*Conversation
	onChange func(Conversation)
}

// NewRegistry creates an empty registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		log:   log,
		convs: make(map[Key]*Conversation),
	}
}

// WithMetrics attaches metrics tracking.
func (r *Registry) WithMetrics(m *monitoring.Metrics) *Registry {
	r.metrics = m
	return r
}

// SetOnChange registers a callback fired (outside the lock) whenever a
// conversation's attention state or status changes. Used by the control
// channel to fan out transitions.
func (r *Registry) SetOnChange(fn func(Conversation)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

// Get returns a copy of one conversation.
func (r *Registry) Get(key Key) (Conversation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.convs[key]
	if !ok {
		return Conversation{}, false
	}
	return *c, true
}

// List returns copies of all conversations, newest first. An empty
// projectID means all projects.
func (r *Registry) List(projectID string) []Conversation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Conversation, 0, len(r.convs))
	for _, c := range r.convs {
		if projectID != "" && c.ProjectID != projectID {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

// Active returns conversations for the active views: everything not
// manually finished, regardless of backend status or attention state.
func (r *Registry) Active(projectID string) []Conversation {
	var out []Conversation
	for _, c := range r.List(projectID) {
		if !c.ManualFinished {
			out = append(out, c)
		}
	}
	return out
}

// ContinueTargets returns conversations eligible for bulk "continue":
// ongoing and not manually finished.
func (r *Registry) ContinueTargets(projectID string) []Conversation {
	var out []Conversation
	for _, c := range r.List(projectID) {
		if !c.ManualFinished && c.Status == StatusOngoing {
			out = append(out, c)
		}
	}
	return out
}

// ApplyPoll reconciles one poll snapshot into the registry. Poll-derived
// transitions: pending artifacts raise needs_attention with their reason;
// a completed snapshot settles working to idle{done} even when the "done"
// push never arrived; a clean snapshot clears needs_attention except
// rate_limit, which never auto-clears from polling alone.
func (r *Registry) ApplyPoll(snap Snapshot) {
	r.mu.Lock()
	c, ok := r.convs[snap.Key]
	if !ok {
		c = &Conversation{
			Key:       snap.Key,
			ProjectID: snap.ProjectID,
			State:     StateIdle,
			CreatedAt: snap.CreatedAt,
		}
		r.convs[snap.Key] = c
	}
	before := *c

	c.Status = snap.Status
	c.StreamingID = snap.StreamingID
	c.Messages = snap.Messages
	if snap.ProjectID != "" {
		c.ProjectID = snap.ProjectID
	}
	if !snap.UpdatedAt.IsZero() {
		c.UpdatedAt = snap.UpdatedAt
	}
	if !snap.LastPromptAt.IsZero() {
		c.LastPromptAt = snap.LastPromptAt
	}

	switch {
	case snap.PendingPermission:
		c.State, c.Reason = StateNeedsAttention, ReasonPermission
	case snap.PendingPlan:
		c.State, c.Reason = StateNeedsAttention, ReasonPlan
	case snap.PendingQuestion:
		c.State, c.Reason = StateNeedsAttention, ReasonQuestion
	case snap.StreamingID != "":
		c.State, c.Reason = StateWorking, ReasonNone
	case c.State == StateWorking && snap.Status == StatusCompleted:
		// The "done" push got lost; the poll signal covers the gap.
		c.State, c.Reason = StateIdle, ReasonDone
	case c.State == StateNeedsAttention && c.Reason != ReasonRateLimit:
		// Fresh poll shows the condition cleared.
		c.State, c.Reason = StateIdle, ReasonNone
	}

	changed := before.State != c.State || before.Reason != c.Reason || before.Status != c.Status
	after := *c
	fn := r.onChange
	r.mu.Unlock()

	r.updateStateGauge()
	if changed && fn != nil {
		fn(after)
	}
}

// ApplyEvent applies one push event. It reports whether the caller should
// schedule the delayed re-polls that capture the final message after a
// "done" despite eventual-consistency lag upstream.
func (r *Registry) ApplyEvent(ev Event) (repoll bool) {
	r.mu.Lock()
	c, ok := r.convs[ev.Key]
	if !ok {
		c = &Conversation{Key: ev.Key, Status: StatusOngoing, State: StateIdle, CreatedAt: time.Now()}
		r.convs[ev.Key] = c
	}
	before := *c

	switch ev.Type {
	case EventProcessing:
		c.State, c.Reason = StateWorking, ReasonNone
		c.StreamingID = ev.StreamingID
	case EventNeedsAttention:
		reason := ev.Reason
		if reason == ReasonNone {
			reason = ReasonQuestion
		}
		c.State, c.Reason = StateNeedsAttention, reason
		if r.metrics != nil {
			r.metrics.AttentionEvents.WithLabelValues(string(reason)).Inc()
		}
	case EventDone:
		c.State, c.Reason = StateIdle, ReasonDone
		c.StreamingID = ""
		repoll = true
	case EventRateLimitCleared:
		if c.State == StateNeedsAttention && c.Reason == ReasonRateLimit {
			c.State, c.Reason = StateIdle, ReasonNone
		}
	case EventResponseReady:
		repoll = true
	default:
		r.mu.Unlock()
		r.log.Warn("unknown push event type", zap.String("type", string(ev.Type)))
		return false
	}
	c.UpdatedAt = time.Now()

	changed := before.State != c.State || before.Reason != c.Reason
	after := *c
	fn := r.onChange
	r.mu.Unlock()

	r.updateStateGauge()
	if changed && fn != nil {
		fn(after)
	}
	return repoll
}

// MarkSeen acknowledges a conversation after the operator views it:
// idle{done} resets to neutral idle so a cleared conversation cannot
// re-alert, and non-rate-limit attention clears since selecting the tab
// counts as acting on it. Rate limiting stays until an explicit clear.
func (r *Registry) MarkSeen(key Key) bool {
	return r.mutate(key, func(c *Conversation) {
		if c.State == StateIdle && c.Reason == ReasonDone {
			c.Reason = ReasonNone
		} else if c.State == StateNeedsAttention && c.Reason != ReasonRateLimit {
			c.State, c.Reason = StateIdle, ReasonNone
		}
	})
}

// RetryAfterRateLimit is the explicit user retry that clears rate_limit.
func (r *Registry) RetryAfterRateLimit(key Key) bool {
	return r.mutate(key, func(c *Conversation) {
		if c.State == StateNeedsAttention && c.Reason == ReasonRateLimit {
			c.State, c.Reason = StateIdle, ReasonNone
		}
	})
}

// NoteSent optimistically moves a conversation to working after the UI
// sends a message, without waiting for the upstream round trip.
func (r *Registry) NoteSent(key Key) bool {
	return r.mutate(key, func(c *Conversation) {
		c.State, c.Reason = StateWorking, ReasonNone
		c.LastPromptAt = time.Now()
	})
}

// SetManualFinished sets the user's terminal flag. Idempotent.
func (r *Registry) SetManualFinished(key Key, finished bool) bool {
	return r.mutate(key, func(c *Conversation) {
		c.ManualFinished = finished
	})
}

// SetCustomName sets the user-assigned subject. Idempotent.
func (r *Registry) SetCustomName(key Key, name string) bool {
	return r.mutate(key, func(c *Conversation) {
		c.CustomName = name
	})
}

// Delete removes a conversation from the registry. The backing log
// deletion happens upstream; this only drops local bookkeeping.
func (r *Registry) Delete(key Key) bool {
	r.mu.Lock()
	_, ok := r.convs[key]
	delete(r.convs, key)
	r.mu.Unlock()
	r.updateStateGauge()
	return ok
}

func (r *Registry) mutate(key Key, fn func(*Conversation)) bool {
	r.mu.Lock()
	c, ok := r.convs[key]
	if !ok {
		r.mu.Unlock()
		return false
	}
	before := *c
	fn(c)
	c.UpdatedAt = time.Now()
	changed := before.State != c.State || before.Reason != c.Reason ||
		before.ManualFinished != c.ManualFinished || before.CustomName != c.CustomName
	after := *c
	notify := r.onChange
	r.mu.Unlock()

	r.updateStateGauge()
	if changed && notify != nil {
		notify(after)
	}
	return true
}

func (r *Registry) updateStateGauge() {
	if r.metrics == nil {
		return
	}
	counts := map[State]int{StateIdle: 0, StateWorking: 0, StateNeedsAttention: 0}
	r.mu.RLock()
	for _, c := range r.convs {
		counts[c.State]++
	}
	r.mu.RUnlock()
	for state, n := range counts {
		r.metrics.ConversationsByState.WithLabelValues(string(state)).Set(float64(n))
	}
}
