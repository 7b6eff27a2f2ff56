package conversation

import "time"

// Status is the upstream backend's lifecycle classification.
type Status string

const (
	StatusOngoing   Status = "ongoing"
	StatusCompleted Status = "completed"
)

// State is the operator-facing attention state.
type State string

const (
	StateIdle           State = "idle"
	StateWorking        State = "working"
	StateNeedsAttention State = "needs_attention"
)

// Reason qualifies an attention state.
type Reason string

const (
	ReasonNone       Reason = ""
	ReasonPlan       Reason = "plan"
	ReasonQuestion   Reason = "question"
	ReasonPermission Reason = "permission"
	ReasonRateLimit  Reason = "rate_limit"
	ReasonError      Reason = "error"
	ReasonDone       Reason = "done"
)

// Key identifies one conversation across accounts.
type Key struct {
	AccountID string `json:"accountId"`
	SessionID string `json:"sessionId"`
}

// Conversation is the registry's view of one session. Status, State,
// Reason, and StreamingID are continuously recomputed from polling and
// push events; ManualFinished and CustomName are the only fields the UI
// writes directly.
type Conversation struct {
	Key
	ProjectID      string    `json:"projectId"`
	Status         Status    `json:"status"`
	StreamingID    string    `json:"streamingId,omitempty"`
	State          State     `json:"attentionState"`
	Reason         Reason    `json:"attentionReason,omitempty"`
	CustomName     string    `json:"customName,omitempty"`
	ManualFinished bool      `json:"manualFinished"`
	Messages       int       `json:"messageCount"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	LastPromptAt   time.Time `json:"lastPromptAt,omitempty"`
}

// Snapshot is one conversation's poll result from the upstream backend:
// the list row plus, for open conversations, tail-derived pending
// artifacts.
type Snapshot struct {
	Key
	ProjectID         string
	Status            Status
	StreamingID       string
	Messages          int
	CreatedAt         time.Time
	UpdatedAt         time.Time
	LastPromptAt      time.Time
	PendingPermission bool
	PendingPlan       bool
	PendingQuestion   bool
}

// EventType is a push event kind from the upstream backend.
type EventType string

const (
	EventProcessing       EventType = "processing"
	EventNeedsAttention   EventType = "needs_attention"
	EventDone             EventType = "done"
	EventRateLimitCleared EventType = "rate_limit_cleared"
	EventResponseReady    EventType = "response_ready"
)

// Event is one push signal.
type Event struct {
	Type        EventType `json:"type"`
	Key         Key       `json:"key"`
	Reason      Reason    `json:"reason,omitempty"`
	StreamingID string    `json:"streamingId,omitempty"`
}
