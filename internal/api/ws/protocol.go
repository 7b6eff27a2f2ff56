// Package ws implements the control protocol: a single shared WebSocket
// channel per workspace window multiplexing outbound state reports and
// inbound imperative commands.
package ws

import (
	"github.com/workbenchd/workbench/internal/domain/activation"
	"github.com/workbenchd/workbench/internal/domain/conversation"
	"github.com/workbenchd/workbench/internal/domain/panel"
)

// Inbound command kinds.
const (
	MsgPanelAdd        = "panel-add"
	MsgPanelRemove     = "panel-remove"
	MsgSelectTab       = "select-tab"
	MsgEnsurePanel     = "ensure-panel"
	MsgLayoutReset     = "layout-reset"
	MsgActivate        = "activate-conversations"
	MsgProjectSwitch   = "project-switch"
	MsgSnapshotRequest = "snapshot-request"
	MsgPing            = "ping"
)

// Outbound message kinds.
const (
	MsgStateReport          = "state-report"
	MsgNavigate             = "navigate"
	MsgPanelAdded           = "panel-added"
	MsgPanelRemoved         = "panel-removed"
	MsgTabSelected          = "tab-selected"
	MsgLayoutResetDone      = "layout-reset-done"
	MsgActivationResult     = "activation-result"
	MsgProjectSwitched      = "project-switched"
	MsgConversationUpdate   = "conversation-update"
	MsgConversationFinished = "conversation-finished"
	MsgConversationDeleted  = "conversation-deleted"
	MsgPong                 = "pong"

	MsgPanelAddFailed      = "panel-add-failed"
	MsgPanelRemoveFailed   = "panel-remove-failed"
	MsgSelectTabFailed     = "select-tab-failed"
	MsgEnsurePanelFailed   = "ensure-panel-failed"
	MsgProjectSwitchFailed = "project-switch-failed"
	MsgError               = "error"
)

// Message is the wire envelope for both directions. Fields are optional
// per kind; every failure ack carries the original target so the caller
// can retry or alert.
type Message struct {
	Type string `json:"type"`

	// Command targets and payloads.
	Target    string               `json:"target,omitempty"`
	PanelID   string               `json:"panelId,omitempty"`
	Component string               `json:"component,omitempty"`
	Config    map[string]string    `json:"config,omitempty"`
	Location  string               `json:"location,omitempty"`
	Plan      []activation.Binding `json:"plan,omitempty"`
	ProjectID string               `json:"projectId,omitempty"`

	// Navigate payload.
	Key *conversation.Key `json:"key,omitempty"`

	// Conversation transition payload.
	Conversation *conversation.Conversation `json:"conversation,omitempty"`

	// State report payload.
	Panels          []panel.Unit `json:"panels,omitempty"`
	ActiveProjectID string       `json:"activeProjectId,omitempty"`

	// Results and failures.
	Result        *activation.Result `json:"result,omitempty"`
	PanelsToClose []string           `json:"panelsToClose,omitempty"`
	Error         string             `json:"error,omitempty"`

	Timestamp int64 `json:"timestamp,omitempty"`
}
