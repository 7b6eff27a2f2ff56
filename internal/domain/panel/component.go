// Package panel maps a panel's declared component type and config to a
// concrete renderable unit. Pure dispatch, no state.
package panel

// Component is the closed set of panel component kinds. Values not in
// this set can still appear in persisted trees (legacy or corrupt
// configs); they render as a visible placeholder instead of failing.
type Component string

const (
	Conversation     Component = "conversation-view"
	ConversationLite Component = "conversation-view-lite"
	Browser          Component = "browser"
	FilePreview      Component = "file-preview"
	Notes            Component = "notes"
	MissionControl   Component = "mission-control"
	TeamOffice       Component = "team-office"
	Admin            Component = "admin"
)

// Known reports whether c is a recognized component kind.
func Known(c Component) bool {
	switch c {
	case Conversation, ConversationLite, Browser, FilePreview, Notes, MissionControl, TeamOffice, Admin:
		return true
	}
	return false
}

// All returns every recognized component kind.
func All() []Component {
	return []Component{
		Conversation, ConversationLite, Browser, FilePreview,
		Notes, MissionControl, TeamOffice, Admin,
	}
}
