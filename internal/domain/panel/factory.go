package panel

import (
	"github.com/workbenchd/workbench/internal/shared/id"
)

// Unit is one renderable unit handed to the UI layer. The panel id
// namespaces per-panel local state (last route, scroll position) so it
// survives layout reshuffles.
type Unit struct {
	PanelID     id.PanelID        `json:"panelId"`
	Component   Component         `json:"component"`
	Title       string            `json:"title"`
	Route       string            `json:"route"`
	Props       map[string]string `json:"props"`
	Visible     bool              `json:"visible"`
	Placeholder bool              `json:"placeholder,omitempty"`
}

// Render maps a component kind and its config to a renderable unit. The
// match over kinds is exhaustive; anything outside the closed set yields
// a visible placeholder so one bad config never breaks the whole tree.
func Render(component Component, config map[string]string, panelID id.PanelID, visible bool) Unit {
	if config == nil {
		config = map[string]string{}
	}
	unit := Unit{
		PanelID:   panelID,
		Component: component,
		Route:     "/panel/" + panelID.String(),
		Props:     config,
		Visible:   visible,
	}

	switch component {
	case Conversation:
		unit.Title = "Conversation"
		if name := config["customName"]; name != "" {
			unit.Title = name
		}
	case ConversationLite:
		unit.Title = "Conversation (lite)"
	case Browser:
		unit.Title = config["url"]
		if unit.Title == "" {
			unit.Title = "Browser"
		}
	case FilePreview:
		unit.Title = config["watchPath"]
		if unit.Title == "" {
			unit.Title = "Files"
		}
	case Notes:
		unit.Title = "Notes"
	case MissionControl:
		unit.Title = "Mission Control"
	case TeamOffice:
		unit.Title = "Team Office"
	case Admin:
		unit.Title = "Admin"
	default:
		unit.Title = "Unknown panel: " + string(component)
		unit.Placeholder = true
	}
	return unit
}
