package layout

import (
	"github.com/workbenchd/workbench/internal/domain/panel"
	"github.com/workbenchd/workbench/internal/shared/id"
)

// DefaultTree builds the built-in fallback layout, parameterized by the
// project's active directory: a conversation pane on the left, file
// preview over notes on the right. Used whenever the persisted document
// is missing or unparseable.
func DefaultTree(activeDir string) *Tree {
	conv := &TabSet{
		ID: NewTabSetID(),
		Tabs: []*Panel{{
			ID:        id.NewPanelID(),
			Component: panel.Conversation,
			Name:      "Conversation",
			Config:    map[string]string{},
		}},
	}
	preview := &TabSet{
		ID: NewTabSetID(),
		Tabs: []*Panel{{
			ID:        id.NewPanelID(),
			Component: panel.FilePreview,
			Name:      "Files",
			Config:    map[string]string{"watchPath": activeDir},
		}},
	}
	notes := &TabSet{
		ID: NewTabSetID(),
		Tabs: []*Panel{{
			ID:        id.NewPanelID(),
			Component: panel.Notes,
			Name:      "Notes",
			Config:    map[string]string{},
		}},
	}

	side := &Split{
		ID:          NewSplitID(),
		Orientation: Column,
		Children:    []Node{preview, notes},
		Weights:     []int{60, 40},
	}
	root := &Split{
		ID:          NewSplitID(),
		Orientation: Row,
		Children:    []Node{conv, side},
		Weights:     []int{65, 35},
	}
	return &Tree{Root: root}
}
