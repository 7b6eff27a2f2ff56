package layout

import (
	"fmt"

	"github.com/workbenchd/workbench/internal/shared/id"
)

// DockLocation says where AddPanel places a new panel relative to its
// target tabset.
type DockLocation string

const (
	// DockCenter stacks the panel as a new tab of the target tabset.
	DockCenter DockLocation = "center"
	// DockRight opens a new tabset to the right of the target.
	DockRight DockLocation = "right"
	// DockBottom opens a new tabset below the target.
	DockBottom DockLocation = "bottom"
)

// Action is one entry of the layout mutation log. Actions are applied in
// issue order under the store's lock; each preserves the tree invariants.
type Action interface {
	Kind() string
	apply(t *Tree) error
}

// AddPanel inserts a panel at a dock location relative to a tabset.
type AddPanel struct {
	Panel    *Panel
	TargetID string // tabset id; empty means first tabset
	Location DockLocation
}

func (a AddPanel) Kind() string { return "add" }

func (a AddPanel) apply(t *Tree) error {
	if a.Panel == nil {
		return fmt.Errorf("%w: add with nil panel", ErrInvalid)
	}
	if a.Panel.Config == nil {
		a.Panel.Config = map[string]string{}
	}

	target := t.FindTabSet(a.TargetID)
	if a.TargetID == "" {
		if sets := t.TabSets(); len(sets) > 0 {
			target = sets[0]
		}
	}
	if target == nil && a.TargetID != "" {
		return fmt.Errorf("%w: tabset %q", ErrNotFound, a.TargetID)
	}

	if target == nil {
		// Empty tree: seed the root with a fresh tabset.
		ts := &TabSet{ID: NewTabSetID(), Tabs: []*Panel{a.Panel}}
		t.Root.Children = append(t.Root.Children, ts)
		rebalance(t.Root)
		return nil
	}

	switch a.Location {
	case DockCenter, "":
		target.Tabs = append(target.Tabs, a.Panel)
		target.Selected = len(target.Tabs) - 1
		return nil
	case DockRight:
		return dock(t, target, a.Panel, Row)
	case DockBottom:
		return dock(t, target, a.Panel, Column)
	default:
		return fmt.Errorf("%w: dock location %q", ErrInvalid, a.Location)
	}
}

// dock opens a new tabset beside target along the given orientation,
// either as a sibling in an aligned parent split or by wrapping target in
// a new split.
func dock(t *Tree, target *TabSet, p *Panel, orient Orientation) error {
	fresh := &TabSet{ID: NewTabSetID(), Tabs: []*Panel{p}}
	parent := t.parentOf(target)
	if parent == nil {
		return fmt.Errorf("%w: tabset %q detached from tree", ErrInvalid, target.ID)
	}

	if parent.Orientation == orient {
		idx := childIndex(parent, target)
		parent.Children = append(parent.Children, nil)
		copy(parent.Children[idx+2:], parent.Children[idx+1:])
		parent.Children[idx+1] = fresh
		rebalance(parent)
		return nil
	}

	wrap := &Split{
		ID:          NewSplitID(),
		Orientation: orient,
		Children:    []Node{target, fresh},
		Weights:     []int{WeightTotal / 2, WeightTotal - WeightTotal/2},
	}
	parent.Children[childIndex(parent, target)] = wrap
	return nil
}

func childIndex(s *Split, n Node) int {
	for i, c := range s.Children {
		if c == n {
			return i
		}
	}
	return -1
}

// RemovePanel deletes a panel, collapsing emptied tabsets and
// single-child splits.
type RemovePanel struct {
	PanelID id.PanelID
}

func (a RemovePanel) Kind() string { return "remove" }

func (a RemovePanel) apply(t *Tree) error {
	p, ts := t.FindPanel(a.PanelID)
	if p == nil {
		return fmt.Errorf("%w: panel %q", ErrNotFound, a.PanelID)
	}
	for i, tab := range ts.Tabs {
		if tab.ID == a.PanelID {
			ts.Tabs = append(ts.Tabs[:i], ts.Tabs[i+1:]...)
			break
		}
	}
	if ts.Selected >= len(ts.Tabs) {
		ts.Selected = len(ts.Tabs) - 1
	}
	if ts.Selected < 0 {
		ts.Selected = 0
	}
	if len(ts.Tabs) == 0 {
		removeNode(t, ts)
	}
	return nil
}

// removeNode detaches an empty node and collapses degenerate splits.
func removeNode(t *Tree, n Node) {
	parent := t.parentOf(n)
	if parent == nil {
		return // never remove the root
	}
	idx := childIndex(parent, n)
	if idx < 0 {
		return
	}
	parent.Children = append(parent.Children[:idx], parent.Children[idx+1:]...)
	rebalance(parent)

	if len(parent.Children) == 1 && t.parentOf(parent) != nil {
		grand := t.parentOf(parent)
		gidx := childIndex(grand, parent)
		grand.Children[gidx] = parent.Children[0]
	} else if len(parent.Children) == 0 {
		removeNode(t, parent)
	}
}

// SelectPanel makes a panel the selected tab of its tabset.
type SelectPanel struct {
	PanelID id.PanelID
}

func (a SelectPanel) Kind() string { return "select" }

func (a SelectPanel) apply(t *Tree) error {
	p, ts := t.FindPanel(a.PanelID)
	if p == nil {
		return fmt.Errorf("%w: panel %q", ErrNotFound, a.PanelID)
	}
	for i, tab := range ts.Tabs {
		if tab.ID == a.PanelID {
			ts.Selected = i
			return nil
		}
	}
	return fmt.Errorf("%w: panel %q", ErrNotFound, a.PanelID)
}

// UpdateConfig merges keys into a panel's config map.
type UpdateConfig struct {
	PanelID id.PanelID
	Config  map[string]string
}

func (a UpdateConfig) Kind() string { return "update-config" }

func (a UpdateConfig) apply(t *Tree) error {
	p, _ := t.FindPanel(a.PanelID)
	if p == nil {
		return fmt.Errorf("%w: panel %q", ErrNotFound, a.PanelID)
	}
	if p.Config == nil {
		p.Config = map[string]string{}
	}
	for k, v := range a.Config {
		p.Config[k] = v
	}
	return nil
}

// Resize replaces a split's weights. The new weights must parallel the
// children and sum to WeightTotal.
type Resize struct {
	SplitID string
	Weights []int
}

func (a Resize) Kind() string { return "resize" }

func (a Resize) apply(t *Tree) error {
	var target *Split
	t.Walk(func(n Node) {
		if s, ok := n.(*Split); ok && s.ID == a.SplitID {
			target = s
		}
	})
	if target == nil {
		return fmt.Errorf("%w: split %q", ErrNotFound, a.SplitID)
	}
	if len(a.Weights) != len(target.Children) {
		return fmt.Errorf("%w: %d weights for %d children", ErrInvalid, len(a.Weights), len(target.Children))
	}
	sum := 0
	for _, w := range a.Weights {
		if w < 0 {
			return fmt.Errorf("%w: negative weight", ErrInvalid)
		}
		sum += w
	}
	if sum != WeightTotal {
		return fmt.Errorf("%w: weights sum to %d, want %d", ErrInvalid, sum, WeightTotal)
	}
	target.Weights = append([]int(nil), a.Weights...)
	return nil
}

// MovePanel relocates a panel into another tabset, keeping its id.
type MovePanel struct {
	PanelID  id.PanelID
	TargetID string
}

func (a MovePanel) Kind() string { return "move" }

func (a MovePanel) apply(t *Tree) error {
	p, from := t.FindPanel(a.PanelID)
	if p == nil {
		return fmt.Errorf("%w: panel %q", ErrNotFound, a.PanelID)
	}
	to := t.FindTabSet(a.TargetID)
	if to == nil {
		return fmt.Errorf("%w: tabset %q", ErrNotFound, a.TargetID)
	}
	if from == to {
		return nil
	}
	for i, tab := range from.Tabs {
		if tab.ID == a.PanelID {
			from.Tabs = append(from.Tabs[:i], from.Tabs[i+1:]...)
			break
		}
	}
	if from.Selected >= len(from.Tabs) {
		from.Selected = len(from.Tabs) - 1
	}
	if from.Selected < 0 {
		from.Selected = 0
	}
	to.Tabs = append(to.Tabs, p)
	to.Selected = len(to.Tabs) - 1
	if len(from.Tabs) == 0 {
		removeNode(t, from)
	}
	return nil
}
