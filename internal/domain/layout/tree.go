package layout

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"github.com/workbenchd/workbench/internal/domain/panel"
	"github.com/workbenchd/workbench/internal/shared/id"
)

// WeightTotal is the invariant sum of sibling weights within any split.
const WeightTotal = 100

// Orientation is a split direction.
type Orientation string

const (
	Row    Orientation = "row"
	Column Orientation = "column"
)

// Node is one node of the layout tree: a Split, a TabSet, or nothing else.
type Node interface {
	NodeID() string
	node()
}

// Split holds an ordered list of weighted children. Weights are parallel
// to Children and always sum to WeightTotal.
type Split struct {
	ID          string
	Orientation Orientation
	Children    []Node
	Weights     []int
}

func (s *Split) NodeID() string { return s.ID }
func (s *Split) node()          {}

// TabSet holds an ordered list of panels with one selected.
type TabSet struct {
	ID       string
	Selected int
	Tabs     []*Panel
}

func (ts *TabSet) NodeID() string { return ts.ID }
func (ts *TabSet) node()          {}

// Panel is one addressable tab hosting a component instance. The ID is
// assigned once and survives reorder and move.
type Panel struct {
	ID        id.PanelID
	Component panel.Component
	Name      string
	Config    map[string]string
}

// Tree is the rooted, acyclic split-pane structure of one project's
// workspace. The root is always a Split.
type Tree struct {
	Root *Split
}

// NewSplitID generates an id for a structural node.
func NewSplitID() string { return "split_" + uuid.NewString() }

// NewTabSetID generates an id for a tabset node.
func NewTabSetID() string { return "ts_" + uuid.NewString() }

var (
	// ErrNotFound indicates a mutation target that does not exist in the tree.
	ErrNotFound = errors.New("layout: target not found")
	// ErrInvalid indicates a structurally invalid mutation.
	ErrInvalid = errors.New("layout: invalid mutation")
)

// Walk visits every node depth-first, parents before children.
func (t *Tree) Walk(fn func(Node)) {
	if t.Root == nil {
		return
	}
	walk(t.Root, fn)
}

func walk(n Node, fn func(Node)) {
	fn(n)
	if s, ok := n.(*Split); ok {
		for _, c := range s.Children {
			walk(c, fn)
		}
	}
}

// Panels returns every panel in document order.
func (t *Tree) Panels() []*Panel {
	var out []*Panel
	t.Walk(func(n Node) {
		if ts, ok := n.(*TabSet); ok {
			out = append(out, ts.Tabs...)
		}
	})
	return out
}

// VisiblePanels returns panels that are the selected tab of their tabset.
// Visibility is derived from tree position, never stored.
func (t *Tree) VisiblePanels() []*Panel {
	var out []*Panel
	t.Walk(func(n Node) {
		if ts, ok := n.(*TabSet); ok {
			if ts.Selected >= 0 && ts.Selected < len(ts.Tabs) {
				out = append(out, ts.Tabs[ts.Selected])
			}
		}
	})
	return out
}

// TabSets returns every tabset in document order.
func (t *Tree) TabSets() []*TabSet {
	var out []*TabSet
	t.Walk(func(n Node) {
		if ts, ok := n.(*TabSet); ok {
			out = append(out, ts)
		}
	})
	return out
}

// CountSplits returns the number of split nodes.
func (t *Tree) CountSplits() int {
	n := 0
	t.Walk(func(node Node) {
		if _, ok := node.(*Split); ok {
			n++
		}
	})
	return n
}

// FindTabSet locates a tabset by id.
func (t *Tree) FindTabSet(tsID string) *TabSet {
	for _, ts := range t.TabSets() {
		if ts.ID == tsID {
			return ts
		}
	}
	return nil
}

// FindPanel locates a panel and its containing tabset.
func (t *Tree) FindPanel(panelID id.PanelID) (*Panel, *TabSet) {
	for _, ts := range t.TabSets() {
		for _, tab := range ts.Tabs {
			if tab.ID == panelID {
				return tab, ts
			}
		}
	}
	return nil, nil
}

// parentOf returns the split containing n, or nil for the root.
func (t *Tree) parentOf(n Node) *Split {
	var parent *Split
	t.Walk(func(cand Node) {
		s, ok := cand.(*Split)
		if !ok {
			return
		}
		for _, c := range s.Children {
			if c == n {
				parent = s
			}
		}
	})
	return parent
}

// Validate checks the structural invariants: parallel weights summing to
// WeightTotal in every split, and globally unique panel and node ids.
func (t *Tree) Validate() error {
	if t.Root == nil {
		return fmt.Errorf("%w: nil root", ErrInvalid)
	}
	nodeIDs := map[string]bool{}
	panelIDs := map[id.PanelID]bool{}
	var err error
	t.Walk(func(n Node) {
		if err != nil {
			return
		}
		if nodeIDs[n.NodeID()] {
			err = fmt.Errorf("%w: duplicate node id %q", ErrInvalid, n.NodeID())
			return
		}
		nodeIDs[n.NodeID()] = true

		switch v := n.(type) {
		case *Split:
			if len(v.Weights) != len(v.Children) {
				err = fmt.Errorf("%w: split %s has %d weights for %d children", ErrInvalid, v.ID, len(v.Weights), len(v.Children))
				return
			}
			if len(v.Children) > 0 {
				sum := 0
				for _, w := range v.Weights {
					sum += w
				}
				if sum != WeightTotal {
					err = fmt.Errorf("%w: split %s weights sum to %d", ErrInvalid, v.ID, sum)
				}
			}
		case *TabSet:
			for _, tab := range v.Tabs {
				if panelIDs[tab.ID] {
					err = fmt.Errorf("%w: duplicate panel id %q", ErrInvalid, tab.ID)
					return
				}
				panelIDs[tab.ID] = true
			}
		}
	})
	return err
}

// Clone deep-copies the tree via the wire codec.
func (t *Tree) Clone() *Tree {
	data, err := Encode(t)
	if err != nil {
		// A tree that made it into memory always encodes; an empty tree
		// is the safe degradation either way.
		return &Tree{Root: &Split{ID: NewSplitID(), Orientation: Row}}
	}
	clone, err := Decode(data)
	if err != nil {
		return &Tree{Root: &Split{ID: NewSplitID(), Orientation: Row}}
	}
	return clone
}

// rebalance assigns even weights summing to WeightTotal, remainder to the
// leading children.
func rebalance(s *Split) {
	n := len(s.Children)
	s.Weights = make([]int, n)
	if n == 0 {
		return
	}
	base := WeightTotal / n
	rem := WeightTotal % n
	for i := range s.Weights {
		s.Weights[i] = base
		if i < rem {
			s.Weights[i]++
		}
	}
}

// wire types for the persisted JSON document.

type nodeWire struct {
	Type        string      `json:"type"`
	ID          string      `json:"id"`
	Orientation Orientation `json:"orientation,omitempty"`
	Weights     []int       `json:"weights,omitempty"`
	Children    []nodeWire  `json:"children,omitempty"`
	Selected    *int        `json:"selected,omitempty"`
	Tabs        []panelWire `json:"tabs,omitempty"`
}

type panelWire struct {
	ID        string            `json:"id"`
	Component string            `json:"component"`
	Name      string            `json:"name,omitempty"`
	Config    map[string]string `json:"config,omitempty"`
}

// Encode serializes the tree to its persisted JSON form.
func Encode(t *Tree) ([]byte, error) {
	if t == nil || t.Root == nil {
		return nil, fmt.Errorf("%w: nil tree", ErrInvalid)
	}
	return sonic.Marshal(toWire(t.Root))
}

// Decode parses a persisted JSON document into a tree and validates it.
func Decode(data []byte) (*Tree, error) {
	var w nodeWire
	if err := sonic.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("layout: parse tree: %w", err)
	}
	root, err := fromWire(w)
	if err != nil {
		return nil, err
	}
	split, ok := root.(*Split)
	if !ok {
		// A bare tabset root is legal on the wire; wrap it.
		split = &Split{ID: NewSplitID(), Orientation: Row, Children: []Node{root}, Weights: []int{WeightTotal}}
	}
	t := &Tree{Root: split}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func toWire(n Node) nodeWire {
	switch v := n.(type) {
	case *Split:
		w := nodeWire{Type: "split", ID: v.ID, Orientation: v.Orientation, Weights: v.Weights}
		for _, c := range v.Children {
			w.Children = append(w.Children, toWire(c))
		}
		return w
	case *TabSet:
		sel := v.Selected
		w := nodeWire{Type: "tabset", ID: v.ID, Selected: &sel}
		for _, tab := range v.Tabs {
			w.Tabs = append(w.Tabs, panelWire{
				ID:        tab.ID.String(),
				Component: string(tab.Component),
				Name:      tab.Name,
				Config:    tab.Config,
			})
		}
		return w
	}
	return nodeWire{}
}

func fromWire(w nodeWire) (Node, error) {
	switch w.Type {
	case "split":
		s := &Split{ID: w.ID, Orientation: w.Orientation, Weights: w.Weights}
		if s.Orientation != Row && s.Orientation != Column {
			s.Orientation = Row
		}
		for _, cw := range w.Children {
			c, err := fromWire(cw)
			if err != nil {
				return nil, err
			}
			s.Children = append(s.Children, c)
		}
		return s, nil
	case "tabset":
		ts := &TabSet{ID: w.ID}
		if w.Selected != nil {
			ts.Selected = *w.Selected
		}
		for _, pw := range w.Tabs {
			cfg := pw.Config
			if cfg == nil {
				cfg = map[string]string{}
			}
			ts.Tabs = append(ts.Tabs, &Panel{
				ID:        id.PanelID(pw.ID),
				Component: panel.Component(pw.Component),
				Name:      pw.Name,
				Config:    cfg,
			})
		}
		if ts.Selected < 0 || ts.Selected >= len(ts.Tabs) {
			ts.Selected = 0
		}
		return ts, nil
	default:
		return nil, fmt.Errorf("layout: parse tree: unknown node type %q", w.Type)
	}
}
