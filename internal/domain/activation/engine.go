// Package activation matches a desired set of conversations to panels in
// the layout tree, creating and placing new panels for the unmatched.
package activation

import (
	"sync"

	"go.uber.org/zap"

	"github.com/workbenchd/workbench/internal/domain/conversation"
	"github.com/workbenchd/workbench/internal/domain/layout"
	"github.com/workbenchd/workbench/internal/domain/panel"
	"github.com/workbenchd/workbench/internal/infrastructure/logging"
	"github.com/workbenchd/workbench/internal/infrastructure/monitoring"
	"github.com/workbenchd/workbench/internal/shared/id"
)

// Binding is one entry of an activation plan.
type Binding struct {
	SessionID string `json:"sessionId"`
	AccountID string `json:"accountId"`
}

// Bound records one resolved panel/session pairing.
type Bound struct {
	Key     conversation.Key `json:"key"`
	PanelID id.PanelID       `json:"panelId"`
	Created bool             `json:"created"`
}

// Result summarizes one activation run.
type Result struct {
	Reused  []Bound `json:"reused"`
	Created []Bound `json:"created"`
}

// Navigator dispatches "navigate panel to session" commands. The
// implementation staggers delivery; the engine only fixes the order.
type Navigator interface {
	Navigate(panelID id.PanelID, key conversation.Key)
}

// Engine runs activation plans against the layout store. It mutates the
// tree through the same action API manual edits use, so a conversation
// reopens in its account's pane instead of spawning a duplicate, and the
// debounced store persists the whole run as one write.
type Engine struct {
	store   *layout.Store
	nav     Navigator
	log     *logging.Logger
	metrics *monitoring.Metrics
	ceiling int

	mu         sync.Mutex
	dockBottom bool
}

// NewEngine creates an activation engine. ceiling bounds how many splits
// the placement policy will create before it starts stacking tabs.
func NewEngine(store *layout.Store, nav Navigator, log *logging.Logger, ceiling int) *Engine {
	if ceiling <= 0 {
		ceiling = 6
	}
	return &Engine{store: store, nav: nav, log: log, ceiling: ceiling}
}

// WithMetrics attaches metrics tracking.
func (e *Engine) WithMetrics(m *monitoring.Metrics) *Engine {
	e.metrics = m
	return e
}

// Activate resolves a plan: reuse panels already bound to the requested
// session, rebind free panels sharing the account, create the rest. It
// never fails a plan outright; when the tree is saturated it degrades to
// stacking tabs. Re-running an identical plan is a no-op bindings-wise.
func (e *Engine) Activate(projectID string, plan []Binding) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.ActivationsTotal.Inc()
	}

	inv := e.inventory()
	var res Result

	for _, b := range plan {
		key := conversation.Key{AccountID: b.AccountID, SessionID: b.SessionID}

		// Exact match: panel already shows this session.
		if slot := inv.take(func(s *slot) bool {
			return s.accountID == b.AccountID && s.sessionID == b.SessionID
		}); slot != nil {
			res.Reused = append(res.Reused, Bound{Key: key, PanelID: slot.panelID})
			if e.metrics != nil {
				e.metrics.PanelsMatched.Inc()
			}
			continue
		}

		// Account match: rebind a free pane from the same account,
		// preserving the user's spatial arrangement.
		if slot := inv.take(func(s *slot) bool { return s.accountID == b.AccountID }); slot != nil {
			if err := e.store.Mutate(layout.UpdateConfig{
				PanelID: slot.panelID,
				Config: map[string]string{
					panel.ConfigSessionID: b.SessionID,
					panel.ConfigProjectID: projectID,
				},
			}); err != nil {
				e.log.Warn("rebind failed, creating panel instead",
					zap.String("panel", slot.panelID.String()), zap.Error(err))
			} else {
				res.Reused = append(res.Reused, Bound{Key: key, PanelID: slot.panelID})
				e.nav.Navigate(slot.panelID, key)
				if e.metrics != nil {
					e.metrics.PanelsMatched.Inc()
				}
				continue
			}
		}

		panelID := e.createPanel(projectID, b)
		res.Created = append(res.Created, Bound{Key: key, PanelID: panelID, Created: true})
		e.nav.Navigate(panelID, key)
		if e.metrics != nil {
			e.metrics.PanelsCreated.Inc()
		}
	}
	return res
}

// createPanel places a new conversation panel per the placement policy
// and returns its id.
func (e *Engine) createPanel(projectID string, b Binding) id.PanelID {
	tree := e.store.Snapshot()
	targetID, location := placement(tree, e.ceiling, e.dockBottom)
	if location != layout.DockCenter {
		e.dockBottom = !e.dockBottom
	}

	p := &layout.Panel{
		ID:        id.NewPanelID(),
		Component: panel.Conversation,
		Config: map[string]string{
			panel.ConfigAccountID: b.AccountID,
			panel.ConfigSessionID: b.SessionID,
			panel.ConfigProjectID: projectID,
		},
	}
	if err := e.store.Mutate(layout.AddPanel{Panel: p, TargetID: targetID, Location: location}); err != nil {
		// Placement target raced away; stack into whatever exists.
		e.log.Warn("dock failed, stacking into first tabset", zap.Error(err))
		_ = e.store.Mutate(layout.AddPanel{Panel: p, Location: layout.DockCenter})
	}
	return p.ID
}

// placement picks where the next panel goes: the tabset whose parent
// split has the fewest children, docking right/bottom alternately while
// the split count is under the ceiling to keep the grid roughly square,
// stacking into the least-populated tabset beyond it.
func placement(tree *layout.Tree, ceiling int, dockBottom bool) (string, layout.DockLocation) {
	sets := tree.TabSets()
	if len(sets) == 0 {
		return "", layout.DockCenter
	}

	if tree.CountSplits() >= ceiling {
		target := sets[0]
		for _, ts := range sets[1:] {
			if len(ts.Tabs) < len(target.Tabs) {
				target = ts
			}
		}
		return target.ID, layout.DockCenter
	}

	target := sets[0]
	best := parentChildCount(tree, target)
	for _, ts := range sets[1:] {
		if n := parentChildCount(tree, ts); n < best || (n == best && len(ts.Tabs) < len(target.Tabs)) {
			target, best = ts, n
		}
	}
	if dockBottom {
		return target.ID, layout.DockBottom
	}
	return target.ID, layout.DockRight
}

func parentChildCount(tree *layout.Tree, ts *layout.TabSet) int {
	count := -1
	tree.Walk(func(n layout.Node) {
		s, ok := n.(*layout.Split)
		if !ok {
			return
		}
		for _, c := range s.Children {
			if c.NodeID() == ts.ID {
				count = len(s.Children)
			}
		}
	})
	if count < 0 {
		return 1 << 30
	}
	return count
}

// inventory of conversation panels in the current tree.

type slot struct {
	panelID   id.PanelID
	accountID string
	sessionID string
	used      bool
}

type slots []*slot

func (e *Engine) inventory() slots {
	tree := e.store.Snapshot()
	var out slots
	for _, p := range tree.Panels() {
		if p.Component != panel.Conversation {
			continue
		}
		out = append(out, &slot{
			panelID:   p.ID,
			accountID: p.Config[panel.ConfigAccountID],
			sessionID: p.Config[panel.ConfigSessionID],
		})
	}
	return out
}

func (s slots) take(match func(*slot) bool) *slot {
	for _, candidate := range s {
		if !candidate.used && match(candidate) {
			candidate.used = true
			return candidate
		}
	}
	return nil
}
