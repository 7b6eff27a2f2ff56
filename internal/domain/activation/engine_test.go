package activation

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workbenchd/workbench/internal/domain/conversation"
	"github.com/workbenchd/workbench/internal/domain/layout"
	"github.com/workbenchd/workbench/internal/domain/panel"
	"github.com/workbenchd/workbench/internal/infrastructure/logging"
	"github.com/workbenchd/workbench/internal/shared/id"
	"github.com/workbenchd/workbench/internal/shared/sched"
)

type nopPersist struct{}

func (nopPersist) LayoutTree(context.Context, string) ([]byte, error) { return nil, nil }
func (nopPersist) SaveLayoutTree(context.Context, string, []byte) error { return nil }
func (nopPersist) LayoutTemplate(context.Context, string) ([]byte, error) { return nil, nil }
func (nopPersist) SaveLayoutTemplate(context.Context, string, []byte) error { return nil }
func (nopPersist) ActiveDirectory(context.Context, string) (string, error) { return "", nil }

// emptyStore builds a store holding a tree with no panels, so tests
// control the full inventory.
func emptyStore(t *testing.T) *layout.Store {
	t.Helper()
	store := layout.NewStore(nopPersist{}, logging.NewNop(), sched.NewFake())
	store.Apply(&layout.Tree{Root: &layout.Split{ID: layout.NewSplitID(), Orientation: layout.Row}}, nil)
	return store
}

type recordingNav struct {
	mu    sync.Mutex
	calls []conversation.Key
}

func (n *recordingNav) Navigate(_ id.PanelID, key conversation.Key) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, key)
}

func (n *recordingNav) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

func newTestEngine(t *testing.T) (*Engine, *layout.Store, *recordingNav) {
	t.Helper()
	store := emptyStore(t)
	nav := &recordingNav{}
	return NewEngine(store, nav, logging.NewNop(), 6), store, nav
}

// seedConversationPanel adds a conversation panel bound to the given
// account and session (session may be empty for a free pane).
func seedConversationPanel(t *testing.T, store *layout.Store, accountID, sessionID string) id.PanelID {
	t.Helper()
	p := &layout.Panel{
		ID:        id.NewPanelID(),
		Component: panel.Conversation,
		Config:    map[string]string{panel.ConfigAccountID: accountID},
	}
	if sessionID != "" {
		p.Config[panel.ConfigSessionID] = sessionID
	}
	require.NoError(t, store.Mutate(layout.AddPanel{Panel: p, Location: layout.DockCenter}))
	return p.ID
}

func conversationPanels(store *layout.Store) []*layout.Panel {
	var out []*layout.Panel
	for _, p := range store.Snapshot().Panels() {
		if p.Component == panel.Conversation {
			out = append(out, p)
		}
	}
	return out
}

func TestActivateReusesExactMatchWithoutNavigate(t *testing.T) {
	engine, store, nav := newTestEngine(t)
	pid := seedConversationPanel(t, store, "acct-1", "sess-1")

	res := engine.Activate("p1", []Binding{{AccountID: "acct-1", SessionID: "sess-1"}})

	require.Len(t, res.Reused, 1)
	assert.Empty(t, res.Created)
	assert.Equal(t, pid, res.Reused[0].PanelID)
	assert.Equal(t, 0, nav.count(), "a panel already on the session needs no navigate")
}

func TestActivateRebindsAccountMatch(t *testing.T) {
	engine, store, nav := newTestEngine(t)
	pid := seedConversationPanel(t, store, "acct-1", "sess-old")

	res := engine.Activate("p1", []Binding{{AccountID: "acct-1", SessionID: "sess-new"}})

	require.Len(t, res.Reused, 1)
	assert.Equal(t, pid, res.Reused[0].PanelID)
	assert.Equal(t, 1, nav.count())

	p, _ := store.Snapshot().FindPanel(pid)
	require.NotNil(t, p)
	assert.Equal(t, "sess-new", p.Config[panel.ConfigSessionID])
	assert.Equal(t, "p1", p.Config[panel.ConfigProjectID])
}

func TestActivateCreatesWhenNoMatch(t *testing.T) {
	engine, store, nav := newTestEngine(t)

	res := engine.Activate("p1", []Binding{{AccountID: "acct-9", SessionID: "sess-9"}})

	require.Len(t, res.Created, 1)
	assert.True(t, res.Created[0].Created)
	assert.Equal(t, 1, nav.count())

	p, _ := store.Snapshot().FindPanel(res.Created[0].PanelID)
	require.NotNil(t, p)
	assert.Equal(t, "acct-9", p.Config[panel.ConfigAccountID])
	assert.Equal(t, "sess-9", p.Config[panel.ConfigSessionID])
	require.NoError(t, store.Snapshot().Validate())
}

// Two panes on the same account, one already showing its session: the
// plan reuses the exact match, rebinds the free pane, and creates one
// panel for the leftover, with navigates only for the latter two.
func TestActivateMixedPlan(t *testing.T) {
	engine, store, nav := newTestEngine(t)
	exact := seedConversationPanel(t, store, "acct-1", "sess-1")
	free := seedConversationPanel(t, store, "acct-1", "sess-stale")

	res := engine.Activate("p1", []Binding{
		{AccountID: "acct-1", SessionID: "sess-1"},
		{AccountID: "acct-1", SessionID: "sess-2"},
		{AccountID: "acct-2", SessionID: "sess-3"},
	})

	require.Len(t, res.Reused, 2)
	require.Len(t, res.Created, 1)
	assert.Equal(t, exact, res.Reused[0].PanelID)
	assert.Equal(t, free, res.Reused[1].PanelID)
	assert.Equal(t, 2, nav.count())
	assert.Len(t, conversationPanels(store), 3)
}

func TestActivateIsIdempotent(t *testing.T) {
	engine, store, nav := newTestEngine(t)
	plan := []Binding{
		{AccountID: "acct-1", SessionID: "sess-1"},
		{AccountID: "acct-2", SessionID: "sess-2"},
	}

	first := engine.Activate("p1", plan)
	require.Len(t, first.Created, 2)
	panelsAfterFirst := len(conversationPanels(store))
	navAfterFirst := nav.count()

	second := engine.Activate("p1", plan)
	assert.Empty(t, second.Created)
	require.Len(t, second.Reused, 2)
	assert.Len(t, conversationPanels(store), panelsAfterFirst, "re-running the plan adds no panels")
	assert.Equal(t, navAfterFirst, nav.count(), "re-running the plan issues no navigates")
}

func TestActivateDuplicateSessionsGetDistinctPanels(t *testing.T) {
	engine, store, _ := newTestEngine(t)

	res := engine.Activate("p1", []Binding{
		{AccountID: "acct-1", SessionID: "sess-1"},
		{AccountID: "acct-1", SessionID: "sess-1"},
	})

	// Inventory slots are consumed; the second entry cannot steal the
	// first one's panel.
	total := len(res.Reused) + len(res.Created)
	assert.Equal(t, 2, total)
	assert.Len(t, conversationPanels(store), 2)
}

func TestPlacementStacksBeyondSplitCeiling(t *testing.T) {
	store := emptyStore(t)
	nav := &recordingNav{}
	engine := NewEngine(store, nav, logging.NewNop(), 2)

	var plan []Binding
	for i := 0; i < 6; i++ {
		plan = append(plan, Binding{AccountID: "acct-1", SessionID: string(rune('a' + i))})
	}
	engine.Activate("p1", plan)

	tree := store.Snapshot()
	require.NoError(t, tree.Validate())
	assert.LessOrEqual(t, tree.CountSplits(), 4,
		"beyond the ceiling new panels stack as tabs instead of splitting")
	assert.Len(t, conversationPanels(store), 6)
}

func TestPlacementAlternatesDockDirection(t *testing.T) {
	engine, store, _ := newTestEngine(t)

	engine.Activate("p1", []Binding{
		{AccountID: "a", SessionID: "s1"},
		{AccountID: "b", SessionID: "s2"},
		{AccountID: "c", SessionID: "s3"},
	})

	tree := store.Snapshot()
	require.NoError(t, tree.Validate())

	var hasColumn bool
	tree.Walk(func(n layout.Node) {
		if s, ok := n.(*layout.Split); ok && s.Orientation == layout.Column {
			hasColumn = true
		}
	})
	assert.True(t, hasColumn, "alternating right/bottom docking produces a column split")
}
