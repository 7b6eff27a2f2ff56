package layout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workbenchd/workbench/internal/domain/panel"
	"github.com/workbenchd/workbench/internal/infrastructure/logging"
	"github.com/workbenchd/workbench/internal/shared/sched"
)

type fakePersist struct {
	mu        sync.Mutex
	tree      []byte
	treeErr   error
	template  []byte
	tmplErr   error
	activeDir string
	saveErr   error

	treeSaves [][]byte
	tmplSaves [][]byte
}

func (f *fakePersist) LayoutTree(context.Context, string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tree, f.treeErr
}

func (f *fakePersist) SaveLayoutTree(_ context.Context, _ string, doc []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.treeSaves = append(f.treeSaves, doc)
	return nil
}

func (f *fakePersist) LayoutTemplate(context.Context, string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.template, f.tmplErr
}

func (f *fakePersist) SaveLayoutTemplate(_ context.Context, _ string, doc []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tmplSaves = append(f.tmplSaves, doc)
	return nil
}

func (f *fakePersist) ActiveDirectory(context.Context, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.activeDir, nil
}

func (f *fakePersist) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.treeSaves)
}

func newTestStore(t *testing.T, persist *fakePersist) (*Store, *sched.Fake) {
	t.Helper()
	clock := sched.NewFake()
	store := NewStore(persist, logging.NewNop(), clock, WithDebounce(1500*time.Millisecond))
	return store, clock
}

func TestLoadFallsBackToDefaultOnFetchError(t *testing.T) {
	persist := &fakePersist{treeErr: errors.New("service down"), activeDir: "/work"}
	store, _ := newTestStore(t, persist)

	tree := store.Load(context.Background(), "p1")

	require.NotNil(t, tree)
	require.NoError(t, tree.Validate())
	assert.Len(t, tree.Panels(), 3)
}

func TestLoadFallsBackToDefaultOnCorruptDocument(t *testing.T) {
	persist := &fakePersist{tree: []byte("{corrupt")}
	store, _ := newTestStore(t, persist)

	tree := store.Load(context.Background(), "p1")

	require.NoError(t, tree.Validate())
	assert.Len(t, tree.Panels(), 3)
}

func TestLoadUsesPersistedDocument(t *testing.T) {
	doc, err := Encode(DefaultTree("/elsewhere"))
	require.NoError(t, err)
	persist := &fakePersist{tree: doc}
	store, _ := newTestStore(t, persist)

	tree := store.Load(context.Background(), "p1")
	assert.Len(t, tree.Panels(), 3)
}

func TestMutateDebounceCoalescesBursts(t *testing.T) {
	persist := &fakePersist{}
	store, clock := newTestStore(t, persist)
	store.Load(context.Background(), "p1")

	mutateAt := func(offset time.Duration) {
		clock.Advance(offset)
		require.NoError(t, store.Mutate(AddPanel{Panel: newPanel(panel.Notes, nil), Location: DockCenter}))
	}

	// Burst at t=0, t=500ms, t=1400ms; each restarts the 1500ms window.
	mutateAt(0)
	mutateAt(500 * time.Millisecond)
	mutateAt(900 * time.Millisecond)
	assert.Equal(t, 0, persist.saveCount())

	// Quiet period elapses: exactly one write.
	clock.Advance(1500 * time.Millisecond)
	assert.Equal(t, 1, persist.saveCount())

	// No further writes without further mutations.
	clock.Advance(time.Minute)
	assert.Equal(t, 1, persist.saveCount())
}

func TestFailedMutationDoesNotScheduleSave(t *testing.T) {
	persist := &fakePersist{}
	store, clock := newTestStore(t, persist)
	store.Load(context.Background(), "p1")

	err := store.Mutate(RemovePanel{PanelID: "pnl_missing"})
	require.ErrorIs(t, err, ErrNotFound)

	clock.Advance(time.Minute)
	assert.Equal(t, 0, persist.saveCount())
}

func TestSaveFailureKeepsTreeAuthoritative(t *testing.T) {
	persist := &fakePersist{saveErr: errors.New("write refused")}
	store, clock := newTestStore(t, persist)
	store.Load(context.Background(), "p1")

	p := newPanel(panel.Browser, nil)
	require.NoError(t, store.Mutate(AddPanel{Panel: p, Location: DockCenter}))
	clock.Advance(2 * time.Second)

	found, _ := store.Snapshot().FindPanel(p.ID)
	assert.NotNil(t, found, "in-memory tree keeps the mutation after a failed save")
}

func TestResetPrefersTemplate(t *testing.T) {
	tmpl := DefaultTree("")
	extra := newPanel(panel.Admin, nil)
	require.NoError(t, AddPanel{Panel: extra, Location: DockCenter}.apply(tmpl))
	tmplDoc, err := Encode(tmpl)
	require.NoError(t, err)

	persist := &fakePersist{template: tmplDoc}
	store, _ := newTestStore(t, persist)
	store.Load(context.Background(), "p1")

	require.NoError(t, store.Mutate(RemovePanel{PanelID: store.Snapshot().Panels()[0].ID}))

	tree := store.Reset()
	assert.Len(t, tree.Panels(), 4, "reset restores the template snapshot")
}

func TestResetWithoutTemplateUsesDefault(t *testing.T) {
	persist := &fakePersist{}
	store, _ := newTestStore(t, persist)
	store.Load(context.Background(), "p1")

	tree := store.Reset()
	assert.Len(t, tree.Panels(), 3)
}

func TestSnapshotIsIsolated(t *testing.T) {
	persist := &fakePersist{}
	store, _ := newTestStore(t, persist)
	store.Load(context.Background(), "p1")

	snap := store.Snapshot()
	snap.Panels()[0].Config["stray"] = "edit"

	_, ok := store.Snapshot().Panels()[0].Config["stray"]
	assert.False(t, ok)
}
