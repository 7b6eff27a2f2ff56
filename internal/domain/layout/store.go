package layout

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/workbenchd/workbench/internal/infrastructure/logging"
	"github.com/workbenchd/workbench/internal/infrastructure/monitoring"
	"github.com/workbenchd/workbench/internal/shared/sched"
)

// Persistence is the out-of-core document store holding per-project
// layout trees, layout templates, and the active-directory pointer.
type Persistence interface {
	LayoutTree(ctx context.Context, projectID string) ([]byte, error)
	SaveLayoutTree(ctx context.Context, projectID string, doc []byte) error
	LayoutTemplate(ctx context.Context, projectID string) ([]byte, error)
	SaveLayoutTemplate(ctx context.Context, projectID string, doc []byte) error
	ActiveDirectory(ctx context.Context, projectID string) (string, error)
}

const saveTimeout = 10 * time.Second

// Store owns one project's layout tree. The in-memory tree is
// authoritative for the whole session; persistence is debounced and
// best-effort, and a load that fails in any way degrades to the built-in
// default tree rather than an error.
type Store struct {
	log      *logging.Logger
	persist  Persistence
	sched    sched.Scheduler
	debounce time.Duration
	metrics  *monitoring.Metrics
	backups  *Backups

	mu        sync.Mutex
	projectID string
	activeDir string
	tree      *Tree
	template  *Tree
	timer     sched.Timer
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithMetrics attaches metrics tracking.
func WithMetrics(m *monitoring.Metrics) StoreOption {
	return func(s *Store) { s.metrics = m }
}

// WithBackups attaches gzip snapshot retention for persisted documents.
func WithBackups(b *Backups) StoreOption {
	return func(s *Store) { s.backups = b }
}

// WithDebounce overrides the save debounce interval.
func WithDebounce(d time.Duration) StoreOption {
	return func(s *Store) { s.debounce = d }
}

// NewStore creates a layout store.
func NewStore(persist Persistence, log *logging.Logger, scheduler sched.Scheduler, opts ...StoreOption) *Store {
	s := &Store{
		log:      log,
		persist:  persist,
		sched:    scheduler,
		debounce: 1500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load fetches the project's tree, template, and active directory in
// parallel and installs them. Any fetch or parse failure falls back to
// the default tree; Load never fails.
func (s *Store) Load(ctx context.Context, projectID string) *Tree {
	var (
		wg        sync.WaitGroup
		treeDoc   []byte
		treeErr   error
		tmplDoc   []byte
		tmplErr   error
		activeDir string
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		treeDoc, treeErr = s.persist.LayoutTree(ctx, projectID)
	}()
	go func() {
		defer wg.Done()
		tmplDoc, tmplErr = s.persist.LayoutTemplate(ctx, projectID)
	}()
	go func() {
		defer wg.Done()
		dir, err := s.persist.ActiveDirectory(ctx, projectID)
		if err != nil {
			s.log.Warn("active directory fetch failed", zap.String("project", projectID), zap.Error(err))
			return
		}
		activeDir = dir
	}()
	wg.Wait()

	tree := s.decodeOrDefault(projectID, treeDoc, treeErr, activeDir)

	var template *Tree
	if tmplErr == nil && len(tmplDoc) > 0 {
		if t, err := Decode(tmplDoc); err == nil {
			template = t
		} else {
			s.log.Warn("layout template unparseable, ignoring", zap.String("project", projectID), zap.Error(err))
		}
	}

	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.projectID = projectID
	s.activeDir = activeDir
	s.tree = tree
	s.template = template
	s.mu.Unlock()

	s.updatePanelGauge()
	return tree.Clone()
}

func (s *Store) decodeOrDefault(projectID string, doc []byte, fetchErr error, activeDir string) *Tree {
	if fetchErr != nil {
		s.log.Warn("layout tree fetch failed, using default",
			zap.String("project", projectID), zap.Error(fetchErr))
		return DefaultTree(activeDir)
	}
	tree, err := Decode(doc)
	if err != nil {
		s.log.Warn("layout tree unparseable, using default",
			zap.String("project", projectID), zap.Error(err))
		return DefaultTree(activeDir)
	}
	return tree
}

// Mutate applies one structural action and restarts the save debounce.
// A failed action leaves the tree untouched and does not schedule a save.
func (s *Store) Mutate(action Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tree == nil {
		s.tree = DefaultTree(s.activeDir)
	}
	if err := action.apply(s.tree); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.LayoutMutations.Inc()
	}
	s.scheduleSaveLocked()
	s.updatePanelGaugeLocked()
	return nil
}

// Apply replaces the live tree outright (apply-template, reset). The tree
// and, when given, the template snapshot are persisted immediately.
func (s *Store) Apply(tree *Tree, template *Tree) {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.tree = tree.Clone()
	if template != nil {
		s.template = template.Clone()
	}
	projectID := s.projectID
	treeDoc, treeErr := Encode(s.tree)
	var tmplDoc []byte
	var tmplErr error
	if template != nil {
		tmplDoc, tmplErr = Encode(s.template)
	}
	s.mu.Unlock()

	if treeErr == nil {
		go s.write(projectID, treeDoc)
	}
	if template != nil && tmplErr == nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
			defer cancel()
			if err := s.persist.SaveLayoutTemplate(ctx, projectID, tmplDoc); err != nil {
				s.log.Warn("layout template save failed", zap.String("project", projectID), zap.Error(err))
			}
		}()
	}
	s.updatePanelGauge()
}

// Reset restores the user's template when one exists, the built-in
// default otherwise, and returns the new tree.
func (s *Store) Reset() *Tree {
	s.mu.Lock()
	template := s.template
	activeDir := s.activeDir
	s.mu.Unlock()

	var next *Tree
	if template != nil {
		next = template.Clone()
	} else {
		next = DefaultTree(activeDir)
	}
	s.Apply(next, nil)
	return next.Clone()
}

// Snapshot returns a deep copy of the live tree.
func (s *Store) Snapshot() *Tree {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tree == nil {
		s.tree = DefaultTree(s.activeDir)
	}
	return s.tree.Clone()
}

// ActiveDir returns the project's active working directory.
func (s *Store) ActiveDir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeDir
}

// ProjectID returns the loaded project.
func (s *Store) ProjectID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.projectID
}

// scheduleSaveLocked restarts the debounce timer. Caller must hold mu.
func (s *Store) scheduleSaveLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = s.sched.After(s.debounce, s.flush)
}

// flush serializes the current tree and writes it out. Errors are logged
// and dropped; the in-memory tree stays authoritative until the next
// debounced write.
func (s *Store) flush() {
	s.mu.Lock()
	s.timer = nil
	projectID := s.projectID
	doc, err := Encode(s.tree)
	s.mu.Unlock()

	if err != nil {
		s.log.Error("layout tree encode failed", zap.String("project", projectID), zap.Error(err))
		return
	}
	s.write(projectID, doc)
}

func (s *Store) write(projectID string, doc []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	if err := s.persist.SaveLayoutTree(ctx, projectID, doc); err != nil {
		if s.metrics != nil {
			s.metrics.LayoutSaveErrors.Inc()
		}
		s.log.Warn("layout tree save failed, staying unsynced", zap.String("project", projectID), zap.Error(err))
		return
	}
	if s.metrics != nil {
		s.metrics.LayoutSaves.Inc()
	}
	if s.backups != nil {
		s.backups.Write(projectID, doc)
	}
}

func (s *Store) updatePanelGauge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updatePanelGaugeLocked()
}

func (s *Store) updatePanelGaugeLocked() {
	if s.metrics == nil || s.tree == nil {
		return
	}
	s.metrics.PanelsActive.Set(float64(len(s.tree.Panels())))
}
