package layout

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/workbenchd/workbench/internal/infrastructure/logging"
)

// Backups writes rotated gzip snapshots of persisted layout documents.
// With last-write-wins persistence and no conflict detection, the
// snapshots are the only recovery path after a bad overwrite. All
// failures here are logged and swallowed.
type Backups struct {
	dir  string
	keep int
	log  *logging.Logger
}

// NewBackups creates a backup writer rooted at dir, retaining the newest
// keep snapshots per project.
func NewBackups(dir string, keep int, log *logging.Logger) *Backups {
	if keep <= 0 {
		keep = 20
	}
	return &Backups{dir: dir, keep: keep, log: log}
}

// Write stores one gzip snapshot and prunes old ones.
func (b *Backups) Write(projectID string, doc []byte) {
	projectDir := filepath.Join(b.dir, projectID)
	if err := os.MkdirAll(projectDir, 0o755); err != nil {
		b.log.Warn("backup dir create failed", zap.String("project", projectID), zap.Error(err))
		return
	}

	name := fmt.Sprintf("%d.json.gz", time.Now().UnixNano())
	path := filepath.Join(projectDir, name)
	if err := b.writeGzip(path, doc); err != nil {
		b.log.Warn("backup write failed", zap.String("path", path), zap.Error(err))
		return
	}
	b.prune(projectDir)
}

func (b *Backups) writeGzip(path string, doc []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	zw := gzip.NewWriter(f)
	if _, err := zw.Write(doc); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

func (b *Backups) prune(projectDir string) {
	entries, err := os.ReadDir(projectDir)
	if err != nil {
		return
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".gz" {
			names = append(names, e.Name())
		}
	}
	if len(names) <= b.keep {
		return
	}
	// Names are nanosecond timestamps, zero-padded comparison is not
	// needed at realistic clock values; sort newest last.
	sort.Strings(names)
	for _, name := range names[:len(names)-b.keep] {
		if err := os.Remove(filepath.Join(projectDir, name)); err != nil {
			b.log.Warn("backup prune failed", zap.String("file", name), zap.Error(err))
		}
	}
}
