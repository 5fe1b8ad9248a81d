package tree

import (
	"context"
	"fmt"

	"github.com/flesniak/fscrawl/pkg/logging"
	"github.com/flesniak/fscrawl/pkg/store"
)

// VerifyReport summarizes the repairs a Verify pass made.
type VerifyReport struct {
	DirectoriesRemoved uint32
	FilesRemoved       uint32
}

// Verifier audits the persisted tree for directories whose parent chain
// does not terminate at the virtual root (self-loops, cycles, and missing
// parents) and for files attached to such directories, deleting anything it
// finds broken. It never touches the filesystem. The algorithm follows
// original_source/worker.cpp's verifyTree: an ancestor-tracing pass over
// every directory, then a files pass.
type Verifier struct {
	store  store.Store
	logger *logging.Logger
}

// NewVerifier creates a Verifier over s.
func NewVerifier(s store.Store, logger *logging.Logger) *Verifier {
	return &Verifier{store: s, logger: logger}
}

// Verify runs one full audit-and-repair pass.
func (v *Verifier) Verify(ctx context.Context) (VerifyReport, error) {
	var report VerifyReport

	dirs := make(map[uint32]store.DirectoryRecord)
	if err := v.store.QueryAllDirs(ctx, func(d store.DirectoryRecord) error {
		dirs[d.ID] = d
		return nil
	}); err != nil {
		return report, fmt.Errorf("scan directories: %w", err)
	}

	filesByParent := make(map[uint32][]store.FileRecord)
	if err := v.store.QueryAllFiles(ctx, func(f store.FileRecord) error {
		filesByParent[f.Parent] = append(filesByParent[f.Parent], f)
		return nil
	}); err != nil {
		return report, fmt.Errorf("scan files: %w", err)
	}

	// Phase 1: trace every directory's ancestor chain back to the virtual
	// root, memoizing results and detecting cycles via the per-walk trail
	// set. A self-loop (d.Parent == id) is just a one-step cycle and falls
	// out of the same trail check with no special-casing needed.
	valid := make(map[uint32]bool)
	invalid := make(map[uint32]bool)

	var resolve func(id uint32, trail map[uint32]bool) bool
	resolve = func(id uint32, trail map[uint32]bool) bool {
		if id == store.NoID {
			return true
		}
		if valid[id] {
			return true
		}
		if invalid[id] || trail[id] {
			return false
		}
		d, ok := dirs[id]
		if !ok {
			return false
		}
		trail[id] = true
		ok = resolve(d.Parent, trail)
		if ok {
			valid[id] = true
		} else {
			invalid[id] = true
		}
		return ok
	}

	for id := range dirs {
		resolve(id, make(map[uint32]bool))
	}

	for id, d := range dirs {
		if !invalid[id] {
			continue
		}
		v.logger.Warnf("directory %d (%q) does not resolve to the root, removing", id, d.Name)
		report.FilesRemoved += uint32(len(filesByParent[id]))
		if err := v.store.DeleteFilesOfParent(ctx, id); err != nil {
			return report, fmt.Errorf("delete files of orphan directory %d: %w", id, err)
		}
		if err := v.store.DeleteDir(ctx, id); err != nil {
			return report, fmt.Errorf("delete orphan directory %d: %w", id, err)
		}
		report.DirectoriesRemoved++
	}

	// Phase 2: any file attached to the virtual root directly, or to a
	// directory that turned out to be invalid (and was already swept
	// above), or to a directory id that never existed at all, is an
	// orphan.
	for parent, files := range filesByParent {
		if invalid[parent] {
			// already removed in bulk during phase 1
			continue
		}
		if parent != store.NoID {
			if _, ok := dirs[parent]; ok {
				continue
			}
		}
		for _, f := range files {
			v.logger.Warnf("file %d (%q) has no valid parent directory, removing", f.ID, f.Name)
			if err := v.store.DeleteFile(ctx, f.ID); err != nil {
				return report, fmt.Errorf("delete orphan file %d: %w", f.ID, err)
			}
			report.FilesRemoved++
		}
	}

	return report, nil
}
