// Package pathresolver translates between filesystem paths and the
// persisted directory id that roots them, mirroring the original
// descendPath/ascendPath pair in original_source/worker.cpp.
package pathresolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/flesniak/fscrawl/pkg/store"
)

// ErrNotFound indicates a path segment has no corresponding stored
// directory and createMissing was false.
var ErrNotFound = errors.New("path not found")

// ErrCorrupt indicates the stored parent chain is broken: it references a
// directory that does not exist, or it does not terminate at the root
// within MaxAncestorDepth steps (a cycle).
var ErrCorrupt = errors.New("stored parent chain is corrupt")

// MaxAncestorDepth bounds the ancestor walk performed by Ascend, guarding
// against an unbounded recursive traversal if the persisted tree were ever
// corrupted into a cycle. The original implementation recursed without any
// such bound; this is an explicit, named addition (see SPEC_FULL.md §9 and
// DESIGN.md).
const MaxAncestorDepth = 4096

// Resolver resolves between filesystem paths and persisted directory ids.
type Resolver struct {
	store store.Store
}

// New creates a Resolver backed by s.
func New(s store.Store) *Resolver {
	return &Resolver{store: s}
}

// Descend walks path, a '/'-separated sequence of directory names relative
// to the virtual root (id 0), returning the id of the directory it names.
// Empty segments (leading/trailing/doubled slashes) are skipped. If
// createMissing is true, any missing segment is inserted as a new
// directory with a zero size and mtime; otherwise a missing segment yields
// ErrNotFound.
func (r *Resolver) Descend(ctx context.Context, path string, createMissing bool) (uint32, error) {
	var parent uint32 = store.NoID

	for _, segment := range strings.Split(path, "/") {
		if segment == "" {
			continue
		}

		dir, err := r.store.GetDirByName(ctx, parent, segment)
		if err != nil {
			return 0, fmt.Errorf("resolve %q: %w", path, err)
		}

		if dir == nil {
			if !createMissing {
				return 0, fmt.Errorf("%w: %q", ErrNotFound, path)
			}
			id, err := r.store.InsertDir(ctx, store.DirectoryRecord{Parent: parent, Name: segment})
			if err != nil {
				return 0, fmt.Errorf("create %q: %w", path, err)
			}
			parent = id
			continue
		}

		parent = dir.ID
	}

	return parent, nil
}

// Ascend reconstructs the filesystem path of the directory with the given
// id by walking its stored parent chain up to (but not including)
// downToID, or to the virtual root if downToID is store.NoID. It returns
// ErrCorrupt if an ancestor is missing or the chain does not terminate
// within MaxAncestorDepth steps.
func (r *Resolver) Ascend(ctx context.Context, id uint32, downToID uint32) (string, error) {
	var segments []string

	current := id
	for depth := 0; ; depth++ {
		if current == downToID {
			break
		}
		if current == store.NoID {
			break
		}
		if depth >= MaxAncestorDepth {
			return "", fmt.Errorf("%w: exceeded %d ancestor hops from id %d", ErrCorrupt, MaxAncestorDepth, id)
		}

		dir, err := r.store.GetDirByID(ctx, current)
		if err != nil {
			return "", fmt.Errorf("ascend from id %d: %w", id, err)
		}
		if dir == nil {
			return "", fmt.Errorf("%w: id %d has no stored directory", ErrCorrupt, current)
		}

		segments = append(segments, dir.Name)
		current = dir.Parent
	}

	for i, j := 0, len(segments)-1; i < j; i, j = i+1, j-1 {
		segments[i], segments[j] = segments[j], segments[i]
	}

	return strings.Join(segments, "/"), nil
}
