// Package tree implements the core reconciliation and verification engine:
// diffing a live filesystem subtree against its persisted representation
// and applying the difference, and auditing the persisted tree for orphans
// and cycles.
package tree

import "fmt"

// Kind distinguishes the two entity types an Entry can represent.
type Kind uint8

const (
	// KindFile marks an Entry as representing a file.
	KindFile Kind = iota
	// KindDirectory marks an Entry as representing a directory.
	KindDirectory
)

func (k Kind) String() string {
	if k == KindDirectory {
		return "directory"
	}
	return "file"
}

// State records where an Entry sits in a single reconciliation pass,
// mirroring entry_t::state in original_source/worker.h.
type State uint8

const (
	// StateUnknown is the initial state of every entry loaded from
	// storage before it has been matched against the filesystem.
	StateUnknown State = iota
	// StateOK means the stored entry matches the filesystem exactly.
	StateOK
	// StatePropertiesChanged means the stored entry's size, mtime, or
	// hash needs updating.
	StatePropertiesChanged
	// StateNew means the entry exists on the filesystem but not yet in
	// storage.
	StateNew
	// StateDeleted means the stored entry no longer exists on the
	// filesystem, or was superseded by a type flip (file <-> directory).
	StateDeleted
)

func (s State) String() string {
	switch s {
	case StateOK:
		return "ok"
	case StatePropertiesChanged:
		return "changed"
	case StateNew:
		return "new"
	case StateDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Entry is the in-memory representation of a single directory or file
// during one Reconcile call. It is a tagged-variant value (never a raw
// pointer passed between layers, per SPEC_FULL.md §9) living in a
// reconciler-scoped slice for the duration of a single directory visit.
type Entry struct {
	Kind   Kind
	State  State
	ID     uint32
	Parent uint32
	Name   string
	Size   uint64
	MTime  int64

	// SubSize starts at a directory's own inode size and accumulates the
	// sizes of its children as they are reconciled; meaningless for
	// KindFile entries.
	SubSize uint64

	// Hash is the content digest of a file; meaningless for
	// KindDirectory entries.
	Hash string
}

// String renders the entry for diagnostic logging.
func (e *Entry) String() string {
	return fmt.Sprintf("%s %q (id=%d, state=%s)", e.Kind, e.Name, e.ID, e.State)
}
