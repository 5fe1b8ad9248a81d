// Package store defines the persistence contract fscrawl uses to mirror a
// filesystem subtree. The interface is implemented for real by
// pkg/store/mysql and faked in-memory by pkg/store/memory for tests.
package store

import "context"

// DirectoryRecord is a persisted directory row.
type DirectoryRecord struct {
	ID     uint32
	Parent uint32
	Name   string
	Size   uint64
	MTime  int64
}

// FileRecord is a persisted file row. Hash is empty when no digest has been
// computed for the file yet.
type FileRecord struct {
	ID     uint32
	Parent uint32
	Name   string
	Size   uint64
	MTime  int64
	Hash   string
}

// NoID is the sentinel parent/id value representing the virtual root, or
// (for an insert result under dry-run) "no id was actually assigned".
const NoID uint32 = 0

// Store is the persistence contract for the directory/file tree. All
// methods are safe to call from a single goroutine at a time; fscrawl never
// calls a Store concurrently from more than one goroutine by design (see
// SPEC_FULL.md's concurrency model).
type Store interface {
	// EnsureSchema creates the backing tables if they do not already
	// exist.
	EnsureSchema(ctx context.Context) error

	// GetDirByID returns the directory with the given id, or nil if no
	// such directory exists.
	GetDirByID(ctx context.Context, id uint32) (*DirectoryRecord, error)
	// GetDirByName returns the child directory of parent named name, or
	// nil if none exists.
	GetDirByName(ctx context.Context, parent uint32, name string) (*DirectoryRecord, error)
	// GetFileByID returns the file with the given id, or nil if no such
	// file exists.
	GetFileByID(ctx context.Context, id uint32) (*FileRecord, error)
	// GetFileByName returns the child file of parent named name, or nil
	// if none exists.
	GetFileByName(ctx context.Context, parent uint32, name string) (*FileRecord, error)

	// ListChildren returns every directory and file whose parent is the
	// given id.
	ListChildren(ctx context.Context, parent uint32) ([]DirectoryRecord, []FileRecord, error)

	// InsertDir inserts a new directory row and returns its assigned id.
	// Under dry-run, it returns NoID without touching storage.
	InsertDir(ctx context.Context, rec DirectoryRecord) (uint32, error)
	// InsertFile inserts a new file row and returns its assigned id.
	// Under dry-run, it returns NoID without touching storage.
	InsertFile(ctx context.Context, rec FileRecord) (uint32, error)

	// UpdateDir overwrites an existing directory row.
	UpdateDir(ctx context.Context, rec DirectoryRecord) error
	// UpdateFile overwrites an existing file row.
	UpdateFile(ctx context.Context, rec FileRecord) error

	// DeleteFile deletes a single file row by id.
	DeleteFile(ctx context.Context, id uint32) error
	// DeleteFilesOfParent deletes every file row with the given parent.
	DeleteFilesOfParent(ctx context.Context, parent uint32) error
	// DeleteDir deletes the directory row identified by id along with
	// every descendant directory and file beneath it. Callers never need
	// to pre-delete children.
	DeleteDir(ctx context.Context, id uint32) error

	// DropAll deletes every row in both tables.
	DropAll(ctx context.Context) error

	// QueryAllDirs streams every directory row to fn, in unspecified
	// order, stopping early if fn returns an error.
	QueryAllDirs(ctx context.Context, fn func(DirectoryRecord) error) error
	// QueryAllFiles streams every file row to fn, in unspecified order,
	// stopping early if fn returns an error.
	QueryAllFiles(ctx context.Context, fn func(FileRecord) error) error

	// Close releases any resources (connections, handles) held by the
	// store.
	Close() error
}
