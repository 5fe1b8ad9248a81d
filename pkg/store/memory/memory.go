// Package memory provides an in-memory store.Store implementation used by
// the pkg/tree and pkg/pathresolver test suites, so that Reconciler and
// Verifier scenarios can run without a live MySQL server.
package memory

import (
	"context"
	"sync"

	"github.com/flesniak/fscrawl/pkg/store"
)

// Store is an in-memory, non-persistent implementation of store.Store.
type Store struct {
	mu     sync.Mutex
	nextID uint32
	dirs   map[uint32]store.DirectoryRecord
	files  map[uint32]store.FileRecord
	DryRun bool
}

// New creates an empty in-memory Store.
func New() *Store {
	return &Store{
		nextID: 1,
		dirs:   make(map[uint32]store.DirectoryRecord),
		files:  make(map[uint32]store.FileRecord),
	}
}

func (s *Store) EnsureSchema(ctx context.Context) error { return nil }

func (s *Store) GetDirByID(ctx context.Context, id uint32) (*store.DirectoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.dirs[id]; ok {
		cp := rec
		return &cp, nil
	}
	return nil, nil
}

func (s *Store) GetDirByName(ctx context.Context, parent uint32, name string) (*store.DirectoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.dirs {
		if rec.Parent == parent && rec.Name == name {
			cp := rec
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) GetFileByID(ctx context.Context, id uint32) (*store.FileRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.files[id]; ok {
		cp := rec
		return &cp, nil
	}
	return nil, nil
}

func (s *Store) GetFileByName(ctx context.Context, parent uint32, name string) (*store.FileRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.files {
		if rec.Parent == parent && rec.Name == name {
			cp := rec
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) ListChildren(ctx context.Context, parent uint32) ([]store.DirectoryRecord, []store.FileRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var dirs []store.DirectoryRecord
	var files []store.FileRecord
	for _, rec := range s.dirs {
		if rec.Parent == parent {
			dirs = append(dirs, rec)
		}
	}
	for _, rec := range s.files {
		if rec.Parent == parent {
			files = append(files, rec)
		}
	}
	return dirs, files, nil
}

func (s *Store) InsertDir(ctx context.Context, rec store.DirectoryRecord) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DryRun {
		return store.NoID, nil
	}
	rec.ID = s.nextID
	s.nextID++
	s.dirs[rec.ID] = rec
	return rec.ID, nil
}

func (s *Store) InsertFile(ctx context.Context, rec store.FileRecord) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DryRun {
		return store.NoID, nil
	}
	rec.ID = s.nextID
	s.nextID++
	s.files[rec.ID] = rec
	return rec.ID, nil
}

func (s *Store) UpdateDir(ctx context.Context, rec store.DirectoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DryRun {
		return nil
	}
	s.dirs[rec.ID] = rec
	return nil
}

func (s *Store) UpdateFile(ctx context.Context, rec store.FileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DryRun {
		return nil
	}
	s.files[rec.ID] = rec
	return nil
}

func (s *Store) DeleteFile(ctx context.Context, id uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DryRun {
		return nil
	}
	delete(s.files, id)
	return nil
}

func (s *Store) DeleteFilesOfParent(ctx context.Context, parent uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DryRun {
		return nil
	}
	for id, rec := range s.files {
		if rec.Parent == parent {
			delete(s.files, id)
		}
	}
	return nil
}

// DeleteDir deletes id and every descendant directory and file beneath it.
func (s *Store) DeleteDir(ctx context.Context, id uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DryRun {
		return nil
	}
	s.deleteDirRecursiveLocked(id, make(map[uint32]bool))
	return nil
}

// deleteDirRecursiveLocked assumes s.mu is already held. visited guards
// against corrupt, cyclic parent chains: a two-directory cycle a<->b makes
// each the other's "child" too, so without this guard the walk below would
// recurse forever.
func (s *Store) deleteDirRecursiveLocked(id uint32, visited map[uint32]bool) {
	if visited[id] {
		return
	}
	visited[id] = true

	var children []uint32
	for cid, rec := range s.dirs {
		if rec.Parent == id {
			children = append(children, cid)
		}
	}
	for fid, rec := range s.files {
		if rec.Parent == id {
			delete(s.files, fid)
		}
	}
	for _, cid := range children {
		s.deleteDirRecursiveLocked(cid, visited)
	}
	delete(s.dirs, id)
}

func (s *Store) DropAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DryRun {
		return nil
	}
	s.dirs = make(map[uint32]store.DirectoryRecord)
	s.files = make(map[uint32]store.FileRecord)
	return nil
}

func (s *Store) QueryAllDirs(ctx context.Context, fn func(store.DirectoryRecord) error) error {
	s.mu.Lock()
	snapshot := make([]store.DirectoryRecord, 0, len(s.dirs))
	for _, rec := range s.dirs {
		snapshot = append(snapshot, rec)
	}
	s.mu.Unlock()
	for _, rec := range snapshot {
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) QueryAllFiles(ctx context.Context, fn func(store.FileRecord) error) error {
	s.mu.Lock()
	snapshot := make([]store.FileRecord, 0, len(s.files))
	for _, rec := range s.files {
		snapshot = append(snapshot, rec)
	}
	s.mu.Unlock()
	for _, rec := range snapshot {
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error { return nil }
