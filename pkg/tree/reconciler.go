package tree

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/flesniak/fscrawl/pkg/hashing"
	"github.com/flesniak/fscrawl/pkg/logging"
	"github.com/flesniak/fscrawl/pkg/store"
)

// Options controls the policy knobs the Reconciler applies while diffing a
// subtree, matching the flags described in SPEC_FULL.md §4.D.
type Options struct {
	// InheritSize propagates a child's size into its parent's SubSize
	// total. On by default; the original implementation always did
	// this.
	InheritSize bool
	// InheritMTime propagates a child's mtime into its parent's mtime
	// when the child is newer. Off by default.
	InheritMTime bool
	// ForceRehash recomputes and compares a file's hash even when size
	// and mtime suggest it hasn't changed.
	ForceRehash bool
	// AllowEmpty permits reconciling a basedir that currently has no
	// entries, rather than treating it as a configuration mistake.
	AllowEmpty bool
}

// Stats accumulates counts of directories and files a Reconcile call
// inserted into the store. Unchanged, updated, and deleted entries are not
// counted.
type Stats struct {
	Files       uint32
	Directories uint32
}

// Reconciler diffs a live filesystem subtree against its persisted
// representation in Store and applies the difference, following the
// algorithm in original_source/worker.cpp's parseDirectory.
type Reconciler struct {
	store  store.Store
	hasher *hashing.Hasher
	opts   Options
	logger *logging.Logger
	stats  Stats
}

// New creates a Reconciler. hasher may be nil or hashing.New(hashing.None)
// to disable content hashing.
func New(s store.Store, hasher *hashing.Hasher, opts Options, logger *logging.Logger) *Reconciler {
	return &Reconciler{store: s, hasher: hasher, opts: opts, logger: logger}
}

// Statistics returns the running totals of files and directories this
// Reconciler has inserted across all Reconcile calls made on it so far.
func (r *Reconciler) Statistics() Stats {
	return r.stats
}

// Reconcile diffs the filesystem directory at path against the stored
// directory identified by id, applying inserts, updates, and deletes as it
// goes.
func (r *Reconciler) Reconcile(ctx context.Context, path string, id uint32) error {
	rec, err := r.store.GetDirByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load directory %d: %w", id, err)
	}

	own := &Entry{Kind: KindDirectory, ID: id}
	if rec != nil {
		own.Parent = rec.Parent
		own.Name = rec.Name
		own.Size = rec.Size
		own.MTime = rec.MTime
	}

	if err := r.reconcileDir(ctx, path, own); err != nil {
		return err
	}
	if rec != nil && own.State == StatePropertiesChanged {
		if err := r.store.UpdateDir(ctx, store.DirectoryRecord{ID: own.ID, Parent: own.Parent, Name: own.Name, Size: own.Size, MTime: own.MTime}); err != nil {
			return fmt.Errorf("update directory %d: %w", id, err)
		}
	}
	return nil
}

func (r *Reconciler) reconcileDir(ctx context.Context, path string, own *Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dirEntries, err := os.ReadDir(path)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", path, err)
	}
	sort.Slice(dirEntries, func(i, j int) bool { return dirEntries[i].Name() < dirEntries[j].Name() })

	if len(dirEntries) == 0 && own.Parent == store.NoID && !r.opts.AllowEmpty {
		return fmt.Errorf("refusing to reconcile empty basedir %q without AllowEmpty", path)
	}

	cachedDirs, cachedFiles, err := r.store.ListChildren(ctx, own.ID)
	if err != nil {
		return fmt.Errorf("list children of %q: %w", path, err)
	}

	byName := make(map[string]*Entry, len(cachedDirs)+len(cachedFiles))
	for _, d := range cachedDirs {
		byName[d.Name] = &Entry{Kind: KindDirectory, State: StateUnknown, ID: d.ID, Parent: d.Parent, Name: d.Name, Size: d.Size, MTime: d.MTime}
	}
	for _, f := range cachedFiles {
		byName[f.Name] = &Entry{Kind: KindFile, State: StateUnknown, ID: f.ID, Parent: f.Parent, Name: f.Name, Size: f.Size, MTime: f.MTime, Hash: f.Hash}
	}

	var liveFiles, liveDirs, stale []*Entry

	for _, de := range dirEntries {
		if err := ctx.Err(); err != nil {
			return err
		}

		name := de.Name()
		info, err := de.Info()
		if err != nil {
			r.logger.Warnf("stat %q: %v", filepath.Join(path, name), err)
			continue
		}
		isDir := info.IsDir()

		cached, known := byName[name]
		if known && (cached.Kind == KindDirectory) != isDir {
			cached.State = StateDeleted
			stale = append(stale, cached)
			delete(byName, name)
			known = false
		}

		if !known {
			fresh := &Entry{
				Name:   name,
				Parent: own.ID,
				State:  StateNew,
				Size:   uint64(info.Size()),
				MTime:  info.ModTime().Unix(),
			}
			if isDir {
				fresh.Kind = KindDirectory
				liveDirs = append(liveDirs, fresh)
			} else {
				fresh.Kind = KindFile
				if h, herr := r.hashFile(filepath.Join(path, name)); herr != nil {
					r.logger.Warnf("hash %q: %v", name, herr)
				} else {
					fresh.Hash = h
				}
				liveFiles = append(liveFiles, fresh)
			}
			continue
		}

		delete(byName, name)

		if cached.Kind == KindFile {
			r.refreshFile(cached, info, filepath.Join(path, name))
			liveFiles = append(liveFiles, cached)
		} else {
			cached.State = StateOK
			liveDirs = append(liveDirs, cached)
		}
	}

	for _, leftover := range byName {
		leftover.State = StateDeleted
		if leftover.Kind == KindFile {
			liveFiles = append(liveFiles, leftover)
		} else {
			liveDirs = append(liveDirs, leftover)
		}
	}

	for _, e := range stale {
		if err := r.deleteEntry(ctx, e); err != nil {
			return err
		}
	}

	var ownInodeSize uint64
	if info, statErr := os.Stat(path); statErr != nil {
		r.logger.Warnf("stat %q: %v", path, statErr)
	} else {
		ownInodeSize = uint64(info.Size())
	}
	own.SubSize = ownInodeSize
	for _, f := range liveFiles {
		if err := r.applyFile(ctx, own, f); err != nil {
			return err
		}
	}

	for _, d := range liveDirs {
		if d.State == StateDeleted {
			if err := r.deleteEntry(ctx, d); err != nil {
				return err
			}
			continue
		}

		if d.State == StateNew {
			newID, err := r.store.InsertDir(ctx, store.DirectoryRecord{Parent: own.ID, Name: d.Name})
			if err != nil {
				return fmt.Errorf("insert directory %q: %w", d.Name, err)
			}
			d.ID = newID
			r.stats.Directories++
		}

		childPath := filepath.Join(path, d.Name)
		if err := r.reconcileDir(ctx, childPath, d); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Warnf("skipping subtree %q: %v", childPath, err)
			continue
		}
		if err := r.applyDir(ctx, own, d); err != nil {
			return err
		}
	}

	if own.Size != own.SubSize {
		own.Size = own.SubSize
		own.State = StatePropertiesChanged
	}

	return nil
}

// refreshFile compares a cached file entry against a freshly stat'd
// os.FileInfo, updating its fields and state in place.
func (r *Reconciler) refreshFile(cached *Entry, info os.FileInfo, path string) {
	newSize := uint64(info.Size())
	newMTime := info.ModTime().Unix()
	changed := cached.Size != newSize || cached.MTime != newMTime

	needsHash := r.hasher.Algorithm() != hashing.None && (changed || r.opts.ForceRehash || cached.Hash == "")
	if needsHash {
		if h, err := r.hashFile(path); err != nil {
			r.logger.Warnf("hash %q: %v", path, err)
		} else if h != cached.Hash {
			changed = true
			cached.Hash = h
		}
	}

	cached.Size = newSize
	cached.MTime = newMTime
	if changed {
		cached.State = StatePropertiesChanged
	} else {
		cached.State = StateOK
	}
}

func (r *Reconciler) hashFile(path string) (string, error) {
	if r.hasher == nil {
		return "", nil
	}
	return r.hasher.Hash(path)
}

func (r *Reconciler) applyFile(ctx context.Context, own, f *Entry) error {
	switch f.State {
	case StateNew:
		id, err := r.store.InsertFile(ctx, store.FileRecord{Parent: own.ID, Name: f.Name, Size: f.Size, MTime: f.MTime, Hash: f.Hash})
		if err != nil {
			return fmt.Errorf("insert file %q: %w", f.Name, err)
		}
		f.ID = id
		r.stats.Files++
	case StatePropertiesChanged:
		if err := r.store.UpdateFile(ctx, store.FileRecord{ID: f.ID, Parent: own.ID, Name: f.Name, Size: f.Size, MTime: f.MTime, Hash: f.Hash}); err != nil {
			return fmt.Errorf("update file %q: %w", f.Name, err)
		}
	case StateDeleted, StateUnknown:
		if err := r.store.DeleteFile(ctx, f.ID); err != nil {
			return fmt.Errorf("delete file %q: %w", f.Name, err)
		}
		return nil
	case StateOK:
		// nothing to persist
	}

	if r.opts.InheritSize {
		own.SubSize += f.Size
	}
	if r.opts.InheritMTime && f.MTime > own.MTime {
		own.MTime = f.MTime
		own.State = StatePropertiesChanged
	}
	return nil
}

func (r *Reconciler) applyDir(ctx context.Context, own, d *Entry) error {
	switch d.State {
	case StateNew, StatePropertiesChanged:
		if err := r.store.UpdateDir(ctx, store.DirectoryRecord{ID: d.ID, Parent: own.ID, Name: d.Name, Size: d.Size, MTime: d.MTime}); err != nil {
			return fmt.Errorf("update directory %q: %w", d.Name, err)
		}
	case StateOK, StateDeleted, StateUnknown:
		// nothing further to persist
	}

	if r.opts.InheritSize {
		own.SubSize += d.Size
	}
	if r.opts.InheritMTime && d.MTime > own.MTime {
		own.MTime = d.MTime
		own.State = StatePropertiesChanged
	}
	return nil
}

func (r *Reconciler) deleteEntry(ctx context.Context, e *Entry) error {
	if e.Kind == KindFile {
		return r.store.DeleteFile(ctx, e.ID)
	}
	return r.store.DeleteDir(ctx, e.ID)
}

// ClearSubtree removes every descendant of the directory identified by id,
// leaving the directory itself in place with its size reset to zero.
func (r *Reconciler) ClearSubtree(ctx context.Context, id uint32) error {
	dirs, _, err := r.store.ListChildren(ctx, id)
	if err != nil {
		return err
	}
	if err := r.store.DeleteFilesOfParent(ctx, id); err != nil {
		return err
	}
	for _, sub := range dirs {
		if err := r.store.DeleteDir(ctx, sub.ID); err != nil {
			return err
		}
	}
	rec, err := r.store.GetDirByID(ctx, id)
	if err != nil || rec == nil {
		return err
	}
	rec.Size = 0
	return r.store.UpdateDir(ctx, *rec)
}

// PurgeAll drops every row in the store, across the entire persisted tree,
// regardless of the subtree id being operated on.
func (r *Reconciler) PurgeAll(ctx context.Context) error {
	return r.store.DropAll(ctx)
}

// HashCheckStatus categorizes the outcome of re-hashing a single stored
// file.
type HashCheckStatus uint8

const (
	// HashOK means the recomputed hash matches the stored hash.
	HashOK HashCheckStatus = iota
	// HashMismatch means the recomputed hash differs from the stored
	// hash.
	HashMismatch
	// HashMissing means the file no longer exists on disk or could not be
	// read for hashing.
	HashMissing
	// HashNone means the stored file has no hash to compare against.
	HashNone
)

func (s HashCheckStatus) String() string {
	switch s {
	case HashOK:
		return "OK"
	case HashMismatch:
		return "MISMATCH"
	case HashMissing:
		return "MISSING"
	default:
		return "NO_HASH"
	}
}

// HashCheckResult reports the outcome of re-hashing one stored file.
type HashCheckResult struct {
	Path   string
	Status HashCheckStatus
}

// HashCheck walks the stored subtree rooted at parentID, re-hashing every
// file found on disk at its recorded path (pathPrefix joined with the
// stored name chain) and comparing against the stored digest.
func (r *Reconciler) HashCheck(ctx context.Context, parentID uint32, pathPrefix string) ([]HashCheckResult, error) {
	var results []HashCheckResult

	dirs, files, err := r.store.ListChildren(ctx, parentID)
	if err != nil {
		return nil, err
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fullPath := filepath.Join(pathPrefix, f.Name)
		result := HashCheckResult{Path: fullPath}

		switch {
		case f.Hash == "":
			result.Status = HashNone
		default:
			if _, statErr := os.Stat(fullPath); statErr != nil {
				result.Status = HashMissing
			} else if sum, hashErr := r.hashFile(fullPath); hashErr != nil {
				result.Status = HashMissing
			} else if sum != f.Hash {
				result.Status = HashMismatch
			} else {
				result.Status = HashOK
			}
		}
		results = append(results, result)
	}

	for _, d := range dirs {
		sub, err := r.HashCheck(ctx, d.ID, filepath.Join(pathPrefix, d.Name))
		if err != nil {
			return nil, err
		}
		results = append(results, sub...)
	}

	return results, nil
}

// PrintTree writes a depth-first listing of the stored subtree rooted at
// parentID to w, one entry per line. If printSums is true, each file line
// is prefixed with its stored hash.
func (r *Reconciler) PrintTree(ctx context.Context, parentID uint32, pathPrefix string, printSums bool, w io.Writer) error {
	dirs, files, err := r.store.ListChildren(ctx, parentID)
	if err != nil {
		return err
	}
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].Name < dirs[j].Name })
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := filepath.Join(pathPrefix, f.Name)
		if printSums {
			line = fmt.Sprintf("%-40s %s", f.Hash, line)
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}

	for _, d := range dirs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w, filepath.Join(pathPrefix, d.Name)+"/"); err != nil {
			return err
		}
		if err := r.PrintTree(ctx, d.ID, filepath.Join(pathPrefix, d.Name), printSums, w); err != nil {
			return err
		}
	}

	return nil
}
