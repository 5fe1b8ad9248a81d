package tree

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flesniak/fscrawl/pkg/hashing"
	"github.com/flesniak/fscrawl/pkg/logging"
	"github.com/flesniak/fscrawl/pkg/store"
	"github.com/flesniak/fscrawl/pkg/store/memory"
)

func newTestReconciler(s store.Store, hasher *hashing.Hasher) *Reconciler {
	return New(s, hasher, Options{InheritSize: true, AllowEmpty: true}, logging.New(logging.NewConsoleSink(), logging.LevelError))
}

func mustMkdirAll(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(path, 0755))
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestReconcileInsertsNewTree(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	mustMkdirAll(t, filepath.Join(root, "sub"))
	mustWriteFile(t, filepath.Join(root, "a.txt"), "hello")
	mustWriteFile(t, filepath.Join(root, "sub", "b.txt"), "world!")

	s := memory.New()
	rootID, err := s.InsertDir(ctx, store.DirectoryRecord{Parent: store.NoID, Name: "root"})
	require.NoError(t, err)

	r := newTestReconciler(s, hashing.New(hashing.MD5))
	require.NoError(t, r.Reconcile(ctx, root, rootID))

	rootInfo, err := os.Stat(root)
	require.NoError(t, err)
	subInfo, err := os.Stat(filepath.Join(root, "sub"))
	require.NoError(t, err)
	subExpected := uint64(subInfo.Size()) + uint64(len("world!"))
	rootExpected := uint64(rootInfo.Size()) + uint64(len("hello")) + subExpected

	rootRec, err := s.GetDirByID(ctx, rootID)
	require.NoError(t, err)
	require.Equal(t, rootExpected, rootRec.Size, "directory size must include its own inode size plus children")

	file, err := s.GetFileByName(ctx, rootID, "a.txt")
	require.NoError(t, err)
	require.NotNil(t, file)
	require.NotEmpty(t, file.Hash)

	subDir, err := s.GetDirByName(ctx, rootID, "sub")
	require.NoError(t, err)
	require.NotNil(t, subDir)
	require.Equal(t, subExpected, subDir.Size)

	stats := r.Statistics()
	require.Equal(t, uint32(2), stats.Files)
	require.Equal(t, uint32(1), stats.Directories)
}

func TestReconcileFailsOnEmptyBasedirWithoutAllowEmpty(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir() // an empty directory, e.g. an unmounted share

	s := memory.New()
	rootID, err := s.InsertDir(ctx, store.DirectoryRecord{Name: "root"})
	require.NoError(t, err)
	_, err = s.InsertFile(ctx, store.FileRecord{Parent: rootID, Name: "still-there.txt", Size: 42})
	require.NoError(t, err)

	r := New(s, hashing.New(hashing.None), Options{InheritSize: true, AllowEmpty: false}, logging.New(logging.NewConsoleSink(), logging.LevelError))
	require.Error(t, r.Reconcile(ctx, root, rootID))

	f, err := s.GetFileByName(ctx, rootID, "still-there.txt")
	require.NoError(t, err)
	require.NotNil(t, f, "existing content must survive a rejected empty-basedir reconcile")
}

func TestReconcileDetectsDeletedFile(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "keep.txt"), "x")

	s := memory.New()
	rootID, err := s.InsertDir(ctx, store.DirectoryRecord{Name: "root"})
	require.NoError(t, err)

	r := newTestReconciler(s, hashing.New(hashing.None))
	require.NoError(t, r.Reconcile(ctx, root, rootID))

	_, err = s.InsertFile(ctx, store.FileRecord{Parent: rootID, Name: "gone.txt", Size: 5})
	require.NoError(t, err)

	require.NoError(t, r.Reconcile(ctx, root, rootID))

	gone, err := s.GetFileByName(ctx, rootID, "gone.txt")
	require.NoError(t, err)
	require.Nil(t, gone)

	keep, err := s.GetFileByName(ctx, rootID, "keep.txt")
	require.NoError(t, err)
	require.NotNil(t, keep)
}

func TestReconcileDetectsPropertiesChanged(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	filePath := filepath.Join(root, "a.txt")
	mustWriteFile(t, filePath, "version1")

	s := memory.New()
	rootID, err := s.InsertDir(ctx, store.DirectoryRecord{Name: "root"})
	require.NoError(t, err)

	r := newTestReconciler(s, hashing.New(hashing.MD5))
	require.NoError(t, r.Reconcile(ctx, root, rootID))

	before, err := s.GetFileByName(ctx, rootID, "a.txt")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	mustWriteFile(t, filePath, "a much longer version 2 payload")
	require.NoError(t, r.Reconcile(ctx, root, rootID))

	after, err := s.GetFileByName(ctx, rootID, "a.txt")
	require.NoError(t, err)
	require.NotEqual(t, before.Size, after.Size)
	require.NotEqual(t, before.Hash, after.Hash)
}

func TestReconcileHandlesTypeFlip(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "thing"), "i am a file")

	s := memory.New()
	rootID, err := s.InsertDir(ctx, store.DirectoryRecord{Name: "root"})
	require.NoError(t, err)

	r := newTestReconciler(s, hashing.New(hashing.None))
	require.NoError(t, r.Reconcile(ctx, root, rootID))

	require.NoError(t, os.Remove(filepath.Join(root, "thing")))
	mustMkdirAll(t, filepath.Join(root, "thing"))
	mustWriteFile(t, filepath.Join(root, "thing", "inner.txt"), "now a dir")

	require.NoError(t, r.Reconcile(ctx, root, rootID))

	f, err := s.GetFileByName(ctx, rootID, "thing")
	require.NoError(t, err)
	require.Nil(t, f)

	d, err := s.GetDirByName(ctx, rootID, "thing")
	require.NoError(t, err)
	require.NotNil(t, d)
}

func TestClearSubtreeRemovesChildrenKeepsRoot(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	mustMkdirAll(t, filepath.Join(root, "sub"))
	mustWriteFile(t, filepath.Join(root, "sub", "f.txt"), "data")

	s := memory.New()
	rootID, err := s.InsertDir(ctx, store.DirectoryRecord{Name: "root"})
	require.NoError(t, err)

	r := newTestReconciler(s, hashing.New(hashing.None))
	require.NoError(t, r.Reconcile(ctx, root, rootID))

	require.NoError(t, r.ClearSubtree(ctx, rootID))

	rec, err := s.GetDirByID(ctx, rootID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, uint64(0), rec.Size)

	sub, err := s.GetDirByName(ctx, rootID, "sub")
	require.NoError(t, err)
	require.Nil(t, sub)
}

func TestHashCheckReportsEachStatus(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "ok.txt"), "stable")
	mustWriteFile(t, filepath.Join(root, "changed.txt"), "original")
	mustWriteFile(t, filepath.Join(root, "gone.txt"), "temp")

	s := memory.New()
	rootID, err := s.InsertDir(ctx, store.DirectoryRecord{Name: "root"})
	require.NoError(t, err)

	r := newTestReconciler(s, hashing.New(hashing.MD5))
	require.NoError(t, r.Reconcile(ctx, root, rootID))

	mustWriteFile(t, filepath.Join(root, "changed.txt"), "mutated")
	require.NoError(t, os.Remove(filepath.Join(root, "gone.txt")))

	results, err := r.HashCheck(ctx, rootID, root)
	require.NoError(t, err)

	byPath := map[string]HashCheckStatus{}
	for _, res := range results {
		byPath[res.Path] = res.Status
	}
	require.Equal(t, HashOK, byPath[filepath.Join(root, "ok.txt")])
	require.Equal(t, HashMismatch, byPath[filepath.Join(root, "changed.txt")])
	require.Equal(t, HashMissing, byPath[filepath.Join(root, "gone.txt")])
}

func TestPrintTreeListsEntriesDepthFirst(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	mustMkdirAll(t, filepath.Join(root, "sub"))
	mustWriteFile(t, filepath.Join(root, "a.txt"), "x")
	mustWriteFile(t, filepath.Join(root, "sub", "b.txt"), "y")

	s := memory.New()
	rootID, err := s.InsertDir(ctx, store.DirectoryRecord{Name: "root"})
	require.NoError(t, err)

	r := newTestReconciler(s, hashing.New(hashing.None))
	require.NoError(t, r.Reconcile(ctx, root, rootID))

	var buf strings.Builder
	require.NoError(t, r.PrintTree(ctx, rootID, "", false, &buf))
	require.Contains(t, buf.String(), "a.txt")
	require.Contains(t, buf.String(), "sub/")
	require.Contains(t, buf.String(), "b.txt")
}
