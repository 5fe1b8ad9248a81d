package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flesniak/fscrawl/pkg/hashing"
	"github.com/flesniak/fscrawl/pkg/logging"
	"github.com/flesniak/fscrawl/pkg/store"
	"github.com/flesniak/fscrawl/pkg/store/memory"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.FailNow(t, "condition not met before timeout")
}

func TestWatcherDetectsNewFile(t *testing.T) {
	root := t.TempDir()
	s := memory.New()
	ctx := context.Background()
	rootID, err := s.InsertDir(ctx, store.DirectoryRecord{Name: "root"})
	require.NoError(t, err)

	w := New(s, hashing.New(hashing.MD5), logging.New(logging.NewConsoleSink(), logging.LevelError))
	w.debounce = 20 * time.Millisecond

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Watch(watchCtx, root, rootID) }()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(root, "new.txt"), []byte("hello"), 0644))

	waitFor(t, 2*time.Second, func() bool {
		f, err := s.GetFileByName(ctx, rootID, "new.txt")
		return err == nil && f != nil && f.Hash != ""
	})

	cancel()
	<-done
}

func TestWatcherDetectsNewDirectory(t *testing.T) {
	root := t.TempDir()
	s := memory.New()
	ctx := context.Background()
	rootID, err := s.InsertDir(ctx, store.DirectoryRecord{Name: "root"})
	require.NoError(t, err)

	w := New(s, hashing.New(hashing.None), logging.New(logging.NewConsoleSink(), logging.LevelError))

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Watch(watchCtx, root, rootID) }()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0755))

	waitFor(t, 2*time.Second, func() bool {
		d, err := s.GetDirByName(ctx, rootID, "sub")
		return err == nil && d != nil
	})

	cancel()
	<-done
}

func TestWatcherReconcilesMovedInDirectoryContents(t *testing.T) {
	root := t.TempDir()
	staging := t.TempDir()

	movedDir := filepath.Join(staging, "moved")
	require.NoError(t, os.Mkdir(movedDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(movedDir, "payload.txt"), []byte("preexisting"), 0644))

	s := memory.New()
	ctx := context.Background()
	rootID, err := s.InsertDir(ctx, store.DirectoryRecord{Name: "root"})
	require.NoError(t, err)

	w := New(s, hashing.New(hashing.MD5), logging.New(logging.NewConsoleSink(), logging.LevelError))
	w.debounce = 20 * time.Millisecond

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Watch(watchCtx, root, rootID) }()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.Rename(movedDir, filepath.Join(root, "moved")))

	waitFor(t, 2*time.Second, func() bool {
		d, err := s.GetDirByName(ctx, rootID, "moved")
		if err != nil || d == nil {
			return false
		}
		f, err := s.GetFileByName(ctx, d.ID, "payload.txt")
		return err == nil && f != nil && f.Hash != ""
	})

	cancel()
	<-done
}

func TestWatcherDetectsRemoval(t *testing.T) {
	root := t.TempDir()
	filePath := filepath.Join(root, "doomed.txt")
	require.NoError(t, os.WriteFile(filePath, []byte("x"), 0644))

	s := memory.New()
	ctx := context.Background()
	rootID, err := s.InsertDir(ctx, store.DirectoryRecord{Name: "root"})
	require.NoError(t, err)
	_, err = s.InsertFile(ctx, store.FileRecord{Parent: rootID, Name: "doomed.txt", Size: 1})
	require.NoError(t, err)

	w := New(s, hashing.New(hashing.None), logging.New(logging.NewConsoleSink(), logging.LevelError))

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Watch(watchCtx, root, rootID) }()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.Remove(filePath))

	waitFor(t, 2*time.Second, func() bool {
		f, err := s.GetFileByName(ctx, rootID, "doomed.txt")
		return err == nil && f == nil
	})

	cancel()
	<-done
}
