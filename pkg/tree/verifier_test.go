package tree

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flesniak/fscrawl/pkg/logging"
	"github.com/flesniak/fscrawl/pkg/store"
	"github.com/flesniak/fscrawl/pkg/store/memory"
)

func newTestVerifier(s store.Store) *Verifier {
	return NewVerifier(s, logging.New(logging.NewConsoleSink(), logging.LevelError))
}

func TestVerifyKeepsHealthyTree(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	rootID, err := s.InsertDir(ctx, store.DirectoryRecord{Name: "root"})
	require.NoError(t, err)
	subID, err := s.InsertDir(ctx, store.DirectoryRecord{Parent: rootID, Name: "sub"})
	require.NoError(t, err)
	_, err = s.InsertFile(ctx, store.FileRecord{Parent: subID, Name: "f.txt"})
	require.NoError(t, err)

	report, err := newTestVerifier(s).Verify(ctx)
	require.NoError(t, err)
	require.Zero(t, report.DirectoriesRemoved)
	require.Zero(t, report.FilesRemoved)
}

func TestVerifyRemovesSelfLoop(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	id, err := s.InsertDir(ctx, store.DirectoryRecord{Name: "loop"})
	require.NoError(t, err)
	require.NoError(t, s.UpdateDir(ctx, store.DirectoryRecord{ID: id, Parent: id, Name: "loop"}))

	report, err := newTestVerifier(s).Verify(ctx)
	require.NoError(t, err)
	require.Equal(t, uint32(1), report.DirectoriesRemoved)

	rec, err := s.GetDirByID(ctx, id)
	require.NoError(t, err)
	require.Nil(t, rec)
}

func TestVerifyRemovesCycle(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	aID, err := s.InsertDir(ctx, store.DirectoryRecord{Name: "a"})
	require.NoError(t, err)
	bID, err := s.InsertDir(ctx, store.DirectoryRecord{Parent: aID, Name: "b"})
	require.NoError(t, err)
	require.NoError(t, s.UpdateDir(ctx, store.DirectoryRecord{ID: aID, Parent: bID, Name: "a"}))

	report, err := newTestVerifier(s).Verify(ctx)
	require.NoError(t, err)
	require.Equal(t, uint32(2), report.DirectoriesRemoved)
}

func TestVerifyRemovesOrphanFile(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	_, err := s.InsertFile(ctx, store.FileRecord{Parent: 9999, Name: "orphan.txt"})
	require.NoError(t, err)

	report, err := newTestVerifier(s).Verify(ctx)
	require.NoError(t, err)
	require.Equal(t, uint32(1), report.FilesRemoved)
}

func TestVerifyRemovesFilesOfCyclicParent(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	aID, err := s.InsertDir(ctx, store.DirectoryRecord{Name: "a"})
	require.NoError(t, err)
	bID, err := s.InsertDir(ctx, store.DirectoryRecord{Parent: aID, Name: "b"})
	require.NoError(t, err)
	require.NoError(t, s.UpdateDir(ctx, store.DirectoryRecord{ID: aID, Parent: bID, Name: "a"}))
	_, err = s.InsertFile(ctx, store.FileRecord{Parent: bID, Name: "f.txt"})
	require.NoError(t, err)

	report, err := newTestVerifier(s).Verify(ctx)
	require.NoError(t, err)
	require.Equal(t, uint32(2), report.DirectoriesRemoved)
	require.Equal(t, uint32(1), report.FilesRemoved)
}
