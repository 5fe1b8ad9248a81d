package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flesniak/fscrawl/pkg/store"
)

func TestDeleteDirRemovesDescendants(t *testing.T) {
	ctx := context.Background()
	s := New()

	root, err := s.InsertDir(ctx, store.DirectoryRecord{Parent: store.NoID, Name: "root"})
	require.NoError(t, err)
	child, err := s.InsertDir(ctx, store.DirectoryRecord{Parent: root, Name: "child"})
	require.NoError(t, err)
	grandchild, err := s.InsertDir(ctx, store.DirectoryRecord{Parent: child, Name: "grandchild"})
	require.NoError(t, err)
	_, err = s.InsertFile(ctx, store.FileRecord{Parent: grandchild, Name: "f.txt", Size: 1})
	require.NoError(t, err)

	require.NoError(t, s.DeleteDir(ctx, child))

	c, err := s.GetDirByID(ctx, child)
	require.NoError(t, err)
	require.Nil(t, c)

	g, err := s.GetDirByID(ctx, grandchild)
	require.NoError(t, err)
	require.Nil(t, g)

	f, err := s.GetFileByName(ctx, grandchild, "f.txt")
	require.NoError(t, err)
	require.Nil(t, f)

	r, err := s.GetDirByID(ctx, root)
	require.NoError(t, err)
	require.NotNil(t, r)
}

func TestDeleteDirTerminatesOnCycle(t *testing.T) {
	ctx := context.Background()
	s := New()

	a, err := s.InsertDir(ctx, store.DirectoryRecord{Name: "a"})
	require.NoError(t, err)
	b, err := s.InsertDir(ctx, store.DirectoryRecord{Parent: a, Name: "b"})
	require.NoError(t, err)
	require.NoError(t, s.UpdateDir(ctx, store.DirectoryRecord{ID: a, Parent: b, Name: "a"}))

	done := make(chan error, 1)
	go func() { done <- s.DeleteDir(ctx, a) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		require.FailNow(t, "DeleteDir did not terminate on a cyclic parent chain")
	}
}
