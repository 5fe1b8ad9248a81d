package fscrawl

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flesniak/fscrawl/pkg/hashing"
	"github.com/flesniak/fscrawl/pkg/logging"
	"github.com/flesniak/fscrawl/pkg/store"
	"github.com/flesniak/fscrawl/pkg/store/memory"
)

func testLogger() *logging.Logger {
	return logging.New(logging.NewConsoleSink(), logging.LevelError)
}

func TestDriverRejectsCheckAndWatch(t *testing.T) {
	cfg := Config{Mode: ModeCheck, Watch: true, Host: "h", Database: "d", BaseDir: "."}
	err := cfg.Validate()
	require.ErrorIs(t, err, ErrConfig)
}

func TestDriverCrawlEndToEnd(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("content"), 0644))

	s := memory.New()
	cfg := Config{
		Mode:          ModeCrawl,
		BaseDir:       root,
		Host:          "localhost",
		Database:      "fscrawl",
		HashAlgorithm: hashing.MD5,
		InheritSize:   true,
		AllowEmpty:    true,
	}
	require.NoError(t, cfg.Validate())

	d := New(cfg, s, testLogger())
	require.NoError(t, d.Run(context.Background()))

	id, err := d.resolveBaseID(context.Background(), false)
	require.NoError(t, err)
	rec, err := s.GetDirByID(context.Background(), id)
	require.NoError(t, err)

	rootInfo, err := os.Stat(root)
	require.NoError(t, err)
	require.Equal(t, uint64(rootInfo.Size())+uint64(len("content")), rec.Size)
}

func TestDriverPurge(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	id, err := s.InsertDir(ctx, store.DirectoryRecord{Name: "root"})
	require.NoError(t, err)

	cfg := Config{Mode: ModePurge, Host: "h", Database: "d"}
	require.NoError(t, cfg.Validate())

	d := New(cfg, s, testLogger())
	require.NoError(t, d.Run(ctx))

	rec, err := s.GetDirByID(ctx, id)
	require.NoError(t, err)
	require.Nil(t, rec)
}
