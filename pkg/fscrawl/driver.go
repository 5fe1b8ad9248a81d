// Package fscrawl wires together the hashing, store, pathresolver, tree,
// and watch packages into the operations exposed on the command line.
package fscrawl

import (
	"context"
	"fmt"
	"os"

	pkgerrors "github.com/pkg/errors"

	"github.com/flesniak/fscrawl/pkg/hashing"
	"github.com/flesniak/fscrawl/pkg/logging"
	"github.com/flesniak/fscrawl/pkg/pathresolver"
	"github.com/flesniak/fscrawl/pkg/store"
	"github.com/flesniak/fscrawl/pkg/tree"
	"github.com/flesniak/fscrawl/pkg/watch"
)

// Driver runs a single fscrawl operation against a Store, dispatching on
// its Config's Mode. It is constructed once per process invocation.
type Driver struct {
	config   Config
	store    store.Store
	logger   *logging.Logger
	resolver *pathresolver.Resolver
}

// New creates a Driver. The caller owns s's lifecycle (the Driver never
// closes it).
func New(cfg Config, s store.Store, logger *logging.Logger) *Driver {
	return &Driver{
		config:   cfg,
		store:    s,
		logger:   logger,
		resolver: pathresolver.New(s),
	}
}

// Run executes the configured operation. A cancelled ctx surfaces as
// ErrAborted.
func (d *Driver) Run(ctx context.Context) error {
	if err := d.config.Validate(); err != nil {
		return err
	}

	if err := d.store.EnsureSchema(ctx); err != nil {
		return pkgerrors.Wrap(err, "ensure schema")
	}

	var err error
	switch d.config.Mode {
	case ModePurge:
		err = d.runPurge(ctx)
	case ModeVerify:
		err = d.runVerify(ctx)
	case ModePrint:
		err = d.runPrint(ctx)
	case ModeClear:
		err = d.runClear(ctx)
	case ModeCheck:
		err = d.runCheck(ctx)
	default:
		err = d.runCrawl(ctx)
	}

	if ctx.Err() != nil {
		return ErrAborted
	}
	return err
}

func (d *Driver) resolveBaseID(ctx context.Context, createMissing bool) (uint32, error) {
	target := d.config.BaseDir
	if d.config.FakePath != "" {
		target = d.config.FakePath
	}
	id, err := d.resolver.Descend(ctx, target, createMissing)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "resolve basedir")
	}
	return id, nil
}

func (d *Driver) newHasher() *hashing.Hasher {
	return hashing.New(d.config.HashAlgorithm)
}

func (d *Driver) runCrawl(ctx context.Context) error {
	id, err := d.resolveBaseID(ctx, true)
	if err != nil {
		return err
	}

	reconciler := tree.New(d.store, d.newHasher(), tree.Options{
		InheritSize:  d.config.InheritSize,
		InheritMTime: d.config.InheritMTime,
		ForceRehash:  d.config.ForceHashing,
		AllowEmpty:   d.config.AllowEmpty,
	}, d.logger)

	if err := reconciler.Reconcile(ctx, d.config.BaseDir, id); err != nil {
		return pkgerrors.Wrap(err, "reconcile")
	}

	stats := reconciler.Statistics()
	d.logger.Infof("crawl complete: %d files, %d directories inserted", stats.Files, stats.Directories)

	if d.config.Watch {
		watcher := watch.New(d.store, d.newHasher(), d.logger)
		d.logger.Infof("watching %q for changes", d.config.BaseDir)
		if err := watcher.Watch(ctx, d.config.BaseDir, id); err != nil && ctx.Err() == nil {
			return pkgerrors.Wrap(err, "watch")
		}
	}

	return nil
}

func (d *Driver) runCheck(ctx context.Context) error {
	id, err := d.resolveBaseID(ctx, false)
	if err != nil {
		return err
	}

	reconciler := tree.New(d.store, d.newHasher(), tree.Options{}, d.logger)
	results, err := reconciler.HashCheck(ctx, id, d.config.BaseDir)
	if err != nil {
		return pkgerrors.Wrap(err, "hash check")
	}

	var mismatches int
	for _, r := range results {
		if r.Status != tree.HashOK {
			mismatches++
		}
		d.logger.Infof("%-10s %s", r.Status, r.Path)
	}
	if mismatches > 0 {
		return fmt.Errorf("hash check found %d problem(s)", mismatches)
	}
	return nil
}

func (d *Driver) runVerify(ctx context.Context) error {
	verifier := tree.NewVerifier(d.store, d.logger)
	report, err := verifier.Verify(ctx)
	if err != nil {
		return pkgerrors.Wrap(err, "verify")
	}
	d.logger.Infof("verify complete: removed %d directories, %d files", report.DirectoriesRemoved, report.FilesRemoved)
	return nil
}

func (d *Driver) runPrint(ctx context.Context) error {
	id, err := d.resolveBaseID(ctx, false)
	if err != nil {
		return err
	}
	reconciler := tree.New(d.store, nil, tree.Options{}, d.logger)
	return reconciler.PrintTree(ctx, id, d.config.BaseDir, d.config.PrintSums, os.Stdout)
}

func (d *Driver) runClear(ctx context.Context) error {
	id, err := d.resolveBaseID(ctx, false)
	if err != nil {
		return err
	}
	reconciler := tree.New(d.store, nil, tree.Options{}, d.logger)
	if err := reconciler.ClearSubtree(ctx, id); err != nil {
		return pkgerrors.Wrap(err, "clear")
	}
	d.logger.Infof("cleared %q", d.config.BaseDir)
	return nil
}

func (d *Driver) runPurge(ctx context.Context) error {
	reconciler := tree.New(d.store, nil, tree.Options{}, d.logger)
	if err := reconciler.PurgeAll(ctx); err != nil {
		return pkgerrors.Wrap(err, "purge")
	}
	d.logger.Infof("purged entire database")
	return nil
}
