package fscrawl

import (
	"fmt"
	"os"

	"github.com/flesniak/fscrawl/pkg/hashing"
	"github.com/flesniak/fscrawl/pkg/logging"
)

// Mode selects the top-level operation the Driver performs.
type Mode uint8

const (
	// ModeCrawl bulk-reconciles the stored tree against the filesystem.
	// It is the default mode and may be combined with Watch.
	ModeCrawl Mode = iota
	// ModeCheck re-hashes every stored file and reports mismatches,
	// without touching the filesystem otherwise.
	ModeCheck
	// ModeVerify audits the stored tree for orphans and cycles.
	ModeVerify
	// ModePrint enumerates the stored tree to stdout.
	ModePrint
	// ModeClear removes the descendants of the basedir's stored
	// directory, leaving the directory row itself in place.
	ModeClear
	// ModePurge drops every row in both tables, independent of basedir.
	ModePurge
)

// Config is the fully-parsed, immutable configuration for a single Driver
// run. It is built once by cmd/fscrawl from parsed flags; no package-level
// mutable configuration singleton exists (see SPEC_FULL.md §9).
type Config struct {
	Mode  Mode
	Watch bool

	BaseDir  string
	FakePath string

	Host     string
	User     string
	Password string
	Database string

	DirTable  string
	FileTable string

	LogLevel logging.Level
	LogFile  string

	HashAlgorithm hashing.Algorithm
	ForceHashing  bool

	DryRun      bool
	AllowEmpty  bool
	PrintSums   bool
	InheritSize bool
	InheritMTime bool
}

// Validate checks Config for internal consistency, returning an
// ErrConfig-wrapped error describing the first problem found.
func (c Config) Validate() error {
	if c.Mode == ModeCheck && c.Watch {
		return fmt.Errorf("%w: --check cannot be combined with --watch", ErrConfig)
	}
	if c.Host == "" {
		return fmt.Errorf("%w: --host is required", ErrConfig)
	}
	if c.Database == "" {
		return fmt.Errorf("%w: --database is required", ErrConfig)
	}
	if c.Mode != ModePurge && c.BaseDir == "" {
		return fmt.Errorf("%w: --basedir is required", ErrConfig)
	}
	if c.Mode == ModeCrawl || c.Watch {
		info, err := os.Stat(c.BaseDir)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrConfig, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("%w: %q is not a directory", ErrConfig, c.BaseDir)
		}
	}
	return nil
}
