// Command fscrawl mirrors a filesystem subtree into a SQL table pair,
// keeping it synchronized via crawl, watch, verify, check, print, clear,
// and purge operations.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/flesniak/fscrawl/pkg/fscrawl"
	"github.com/flesniak/fscrawl/pkg/hashing"
	"github.com/flesniak/fscrawl/pkg/logging"
	"github.com/flesniak/fscrawl/pkg/store/mysql"
)

type rootFlags struct {
	basedir  string
	fakepath string

	host     string
	user     string
	password string
	database string

	dirTable  string
	fileTable string

	logLevel int
	logFile  string

	watch        bool
	md5          bool
	sha1         bool
	tth          bool
	forceHashing bool

	check bool
	verify bool
	print  bool
	printSums bool
	clear  bool
	purge  bool

	dryRun      bool
	allowEmpty  bool
	inheritSize bool
	inheritMTime bool
}

func main() {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "fscrawl [basedir]",
		Short:         "Mirror a filesystem subtree into a SQL database",
		Version:       fscrawl.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				flags.basedir = args[0]
			}
			return run(cmd.Context(), flags)
		},
	}
	root.SetVersionTemplate("fscrawl {{.Version}}\n")

	fs := root.Flags()
	fs.SortFlags = false
	fs.StringVar(&flags.basedir, "basedir", flags.basedir, "directory to crawl")
	fs.StringVar(&flags.fakepath, "fakepath", "", "persisted path to use instead of basedir, for relocating a tree")
	fs.StringVar(&flags.host, "host", "localhost", "database host[:port]")
	fs.StringVar(&flags.user, "user", "", "database user")
	fs.StringVar(&flags.password, "password", "", "database password")
	fs.StringVar(&flags.database, "database", "", "database name")
	fs.StringVar(&flags.dirTable, "dir-table", "fscrawl_directories", "directory table name")
	fs.StringVar(&flags.fileTable, "file-table", "fscrawl_files", "file table name")
	fs.IntVar(&flags.logLevel, "loglevel", int(logging.LevelInfo), "log verbosity (0=error .. 4=debug)")
	fs.StringVar(&flags.logFile, "logfile", "", "write logs to this file instead of stderr")
	fs.BoolVar(&flags.watch, "watch", false, "watch for changes after the initial crawl")
	fs.BoolVar(&flags.md5, "md5", false, "hash file contents with MD5")
	fs.BoolVar(&flags.sha1, "sha1", false, "hash file contents with SHA1")
	fs.BoolVar(&flags.tth, "tth", false, "hash file contents with Tiger Tree Hash")
	fs.BoolVar(&flags.forceHashing, "force-hashing", false, "recompute hashes even when size and mtime are unchanged")
	fs.BoolVar(&flags.check, "check", false, "re-hash stored files and report mismatches")
	fs.BoolVar(&flags.verify, "verify", false, "audit the stored tree for orphans and cycles")
	fs.BoolVar(&flags.print, "print", false, "print the stored tree")
	fs.BoolVar(&flags.printSums, "print-sums", false, "prefix printed files with their stored hash")
	fs.BoolVar(&flags.clear, "clear", false, "remove the stored basedir's children")
	fs.BoolVar(&flags.purge, "purge", false, "drop every row in both tables")
	fs.BoolVar(&flags.dryRun, "dry-run", false, "do not write any changes to the database")
	fs.BoolVar(&flags.allowEmpty, "allow-empty", false, "permit crawling a basedir that has no entries instead of failing")
	fs.BoolVar(&flags.inheritSize, "inherit-size", true, "propagate child sizes into parent directory sizes")
	fs.BoolVar(&flags.inheritMTime, "inherit-mtime", false, "propagate child mtimes into parent directory mtimes")

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, terminationSignals...)
	go func() {
		<-sigCh
		cancel()
		<-sigCh
		os.Exit(1)
	}()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, flags *rootFlags) error {
	level, err := logging.NameToLevel(flags.logLevel)
	if err != nil {
		return fmt.Errorf("%w: %v", fscrawl.ErrConfig, err)
	}

	hashFlags := 0
	for _, set := range []bool{flags.md5, flags.sha1, flags.tth} {
		if set {
			hashFlags++
		}
	}
	if hashFlags > 1 {
		return fmt.Errorf("%w: --md5, --sha1 and --tth are mutually exclusive", fscrawl.ErrConfig)
	}

	sink := logging.NewConsoleSink()
	if flags.logFile != "" {
		fileSink, err := logging.NewFileSink(flags.logFile)
		if err != nil {
			return err
		}
		defer logging.Close(fileSink)
		sink = fileSink
	}
	logger := logging.New(sink, level)

	cfg := fscrawl.Config{
		Mode:          resolveMode(flags),
		Watch:         flags.watch,
		BaseDir:       flags.basedir,
		FakePath:      flags.fakepath,
		Host:          flags.host,
		User:          flags.user,
		Password:      flags.password,
		Database:      flags.database,
		DirTable:      flags.dirTable,
		FileTable:     flags.fileTable,
		LogLevel:      level,
		LogFile:       flags.logFile,
		HashAlgorithm: resolveAlgorithm(flags),
		ForceHashing:  flags.forceHashing,
		DryRun:        flags.dryRun,
		AllowEmpty:    flags.allowEmpty,
		PrintSums:     flags.printSums,
		InheritSize:   flags.inheritSize,
		InheritMTime:  flags.inheritMTime,
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	s, err := mysql.Open(ctx, mysql.Config{
		Host:      cfg.Host,
		User:      cfg.User,
		Password:  cfg.Password,
		Database:  cfg.Database,
		DirTable:  cfg.DirTable,
		FileTable: cfg.FileTable,
		DryRun:    cfg.DryRun,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	defer s.Close()

	driver := fscrawl.New(cfg, s, logger)
	return driver.Run(ctx)
}

// resolveMode picks the operation from the mode flags. When several are set,
// the first of purge, clear, print, verify, check wins; with none set the
// mode is crawl.
func resolveMode(f *rootFlags) fscrawl.Mode {
	switch {
	case f.purge:
		return fscrawl.ModePurge
	case f.clear:
		return fscrawl.ModeClear
	case f.print:
		return fscrawl.ModePrint
	case f.verify:
		return fscrawl.ModeVerify
	case f.check:
		return fscrawl.ModeCheck
	default:
		return fscrawl.ModeCrawl
	}
}

// resolveAlgorithm maps the hash flag that is set (run rejects more than
// one) to its Algorithm; with none set, hashing is disabled.
func resolveAlgorithm(f *rootFlags) hashing.Algorithm {
	switch {
	case f.tth:
		return hashing.TTH
	case f.sha1:
		return hashing.SHA1
	case f.md5:
		return hashing.MD5
	default:
		return hashing.None
	}
}
