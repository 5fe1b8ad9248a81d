package main

import (
	"os"
	"syscall"
)

// terminationSignals are the signals that trigger cooperative shutdown. A
// first signal cancels the run context so in-progress loops exit at their
// next check; a second signal forces an immediate process exit, mirroring
// the original's single p_run boolean plus its "second Ctrl-C" escape
// hatch (see SPEC_FULL.md §5).
var terminationSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
