package fscrawl

import "errors"

// ErrConfig indicates the parsed command-line configuration is invalid or
// self-contradictory (e.g. --check combined with --watch).
var ErrConfig = errors.New("invalid configuration")

// ErrAborted indicates the operation was cancelled by a termination
// signal before it completed.
var ErrAborted = errors.New("aborted")
