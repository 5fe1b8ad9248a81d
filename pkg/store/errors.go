package store

import "errors"

// ErrUnavailable indicates the store could not reach its backing database,
// even after a reconnect attempt.
var ErrUnavailable = errors.New("store unavailable")

// ErrQueryFailed indicates a query cannot be run for reasons other than
// connectivity. mysql.Open returns it when a configured table name is not a
// valid identifier.
var ErrQueryFailed = errors.New("store query failed")
