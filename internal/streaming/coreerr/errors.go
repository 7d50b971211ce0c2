// Package coreerr defines the result-kind taxonomy shared by every
// streaming-core component (spec.md §7), as sentinel errors wrapped
// with fmt.Errorf("...: %w", ...) at the call site for context.
package coreerr

import "errors"

var (
	ErrInvalidArg           = errors.New("invalid argument")
	ErrNotInitialized       = errors.New("not initialized")
	ErrAlreadyRunning       = errors.New("already running")
	ErrNotRunning           = errors.New("not running")
	ErrCantSetWhileRunning  = errors.New("cannot set while running")
	ErrPortBusy             = errors.New("port busy")
	ErrConnectionRefused    = errors.New("connection refused")
	ErrClientDisconnected   = errors.New("client disconnected")
	ErrSessionCreateFailed  = errors.New("session create failed")
	ErrServerShutdown       = errors.New("server shutdown")
	ErrInputFull            = errors.New("input full")
	ErrNeedMoreInput        = errors.New("need more input")
	ErrTimeout              = errors.New("timeout")
	ErrEmptySet             = errors.New("empty set")
)
