package shell

import "errors"

var (
	// ErrShellUnavailable is returned when the shell process cannot be started.
	ErrShellUnavailable = errors.New("shell unavailable")

	// ErrShellTerminated is returned when the shell exits before a command
	// completes. The next command respawns it.
	ErrShellTerminated = errors.New("shell terminated")

	// ErrClosed is returned by commands issued after Close.
	ErrClosed = errors.New("shell session closed")
)
