package dispatch

import "errors"

// Errors returned by the dispatch package. Each resolves a single command;
// the queue keeps moving.
var (
	// ErrTimeout is returned when a command's retry budget is exhausted
	// without a matching response.
	ErrTimeout = errors.New("dispatch: command timed out")

	// ErrDisconnected is returned for every pending command when the
	// transport drops.
	ErrDisconnected = errors.New("dispatch: disconnected")

	// ErrClosed is returned by Submit after the dispatcher shut down.
	ErrClosed = errors.New("dispatch: dispatcher closed")
)
