package runctl

import "errors"

// Controller errors.
var (
	// ErrNoAgent indicates no agent (and therefore no transport) is bound.
	ErrNoAgent = errors.New("no agent bound")

	// ErrEmptyMessage indicates a blank user message.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrRunInProgress indicates a send while a run is still active.
	ErrRunInProgress = errors.New("run already in progress")

	// ErrClosed indicates the controller has been closed.
	ErrClosed = errors.New("controller closed")
)
