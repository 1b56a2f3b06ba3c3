package commandbridge

import "errors"

var (
	// ErrStopped is returned for commands that arrive after Stop.
	ErrStopped = errors.New("commandbridge: bridge stopped")

	// ErrInvalidOptions is returned by New when a dependency is missing.
	ErrInvalidOptions = errors.New("commandbridge: invalid options")
)
