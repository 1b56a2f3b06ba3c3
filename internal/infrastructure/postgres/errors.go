package postgres

import "errors"

// Domain errors for the postgres package.
var (
	// ErrInvalidConfig is returned when the pool configuration cannot be built.
	ErrInvalidConfig = errors.New("postgres: invalid configuration")

	// ErrConnectionFailed is returned when the pool cannot reach the server.
	ErrConnectionFailed = errors.New("postgres: connection failed")
)
