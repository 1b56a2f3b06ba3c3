package telemetry

import "errors"

// Domain errors for telemetry persistence.
var (
	// ErrPersistFailed wraps a repository failure while storing a reading.
	ErrPersistFailed = errors.New("telemetry: persist failed")

	// ErrNotFound is returned when no status exists for a robot.
	ErrNotFound = errors.New("telemetry: robot status not found")

	// ErrInvalidStatus is returned for a status without a robot ID.
	ErrInvalidStatus = errors.New("telemetry: robot id is required")
)
