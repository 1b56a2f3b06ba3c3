package presence

import "errors"

// Domain errors for presence tracking.
var (
	// ErrInvalidWindow is returned when an eviction window or interval is not positive.
	ErrInvalidWindow = errors.New("presence: eviction window and interval must be positive")
)
