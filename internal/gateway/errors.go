package gateway

import (
	"errors"
	"fmt"
)

// Frame parse errors. All of them match ErrMalformedFrame with errors.Is.
var (
	// ErrMalformedFrame is the parent of every frame parse failure.
	ErrMalformedFrame = errors.New("gateway: malformed frame")

	// ErrInvalidUTF8 is returned when the frame bytes are not valid UTF-8.
	ErrInvalidUTF8 = fmt.Errorf("%w: invalid utf-8", ErrMalformedFrame)

	// ErrInvalidJSON is returned when the frame text is not a JSON object.
	ErrInvalidJSON = fmt.Errorf("%w: invalid json", ErrMalformedFrame)

	// ErrMissingField is returned when a required field is absent or not a string.
	ErrMissingField = fmt.Errorf("%w: missing or non-string field", ErrMalformedFrame)

	// ErrInvalidElectricity is returned when electricity is not a 32-bit integer.
	ErrInvalidElectricity = fmt.Errorf("%w: electricity is not an integer", ErrMalformedFrame)

	// ErrInvalidActivate is returned when activate is not a recognised token.
	ErrInvalidActivate = fmt.Errorf("%w: unrecognised activate token", ErrMalformedFrame)
)

// Transport and dispatch errors.
var (
	// ErrBindFailed is returned by Server.Listen when the listener cannot be created.
	ErrBindFailed = errors.New("gateway: bind failed")

	// ErrNotListening is returned by Server.Serve before Listen succeeded.
	ErrNotListening = errors.New("gateway: server is not listening")

	// ErrSessionClosed is returned when writing to a session that has ended.
	ErrSessionClosed = errors.New("gateway: session closed")

	// ErrReadFailed wraps a connection read error that ended a session.
	ErrReadFailed = errors.New("gateway: read failed")

	// ErrWriteFailed wraps a connection write error.
	ErrWriteFailed = errors.New("gateway: write failed")

	// ErrNotConnected is matched by *NotConnectedError.
	ErrNotConnected = errors.New("gateway: robot not connected")

	// ErrDispatchFailed wraps a write failure while dispatching a command.
	ErrDispatchFailed = errors.New("gateway: dispatch failed")
)

// NotConnectedError reports a dispatch to a robot with no registered session.
type NotConnectedError struct {
	RobotID string
}

func (e *NotConnectedError) Error() string {
	return e.RobotID + " not connected"
}

// Is reports whether target is ErrNotConnected.
func (e *NotConnectedError) Is(target error) bool {
	return target == ErrNotConnected
}
