package gateway

import "context"

// TelemetryStore persists a parsed reading.
//
// Implementations must be safe for concurrent use; every session calls
// PersistTelemetry from its own goroutine.
type TelemetryStore interface {
	PersistTelemetry(ctx context.Context, robotID string, electricity int, active bool) error
}

// Logger defines the logging interface used by the gateway.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
