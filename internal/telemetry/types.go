package telemetry

import (
	"context"
	"time"
)

// Status is the latest persisted reading for one robot.
type Status struct {
	RobotID     string    `json:"robot_id"`
	Electricity int       `json:"electricity"`
	Active      bool      `json:"activate"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HistoryEntry is one appended reading.
type HistoryEntry struct {
	RobotID     string    `json:"robot_id"`
	Electricity int       `json:"electricity"`
	Active      bool      `json:"activate"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// Repository stores the latest status per robot.
type Repository interface {
	UpsertStatus(ctx context.Context, status Status) error
	GetStatus(ctx context.Context, robotID string) (*Status, error)
	ListStatuses(ctx context.Context) ([]Status, error)
	HealthCheck(ctx context.Context) error
}

// HistoryReader is implemented by repositories that keep every reading.
type HistoryReader interface {
	History(ctx context.Context, robotID string, limit int) ([]HistoryEntry, error)
}

// Sink receives each reading after it was persisted.
type Sink interface {
	Publish(ctx context.Context, status Status) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, status Status) error

// Publish calls f.
func (f SinkFunc) Publish(ctx context.Context, status Status) error {
	return f(ctx, status)
}

// Logger defines the logging interface used by the recorder.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
