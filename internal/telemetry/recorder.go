package telemetry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

type namedSink struct {
	name string
	sink Sink
}

// RecorderStats counts readings handled by a Recorder.
type RecorderStats struct {
	Persisted    uint64 `json:"persisted"`
	Failed       uint64 `json:"failed"`
	SinkFailures uint64 `json:"sink_failures"`
}

// Recorder writes readings to a Repository and fans them out to sinks.
//
// Thread Safety:
//   - PersistTelemetry is called concurrently by every gateway session.
//   - AddSink may be called at any time; a sink added mid-flight sees
//     readings persisted after it was added.
type Recorder struct {
	repo Repository

	mu     sync.RWMutex
	sinks  []namedSink
	logger Logger
	now    func() time.Time

	persisted    atomic.Uint64
	failed       atomic.Uint64
	sinkFailures atomic.Uint64
}

// NewRecorder creates a recorder over repo.
func NewRecorder(repo Repository) *Recorder {
	return &Recorder{
		repo:   repo,
		logger: noopLogger{},
		now:    time.Now,
	}
}

// SetLogger sets the logger for sink failures.
func (r *Recorder) SetLogger(logger Logger) {
	r.mu.Lock()
	r.logger = logger
	r.mu.Unlock()
}

// SetClock replaces the timestamp source. Intended for tests.
func (r *Recorder) SetClock(now func() time.Time) {
	r.mu.Lock()
	r.now = now
	r.mu.Unlock()
}

// AddSink registers a best-effort consumer of persisted readings.
func (r *Recorder) AddSink(name string, sink Sink) {
	r.mu.Lock()
	r.sinks = append(r.sinks, namedSink{name: name, sink: sink})
	r.mu.Unlock()
}

// PersistTelemetry upserts the robot's status and then notifies sinks.
//
// Returns:
//   - error: ErrPersistFailed wrapping the repository error; sink errors
//     are logged and not returned
func (r *Recorder) PersistTelemetry(ctx context.Context, robotID string, electricity int, active bool) error {
	r.mu.RLock()
	now := r.now
	sinks := r.sinks
	logger := r.logger
	r.mu.RUnlock()

	status := Status{
		RobotID:     robotID,
		Electricity: electricity,
		Active:      active,
		UpdatedAt:   now().UTC(),
	}
	if err := r.repo.UpsertStatus(ctx, status); err != nil {
		r.failed.Add(1)
		return fmt.Errorf("%w: %s: %w", ErrPersistFailed, robotID, err)
	}
	r.persisted.Add(1)

	for _, s := range sinks {
		if err := s.sink.Publish(ctx, status); err != nil {
			r.sinkFailures.Add(1)
			logger.Warn("telemetry sink failed", "sink", s.name, "robot_id", robotID, "error", err)
		}
	}
	return nil
}

// Stats returns counters since creation.
func (r *Recorder) Stats() RecorderStats {
	return RecorderStats{
		Persisted:    r.persisted.Load(),
		Failed:       r.failed.Load(),
		SinkFailures: r.sinkFailures.Load(),
	}
}
