package gateway

import (
	"context"
	"fmt"
	"net/netip"
	"sync/atomic"

	"github.com/nerrad567/robolink-gateway/internal/presence"
)

// DispatchStats holds dispatcher counters.
type DispatchStats struct {
	Sent         uint64 `json:"sent"`
	NotConnected uint64 `json:"not_connected"`
	Failed       uint64 `json:"failed"`
}

// Dispatcher routes commands from the API and MQTT bridge to robot sessions.
//
// It only reads the registry. A failed write leaves the stale session entry
// in place; the next valid frame from the robot replaces it.
type Dispatcher struct {
	registry *presence.Registry
	logger   Logger

	sent         atomic.Uint64
	notConnected atomic.Uint64
	failed       atomic.Uint64
}

// NewDispatcher creates a dispatcher over registry.
func NewDispatcher(registry *presence.Registry) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// SendCommand writes payload to robotID's session.
//
// Returns:
//   - nil when the bytes were written
//   - *NotConnectedError when no session is registered (nothing is written)
//   - an error wrapping ErrDispatchFailed when the write failed
func (d *Dispatcher) SendCommand(ctx context.Context, robotID string, payload []byte) error {
	handle, ok := d.registry.ResolveSession(robotID)
	if !ok {
		d.notConnected.Add(1)
		return &NotConnectedError{RobotID: robotID}
	}

	if err := handle.Send(ctx, payload); err != nil {
		d.failed.Add(1)
		d.logger.Warn("command dispatch failed",
			"robot_id", robotID,
			"session_id", handle.ID(),
			"error", err,
		)
		return fmt.Errorf("%w: %s: %w", ErrDispatchFailed, robotID, err)
	}

	d.sent.Add(1)
	d.logger.Info("command dispatched",
		"robot_id", robotID,
		"session_id", handle.ID(),
		"bytes", len(payload),
	)
	return nil
}

// ResolveAddress returns robotID's last known address.
func (d *Dispatcher) ResolveAddress(robotID string) (netip.Addr, bool) {
	return d.registry.ResolveAddress(robotID)
}

// Stats returns dispatcher counters.
func (d *Dispatcher) Stats() DispatchStats {
	return DispatchStats{
		Sent:         d.sent.Load(),
		NotConnected: d.notConnected.Load(),
		Failed:       d.failed.Load(),
	}
}
