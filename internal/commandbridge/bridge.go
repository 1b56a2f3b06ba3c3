package commandbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/robolink-gateway/internal/gateway"
	"github.com/nerrad567/robolink-gateway/internal/infrastructure/mqtt"
)

const defaultDispatchTimeout = 10 * time.Second

// Ack statuses.
const (
	StatusSent         = "sent"
	StatusNotConnected = "not_connected"
	StatusFailed       = "failed"
)

// Bus is the MQTT surface the bridge needs. *mqtt.Client satisfies it.
type Bus interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// CommandSender delivers a command to a robot. *gateway.Dispatcher
// satisfies it.
type CommandSender interface {
	SendCommand(ctx context.Context, robotID string, payload []byte) error
}

// Logger defines the logging interface used by the bridge.
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

// Ack is published on robolink/ack/{robot_id} after every command.
type Ack struct {
	RobotID string `json:"robot_id"`
	Status  string `json:"status"`
	Bytes   int    `json:"bytes,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Options configures a Bridge.
type Options struct {
	Bus    Bus
	Sender CommandSender

	// QoS for the command subscription and acks.
	QoS byte

	// DefaultCommand is sent when a command message has an empty payload.
	DefaultCommand string

	// Timeout bounds one dispatch. Zero means 10s.
	Timeout time.Duration

	Logger Logger
}

// Metrics counts bridge activity.
type Metrics struct {
	Received     uint64 `json:"received"`
	Sent         uint64 `json:"sent"`
	NotConnected uint64 `json:"not_connected"`
	Failed       uint64 `json:"failed"`
}

// Bridge subscribes to robot command topics and dispatches them.
//
// Thread Safety:
//   - Handlers run concurrently on MQTT delivery goroutines.
//   - Stop waits for in-flight dispatches.
type Bridge struct {
	bus            Bus
	sender         CommandSender
	qos            byte
	defaultCommand []byte
	timeout        time.Duration
	logger         Logger

	ctx       context.Context
	ctxCancel context.CancelFunc
	wg        sync.WaitGroup
	stopOnce  sync.Once
	mu        sync.Mutex // guards stopped and wg.Add
	stopped   bool

	received     atomic.Uint64
	sent         atomic.Uint64
	notConnected atomic.Uint64
	failed       atomic.Uint64
}

// New creates a bridge. Call Start to subscribe.
func New(opts Options) (*Bridge, error) {
	if opts.Bus == nil || opts.Sender == nil {
		return nil, fmt.Errorf("%w: bus and sender are required", ErrInvalidOptions)
	}
	if opts.QoS > 2 {
		return nil, fmt.Errorf("%w: qos %d", ErrInvalidOptions, opts.QoS)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}
	var logger Logger = noopLogger{}
	if opts.Logger != nil {
		logger = opts.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		bus:            opts.Bus,
		sender:         opts.Sender,
		qos:            opts.QoS,
		defaultCommand: []byte(opts.DefaultCommand),
		timeout:        timeout,
		logger:         logger,
		ctx:            ctx,
		ctxCancel:      cancel,
	}, nil
}

// Start subscribes to every robot command topic.
func (b *Bridge) Start() error {
	topic := mqtt.Topics{}.AllRobotCommands()
	if err := b.bus.Subscribe(topic, b.qos, b.handleCommand); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logger.Info("subscribed to robot commands", "topic", topic)
	return nil
}

// Stop unsubscribes, cancels in-flight dispatches, and waits for them.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.mu.Lock()
		b.stopped = true
		b.mu.Unlock()

		if err := b.bus.Unsubscribe(mqtt.Topics{}.AllRobotCommands()); err != nil {
			b.logger.Debug("unsubscribe on stop failed", "error", err)
		}
		b.ctxCancel()
		b.wg.Wait()
		b.logger.Info("command bridge stopped")
	})
}

// handleCommand is the MQTT handler for robolink/command/+.
func (b *Bridge) handleCommand(topic string, payload []byte) error {
	robotID, err := mqtt.RobotIDFromTopic(topic)
	if err != nil {
		return fmt.Errorf("command topic %q: %w", topic, err)
	}

	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return ErrStopped
	}
	b.wg.Add(1)
	b.mu.Unlock()
	defer b.wg.Done()

	b.received.Add(1)

	command := payload
	if len(command) == 0 {
		command = b.defaultCommand
	}

	ctx, cancel := context.WithTimeout(b.ctx, b.timeout)
	defer cancel()
	dispatchErr := b.sender.SendCommand(ctx, robotID, command)

	ack := b.classify(robotID, len(command), dispatchErr)
	b.logger.Debug("mqtt command handled", "robot_id", robotID, "status", ack.Status)
	return b.publishAck(ack)
}

func (b *Bridge) classify(robotID string, size int, err error) Ack {
	switch {
	case err == nil:
		b.sent.Add(1)
		return Ack{RobotID: robotID, Status: StatusSent, Bytes: size}
	case errors.Is(err, gateway.ErrNotConnected):
		b.notConnected.Add(1)
		return Ack{RobotID: robotID, Status: StatusNotConnected, Error: err.Error()}
	default:
		b.failed.Add(1)
		return Ack{RobotID: robotID, Status: StatusFailed, Error: err.Error()}
	}
}

func (b *Bridge) publishAck(ack Ack) error {
	payload, err := json.Marshal(ack)
	if err != nil {
		return fmt.Errorf("encoding ack: %w", err)
	}
	if err := b.bus.Publish(mqtt.Topics{}.RobotAck(ack.RobotID), payload, b.qos, false); err != nil {
		return fmt.Errorf("publishing ack for %s: %w", ack.RobotID, err)
	}
	return nil
}

// GetMetrics returns counters since creation.
func (b *Bridge) GetMetrics() Metrics {
	return Metrics{
		Received:     b.received.Load(),
		Sent:         b.sent.Load(),
		NotConnected: b.notConnected.Load(),
		Failed:       b.failed.Load(),
	}
}
