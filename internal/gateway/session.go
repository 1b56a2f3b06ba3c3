package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/robolink-gateway/internal/presence"
)

// StalePolicy decides what happens to a robot's registry entries when the
// session that registered them ends.
type StalePolicy string

const (
	// PolicyRetain leaves address and session entries in place.
	PolicyRetain StalePolicy = "retain"

	// PolicyRemoveOnDisconnect drops entries that still point at the ended session.
	PolicyRemoveOnDisconnect StalePolicy = "remove_on_disconnect"
)

// Session defaults.
const (
	defaultReadBufferSize    = 1024
	defaultOutboundQueueSize = 16
)

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// SessionConfig holds per-connection settings.
type SessionConfig struct {
	// ReadBufferSize bounds a single read. Defaults to 1024.
	ReadBufferSize int

	// OutboundQueueSize is the depth of the write queue. Defaults to 16.
	OutboundQueueSize int

	// WriteTimeout bounds one socket write. Zero means no deadline.
	WriteTimeout time.Duration

	// StoreTimeout bounds one PersistTelemetry call. Zero means no deadline.
	StoreTimeout time.Duration

	// StalePolicy defaults to PolicyRetain.
	StalePolicy StalePolicy
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = defaultReadBufferSize
	}
	if c.OutboundQueueSize <= 0 {
		c.OutboundQueueSize = defaultOutboundQueueSize
	}
	if c.StalePolicy == "" {
		c.StalePolicy = PolicyRetain
	}
	return c
}

// SessionStats is a snapshot of one session's counters.
type SessionStats struct {
	ID              string    `json:"id"`
	Peer            string    `json:"peer"`
	ConnectedAt     time.Time `json:"connected_at"`
	FramesRx        uint64    `json:"frames_rx"`
	FramesMalformed uint64    `json:"frames_malformed"`
	BytesRx         uint64    `json:"bytes_rx"`
	BytesTx         uint64    `json:"bytes_tx"`
}

// writeRequest is one queued write and the channel its outcome is reported on.
type writeRequest struct {
	payload []byte
	result  chan error
}

// Session owns one robot connection.
//
// The goroutine calling Run owns the read side. A separate writer goroutine
// owns the write side and drains the outbound queue, so Send is the only
// way bytes reach the connection.
//
// Thread Safety:
//   - Send, ID, Peer, Stats, and Close are safe for concurrent use.
//   - Run must be called exactly once.
type Session struct {
	id          string
	conn        net.Conn
	peer        netip.Addr
	connectedAt time.Time

	registry *presence.Registry
	store    TelemetryStore
	cfg      SessionConfig
	logger   Logger

	outbound  chan writeRequest
	done      *closeOnce
	closeConn sync.Once
	wg        sync.WaitGroup

	framesRx        atomic.Uint64
	framesMalformed atomic.Uint64
	bytesRx         atomic.Uint64
	bytesTx         atomic.Uint64
}

// NewSession wraps conn, whose remote end is peer.
// store may be nil, in which case readings only update the registry.
func NewSession(conn net.Conn, peer netip.Addr, registry *presence.Registry, store TelemetryStore, cfg SessionConfig) *Session {
	cfg = cfg.withDefaults()
	return &Session{
		id:          uuid.NewString(),
		conn:        conn,
		peer:        peer,
		connectedAt: time.Now(),
		registry:    registry,
		store:       store,
		cfg:         cfg,
		logger:      noopLogger{},
		outbound:    make(chan writeRequest, cfg.OutboundQueueSize),
		done:        newCloseOnce(),
	}
}

// SetLogger sets the logger for the session.
func (s *Session) SetLogger(logger Logger) {
	s.logger = logger
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// Peer returns the remote IP address.
func (s *Session) Peer() netip.Addr {
	return s.peer
}

// Done is closed when the session has been closed.
func (s *Session) Done() <-chan struct{} {
	return s.done.Done()
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() SessionStats {
	return SessionStats{
		ID:              s.id,
		Peer:            s.peer.String(),
		ConnectedAt:     s.connectedAt,
		FramesRx:        s.framesRx.Load(),
		FramesMalformed: s.framesMalformed.Load(),
		BytesRx:         s.bytesRx.Load(),
		BytesTx:         s.bytesTx.Load(),
	}
}

// Send queues payload for writing and waits until it has been written.
//
// Each payload is written with a single call on the connection, so
// concurrent senders never interleave bytes.
//
// Returns:
//   - error: ErrSessionClosed, ErrWriteFailed (wrapped), or ctx.Err()
func (s *Session) Send(ctx context.Context, payload []byte) error {
	req := writeRequest{
		payload: payload,
		result:  make(chan error, 1),
	}

	select {
	case s.outbound <- req:
	case <-s.done.Done():
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.result:
		return err
	case <-s.done.Done():
		// The writer may have finished this request just before closing.
		select {
		case err := <-req.result:
			return err
		default:
			return ErrSessionClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close ends the session and closes the connection. Safe to call repeatedly.
func (s *Session) Close() error {
	var err error
	s.closeConn.Do(func() {
		s.done.Close()
		err = s.conn.Close()
	})
	return err
}

func (s *Session) isClosed() bool {
	select {
	case <-s.done.Done():
		return true
	default:
		return false
	}
}

// Run reads frames until the peer disconnects, a transport error occurs,
// or ctx is cancelled.
//
// Returns nil on EOF, on Close, and on cancellation. Read and echo
// failures are returned wrapped in ErrReadFailed or ErrWriteFailed.
func (s *Session) Run(ctx context.Context) error {
	s.wg.Add(1)
	go s.writeLoop()

	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()
	defer s.finish()

	s.logger.Info("robot connected", "session_id", s.id, "peer", s.peer.String())

	buf := make([]byte, s.cfg.ReadBufferSize)
	for {
		n, readErr := s.conn.Read(buf)
		if n > 0 {
			data := bytes.Clone(buf[:n])
			s.bytesRx.Add(uint64(n))
			s.handleFrame(ctx, data)

			if err := s.Send(ctx, data); err != nil {
				if errors.Is(err, ErrWriteFailed) {
					return err
				}
				return nil
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) || s.isClosed() {
				return nil
			}
			return fmt.Errorf("%w: %w", ErrReadFailed, readErr)
		}
	}
}

// handleFrame updates presence and telemetry for one read.
// It never fails the session; parse and store errors are only logged.
func (s *Session) handleFrame(ctx context.Context, data []byte) {
	s.registry.Touch(s.peer)
	s.framesRx.Add(1)

	frame, err := ParseFrame(data)
	if err != nil {
		s.framesMalformed.Add(1)
		s.logger.Debug("frame dropped",
			"session_id", s.id,
			"peer", s.peer.String(),
			"bytes", len(data),
			"reason", err.Error(),
		)
		return
	}

	s.registry.SetDevice(frame.RobotID, s.peer, s)
	s.logger.Debug("telemetry received",
		"session_id", s.id,
		"robot_id", frame.RobotID,
		"electricity", frame.Electricity,
		"activate", frame.Active,
	)

	if s.store == nil {
		return
	}

	storeCtx := ctx
	if s.cfg.StoreTimeout > 0 {
		var cancel context.CancelFunc
		storeCtx, cancel = context.WithTimeout(ctx, s.cfg.StoreTimeout)
		defer cancel()
	}
	if err := s.store.PersistTelemetry(storeCtx, frame.RobotID, frame.Electricity, frame.Active); err != nil {
		s.logger.Error("persist telemetry failed",
			"session_id", s.id,
			"robot_id", frame.RobotID,
			"error", err,
		)
	}
}

// writeLoop is the only goroutine that writes to the connection.
func (s *Session) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done.Done():
			return
		case req := <-s.outbound:
			err := s.write(req.payload)
			req.result <- err
			if err != nil {
				s.logger.Warn("write failed, closing session",
					"session_id", s.id,
					"peer", s.peer.String(),
					"error", err,
				)
				_ = s.Close()
				return
			}
		}
	}
}

func (s *Session) write(payload []byte) error {
	if s.cfg.WriteTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
			return fmt.Errorf("%w: set deadline: %w", ErrWriteFailed, err)
		}
	}
	n, err := s.conn.Write(payload)
	s.bytesTx.Add(uint64(n))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return nil
}

// finish closes the connection, waits for the writer, and applies the
// stale session policy.
func (s *Session) finish() {
	_ = s.Close()
	s.wg.Wait()

	if s.cfg.StalePolicy == PolicyRemoveOnDisconnect {
		if robots := s.registry.ForgetSession(s); len(robots) > 0 {
			s.logger.Info("removed registry entries for closed session",
				"session_id", s.id,
				"robots", robots,
			)
		}
	}

	s.logger.Info("robot disconnected",
		"session_id", s.id,
		"peer", s.peer.String(),
		"frames", s.framesRx.Load(),
	)
}
