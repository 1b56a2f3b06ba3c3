package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/robolink-gateway/internal/presence"
)

// Accept backoff bounds.
const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// Config holds the acceptor settings and the settings applied to every session.
type Config struct {
	// Address is the host:port to listen on.
	Address string

	SessionConfig
}

// ServerStats holds acceptor counters.
type ServerStats struct {
	Accepted     uint64 `json:"accepted"`
	AcceptErrors uint64 `json:"accept_errors"`
	Active       int    `json:"active"`
}

// Server accepts robot connections and runs a Session for each.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Serve must be called once, after Listen.
type Server struct {
	cfg      Config
	registry *presence.Registry
	store    TelemetryStore
	logger   Logger

	mu       sync.Mutex
	listener net.Listener
	sessions map[string]*Session

	wg   sync.WaitGroup
	done *closeOnce

	accepted     atomic.Uint64
	acceptErrors atomic.Uint64
}

// NewServer creates a server that registers robots in registry and
// persists their telemetry through store.
func NewServer(cfg Config, registry *presence.Registry, store TelemetryStore) *Server {
	cfg.SessionConfig = cfg.SessionConfig.withDefaults()
	return &Server{
		cfg:      cfg,
		registry: registry,
		store:    store,
		logger:   noopLogger{},
		sessions: make(map[string]*Session),
		done:     newCloseOnce(),
	}
}

// SetLogger sets the logger for the server and the sessions it creates.
func (s *Server) SetLogger(logger Logger) {
	s.logger = logger
}

// Listen binds the TCP listener. A failure here is fatal to the gateway.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrBindFailed, s.cfg.Address, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("robot gateway listening", "address", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until ctx is cancelled or Close is called.
// Accept errors are logged and retried with a capped backoff.
// On return every session has been closed and has finished.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return ErrNotListening
	}

	go func() {
		select {
		case <-ctx.Done():
		case <-s.done.Done():
		}
		_ = ln.Close()
	}()

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || s.isClosed() || errors.Is(err, net.ErrClosed) {
				break
			}

			s.acceptErrors.Add(1)
			backoff = nextBackoff(backoff)
			s.logger.Warn("accept failed", "error", err, "backoff", backoff.String())

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
			case <-s.done.Done():
			}
			continue
		}

		backoff = 0
		s.accepted.Add(1)
		s.startSession(ctx, conn)
	}

	s.closeSessions()
	s.wg.Wait()
	s.logger.Info("robot gateway stopped")
	return nil
}

func nextBackoff(current time.Duration) time.Duration {
	if current == 0 {
		return minAcceptBackoff
	}
	current *= 2
	if current > maxAcceptBackoff {
		return maxAcceptBackoff
	}
	return current
}

// startSession spawns the goroutine that owns conn.
func (s *Server) startSession(ctx context.Context, conn net.Conn) {
	peer, err := peerAddr(conn.RemoteAddr())
	if err != nil {
		s.logger.Warn("rejecting connection with unparseable peer address",
			"remote", conn.RemoteAddr().String(),
			"error", err,
		)
		_ = conn.Close()
		return
	}

	sess := NewSession(conn, peer, s.registry, s.store, s.cfg.SessionConfig)
	sess.SetLogger(s.logger)

	s.mu.Lock()
	s.sessions[sess.ID()] = sess
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.sessions, sess.ID())
			s.mu.Unlock()
		}()

		if err := sess.Run(ctx); err != nil {
			s.logger.Warn("session ended with error",
				"session_id", sess.ID(),
				"peer", peer.String(),
				"error", err,
			)
		}
	}()
}

// peerAddr extracts the IP of a remote address, dropping the port.
func peerAddr(addr net.Addr) (netip.Addr, error) {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.AddrPort().Addr().Unmap(), nil
	}
	ap, err := netip.ParseAddrPort(addr.String())
	if err != nil {
		return netip.Addr{}, err
	}
	return ap.Addr().Unmap(), nil
}

// SessionCount returns the number of live sessions.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sessions returns stats for every live session, ordered by connect time.
func (s *Server) Sessions() []SessionStats {
	s.mu.Lock()
	out := make([]SessionStats, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Stats())
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}

// Stats returns acceptor counters.
func (s *Server) Stats() ServerStats {
	return ServerStats{
		Accepted:     s.accepted.Load(),
		AcceptErrors: s.acceptErrors.Load(),
		Active:       s.SessionCount(),
	}
}

// HealthCheck reports whether the listener is bound and accepting.
func (s *Server) HealthCheck(_ context.Context) error {
	if s.isClosed() || s.Addr() == nil {
		return ErrNotListening
	}
	return nil
}

// Close stops accepting and closes every live session.
// Serve returns once all sessions have finished.
func (s *Server) Close() error {
	s.done.Close()

	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()

	var err error
	if ln != nil {
		if cerr := ln.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = cerr
		}
	}
	s.closeSessions()
	return err
}

func (s *Server) closeSessions() {
	s.mu.Lock()
	live := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		live = append(live, sess)
	}
	s.mu.Unlock()

	for _, sess := range live {
		_ = sess.Close()
	}
}

func (s *Server) isClosed() bool {
	select {
	case <-s.done.Done():
		return true
	default:
		return false
	}
}
