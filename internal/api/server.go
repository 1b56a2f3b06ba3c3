package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/robolink-gateway/internal/audit"
	"github.com/nerrad567/robolink-gateway/internal/commandbridge"
	"github.com/nerrad567/robolink-gateway/internal/gateway"
	"github.com/nerrad567/robolink-gateway/internal/infrastructure/config"
	"github.com/nerrad567/robolink-gateway/internal/infrastructure/logging"
	"github.com/nerrad567/robolink-gateway/internal/presence"
	"github.com/nerrad567/robolink-gateway/internal/telemetry"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// CommandSender delivers a command to a connected robot.
// *gateway.Dispatcher satisfies it.
type CommandSender interface {
	SendCommand(ctx context.Context, robotID string, payload []byte) error
}

// SessionSource lists live robot connections. *gateway.Server satisfies it.
type SessionSource interface {
	SessionCount() int
	Sessions() []gateway.SessionStats
}

// GatewayStatsSource reports acceptor counters. *gateway.Server satisfies it.
type GatewayStatsSource interface {
	Stats() gateway.ServerStats
}

// DispatchStatsSource reports dispatch counters. *gateway.Dispatcher
// satisfies it.
type DispatchStatsSource interface {
	Stats() gateway.DispatchStats
}

// TelemetryStatsSource reports persisted readings. *telemetry.Recorder
// satisfies it.
type TelemetryStatsSource interface {
	Stats() telemetry.RecorderStats
}

// BridgeMetricsSource reports MQTT command bridge counters.
type BridgeMetricsSource interface {
	GetMetrics() commandbridge.Metrics
}

// HealthChecker is implemented by every infrastructure component.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger

	Registry *presence.Registry
	Commands CommandSender

	// Optional. When Audit is set every command is recorded.
	Sessions     SessionSource
	Telemetry    telemetry.Repository
	Audit        audit.Repository
	HealthChecks map[string]HealthChecker

	// Optional counters reported by GET /api/v1/metrics.
	GatewayStats   GatewayStatsSource
	DispatchStats  DispatchStatsSource
	TelemetryStats TelemetryStatsSource
	BridgeMetrics  BridgeMetricsSource

	// DefaultCommand is sent when a command request has an empty body.
	DefaultCommand string
	Version        string
}

// Server is the HTTP API server.
type Server struct {
	cfg            config.APIConfig
	wsCfg          config.WebSocketConfig
	secCfg         config.SecurityConfig
	logger         *logging.Logger
	registry       *presence.Registry
	commands       CommandSender
	sessions       SessionSource
	telemetry      telemetry.Repository
	audit          audit.Repository
	healthChecks   map[string]HealthChecker
	gatewayStats   GatewayStatsSource
	dispatchStats  DispatchStatsSource
	telemetryStats TelemetryStatsSource
	bridgeMetrics  BridgeMetricsSource
	defaultCommand []byte
	version        string
	startedAt      time.Time

	hub *Hub

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
//
// Returns an error if the logger, registry, or command sender is missing.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("presence registry is required")
	}
	if deps.Commands == nil {
		return nil, fmt.Errorf("command sender is required")
	}

	s := &Server{
		cfg:            deps.Config,
		wsCfg:          deps.WS,
		secCfg:         deps.Security,
		logger:         deps.Logger,
		registry:       deps.Registry,
		commands:       deps.Commands,
		sessions:       deps.Sessions,
		telemetry:      deps.Telemetry,
		audit:          deps.Audit,
		healthChecks:   deps.HealthChecks,
		gatewayStats:   deps.GatewayStats,
		dispatchStats:  deps.DispatchStats,
		telemetryStats: deps.TelemetryStats,
		bridgeMetrics:  deps.BridgeMetrics,
		defaultCommand: []byte(deps.DefaultCommand),
		version:        deps.Version,
		startedAt:      time.Now(),
	}
	if deps.Audit != nil {
		sender := audit.NewSender(deps.Commands, deps.Audit, audit.SourceAPI)
		sender.SetLogger(deps.Logger)
		s.commands = sender
	}
	return s, nil
}

// Hub returns the WebSocket hub, creating it on first use.
func (s *Server) Hub() *Hub {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	return s.hub
}

// Start binds the listener and serves HTTP in the background.
//
// Binding happens before Start returns, so a port conflict is reported
// to the caller rather than logged from a goroutine.
func (s *Server) Start(ctx context.Context) error {
	hub := s.Hub()

	srvCtx, cancel := context.WithCancel(ctx)
	go hub.Run(srvCtx)

	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		cancel()
		return fmt.Errorf("binding API listener %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.mu.Lock()
	s.server = srv
	s.listener = ln
	s.cancel = cancel
	s.mu.Unlock()

	s.logger.Info("API server listening", "address", ln.Addr().String())
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	s.mu.Lock()
	srv, cancel := s.server, s.cancel
	s.server = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if cancel != nil {
		cancel()
	}

	ctx, done := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer done()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck reports whether the server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("api health check: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
