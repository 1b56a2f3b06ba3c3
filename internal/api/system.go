package api

import (
	"context"
	"net/http"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/nerrad567/robolink-gateway/internal/commandbridge"
	"github.com/nerrad567/robolink-gateway/internal/gateway"
	"github.com/nerrad567/robolink-gateway/internal/telemetry"
)

const healthCheckTimeout = 3 * time.Second

// HealthResponse is returned by GET /api/v1/health.
type HealthResponse struct {
	Status   string            `json:"status"`
	Version  string            `json:"version"`
	Sessions int               `json:"sessions"`
	Checks   map[string]string `json:"checks,omitempty"`
}

// SystemMetrics is returned by GET /api/v1/metrics.
type SystemMetrics struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	Presence      any            `json:"presence"`
	Sessions      int            `json:"sessions"`
	WebSocket     WSMetrics      `json:"websocket"`

	Gateway       *gateway.ServerStats     `json:"gateway,omitempty"`
	Dispatch      *gateway.DispatchStats   `json:"dispatch,omitempty"`
	Telemetry     *telemetry.RecorderStats `json:"telemetry,omitempty"`
	CommandBridge *commandbridge.Metrics   `json:"command_bridge,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// PresenceEntry is one fresh address.
type PresenceEntry struct {
	Address  string    `json:"address"`
	LastSeen time.Time `json:"last_seen"`
}

// handleHealth runs every registered health check. Any failure turns the
// response into 503 "degraded".
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Version: s.version, Sessions: s.sessionCount()}

	if len(s.healthChecks) > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		resp.Checks = make(map[string]string, len(s.healthChecks))
		for name, hc := range s.healthChecks {
			if err := hc.HealthCheck(ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				continue
			}
			resp.Checks[name] = "ok"
		}
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(mem.Alloc) / (1 << 20),
			NumGC:         mem.NumGC,
		},
		Presence:  s.registry.Stats(),
		Sessions:  s.sessionCount(),
		WebSocket: WSMetrics{ConnectedClients: s.Hub().ClientCount()},
	}

	if s.gatewayStats != nil {
		stats := s.gatewayStats.Stats()
		metrics.Gateway = &stats
	}
	if s.dispatchStats != nil {
		stats := s.dispatchStats.Stats()
		metrics.Dispatch = &stats
	}
	if s.telemetryStats != nil {
		stats := s.telemetryStats.Stats()
		metrics.Telemetry = &stats
	}
	if s.bridgeMetrics != nil {
		m := s.bridgeMetrics.GetMetrics()
		metrics.CommandBridge = &m
	}

	writeJSON(w, http.StatusOK, metrics)
}

// handlePresence lists fresh addresses, most recently seen first.
func (s *Server) handlePresence(w http.ResponseWriter, _ *http.Request) {
	fresh := s.registry.FreshAddresses()
	entries := make([]PresenceEntry, 0, len(fresh))
	for addr, seen := range fresh {
		entries = append(entries, PresenceEntry{Address: addr.String(), LastSeen: seen})
	}
	slices.SortFunc(entries, func(a, b PresenceEntry) int {
		if c := b.LastSeen.Compare(a.LastSeen); c != 0 {
			return c
		}
		return strings.Compare(a.Address, b.Address)
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"addresses": entries,
		"count":     len(entries),
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	sessions := []gateway.SessionStats{}
	if s.sessions != nil {
		sessions = s.sessions.Sessions()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (s *Server) sessionCount() int {
	if s.sessions == nil {
		return 0
	}
	return s.sessions.SessionCount()
}
