package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/robolink-gateway/internal/gateway"
	"github.com/nerrad567/robolink-gateway/internal/presence"
	"github.com/nerrad567/robolink-gateway/internal/telemetry"
)

// CommandResponse is returned by POST /api/v1/robots/{id}/command.
type CommandResponse struct {
	RobotID string `json:"robot_id"`
	Status  string `json:"status"`
	Bytes   int    `json:"bytes"`
}

// CommandEvent is broadcast on the robot.command channel.
type CommandEvent struct {
	RobotID string `json:"robot_id"`
	Bytes   int    `json:"bytes"`
	Source  string `json:"source"`
}

// handleListRobots returns every robot with a known address.
func (s *Server) handleListRobots(w http.ResponseWriter, _ *http.Request) {
	devices := s.registry.Devices()
	if devices == nil {
		devices = []presence.Device{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"robots": devices,
		"count":  len(devices),
	})
}

func (s *Server) handleGetAddress(w http.ResponseWriter, r *http.Request) {
	robotID := chi.URLParam(r, "id")
	addr, ok := s.registry.ResolveAddress(robotID)
	if !ok {
		writeNotFound(w, "robot "+robotID+" not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"robot_id": robotID,
		"address":  addr.String(),
	})
}

// handleGetStatus returns the last persisted reading.
func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	if s.telemetry == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "telemetry store not configured")
		return
	}

	robotID := chi.URLParam(r, "id")
	status, err := s.telemetry.GetStatus(r.Context(), robotID)
	if errors.Is(err, telemetry.ErrNotFound) {
		writeNotFound(w, "no status for robot "+robotID)
		return
	}
	if err != nil {
		s.logger.Error("reading robot status failed", "robot_id", robotID, "error", err)
		writeInternalError(w, "failed to read robot status")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleGetHistory returns recent readings when the store keeps history.
// Query: ?limit=N (default 50).
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	reader, ok := s.telemetry.(telemetry.HistoryReader)
	if !ok {
		writeError(w, http.StatusNotImplemented, ErrCodeNotImplemented, "telemetry history not available")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	robotID := chi.URLParam(r, "id")
	entries, err := reader.History(r.Context(), robotID, limit)
	if err != nil {
		s.logger.Error("reading telemetry history failed", "robot_id", robotID, "error", err)
		writeInternalError(w, "failed to read telemetry history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"robot_id": robotID,
		"history":  entries,
		"count":    len(entries),
	})
}

// handleSendCommand writes the raw request body to the robot's connection.
// An empty body sends the configured default command.
func (s *Server) handleSendCommand(w http.ResponseWriter, r *http.Request) {
	robotID := chi.URLParam(r, "id")

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "failed to read request body")
		return
	}
	if len(payload) == 0 {
		payload = s.defaultCommand
	}

	err = s.commands.SendCommand(r.Context(), robotID, payload)
	var notConnected *gateway.NotConnectedError
	switch {
	case errors.As(err, &notConnected):
		writeError(w, http.StatusNotFound, ErrCodeNotConnected, notConnected.Error())
		return
	case err != nil:
		writeError(w, http.StatusBadGateway, ErrCodeDispatchFailed, err.Error())
		return
	}

	s.Hub().Broadcast(ChannelRobotCommand, CommandEvent{RobotID: robotID, Bytes: len(payload), Source: "api"})
	writeJSON(w, http.StatusOK, CommandResponse{RobotID: robotID, Status: "sent", Bytes: len(payload)})
}
