package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/robolink-gateway/internal/audit"
	"github.com/nerrad567/robolink-gateway/internal/gateway"
)

// robotRequest is the body of the plain-text robot management routes.
type robotRequest struct {
	RobotID string `json:"robot_id"`
}

func decodeRobotRequest(r *http.Request) (robotRequest, bool) {
	var req robotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RobotID == "" {
		return req, false
	}
	return req, true
}

// handleRobotManage sends the default command and answers in plain text.
func (s *Server) handleRobotManage(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRobotRequest(r)
	if !ok {
		writeText(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Info("robot manage request", "robot_id", req.RobotID)

	ctx := audit.WithSource(r.Context(), audit.SourceManage)
	err := s.commands.SendCommand(ctx, req.RobotID, s.defaultCommand)
	switch {
	case errors.Is(err, gateway.ErrNotConnected):
		writeText(w, http.StatusOK, "❌ robot_id "+req.RobotID+" not connected")
	case err != nil:
		writeText(w, http.StatusOK, "❌ Failed to send data: "+err.Error())
	default:
		s.Hub().Broadcast(ChannelRobotCommand, CommandEvent{RobotID: req.RobotID, Bytes: len(s.defaultCommand), Source: "manage"})
		writeText(w, http.StatusOK, "✅ Data sent to robot "+req.RobotID)
	}
}

// handleRobotIP answers the robot's address or "Not found".
func (s *Server) handleRobotIP(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRobotRequest(r)
	if !ok {
		writeText(w, http.StatusBadRequest, "invalid request body")
		return
	}
	addr, found := s.registry.ResolveAddress(req.RobotID)
	if !found {
		writeText(w, http.StatusOK, "Not found")
		return
	}
	writeText(w, http.StatusOK, addr.String())
}
