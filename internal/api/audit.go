package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/robolink-gateway/internal/audit"
)

// handleListAudit returns the command audit trail, newest first.
// Query: robot_id, source, status, limit (default 50, max 200), offset.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusNotImplemented, ErrCodeNotImplemented, "command audit not available")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		RobotID: q.Get("robot_id"),
		Source:  q.Get("source"),
		Status:  q.Get("status"),
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, name+" must be a non-negative integer")
			return
		}
		*dst = n
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing command audit failed", "error", err)
		writeInternalError(w, "failed to list command audit")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
