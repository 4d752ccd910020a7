package server

import (
	"context"
	"net/http"
	"time"

	"github.com/aristath/quanport/internal/utils"
)

// HealthResponse is the liveness payload
type HealthResponse struct {
	Status   string `json:"status"`
	Service  string `json:"service"`
	Database string `json:"database"`
}

// handleHealth reports ok while history.db answers a ping, 503 otherwise
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Service: "quanport", Database: "ok"}
	status := http.StatusOK

	if s.container == nil || s.container.HistoryDB == nil {
		resp.Status, resp.Database = "degraded", "unavailable"
		status = http.StatusServiceUnavailable
	} else {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.container.HistoryDB.Conn().PingContext(ctx); err != nil {
			s.log.Warn().Err(err).Msg("Health check: history.db ping failed")
			resp.Status, resp.Database = "degraded", "unreachable"
			status = http.StatusServiceUnavailable
		}
	}

	utils.WriteResponse(w, r, status, resp, s.log)
}
