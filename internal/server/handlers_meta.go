package server

import (
	"context"
	"net/http"
	"time"

	"scfingest/internal/api"
)

const healthCheckTimeout = 2 * time.Second

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := s.health(ctx); err != nil {
			s.log().Warn("health check failed", "error", err)
			s.writeJSON(w, http.StatusServiceUnavailable, api.HealthResponse{Status: "unavailable"})
			return
		}
	}
	s.writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ok"})
}
