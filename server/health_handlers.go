package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const healthTimeout = 2 * time.Second

type healthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}

// HealthHandler reports whether the session store is reachable (GET /healthz)
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok", Store: "ok"}
		status := http.StatusOK

		if hc, ok := s.store.(HealthChecker); ok {
			ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
			err := hc.Health(ctx)
			cancel()
			if err != nil {
				log.Err(err).Msg("session store health check failed")
				resp = healthResponse{Status: "unavailable", Store: "unreachable"}
				status = http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
