package server

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kylerisse/floodgate/pkg/check"
)

// StatusResponse is the body of /api/status.
type StatusResponse struct {
	Alive      bool               `json:"alive"`
	Ready      bool               `json:"ready"`
	Outcome    string             `json:"outcome"`
	Stage      string             `json:"stage,omitempty"`
	Error      string             `json:"error,omitempty"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
	LastUpdate int64              `json:"lastupdate"`
}

type statusResponse struct {
	Status  string `json:"status"`
	Outcome string `json:"outcome,omitempty"`
	Stage   string `json:"stage,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Handler returns the routes wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	rl := newRateLimitMiddleware(s.limiter)
	return requireGET(rl(noCacheMiddleware(securityHeadersMiddleware(mux))))
}

// ready reports whether snap is a success no older than StaleAfter.
func (s *Server) ready(snap check.StatusSnapshot) bool {
	if !snap.Alive || snap.LastUpdate.IsZero() {
		return false
	}
	return s.clock.Since(snap.LastUpdate) <= s.StaleAfter()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, statusResponse{Status: "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	snap := s.status.Snapshot()
	if s.ready(snap) {
		s.writeJSON(w, http.StatusOK, statusResponse{Status: "ready"})
		return
	}

	resp := statusResponse{
		Status:  "not_ready",
		Outcome: snap.Outcome.String(),
		Stage:   snap.Stage,
		Error:   snap.Error,
	}
	if snap.Alive {
		resp.Error = "last successful check is stale"
	}
	s.writeJSON(w, http.StatusServiceUnavailable, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	snap := s.status.Snapshot()

	resp := StatusResponse{
		Alive:   snap.Alive,
		Ready:   s.ready(snap),
		Outcome: snap.Outcome.String(),
		Stage:   snap.Stage,
		Error:   snap.Error,
		Metrics: snap.Metrics,
	}
	if !snap.LastUpdate.IsZero() {
		resp.LastUpdate = snap.LastUpdate.Unix()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Errorf("Failed to encode response: %v", err)
	}
}
