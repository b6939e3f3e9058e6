// Package health exposes the machine-readable health endpoints:
// GET /health, /ready, /live plus a Prometheus /metrics handler, generalized
// to any component name and counter set instead of one hardcoded
// trading-mode gauge.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Status is the coarse health classification.
type Status string

const (
	StatusHealthy Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Response is the JSON body returned by /health.
type Response struct {
	Component string `json:"component"`
	Status Status `json:"status"`
	Message string `json:"message,omitempty"`
	Counters map[string]int64 `json:"counters"`
	UptimeSec float64 `json:"uptime_seconds"`
}

// ModeResponse is the JSON body served and accepted by /mode.
type ModeResponse struct {
	Mode string `json:"mode"`
}

// ModeSetter is the hook a service installs to back /mode: it reports the
// current operating mode and attempts to switch to a new one, returning an
// error (surfaced as 409) if the switch cannot be made right now.
type ModeSetter interface {
	Mode() string
	SetMode(mode string) error
}

// Server is a per-service health/metrics HTTP endpoint. Counters are
// updated by Set/Incr from any goroutine; no ambient singleton is used —
// each service constructs and owns its own Server.
type Server struct {
	component string
	addr string
	started time.Time
	srv *http.Server
	mode ModeSetter
	validModes map[string]bool

	mu sync.Mutex
	status Status
	message string
	counters map[string]int64
}

// New creates a health server for component, not yet listening.
func New(component, addr string) *Server {
	return &Server{
		component: component,
		addr: addr,
		started: time.Now(),
		status: StatusHealthy,
		counters: make(map[string]int64),
	}
}

// SetStatus updates the reported health status and message.
func (s *Server) SetStatus(status Status, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.message = message
}

// RegisterModeSetter installs the /mode endpoint backed by setter: GET
// reports the current mode, POST {"mode": "..."} attempts a switch, only
// accepting one of validModes. A switch the setter rejects (e.g. while
// orders are in flight) comes back as 409, not 500. Start only serves
// /mode if this has been called before it.
func (s *Server) RegisterModeSetter(setter ModeSetter, validModes ...string) {
	s.mode = setter
	s.validModes = make(map[string]bool, len(validModes))
	for _, m := range validModes {
		s.validModes[m] = true
	}
}

// Incr adds delta to a named counter (e.g. "processed_messages", "last_error").
func (s *Server) Incr(name string, delta int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[name] += delta
}

// Set assigns a named counter's value outright.
func (s *Server) Set(name string, value int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[name] = value
}

func (s *Server) snapshot() Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	counters := make(map[string]int64, len(s.counters))
	for k, v := range s.counters {
		counters[k] = v
	}
	return Response{
		Component: s.component,
		Status: s.status,
		Message: s.message,
		Counters: counters,
		UptimeSec: time.Since(s.started).Seconds(),
	}
}

// Start launches the HTTP server in the background. Call Shutdown to
// release it on all exit paths.
func (s *Server) Start() {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/live", s.handleLive)
	mux.Handle("/metrics", promhttp.Handler())
	if s.mode != nil {
		mux.HandleFunc("/mode", s.handleMode)
	}

	s.srv = &http.Server{Addr: s.addr, Handler: mux}
	go func() {
		_ = s.srv.ListenAndServe()
	}()
}

// Shutdown releases the HTTP listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := s.snapshot()
	w.Header().Set("Content-Type", "application/json")
	if resp.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	resp := s.snapshot()
	w.Header().Set("Content-Type", "application/json")
	if resp.Status != StatusHealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "live"})
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.Method {
	case http.MethodGet:
		_ = json.NewEncoder(w).Encode(ModeResponse{Mode: s.mode.Mode()})
	case http.MethodPost:
		var req ModeResponse
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if !s.validModes[req.Mode] {
			http.Error(w, "invalid mode", http.StatusBadRequest)
			return
		}
		if err := s.mode.SetMode(req.Mode); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		_ = json.NewEncoder(w).Encode(ModeResponse{Mode: s.mode.Mode()})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
