// Package server provides the HTTP dashboard API for vtrack.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/ayusman/vtrack/internal/calibration"
	"github.com/ayusman/vtrack/internal/server/api"
	"github.com/ayusman/vtrack/internal/status"
)

// Config holds the server configuration. Nil sources leave their routes unregistered.
type Config struct {
	StaticDir   string
	Calibration *calibration.Store
	Calibrator  api.Calibrator
	Profiles    api.Profiles
	Tracking    api.Toggle
	Status      *status.Publisher
	Preview     PreviewSource
}

// Server represents the HTTP server of the dashboard.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	srv    *http.Server
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.srv = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Calibration != nil {
		h := api.NewCalibrationHandler(s.config.Calibration, s.config.Calibrator, s.config.Profiles)
		s.mux.Handle("/api/calibration", h)
		s.mux.Handle("/api/calibration/", h)
	}

	if s.config.Tracking != nil {
		s.mux.Handle("/api/tracking", api.NewTrackingHandler(s.config.Tracking))
	}

	if s.config.Status != nil {
		s.mux.HandleFunc("/api/status", s.handleStatus)
		s.mux.Handle("/api/status/ws", NewStatusHandler(s.config.Status))
	}

	if s.config.Preview != nil {
		s.mux.Handle("/api/stream", NewStreamHandler(s.config.Preview))
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}
	if s.config.Status != nil {
		if snap := s.config.Status.Latest(); snap != nil {
			response["active_trackers"] = snap.ActiveCount()
			response["camera_ok"] = snap.Ingress.CameraOK
		}
	}

	writeJSON(w, http.StatusOK, response)
}

// handleStatus handles GET /api/status with the latest pipeline snapshot.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := s.config.Status.Latest()
	if snap == nil {
		http.Error(w, "No status yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// ListenAndServe starts the HTTP server on the given address. It returns nil
// after Shutdown, including when Shutdown ran first.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	err = s.srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and waits for active requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
