// Package admin serves the HTTP control API for simulations.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"fleetsim/internal/engine"
	"fleetsim/internal/manager"
	"fleetsim/internal/profile"
	"fleetsim/internal/store"
	"fleetsim/internal/topics"
)

// Controller is the manager surface used by the API.
type Controller interface {
	StartSimulation(ctx context.Context, p *profile.Profile, s *profile.Schema, b *profile.Broker) error
	StopSimulation(ctx context.Context, id string) error
	PauseSimulation(ctx context.Context, id string) error
	ResumeSimulation(ctx context.Context, id string) error
	SimulationStatus(id string) (engine.Snapshot, bool)
	Statuses() []engine.Snapshot
}

// Announcer tells control-plane observers about commands run through the API.
type Announcer interface {
	PublishCommand(action, profileID string) string
	IsConnected() bool
}

// Server exposes simulations over HTTP.
type Server struct {
	Manager   Controller
	Store     store.Store
	Announcer Announcer
	Metrics   http.Handler
	log       *slog.Logger
	srv       *http.Server
}

// NewServer creates a Server. announcer and metrics may be nil.
func NewServer(mgr Controller, st store.Store, announcer Announcer, metrics http.Handler, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{Manager: mgr, Store: st, Announcer: announcer, Metrics: metrics, log: log.With("component", "admin")}
	s.srv = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	return s
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /simulations", s.handleList)
	mux.HandleFunc("GET /simulations/{id}", s.handleStatus)
	mux.HandleFunc("POST /simulations/{id}/{action}", s.handleAction)
	if s.Metrics != nil {
		mux.Handle("GET /metrics", s.Metrics)
	}
	return mux
}

// Start serves on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.srv.Addr = addr
	s.log.Info("admin API listening", "addr", addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if s.Store != nil {
		resp["storeConnected"] = s.Store.Ping(r.Context()) == nil
	}
	if s.Announcer != nil {
		resp["backboneConnected"] = s.Announcer.IsConnected()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Manager.Statuses())
}

// handleStatus returns the live snapshot, falling back to the persisted status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if st, ok := s.Manager.SimulationStatus(id); ok {
		writeJSON(w, http.StatusOK, map[string]any{"live": true, "status": st})
		return
	}
	p, err := s.Store.Profile(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	st := p.Status
	if st == nil {
		st = &profile.Status{State: profile.StateIdle}
	}
	writeJSON(w, http.StatusOK, map[string]any{"live": false, "status": st})
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	id, action := r.PathValue("id"), r.PathValue("action")
	ctx := r.Context()
	var err error
	switch action {
	case topics.ActionStart:
		err = s.start(ctx, id)
	case topics.ActionStop:
		err = s.Manager.StopSimulation(ctx, id)
	case topics.ActionPause:
		err = s.Manager.PauseSimulation(ctx, id)
	case topics.ActionResume:
		err = s.Manager.ResumeSimulation(ctx, id)
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown action " + action})
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	if s.Announcer != nil {
		s.Announcer.PublishCommand(action, id)
	}
	resp := map[string]any{"profileId": id, "action": action}
	if st, ok := s.Manager.SimulationStatus(id); ok {
		resp["status"] = st
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) start(ctx context.Context, id string) error {
	p, err := s.Store.Profile(ctx, id)
	if err != nil {
		return err
	}
	sc, err := s.Store.Schema(ctx, p.SchemaID)
	if err != nil {
		return err
	}
	b, err := s.Store.Broker(ctx, p.BrokerID)
	if err != nil {
		return err
	}
	return s.Manager.StartSimulation(ctx, p, sc, b)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var connErr *engine.ConnectError
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, manager.ErrNotRunning), errors.Is(err, manager.ErrNotFound), errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.As(err, &connErr):
		status = http.StatusBadGateway
	default:
		s.log.Error("request failed", "err", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
