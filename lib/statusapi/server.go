// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/pheromon/antagent/lib/hwinfo"
	"github.com/pheromon/antagent/lib/reply"
	"github.com/pheromon/antagent/lib/schedule"
	"github.com/pheromon/antagent/lib/settings"
	"github.com/pheromon/antagent/lib/tunnel"
	"github.com/pheromon/antagent/lib/watchdog"
)

const shutdownTimeout = 5 * time.Second

// Sources are the components the endpoint reports on.
type Sources struct {
	Identity string
	Version  string
	Settings interface{ Snapshot() settings.Configuration }
	Jobs     interface{ Jobs() []schedule.JobStatus }
	Tunnel   interface{ Status() (tunnel.Status, bool) }
	Outbox   interface{ Stats() reply.Stats }
	Engine   interface{ State() string }

	// Host is optional.
	Host interface{ Snapshot() hwinfo.Snapshot }

	// Connected reports the broker session state.
	Connected func() bool

	// LastReboot is the marker found at startup, if any.
	LastReboot *watchdog.Marker
}

// TunnelView is the JSON form of a tunnel handle.
type TunnelView struct {
	State     string `json:"state"`
	QueenPort string `json:"queen_port"`
	AntPort   string `json:"ant_port"`
	Host      string `json:"host"`
	PID       int    `json:"pid,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Report is the /status document.
type Report struct {
	Identity    string                 `json:"identity"`
	Version     string                 `json:"version"`
	Connected   bool                   `json:"connected"`
	EngineState string                 `json:"engine_state"`
	Settings    settings.Configuration `json:"settings"`
	Jobs        []schedule.JobStatus   `json:"jobs"`
	Tunnel      *TunnelView            `json:"tunnel,omitempty"`
	Outbox      reply.Stats            `json:"outbox"`
	LastReboot  *watchdog.Marker       `json:"last_reboot,omitempty"`
	Host        *hwinfo.Snapshot       `json:"host,omitempty"`
}

// Server is the status endpoint.
type Server struct {
	sources Sources
	logger  *slog.Logger
	router  *mux.Router
}

// New creates a Server. Call Serve to listen.
func New(sources Sources, logger *slog.Logger) *Server {
	server := &Server{sources: sources, logger: logger}

	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "OK")
	}).Methods(http.MethodGet)
	router.HandleFunc("/status", server.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/settings", server.handleSettings).Methods(http.MethodGet)
	router.HandleFunc("/jobs", server.handleJobs).Methods(http.MethodGet)
	router.HandleFunc("/tunnel", server.handleTunnel).Methods(http.MethodGet)
	router.HandleFunc("/outbox", server.handleOutbox).Methods(http.MethodGet)
	router.HandleFunc("/host", server.handleHost).Methods(http.MethodGet)
	server.router = router
	return server
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.router }

// Serve listens on address until ctx is cancelled. The address must
// be a loopback address.
func (s *Server) Serve(ctx context.Context, address string) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("status listen address %q: %w", address, err)
	}
	if ip := net.ParseIP(host); host != "localhost" && (ip == nil || !ip.IsLoopback()) {
		return fmt.Errorf("status listen address %q is not loopback", address)
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", address, err)
	}
	httpServer := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownContext, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		httpServer.Shutdown(shutdownContext)
	}()

	s.logger.Info("status endpoint listening", "address", listener.Addr().String())
	if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("status endpoint: %w", err)
	}
	return nil
}

func (s *Server) report() Report {
	report := Report{
		Identity:    s.sources.Identity,
		Version:     s.sources.Version,
		EngineState: s.sources.Engine.State(),
		Settings:    s.sources.Settings.Snapshot(),
		Jobs:        s.sources.Jobs.Jobs(),
		Tunnel:      s.tunnelView(),
		Outbox:      s.sources.Outbox.Stats(),
		LastReboot:  s.sources.LastReboot,
	}
	if s.sources.Connected != nil {
		report.Connected = s.sources.Connected()
	}
	if s.sources.Host != nil {
		host := s.sources.Host.Snapshot()
		report.Host = &host
	}
	return report
}

func (s *Server) tunnelView() *TunnelView {
	status, held := s.sources.Tunnel.Status()
	if !held {
		return nil
	}
	return &TunnelView{
		State:     status.State.String(),
		QueenPort: status.Target.QueenPort,
		AntPort:   status.Target.AntPort,
		Host:      status.Target.Host,
		PID:       status.PID,
		Reason:    status.Reason,
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.report())
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.sources.Settings.Snapshot())
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.sources.Jobs.Jobs())
}

func (s *Server) handleTunnel(w http.ResponseWriter, r *http.Request) {
	view := s.tunnelView()
	if view == nil {
		http.Error(w, "no tunnel", http.StatusNotFound)
		return
	}
	s.writeJSON(w, view)
}

func (s *Server) handleOutbox(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.sources.Outbox.Stats())
}

func (s *Server) handleHost(w http.ResponseWriter, r *http.Request) {
	if s.sources.Host == nil {
		http.Error(w, "host probe disabled", http.StatusNotFound)
		return
	}
	s.writeJSON(w, s.sources.Host.Snapshot())
}

func (s *Server) writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(value); err != nil {
		s.logger.Warn("writing status response", "error", err)
	}
}
