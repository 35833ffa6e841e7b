// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package server exposes the analysis pipeline over HTTP. An analysis
// request opens one server-sent events response that carries every stage
// event of the run followed by a single complete or error event.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"github.com/pdiddy/recap-engine/internal/gateway"
	"github.com/pdiddy/recap-engine/internal/httputil"
	"github.com/pdiddy/recap-engine/internal/store"
	"github.com/pdiddy/recap-engine/pkg/types"
)

const (
	// DefaultAddr is the listen address used when none is configured.
	DefaultAddr = ":8080"

	// DefaultMaxBodyBytes caps request bodies. Screenshots arrive inline.
	DefaultMaxBodyBytes = 32 << 20

	readHeaderTimeout = 10 * time.Second
	readTimeout       = 2 * time.Minute
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 30 * time.Second

	allowHeaders = "authorization, x-client-info, apikey, content-type"
	allowMethods = "GET, POST, OPTIONS"
)

// InvokerFunc returns the gateway used for one run. It reports
// gateway.ErrMissingCredential when no key is configured.
type InvokerFunc func() (gateway.Invoker, error)

// Deps are the collaborators of a Server. Zero fields get defaults:
// Invoker builds a gateway.Client from the config, Store disables the run
// archive, Logger uses the default logger.
type Deps struct {
	Invoker InvokerFunc
	Store   *store.Store
	Logger  *log.Logger
}

// Server handles analysis requests.
type Server struct {
	cfg     types.Config
	invoker InvokerFunc
	store   *store.Store
	logger  *log.Logger
	handler http.Handler
}

// New builds a Server from cfg and deps.
func New(cfg types.Config, deps Deps) *Server {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = DefaultAddr
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		cfg.Server.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.Server.AllowOrigin == "" {
		cfg.Server.AllowOrigin = "*"
	}

	s := &Server{
		cfg:     cfg,
		invoker: deps.Invoker,
		store:   deps.Store,
		logger:  deps.Logger,
	}
	if s.logger == nil {
		s.logger = log.Default()
	}
	if s.invoker == nil {
		s.invoker = gatewayInvoker(cfg.Gateway, s.logger)
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)
	s.handler = s.logRequests(s.cors(mux))
	return s
}

// gatewayInvoker builds clients that share one pacer, so the configured
// request rate holds across concurrent runs.
func gatewayInvoker(cfg types.GatewayConfig, logger *log.Logger) InvokerFunc {
	pacer := httputil.NewPacer(cfg.RequestsPerSecond, 1)
	return func() (gateway.Invoker, error) {
		return gateway.New(cfg, gateway.WithPacer(pacer), gateway.WithLogger(logger.WithPrefix("gateway")))
	}
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/analyze", s.handleAnalyze)
	mux.HandleFunc("POST /api/runs/{id}/resume", s.handleResume)
	mux.HandleFunc("GET /api/runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /api/runs", s.handleListRuns)
	mux.HandleFunc("OPTIONS /api/", s.handlePreflight)
	mux.HandleFunc("GET /healthz", s.handleHealth)
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		IdleTimeout:       idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

func (s *Server) handlePreflight(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "run archive is disabled")
		return
	}
	run, err := s.store.GetRun(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.logger.Error("loading run", "id", r.PathValue("id"), "err", err)
		writeError(w, http.StatusInternalServerError, "could not load run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusOK, map[string]any{"runs": []types.Run{}})
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing runs", "err", err)
		writeError(w, http.StatusInternalServerError, "could not list runs")
		return
	}
	if runs == nil {
		runs = []types.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// errorBody is the JSON body of every non-streaming error response.
type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}
