// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aisage Contributors

// Package server exposes the coaching loop over HTTP: session lifecycle,
// message turns, and the per-turn audit trail.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/aisage-dev/aisage/internal/agent"
	"github.com/aisage-dev/aisage/internal/store"
	aisageerr "github.com/aisage-dev/aisage/pkg/errors"
)

// Config holds HTTP server configuration.
type Config struct {
	ListenAddr   string
	CORSOrigins  []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Deps are the collaborators the HTTP surface delegates to.
type Deps struct {
	Sessions *agent.SessionManager
	Loop     *agent.Loop
	Audit    store.AuditStore
	Logger   *slog.Logger
}

// Server wraps a chi router over the agent loop and session manager.
type Server struct {
	router   chi.Router
	cfg      Config
	sessions *agent.SessionManager
	loop     *agent.Loop
	audit    store.AuditStore
	logger   *slog.Logger
}

// New creates a Server with health endpoint, CORS, and the v1 API routes.
func New(cfg Config, deps Deps) (*Server, error) {
	if cfg.ListenAddr == "" {
		return nil, aisageerr.New(aisageerr.CodeServerStartFailure, "listen address is required")
	}
	if deps.Sessions == nil || deps.Loop == nil || deps.Audit == nil {
		return nil, aisageerr.New(aisageerr.CodeServerStartFailure, "sessions, loop, and audit dependencies are required")
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// Turns block on model round trips.
		cfg.WriteTimeout = 120 * time.Second
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware(cfg.CORSOrigins))

	srv := &Server{
		router:   r,
		cfg:      cfg,
		sessions: deps.Sessions,
		loop:     deps.Loop,
		audit:    deps.Audit,
		logger:   deps.Logger,
	}
	srv.registerRoutes()

	return srv, nil
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the HTTP server and blocks until the context is cancelled,
// then performs graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return aisageerr.Wrapf(err, aisageerr.CodeServerStartFailure, "listening on %s", s.cfg.ListenAddr)
	}

	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.logger.Info("http server listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return aisageerr.Wrap(err, aisageerr.CodeServerInternalFailure, "shutting down")
	}

	return <-errCh
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}

	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
