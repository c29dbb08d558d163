// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package opsapi is the operational HTTP surface of camfleetd: liveness,
// readiness, Prometheus metrics, the real-time WebSocket feed and the
// generated thumbnails. It is not a REST API.
package opsapi

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ManuGH/camfleet/internal/health"
	"github.com/ManuGH/camfleet/internal/log"
)

// Config configures the ops server.
type Config struct {
	Listen string
	// RateLimit is requests per minute per client IP on /ws and /thumbnails.
	RateLimit      int
	AllowedOrigins []string
	ThumbnailsDir  string
	ServiceName    string
}

// Deps are the handlers behind the routes. A nil WebSocket disables /ws.
type Deps struct {
	Health    *health.Manager
	WebSocket http.Handler
	Metrics   http.Handler
}

// Server wraps the http.Server serving the ops router.
type Server struct {
	srv    *http.Server
	logger zerolog.Logger
}

// NewRouter builds the ops router.
func NewRouter(cfg Config, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(recoverer)
	r.Use(requestID)
	r.Use(securityHeaders)
	r.Use(instrument)

	hm := deps.Health
	if hm == nil {
		hm = health.NewManager("")
	}
	r.Get("/healthz", hm.ServeHealth)
	r.Get("/readyz", hm.ServeReady)

	mh := deps.Metrics
	if mh == nil {
		mh = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", mh)

	r.Group(func(r chi.Router) {
		r.Use(rateLimit(cfg.RateLimit))
		if deps.WebSocket != nil {
			r.Method(http.MethodGet, "/ws", deps.WebSocket)
		}
		if cfg.ThumbnailsDir != "" {
			files := http.StripPrefix("/thumbnails/", http.FileServer(thumbnailFS{http.Dir(cfg.ThumbnailsDir)}))
			r.Method(http.MethodGet, "/thumbnails/*", files)
		}
	})

	service := cfg.ServiceName
	if service == "" {
		service = "camfleetd"
	}
	return otelhttp.NewHandler(r, service,
		otelhttp.WithFilter(shouldTrace),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return "HTTP " + r.Method + " " + r.URL.Path
		}),
	)
}

// shouldTrace skips probes, scrapes and long-lived WebSocket connections.
func shouldTrace(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/readyz", "/metrics", "/ws":
		return false
	}
	return true
}

// thumbnailFS serves .jpg files only and never lists directories.
type thumbnailFS struct {
	root http.FileSystem
}

func (t thumbnailFS) Open(name string) (http.File, error) {
	if !strings.HasSuffix(name, ".jpg") {
		return nil, fmt.Errorf("open %s: %w", name, fs.ErrNotExist)
	}
	return t.root.Open(name)
}

// New creates the server. It does not listen yet.
func New(cfg Config, deps Deps) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              cfg.Listen,
			Handler:           NewRouter(cfg, deps),
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: log.WithComponent("opsapi"),
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Serve accepts connections on ln until Shutdown. A clean shutdown returns nil.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info().Str(log.FieldEvent, "opsapi.listening").Str("addr", ln.Addr().String()).Msg("ops server listening")
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ops server: %w", err)
	}
	return nil
}

// ListenAndServe listens on the configured address and serves.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.srv.Addr, err)
	}
	return s.Serve(ln)
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Str(log.FieldEvent, "opsapi.shutdown").Msg("ops server shutting down")
	return s.srv.Shutdown(ctx)
}
