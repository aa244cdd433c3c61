// Package server exposes the synthesis pipeline over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"signalbrief/internal/config"
	"signalbrief/internal/core"
	"signalbrief/internal/logger"
	"signalbrief/internal/observability"
	"signalbrief/internal/pipeline"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Synthesizer runs one synthesis. Implemented by *pipeline.Pipeline.
type Synthesizer interface {
	Run(ctx context.Context, req core.SynthesisRequest, opts pipeline.RunOptions) (*core.SynthesisResponse, error)
}

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options carries the optional collaborators of a Server
type Options struct {
	Metrics     *observability.Metrics // Nil disables the metrics route
	MetricsPath string                 // Defaults to /metrics
	Checks      map[string]Pinger      // Pinged by /health
}

// Server represents the HTTP server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	synth      Synthesizer
	opts       Options
	responders responders
	config     config.Server
	log        *slog.Logger
}

// New creates a new HTTP server instance
func New(synth Synthesizer, cfg config.Server, opts Options) (*Server, error) {
	if synth == nil {
		return nil, fmt.Errorf("synthesizer is required")
	}

	resp, err := newResponders()
	if err != nil {
		return nil, err
	}

	s := &Server{
		router:     chi.NewRouter(),
		synth:      synth,
		opts:       opts,
		responders: resp,
		config:     cfg,
		log:        logger.Get(),
	}

	s.setupMiddleware()

	if err := s.setupRoutes(); err != nil {
		return nil, err
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// setupMiddleware configures middleware for the server
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(securityHeaders)

	timeout := s.config.RequestTimeout
	if timeout <= 0 {
		timeout = 170 * time.Second
	}
	s.router.Use(middleware.Timeout(timeout))

	if len(s.config.CORSOrigins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.config.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"Retry-After"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
}

// setupRoutes mounts the route table
func (s *Server) setupRoutes() error {
	table, err := newRouteTable(s.routes())
	if err != nil {
		return err
	}
	for _, rt := range table.entries {
		h := rt.Handler
		if rt.Protected {
			h = s.requireAPIKey(h)
		}
		s.router.Method(rt.Method, rt.Pattern, h)
	}
	return nil
}

// routes lists every endpoint the server exposes
func (s *Server) routes() []Route {
	routes := []Route{
		{Method: http.MethodGet, Pattern: "/health", Handler: http.HandlerFunc(s.handleHealth)},
		{Method: http.MethodPost, Pattern: "/api/v1/synthesis", Handler: http.HandlerFunc(s.handleSynthesis), Protected: true},
	}
	if s.opts.Metrics != nil {
		path := s.opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		routes = append(routes, Route{Method: http.MethodGet, Pattern: path, Handler: s.opts.Metrics.Handler()})
	}
	return routes
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info("Starting HTTP server",
		"addr", s.httpServer.Addr,
		"read_timeout", s.config.ReadTimeout,
		"write_timeout", s.config.WriteTimeout,
	)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed to start: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server gracefully...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.log.Info("HTTP server stopped")
	return nil
}

// Router returns the chi router instance (useful for testing)
func (s *Server) Router() *chi.Mux {
	return s.router
}
