// Package server is the preview API: it renders the tool descriptors and
// input forms of the registered plugins, validates job configurations
// against those forms and browses the invocation index.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/me/q2galaxy/internal/config"
	"github.com/me/q2galaxy/internal/formcheck"
	"github.com/me/q2galaxy/internal/plugin"
	"github.com/me/q2galaxy/internal/store"
)

// Server is the q2galaxy preview API server.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	config    config.Config
	startTime time.Time
	registry  *plugin.Registry
	checker   *formcheck.Checker
	store     store.Store // optional; invocation endpoints answer 404 without it
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithStore serves the invocation index from st.
func WithStore(st store.Store) Option {
	return func(s *Server) {
		s.store = st
	}
}

// New creates a new Server with all routes registered.
func New(cfg config.Config, reg *plugin.Registry, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		config:    cfg,
		startTime: time.Now(),
		registry:  reg,
		checker:   formcheck.New(logger),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.handleDiscovery)
		r.Get("/health", s.handleHealth)

		r.Route("/plugins", func(r chi.Router) {
			r.Get("/", s.handleListPlugins)
			r.Route("/{plugin}", func(r chi.Router) {
				r.Get("/", s.handleGetPlugin)
				r.Route("/actions/{action}", func(r chi.Router) {
					r.Get("/tool.xml", s.handleToolXML)
					r.Get("/schema", s.handleSchema)
					r.Post("/check", s.handleCheck)
				})
			})
		})

		r.Get("/builtins/{action}/tool.xml", s.handleBuiltinXML)

		r.Route("/invocations", func(r chi.Router) {
			r.Get("/", s.handleListInvocations)
			r.Get("/{id}", s.handleGetInvocation)
		})
		r.Get("/results/{uuid}", s.handleGetResult)
	})
}
