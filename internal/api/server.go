// SPDX-License-Identifier: MIT

// Package api serves the dataset catalog over HTTP: list and fetch dataset
// records, serve rendered pages, trigger refreshes and lint documents.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/irfnrdh/tensorflow-datasets/internal/api/middleware"
	"github.com/irfnrdh/tensorflow-datasets/internal/builder"
	"github.com/irfnrdh/tensorflow-datasets/internal/cache"
	"github.com/irfnrdh/tensorflow-datasets/internal/config"
	"github.com/irfnrdh/tensorflow-datasets/internal/health"
	"github.com/irfnrdh/tensorflow-datasets/internal/jobs"
	"github.com/irfnrdh/tensorflow-datasets/internal/lint"
	"github.com/irfnrdh/tensorflow-datasets/internal/store"
)

// Server holds the API's collaborators.
type Server struct {
	cfg      config.AppConfig
	registry *builder.Registry
	store    *store.Store
	cache    cache.Cache
	runner   *jobs.Runner
	linter   *lint.Linter
	health   *health.Manager

	startedAt time.Time
}

// Options wires a Server.
type Options struct {
	Config   config.AppConfig
	Registry *builder.Registry
	Store    *store.Store
	Cache    cache.Cache
	Runner   *jobs.Runner
	Linter   *lint.Linter
	Health   *health.Manager
}

// New creates the API server. A nil cache or linter gets a working default;
// the other collaborators are required by the routes that use them.
func New(opts Options) (*Server, error) {
	if opts.Cache == nil {
		opts.Cache = cache.NewNoOp()
	}
	if opts.Linter == nil {
		l, err := lint.New(lint.Options{})
		if err != nil {
			return nil, err
		}
		opts.Linter = l
	}
	if opts.Health == nil {
		opts.Health = health.NewManager(opts.Config.Version)
	}
	return &Server{
		cfg:       opts.Config,
		registry:  opts.Registry,
		store:     opts.Store,
		cache:     opts.Cache,
		runner:    opts.Runner,
		linter:    opts.Linter,
		health:    opts.Health,
		startedAt: time.Now(),
	}, nil
}

// HealthManager exposes the health manager so the daemon can register
// checkers after construction.
func (s *Server) HealthManager() *health.Manager {
	return s.health
}

// Routes builds the HTTP handler with the canonical middleware stack.
func (s *Server) Routes() http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableSecurityHeaders: true,
		EnableMetrics:         true,
		TracingService:        "tfds-catalog",
		EnableLogging:         true,
		EnableRateLimit:       true,
	})

	r.Get("/healthz", s.health.ServeHealth)
	r.Get("/readyz", s.health.ServeReady)

	r.Route("/api", func(r chi.Router) {
		r.Get("/datasets", s.handleListDatasets)
		r.Get("/datasets/{name}", s.handleGetDataset)
		r.Get("/datasets/{name}/page", s.handleGetDatasetPage)
		r.Get("/status", s.handleStatus)

		r.Group(func(r chi.Router) {
			r.Use(s.requireToken)
			r.With(middleware.RefreshRateLimit()).Post("/refresh", s.handleRefresh)
			r.Post("/lint", s.handleLint)
		})
	})

	return r
}
