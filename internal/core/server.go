// Package core provides the HTTP chassis for the stockwatch management API.
// It creates a chi router and enforces the cross-cutting concerns -- request
// correlation, logging, panic recovery, API-key authentication -- before
// requests reach the domain handlers.
package core

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"stockwatch/internal/config"
	"stockwatch/internal/types"
)

// Server bundles the router with the dependencies every middleware needs,
// allowing distinct wiring for production and tests.
type Server struct {
	Config *config.Config
	Logger types.Logger

	// V1RouteRegistrars are called under the authenticated /v1 group when
	// MountRoutes runs. The entry point populates them with the domain
	// handlers; the indirection keeps core free of handler imports.
	V1RouteRegistrars []func(chi.Router)

	// HealthProbes are the subsystem checks executed by GET /healthz.
	HealthProbes []HealthProbe

	router *chi.Mux
}

// NewServer initializes the router and validates critical dependencies.
// The caller mounts routes afterwards via MountRoutes; the separation lets
// tests register custom routes before the chain is assembled.
func NewServer(cfg *config.Config, logger types.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config: cfg,
		Logger: logger,
		router: chi.NewRouter(),
	}, nil
}

// Handler returns the router as an http.Handler for http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration in tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}
