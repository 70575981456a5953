package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"licbind/internal/config"
	"licbind/internal/events"
	"licbind/internal/infrastructure"
	appmiddleware "licbind/internal/middleware"
	"licbind/internal/services"
)

// RouterDeps carries everything the router mounts.
type RouterDeps struct {
	Config  *config.Config
	Service services.RegistryService
	Hub     *events.Hub
	Metrics http.Handler
	Logger  *slog.Logger
}

// NewRouter assembles the full HTTP surface: the public registry API under
// /api/v1, the authenticated admin API under /api/v1/admin, the websocket
// event stream, the Prometheus endpoint and the health probe.
func NewRouter(deps RouterDeps) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = infrastructure.GetLogger()
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(appmiddleware.Trace)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))
	r.Use(appmiddleware.RateLimit(deps.Config.Server.RateLimit))

	registryHandler := NewRegistryHandler(deps.Service, logger)
	adminHandler := NewAdminHandler(deps.Service, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/registry", registryHandler.Routes())
		r.Route("/admin", func(r chi.Router) {
			r.Use(appmiddleware.AdminAuth(deps.Config.Admin.Token, logger))
			r.Mount("/", adminHandler.Routes())
		})
	})

	if deps.Hub != nil {
		r.Get("/ws", events.ServeWS(deps.Hub, deps.Config.WebSocket, logger))
	}
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}
	r.Get("/healthz", HealthHandler)

	return r
}
