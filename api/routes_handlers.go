package api

import (
	"net/http"

	"incidentdesk/api/handlers"
	"incidentdesk/api/routegroups"

	"github.com/go-chi/chi/v5"
)

type routeHandlers struct {
	auth          *handlers.AuthHandler
	incidents     *handlers.IncidentsHandler
	users         *handlers.UsersHandler
	audit         *handlers.AuditHandler
	analytics     *handlers.AnalyticsHandler
	export        *handlers.ExportHandler
	uploads       *handlers.UploadsHandler
	notifications *handlers.NotificationsHandler
	health        *handlers.HealthHandler
}

func (s *Server) newRouteHandlers() routeHandlers {
	d, rs := s.deps, s.responder
	return routeHandlers{
		auth:          handlers.NewAuthHandler(s.cfg, d.Auth, rs),
		incidents:     handlers.NewIncidentsHandler(d.Incidents, rs),
		users:         handlers.NewUsersHandler(d.Users, rs),
		audit:         handlers.NewAuditHandler(d.AuditQuery, d.Export, rs),
		analytics:     handlers.NewAnalyticsHandler(d.Analytics, rs),
		export:        handlers.NewExportHandler(d.Export, rs),
		uploads:       handlers.NewUploadsHandler(d.Uploads, rs),
		notifications: handlers.NewNotificationsHandler(d.Hub, s.cfg.Security.ClientURL, s.logger),
		health:        handlers.NewHealthHandler(d.DB, rs),
	}
}

func (s *Server) guards() routegroups.Guards {
	return routegroups.Guards{
		WithSession:       s.withSession,
		RequirePermission: s.requirePermission,
		AuthLimit:         s.rateLimit(s.authLimiter),
		UploadLimit:       s.rateLimit(s.uploadLimiter),
	}
}

func (s *Server) routes() chi.Router {
	h := s.newRouteHandlers()
	r := chi.NewRouter()
	r.Use(s.recoverMiddleware, s.requestContextMiddleware, s.loggingMiddleware)
	if s.metrics != nil {
		r.Use(s.metrics.Instrument)
	}
	r.Use(s.securityHeadersMiddleware, s.corsMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	r.Get("/health", h.health.Health)
	if s.metrics != nil && s.cfg.Metrics.Enabled {
		path := s.cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Method("GET", path, s.metrics.Handler())
	}

	g := s.guards()
	r.Route("/api/v1", func(apiRouter chi.Router) {
		apiRouter.Get("/health", h.health.Health)
		routegroups.RegisterAuth(apiRouter, g, h.auth)
		routegroups.RegisterIncidents(apiRouter, g, h.incidents)
		routegroups.RegisterUsers(apiRouter, g, h.users)
		routegroups.RegisterAudit(apiRouter, g, h.audit)
		routegroups.RegisterAnalytics(apiRouter, g, h.analytics)
		routegroups.RegisterExport(apiRouter, g, h.export)
		routegroups.RegisterUploads(apiRouter, g, h.uploads)
		routegroups.RegisterNotifications(apiRouter, g, h.notifications)
	})
	return r
}
