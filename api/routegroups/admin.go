package routegroups

import (
	"incidentdesk/api/handlers"
	"incidentdesk/core/rbac"

	"github.com/go-chi/chi/v5"
)

func RegisterUsers(apiRouter chi.Router, g Guards, h *handlers.UsersHandler) {
	apiRouter.Route("/users", func(usersRouter chi.Router) {
		usersRouter.MethodFunc("GET", "/", g.SessionPerm(rbac.PermUsersManage, h.List))
		usersRouter.MethodFunc("POST", "/", g.SessionPerm(rbac.PermUsersManage, h.Create))
		usersRouter.MethodFunc("GET", "/{id}", g.SessionPerm(rbac.PermUsersManage, h.Get))
		usersRouter.MethodFunc("PATCH", "/{id}", g.SessionPerm(rbac.PermUsersManage, h.Update))
		usersRouter.MethodFunc("DELETE", "/{id}", g.SessionPerm(rbac.PermUsersManage, h.Delete))
		usersRouter.MethodFunc("PATCH", "/{id}/role", g.SessionPerm(rbac.PermUsersManage, h.ChangeRole))
		usersRouter.MethodFunc("PATCH", "/{id}/block", g.SessionPerm(rbac.PermUsersManage, h.Block))
		usersRouter.MethodFunc("PATCH", "/{id}/unblock", g.SessionPerm(rbac.PermUsersManage, h.Unblock))
	})
}

func RegisterAudit(apiRouter chi.Router, g Guards, h *handlers.AuditHandler) {
	apiRouter.Route("/audit-logs", func(auditRouter chi.Router) {
		auditRouter.MethodFunc("GET", "/", g.SessionPerm(rbac.PermAuditView, h.List))
		auditRouter.MethodFunc("POST", "/export", g.SessionPerm(rbac.PermAuditView, h.Export))
		auditRouter.MethodFunc("GET", "/user/{userId}", g.SessionPerm(rbac.PermAuditView, h.ByUser))
		auditRouter.MethodFunc("GET", "/incident/{incidentId}", g.SessionPerm(rbac.PermAuditView, h.ByIncident))
		auditRouter.MethodFunc("GET", "/{id}", g.SessionPerm(rbac.PermAuditView, h.Get))
	})
}

func RegisterAnalytics(apiRouter chi.Router, g Guards, h *handlers.AnalyticsHandler) {
	apiRouter.Route("/analytics", func(analyticsRouter chi.Router) {
		analyticsRouter.MethodFunc("GET", "/dashboard", g.SessionPerm(rbac.PermAnalyticsView, h.Dashboard))
		analyticsRouter.MethodFunc("GET", "/trends", g.SessionPerm(rbac.PermAnalyticsView, h.Trends))
		analyticsRouter.MethodFunc("GET", "/category-breakdown", g.SessionPerm(rbac.PermAnalyticsView, h.CategoryBreakdown))
		analyticsRouter.MethodFunc("GET", "/status-breakdown", g.SessionPerm(rbac.PermAnalyticsView, h.StatusBreakdown))
		analyticsRouter.MethodFunc("GET", "/resolution-time", g.SessionPerm(rbac.PermAnalyticsView, h.ResolutionTime))
		analyticsRouter.MethodFunc("GET", "/user-activity", g.SessionPerm(rbac.PermAnalyticsView, h.UserActivity))
	})
}

func RegisterExport(apiRouter chi.Router, g Guards, h *handlers.ExportHandler) {
	apiRouter.Route("/export", func(exportRouter chi.Router) {
		exportRouter.MethodFunc("POST", "/incidents", g.SessionPerm(rbac.PermExportRun, h.Incidents))
	})
}
