package routegroups

import (
	"incidentdesk/api/handlers"
	"incidentdesk/core/rbac"

	"github.com/go-chi/chi/v5"
)

// RegisterIncidents mounts the incident routes. Static segments are
// registered before {id} so my-incidents and bulk-update are not taken as ids.
func RegisterIncidents(apiRouter chi.Router, g Guards, h *handlers.IncidentsHandler) {
	apiRouter.Route("/incidents", func(incidentsRouter chi.Router) {
		incidentsRouter.MethodFunc("POST", "/", g.SessionPerm(rbac.PermIncidentsCreate, h.Create))
		incidentsRouter.MethodFunc("GET", "/", g.SessionPerm(rbac.PermIncidentsView, h.List))
		incidentsRouter.MethodFunc("GET", "/my-incidents", g.SessionPerm(rbac.PermIncidentsView, h.Mine))
		incidentsRouter.MethodFunc("PATCH", "/bulk-update", g.SessionPerm(rbac.PermIncidentsManage, h.BulkUpdate))
		incidentsRouter.MethodFunc("GET", "/{id}", g.SessionPerm(rbac.PermIncidentsView, h.Get))
		incidentsRouter.MethodFunc("PATCH", "/{id}", g.SessionPerm(rbac.PermIncidentsManage, h.Update))
		incidentsRouter.MethodFunc("PATCH", "/{id}/status", g.SessionPerm(rbac.PermIncidentsManage, h.ChangeStatus))
		incidentsRouter.MethodFunc("PATCH", "/{id}/assign", g.SessionPerm(rbac.PermIncidentsManage, h.Assign))
		incidentsRouter.MethodFunc("DELETE", "/{id}", g.SessionPerm(rbac.PermIncidentsDelete, h.Delete))
	})
}
