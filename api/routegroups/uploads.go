package routegroups

import (
	"incidentdesk/api/handlers"
	"incidentdesk/core/rbac"

	"github.com/go-chi/chi/v5"
)

func RegisterUploads(apiRouter chi.Router, g Guards, h *handlers.UploadsHandler) {
	apiRouter.Route("/upload", func(uploadRouter chi.Router) {
		uploadRouter.MethodFunc("POST", "/evidence", g.UploadLimit(g.SessionPerm(rbac.PermUploadsManage, h.Upload)))
		uploadRouter.MethodFunc("GET", "/evidence/{filename}", g.SessionPerm(rbac.PermUploadsManage, h.Download))
		uploadRouter.MethodFunc("DELETE", "/evidence/{filename}", g.SessionPerm(rbac.PermUploadsManage, h.Delete))
	})
}

func RegisterNotifications(apiRouter chi.Router, g Guards, h *handlers.NotificationsHandler) {
	apiRouter.Route("/notifications", func(notificationsRouter chi.Router) {
		notificationsRouter.MethodFunc("GET", "/ws", g.Session(h.Stream))
	})
}
