package routegroups

import (
	"incidentdesk/api/handlers"

	"github.com/go-chi/chi/v5"
)

func RegisterAuth(apiRouter chi.Router, g Guards, h *handlers.AuthHandler) {
	apiRouter.Route("/auth", func(authRouter chi.Router) {
		authRouter.MethodFunc("POST", "/register", g.Limited(h.Register))
		authRouter.MethodFunc("POST", "/login", g.Limited(h.Login))
		authRouter.MethodFunc("POST", "/forgot-password", g.Limited(h.ForgotPassword))
		authRouter.MethodFunc("POST", "/refresh-token", g.Public(h.Refresh))
		authRouter.MethodFunc("POST", "/reset-password/{token}", g.Public(h.ResetPassword))
		authRouter.MethodFunc("POST", "/logout", g.Session(h.Logout))
		authRouter.MethodFunc("GET", "/me", g.Session(h.Me))
		authRouter.MethodFunc("GET", "/sessions", g.Session(h.Sessions))
		authRouter.MethodFunc("PATCH", "/update-profile", g.Session(h.UpdateProfile))
		authRouter.MethodFunc("PATCH", "/change-password", g.Session(h.ChangePassword))
	})
}
