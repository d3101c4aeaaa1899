package routegroups

import (
	"net/http"

	"incidentdesk/core/rbac"
)

type Middleware func(http.HandlerFunc) http.HandlerFunc

// Guards carries the server middlewares every routegroup composes.
type Guards struct {
	WithSession       Middleware
	RequirePermission func(rbac.Permission) func(http.HandlerFunc) http.HandlerFunc
	AuthLimit         Middleware
	UploadLimit       Middleware
}

func (g Guards) Session(h http.HandlerFunc) http.HandlerFunc {
	return g.WithSession(h)
}

func (g Guards) SessionPerm(perm rbac.Permission, h http.HandlerFunc) http.HandlerFunc {
	return g.WithSession(g.RequirePermission(perm)(h))
}

// Limited wraps an unauthenticated route with the auth rate limiter.
func (g Guards) Limited(h http.HandlerFunc) http.HandlerFunc {
	return g.AuthLimit(h)
}

// Public marks a route that needs no session on purpose.
func (g Guards) Public(h http.HandlerFunc) http.HandlerFunc {
	return h
}
