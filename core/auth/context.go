package auth

import (
	"context"

	"incidentdesk/core/store"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID   string
	Username string
	Email    string
	Role     string
	User     *store.User
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	if ctx == nil {
		return nil, false
	}
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}

func PrincipalOf(u *store.User) *Principal {
	return &Principal{UserID: u.ID, Username: u.Username, Email: u.Email, Role: u.Role, User: u}
}
