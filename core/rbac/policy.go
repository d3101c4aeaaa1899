package rbac

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

type Permission string

const (
	RoleUser       = "user"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"
)

const (
	PermIncidentsCreate  Permission = "incidents.create"
	PermIncidentsView    Permission = "incidents.view"
	PermIncidentsViewAll Permission = "incidents.view_all"
	PermIncidentsManage  Permission = "incidents.manage"
	PermIncidentsDelete  Permission = "incidents.delete"
	PermAnalyticsView    Permission = "analytics.view"
	PermExportRun        Permission = "export.run"
	PermUsersManage      Permission = "users.manage"
	PermAuditView        Permission = "audit.view"
	PermUploadsManage    Permission = "uploads.manage"
)

// Role lists the permissions granted directly and the role it inherits from.
type Role struct {
	Name        string
	Inherits    string
	Permissions []Permission
}

func DefaultRoles() []Role {
	return []Role{
		{Name: RoleUser, Permissions: []Permission{PermIncidentsCreate, PermIncidentsView, PermUploadsManage}},
		{Name: RoleAdmin, Inherits: RoleUser, Permissions: []Permission{PermIncidentsViewAll, PermIncidentsManage, PermAnalyticsView, PermExportRun}},
		{Name: RoleSuperAdmin, Inherits: RoleAdmin, Permissions: []Permission{PermIncidentsDelete, PermUsersManage, PermAuditView}},
	}
}

func AllRoles() []string {
	return []string{RoleUser, RoleAdmin, RoleSuperAdmin}
}

func IsValidRole(role string) bool {
	switch role {
	case RoleUser, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// IsElevated reports whether role sees and mutates every incident.
func IsElevated(role string) bool {
	return role == RoleAdmin || role == RoleSuperAdmin
}

const modelText = `
[request_definition]
r = sub, obj

[policy_definition]
p = sub, obj

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj
`

type Policy struct {
	enforcer *casbin.Enforcer
}

func NewPolicy(roles []Role) (*Policy, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("rbac model: %w", err)
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("rbac enforcer: %w", err)
	}
	for _, role := range roles {
		for _, perm := range role.Permissions {
			if _, err := e.AddPolicy(role.Name, string(perm)); err != nil {
				return nil, fmt.Errorf("rbac policy %s/%s: %w", role.Name, perm, err)
			}
		}
		if role.Inherits != "" {
			if _, err := e.AddGroupingPolicy(role.Name, role.Inherits); err != nil {
				return nil, fmt.Errorf("rbac inherit %s->%s: %w", role.Name, role.Inherits, err)
			}
		}
	}
	return &Policy{enforcer: e}, nil
}

func MustNewPolicy(roles []Role) *Policy {
	p, err := NewPolicy(roles)
	if err != nil {
		panic(err)
	}
	return p
}

// Allowed fails closed on unknown roles and enforcer errors.
func (p *Policy) Allowed(role string, perm Permission) bool {
	if p == nil || p.enforcer == nil || role == "" || perm == "" {
		return false
	}
	ok, err := p.enforcer.Enforce(role, string(perm))
	return err == nil && ok
}

// RolesWith returns the roles holding perm, directly or by inheritance.
func (p *Policy) RolesWith(perm Permission) []string {
	var out []string
	for _, role := range AllRoles() {
		if p.Allowed(role, perm) {
			out = append(out, role)
		}
	}
	return out
}
