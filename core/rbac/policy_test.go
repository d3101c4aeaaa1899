package rbac

import "testing"

func TestDefaultPolicyLattice(t *testing.T) {
	p := MustNewPolicy(DefaultRoles())
	cases := []struct {
		role string
		perm Permission
		want bool
	}{
		{RoleUser, PermIncidentsCreate, true},
		{RoleUser, PermIncidentsViewAll, false},
		{RoleUser, PermUsersManage, false},
		{RoleAdmin, PermIncidentsCreate, true},
		{RoleAdmin, PermIncidentsManage, true},
		{RoleAdmin, PermIncidentsDelete, false},
		{RoleAdmin, PermUsersManage, false},
		{RoleAdmin, PermAuditView, false},
		{RoleSuperAdmin, PermIncidentsManage, true},
		{RoleSuperAdmin, PermUsersManage, true},
		{RoleSuperAdmin, PermAuditView, true},
		{"intruder", PermIncidentsView, false},
		{"", PermIncidentsView, false},
	}
	for _, tc := range cases {
		if got := p.Allowed(tc.role, tc.perm); got != tc.want {
			t.Fatalf("Allowed(%q, %q) = %v, want %v", tc.role, tc.perm, got, tc.want)
		}
	}
}

func TestRolesWith(t *testing.T) {
	p := MustNewPolicy(DefaultRoles())
	got := p.RolesWith(PermIncidentsManage)
	if len(got) != 2 || got[0] != RoleAdmin || got[1] != RoleSuperAdmin {
		t.Fatalf("expected admin and superadmin, got %v", got)
	}
}

func TestNilPolicyDenies(t *testing.T) {
	var p *Policy
	if p.Allowed(RoleSuperAdmin, PermUsersManage) {
		t.Fatalf("expected nil policy to deny")
	}
}
