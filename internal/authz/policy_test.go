package authz

import (
	"testing"

	"messaging-service/internal/models"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		raw  string
		want Role
	}{
		{raw: "employee", want: RoleEmployee},
		{raw: "manager", want: RoleManager},
		{raw: "team_manager", want: RoleManager},
		{raw: "admin", want: RoleAdmin},
		{raw: "org_admin", want: RoleAdmin},
		{raw: "super_admin", want: RoleSuperAdmin},
		{raw: "", want: RoleEmployee},
		{raw: "intern", want: RoleEmployee},
	}

	for _, tc := range cases {
		if got := Normalize(tc.raw); got != tc.want {
			t.Fatalf("Normalize(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestCanCreateGroup(t *testing.T) {
	cases := []struct {
		name  string
		role  Role
		allow bool
	}{
		{name: "employee denied", role: RoleEmployee, allow: false},
		{name: "manager allowed", role: RoleManager, allow: true},
		{name: "admin allowed", role: RoleAdmin, allow: true},
		{name: "super admin allowed", role: RoleSuperAdmin, allow: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := CanCreateGroup(tc.role)
			if d.Allowed != tc.allow {
				t.Fatalf("CanCreateGroup(%q).Allowed = %v, want %v", tc.role, d.Allowed, tc.allow)
			}
			if !tc.allow && d.Reason == "" {
				t.Fatalf("denial must carry a reason")
			}
		})
	}
}

func TestCanManageParticipants(t *testing.T) {
	if CanManageParticipants(RoleEmployee).Allowed {
		t.Fatalf("employee must not manage participants")
	}
	if !CanManageParticipants(RoleManager).Allowed {
		t.Fatalf("manager must manage participants")
	}
}

func TestCanEditMessage(t *testing.T) {
	msg := models.Message{ID: 1, SenderID: 7}

	if !CanEditMessage(7, msg).Allowed {
		t.Fatalf("sender must be allowed to edit")
	}
	if CanEditMessage(8, msg).Allowed {
		t.Fatalf("non-sender must not edit")
	}
}

func TestCanDeleteMessage(t *testing.T) {
	msg := models.Message{ID: 1, SenderID: 7}
	direct := models.Conversation{ID: 1, IsGroupChat: false}
	group := models.Conversation{ID: 2, IsGroupChat: true}

	cases := []struct {
		name   string
		caller int
		role   Role
		conv   models.Conversation
		allow  bool
	}{
		{name: "sender in direct", caller: 7, role: RoleEmployee, conv: direct, allow: true},
		{name: "sender in group", caller: 7, role: RoleEmployee, conv: group, allow: true},
		{name: "other employee in group", caller: 8, role: RoleEmployee, conv: group, allow: false},
		{name: "manager in group", caller: 8, role: RoleManager, conv: group, allow: true},
		{name: "manager in direct", caller: 8, role: RoleManager, conv: direct, allow: false},
		{name: "admin in direct", caller: 8, role: RoleAdmin, conv: direct, allow: false},
		{name: "admin in group", caller: 8, role: RoleAdmin, conv: group, allow: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := CanDeleteMessage(tc.caller, tc.role, msg, tc.conv)
			if d.Allowed != tc.allow {
				t.Fatalf("CanDeleteMessage = %v, want %v (reason %q)", d.Allowed, tc.allow, d.Reason)
			}
		})
	}
}
