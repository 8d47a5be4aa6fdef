package onboarding

import (
	"testing"

	"github.com/kmohamed-dz/abcher/internal/identity"
	"github.com/kmohamed-dz/abcher/internal/model"
)

func TestDeriveState(t *testing.T) {
	ident := &identity.Identity{ID: "u1", Email: "amine@example.com"}
	admin := model.RoleSchoolAdmin
	teacher := model.RoleTeacher
	school := "school-1"

	cases := map[string]struct {
		ident   *identity.Identity
		profile *model.Profile
		expect  State
	}{
		"no identity": {nil, nil, StateUnauthenticated},
		"no profile":  {ident, nil, StateRoleUnset},
		"role and school unset": {
			ident, &model.Profile{ID: "u1"}, StateRoleUnset,
		},
		"teacher without school": {
			ident, &model.Profile{ID: "u1", Role: &teacher}, StateJoiningSchool,
		},
		"admin without school": {
			ident, &model.Profile{ID: "u1", Role: &admin}, StateCreatingSchool,
		},
		"role and school set": {
			ident, &model.Profile{ID: "u1", Role: &teacher, SchoolID: &school}, StateReady,
		},
	}

	for name, tc := range cases {
		if got := DeriveState(tc.ident, tc.profile); got != tc.expect {
			t.Fatalf("%s: expected %s, got %s", name, tc.expect, got)
		}
	}
}

func TestDeriveStateEveryJoiningRole(t *testing.T) {
	ident := &identity.Identity{ID: "u1"}
	for _, role := range []model.Role{model.RoleTeacher, model.RoleStudent, model.RoleParent, model.RoleAuthorityAdmin} {
		role := role
		if got := DeriveState(ident, &model.Profile{ID: "u1", Role: &role}); got != StateJoiningSchool {
			t.Fatalf("role %s: expected %s, got %s", role, StateJoiningSchool, got)
		}
	}
}

func TestDeriveStateUnknownRoleFallsBackToRoleUnset(t *testing.T) {
	ident := &identity.Identity{ID: "u1"}
	bogus := model.Role("janitor")
	if got := DeriveState(ident, &model.Profile{ID: "u1", Role: &bogus}); got != StateRoleUnset {
		t.Fatalf("expected %s for unknown role, got %s", StateRoleUnset, got)
	}
}
