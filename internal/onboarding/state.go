package onboarding

import (
	"github.com/kmohamed-dz/abcher/internal/identity"
	"github.com/kmohamed-dz/abcher/internal/model"
)

// State is the onboarding step implied by the caller's current profile.
// There is no persisted "current step": the state is re-derived from the
// profile on every request, so an abandoned flow resumes where the profile
// says it should.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateRoleUnset       State = "role_unset"
	StateCreatingSchool  State = "creating_school"
	StateJoiningSchool   State = "joining_school"
	StateReady           State = "ready"
)

// DeriveState maps an identity/profile pair onto the onboarding state.
// A profile hidden by row policy (nil with a live identity) is treated the
// same as a missing role: the caller starts at role selection.
func DeriveState(ident *identity.Identity, profile *model.Profile) State {
	if ident == nil {
		return StateUnauthenticated
	}
	if profile == nil || profile.Role == nil {
		return StateRoleUnset
	}
	if profile.SchoolID != nil {
		return StateReady
	}
	switch *profile.Role {
	case model.RoleSchoolAdmin:
		return StateCreatingSchool
	case model.RoleTeacher, model.RoleStudent, model.RoleParent, model.RoleAuthorityAdmin:
		return StateJoiningSchool
	default:
		// Unknown role value in the row; force the caller back through
		// role selection rather than guessing a branch.
		return StateRoleUnset
	}
}
