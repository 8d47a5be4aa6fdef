package model

import "fmt"

// Role is the closed set of account roles within a school. Branching on a
// Role should always be an exhaustive switch so that adding a role forces a
// review of every branch.
type Role string

const (
	RoleSchoolAdmin    Role = "school_admin"
	RoleTeacher        Role = "teacher"
	RoleStudent        Role = "student"
	RoleParent         Role = "parent"
	RoleAuthorityAdmin Role = "authority_admin"
)

// DefaultJoinRole is assigned when a caller joins a school without having
// picked a role first. Students carry the narrowest row-policy grants.
const DefaultJoinRole = RoleStudent

// ParseRole validates a wire value against the closed set.
func ParseRole(value string) (Role, error) {
	switch role := Role(value); role {
	case RoleSchoolAdmin, RoleTeacher, RoleStudent, RoleParent, RoleAuthorityAdmin:
		return role, nil
	default:
		return "", fmt.Errorf("unknown role %q", value)
	}
}

// String implements fmt.Stringer.
func (r Role) String() string { return string(r) }
