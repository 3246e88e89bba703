package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts and
// appear verbatim in issued tokens.
const (
	RoleAssessor    = "ASSESSOR"
	RoleCoordinator = "COORDINATOR"
	RoleAdmin       = "ADMIN"
)

func IsAdmin(role string) bool { return role == RoleAdmin }

func IsKnownRole(role string) bool {
	switch role {
	case RoleAssessor, RoleCoordinator, RoleAdmin:
		return true
	default:
		return false
	}
}
