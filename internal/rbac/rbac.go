package rbac

type Role string
type Action string

const (
	RolePublic  Role = "public"
	RolePremium Role = "premium"
	RoleAdmin   Role = "admin"
)

const (
	ActionRead            Action = "read"
	ActionWrite           Action = "write"
	ActionManageTemplates Action = "manage_templates"
	ActionAdmin           Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RolePremium:
		return action == ActionRead || action == ActionWrite
	case RolePublic:
		return action == ActionRead || action == ActionWrite
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RolePublic, RolePremium, RoleAdmin:
		return Role(role)
	default:
		return RolePublic
	}
}

// Known reports whether role names a template-bearing role.
func Known(role string) bool {
	switch Role(role) {
	case RolePublic, RolePremium, RoleAdmin:
		return true
	default:
		return false
	}
}
