package model

// Permission represents a string code for a specific staff action.
type Permission string

const (
	// PermissionQuestionsRead allows listing questions with their answer keys.
	PermissionQuestionsRead Permission = "questions:read"

	// PermissionQuestionsWrite allows creating, updating and deleting questions.
	PermissionQuestionsWrite Permission = "questions:write"

	// PermissionResultsRead allows viewing submitted results of all students.
	PermissionResultsRead Permission = "results:read"

	// PermissionMonitorRead allows attaching to the live attempt monitor.
	PermissionMonitorRead Permission = "monitor:read"

	// PermissionSessionsReset allows revoking another user's login session.
	PermissionSessionsReset Permission = "sessions:reset"
)

// AllPermissions is a slice of all available permissions.
var AllPermissions = []Permission{
	PermissionQuestionsRead,
	PermissionQuestionsWrite,
	PermissionResultsRead,
	PermissionMonitorRead,
	PermissionSessionsReset,
}

var rolePermissions = map[Role][]Permission{
	RoleAdmin: AllPermissions,
	RoleModerator: {
		PermissionQuestionsRead,
		PermissionResultsRead,
		PermissionMonitorRead,
	},
}

// PermissionsFor returns the permission codes granted to a role.
func PermissionsFor(r Role) []string {
	perms := rolePermissions[r]
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}
