package auth

// permissions are strings like "job:submit", "job:read", "admin:*"
const (
	PermJobSubmit = "job:submit"
	PermJobRead   = "job:read"
	PermAdminAll  = "admin:*"
)

var roleToPerms = map[string][]string{
	"viewer":   {PermJobRead},
	"producer": {PermJobSubmit, PermJobRead},
	"admin":    {PermJobSubmit, PermJobRead, PermAdminAll},
}

// KnownRole reports whether role grants any permission.
func KnownRole(role string) bool {
	_, ok := roleToPerms[role]
	return ok
}

func PermsForRoles(roles []string) map[string]struct{} {
	out := make(map[string]struct{}, 8)
	for _, r := range roles {
		if perms, ok := roleToPerms[r]; ok {
			for _, p := range perms {
				out[p] = struct{}{}
			}
		}
	}
	return out
}
