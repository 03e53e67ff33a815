package rbac

// Default role policy. Resource-scoped checks (which tournament, which event)
// belong to the tournament Authorizer; these gates are coarse role checks.
var RolePermissions = map[string][]string{
	"student": {
		"test:view",
		"attempt:create",
		"attempt:save",
		"attempt:submit",
		"attempt:view-own",
		"staff:respond",
		"hosting:create",
	},
	"supervisor": {
		"test:create",
		"test:view",
		"test:view-keys",
		"attempt:view-all",
		"attempt:grade",
		"staff:respond",
		"hosting:create",
	},
	"director": {
		"test:create",
		"test:view",
		"test:view-keys",
		"attempt:view-all",
		"attempt:grade",
		"tournament:create",
		"tournament:manage",
		"staff:invite",
		"staff:respond",
		"hosting:create",
	},
	"admin": {
		"*", // everything, including hosting:approve
	},
}

// KnownRole reports whether the role exists in the default policy.
func KnownRole(role string) bool {
	_, ok := RolePermissions[role]
	return ok
}
