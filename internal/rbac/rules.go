package rbac

// Simple default policy. Expand as needed.
var RolePermissions = map[string][]string{
	"student": {
		"quiz:view",
		"attempt:create",
		"attempt:save",
		"attempt:submit",
		"attempt:view-own",
	},
	"teacher": {
		"quiz:create",
		"quiz:view",
		"quiz:view-keys",
		"quiz:stats",
		"attempt:view-all",
		"answer:grade",
	},
	"admin": {
		"*", // everything
	},
}
