package access

import "sitetrack.io/internal/model"

// Action is a mutation guarded by a role gate. Callers check project or task
// access first and the gate second.
type Action string

const (
	ActionCreateProject Action = "project.create"
	ActionUpdateProject Action = "project.update"
	ActionDeleteProject Action = "project.delete"
	ActionCreateTask    Action = "task.create"
	ActionUpdateTask    Action = "task.update"
	ActionDeleteTask    Action = "task.delete"
	ActionCreateComment Action = "comment.create"
	ActionManageUsers   Action = "user.manage"
)

var allRoles = []model.Role{model.RoleAdmin, model.RoleBureau, model.RoleTerrain}

// BuiltinGates lists the roles allowed to perform each action.
var BuiltinGates = map[Action][]model.Role{
	ActionCreateProject: {model.RoleAdmin, model.RoleBureau},
	ActionUpdateProject: {model.RoleAdmin, model.RoleBureau},
	ActionDeleteProject: {model.RoleAdmin},
	ActionCreateTask:    {model.RoleAdmin, model.RoleBureau},
	ActionUpdateTask:    allRoles,
	ActionDeleteTask:    {model.RoleAdmin, model.RoleBureau},
	ActionCreateComment: allRoles,
	ActionManageUsers:   {model.RoleAdmin},
}

// Permits reports whether role passes the gate for action. Unknown actions
// and roles are denied.
func Permits(role model.Role, action Action) bool {
	for _, r := range BuiltinGates[action] {
		if r == role {
			return true
		}
	}
	return false
}
