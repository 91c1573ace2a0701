// Package access decides which projects and tasks a user may see or change.
package access

import (
	"context"
	"errors"
	"fmt"

	"sitetrack.io/internal/model"
	"sitetrack.io/internal/obs"
)

// Store is the read side of persistence the resolver depends on.
// Find methods return model.ErrNotFound for unknown ids.
type Store interface {
	FindUser(ctx context.Context, id string) (model.User, error)
	FindProject(ctx context.Context, id string) (model.Project, error)
	ListProjects(ctx context.Context, scope model.ProjectScope) ([]model.ProjectSummary, error)
	FindTask(ctx context.Context, id string) (model.Task, error)
	ListTasks(ctx context.Context, scope model.TaskScope) ([]model.TaskSummary, error)
}

// Resolver evaluates per-user visibility of projects and tasks. Denials are
// reported as false or empty results; only store failures produce errors.
type Resolver struct {
	store Store
}

// NewResolver builds a Resolver over the given store.
func NewResolver(store Store) (*Resolver, error) {
	if store == nil {
		return nil, errors.New("access store is required")
	}
	return &Resolver{store: store}, nil
}

// CanAccessProject reports whether userID may see and act on projectID.
// Unknown users or projects are denied.
func (r *Resolver) CanAccessProject(ctx context.Context, userID, projectID string) (bool, error) {
	ok, err := r.canAccessProject(ctx, userID, projectID)
	obs.ObserveAccessDecision("project", ok, err)
	return ok, err
}

func (r *Resolver) canAccessProject(ctx context.Context, userID, projectID string) (bool, error) {
	user, found, err := r.user(ctx, userID)
	if err != nil || !found {
		return false, err
	}
	project, err := r.store.FindProject(ctx, projectID)
	if errors.Is(err, model.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load project %s: %w", projectID, err)
	}
	return projectVisible(user, project), nil
}

// CanSeeSnapshot applies the project predicate to an already loaded project,
// such as one that has since been deleted.
func (r *Resolver) CanSeeSnapshot(ctx context.Context, userID string, p model.Project) (bool, error) {
	user, found, err := r.user(ctx, userID)
	if err != nil || !found {
		return false, err
	}
	return projectVisible(user, p), nil
}

// projectVisible is the per-role project predicate.
func projectVisible(user model.User, p model.Project) bool {
	switch user.Role {
	case model.RoleAdmin:
		return true
	case model.RoleBureau:
		return p.BureauID == user.ID || p.CreatedByID == user.ID
	case model.RoleTerrain:
		return p.HasAgent(user.ID)
	default:
		return false
	}
}

// ListVisibleProjects returns every project userID can access, most recently
// updated first.
func (r *Resolver) ListVisibleProjects(ctx context.Context, userID string) ([]model.ProjectSummary, error) {
	user, found, err := r.user(ctx, userID)
	if err != nil || !found {
		return nil, err
	}
	scope, ok := ProjectScopeFor(user)
	if !ok {
		return nil, nil
	}
	projects, err := r.store.ListProjects(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

// CanAccessTask reports whether userID may act on taskID. A task has no ACL of
// its own: access always derives from the owning project.
func (r *Resolver) CanAccessTask(ctx context.Context, userID, taskID string) (bool, error) {
	task, err := r.store.FindTask(ctx, taskID)
	if errors.Is(err, model.ErrNotFound) {
		obs.ObserveAccessDecision("task", false, nil)
		return false, nil
	}
	if err != nil {
		err = fmt.Errorf("load task %s: %w", taskID, err)
		obs.ObserveAccessDecision("task", false, err)
		return false, err
	}
	ok, err := r.canAccessProject(ctx, userID, task.ProjectID)
	obs.ObserveAccessDecision("task", ok, err)
	return ok, err
}

// ListVisibleTasks returns the tasks userID can see ordered by due date, tasks
// without a due date last.
func (r *Resolver) ListVisibleTasks(ctx context.Context, userID string) ([]model.TaskSummary, error) {
	user, found, err := r.user(ctx, userID)
	if err != nil || !found {
		return nil, err
	}
	scope, ok := TaskScopeFor(user)
	if !ok {
		return nil, nil
	}
	tasks, err := r.store.ListTasks(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// ProjectScopeFor maps a user to the project selection it may see.
// ok is false for roles that see nothing.
func ProjectScopeFor(user model.User) (scope model.ProjectScope, ok bool) {
	switch user.Role {
	case model.RoleAdmin:
		return model.ProjectScope{}, true
	case model.RoleBureau:
		return model.ProjectScope{BureauOrCreatorID: user.ID}, true
	case model.RoleTerrain:
		return model.ProjectScope{AssignedAgentID: user.ID}, true
	default:
		return model.ProjectScope{}, false
	}
}

// TaskScopeFor maps a user to the task selection it may see. Bureau and
// terrain users additionally see every task assigned to them.
func TaskScopeFor(user model.User) (scope model.TaskScope, ok bool) {
	switch user.Role {
	case model.RoleAdmin:
		return model.TaskScope{}, true
	case model.RoleBureau, model.RoleTerrain:
		projects, _ := ProjectScopeFor(user)
		return model.TaskScope{AssigneeID: user.ID, Project: projects}, true
	default:
		return model.TaskScope{}, false
	}
}

func (r *Resolver) user(ctx context.Context, id string) (model.User, bool, error) {
	if id == "" {
		return model.User{}, false, nil
	}
	user, err := r.store.FindUser(ctx, id)
	if errors.Is(err, model.ErrNotFound) {
		return model.User{}, false, nil
	}
	if err != nil {
		return model.User{}, false, fmt.Errorf("load user %s: %w", id, err)
	}
	return user, true, nil
}
