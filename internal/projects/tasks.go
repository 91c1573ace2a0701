package projects

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sitetrack.io/internal/access"
	"sitetrack.io/internal/audit"
	"sitetrack.io/internal/ids"
	"sitetrack.io/internal/model"
)

// TaskInput carries the fields of a new task.
type TaskInput struct {
	ProjectID  string
	Title      string
	Status     model.TaskStatus
	Progress   *int
	AssigneeID string
	Due        *time.Time
}

// TaskPatch carries a partial task update. Nil fields are left unchanged.
type TaskPatch struct {
	Title      *string
	Status     *model.TaskStatus
	Progress   *int
	AssigneeID *string
	Due        *time.Time
}

// ListTasks lists the tasks of projectID, newest first, or every task
// visible to the caller ordered by due date when projectID is empty.
func (s *Service) ListTasks(ctx context.Context, projectID string) ([]model.TaskSummary, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return s.resolver.ListVisibleTasks(ctx, actor.ID)
	}
	if err := s.requireProject(ctx, actor, projectID); err != nil {
		return nil, err
	}
	tasks, err := s.store.ListProjectTasks(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list tasks of %s: %w", projectID, err)
	}
	return tasks, nil
}

// CreateTask adds a task to a project the caller can access.
func (s *Service) CreateTask(ctx context.Context, in TaskInput) (model.Task, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return model.Task{}, err
	}
	projectID := strings.TrimSpace(in.ProjectID)
	if projectID == "" {
		return model.Task{}, invalid("project id is required")
	}
	if err := s.requireProject(ctx, actor, projectID); err != nil {
		return model.Task{}, err
	}
	if err := gate(actor, access.ActionCreateTask); err != nil {
		return model.Task{}, err
	}

	t := model.Task{
		ID:         ids.New(),
		ProjectID:  projectID,
		Title:      strings.TrimSpace(in.Title),
		Status:     in.Status,
		AssigneeID: strings.TrimSpace(in.AssigneeID),
		Due:        in.Due,
	}
	if t.Status == "" {
		t.Status = model.TaskTodo
	}
	if in.Progress != nil {
		t.Progress = *in.Progress
	}
	if err := validateTask(t); err != nil {
		return model.Task{}, err
	}

	created, err := s.store.CreateTask(ctx, t)
	if err != nil {
		return model.Task{}, err
	}
	s.recorder.Record(ctx, audit.Entry{
		ActorID:   actor.ID,
		Entity:    audit.EntityTask,
		EntityID:  created.ID,
		Action:    audit.ActionCreate,
		Detail:    audit.Snapshot{Title: created.Title},
		ProjectID: created.ProjectID,
	})
	return created, nil
}

// UpdateTask applies patch to a task the caller can access. Every role may
// update, so field agents can report progress.
func (s *Service) UpdateTask(ctx context.Context, id string, patch TaskPatch) (model.Task, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return model.Task{}, err
	}
	if err := s.requireTask(ctx, actor, id); err != nil {
		return model.Task{}, err
	}
	if err := gate(actor, access.ActionUpdateTask); err != nil {
		return model.Task{}, err
	}

	before, err := s.store.FindTask(ctx, id)
	if err != nil {
		return model.Task{}, fmt.Errorf("load task %s: %w", id, err)
	}
	after := before
	if patch.Title != nil {
		after.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Status != nil {
		after.Status = *patch.Status
	}
	if patch.Progress != nil {
		after.Progress = *patch.Progress
	}
	if patch.AssigneeID != nil {
		after.AssigneeID = strings.TrimSpace(*patch.AssigneeID)
	}
	if patch.Due != nil {
		after.Due = patch.Due
	}
	if err := validateTask(after); err != nil {
		return model.Task{}, err
	}

	updated, err := s.store.UpdateTask(ctx, after)
	if err != nil {
		return model.Task{}, err
	}
	changes := audit.ChangeSet{}
	if updated.Status != before.Status {
		changes.Status = &audit.StatusChange{From: string(before.Status), To: string(updated.Status)}
	}
	if updated.Progress != before.Progress {
		changes.Progress = &audit.ProgressChange{From: before.Progress, To: updated.Progress}
	}
	s.recorder.Record(ctx, audit.Entry{
		ActorID:   actor.ID,
		Entity:    audit.EntityTask,
		EntityID:  updated.ID,
		Action:    audit.ActionUpdate,
		Detail:    changes,
		ProjectID: updated.ProjectID,
	})
	return updated, nil
}

// DeleteTask removes a task the caller can access. Terrain agents are denied.
func (s *Service) DeleteTask(ctx context.Context, id string) error {
	actor, err := s.actor(ctx)
	if err != nil {
		return err
	}
	if err := s.requireTask(ctx, actor, id); err != nil {
		return err
	}
	if err := gate(actor, access.ActionDeleteTask); err != nil {
		return err
	}
	task, err := s.store.FindTask(ctx, id)
	if err != nil {
		return fmt.Errorf("load task %s: %w", id, err)
	}
	if err := s.store.DeleteTask(ctx, id); err != nil {
		return err
	}
	s.recorder.Record(ctx, audit.Entry{
		ActorID:   actor.ID,
		Entity:    audit.EntityTask,
		EntityID:  id,
		Action:    audit.ActionDelete,
		Detail:    audit.Snapshot{Title: task.Title},
		ProjectID: task.ProjectID,
	})
	return nil
}

// AddComment posts a comment on a task the caller can access. Comments are
// not audited.
func (s *Service) AddComment(ctx context.Context, taskID, body string) (model.Comment, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return model.Comment{}, err
	}
	if err := s.requireTask(ctx, actor, taskID); err != nil {
		return model.Comment{}, err
	}
	if err := gate(actor, access.ActionCreateComment); err != nil {
		return model.Comment{}, err
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return model.Comment{}, invalid("comment body is required")
	}
	return s.store.CreateComment(ctx, model.Comment{
		ID:       ids.New(),
		TaskID:   taskID,
		AuthorID: actor.ID,
		Body:     body,
	})
}

// ListComments returns the comments of a task, oldest first.
func (s *Service) ListComments(ctx context.Context, taskID string) ([]model.Comment, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.requireTask(ctx, actor, taskID); err != nil {
		return nil, err
	}
	return s.store.ListComments(ctx, taskID)
}

func validateTask(t model.Task) error {
	if len([]rune(t.Title)) < minTitleLength {
		return invalid("title must be at least %d characters", minTitleLength)
	}
	if !t.Status.Valid() {
		return invalid("unknown task status %q", t.Status)
	}
	if t.Progress < 0 || t.Progress > 100 {
		return invalid("progress must be between 0 and 100")
	}
	return nil
}
