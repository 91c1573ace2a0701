// Package memory is an in-process implementation of the tracking store used by
// tests and local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"sitetrack.io/internal/audit"
	"sitetrack.io/internal/ids"
	"sitetrack.io/internal/model"
)

// Store keeps every record in maps guarded by a single RWMutex. Values are
// copied on the way in and out.
type Store struct {
	mu       sync.RWMutex
	now      func() time.Time
	users    map[string]model.User
	projects map[string]model.Project
	tasks    map[string]model.Task
	comments map[string]model.Comment
	audit    []audit.Entry
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		now:      time.Now,
		users:    make(map[string]model.User),
		projects: make(map[string]model.Project),
		tasks:    make(map[string]model.Task),
		comments: make(map[string]model.Comment),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) timestamp() time.Time { return s.now().UTC() }

// --- users ---

func (s *Store) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return model.User{}, fmt.Errorf("%w: email already registered", model.ErrConflict)
		}
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	if _, ok := s.users[u.ID]; ok {
		return model.User{}, fmt.Errorf("%w: user id already exists", model.ErrConflict)
	}
	u.CreatedAt = s.timestamp()
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) FindUser(ctx context.Context, id string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return model.User{}, model.ErrNotFound
	}
	return u, nil
}

// ListUsers returns users newest first, optionally filtered by role.
func (s *Store) ListUsers(ctx context.Context, role model.Role) ([]model.UserSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.UserSummary
	for _, u := range s.users {
		if role != "" && u.Role != role {
			continue
		}
		sum := model.UserSummary{User: u}
		for _, p := range s.projects {
			if p.BureauID == u.ID {
				sum.BureauProjects++
			}
			if p.HasAgent(u.ID) {
				sum.TerrainProjects++
			}
		}
		for _, t := range s.tasks {
			if t.AssigneeID == u.ID {
				sum.AssignedTasks++
			}
		}
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// --- projects ---

func (s *Store) CreateProject(ctx context.Context, p model.Project) (model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = ids.New()
	}
	if _, ok := s.projects[p.ID]; ok {
		return model.Project{}, fmt.Errorf("%w: project id already exists", model.ErrConflict)
	}
	if err := s.checkProjectRefs(p); err != nil {
		return model.Project{}, err
	}
	now := s.timestamp()
	p.CreatedAt, p.UpdatedAt = now, now
	p.TerrainAgentIDs = dedupe(p.TerrainAgentIDs)
	p = cloneProject(p)
	s.projects[p.ID] = p
	return cloneProject(p), nil
}

func (s *Store) FindProject(ctx context.Context, id string) (model.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return model.Project{}, model.ErrNotFound
	}
	return cloneProject(p), nil
}

// ListProjects returns projects matching scope, most recently updated first.
func (s *Store) ListProjects(ctx context.Context, scope model.ProjectScope) ([]model.ProjectSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.ProjectSummary
	for _, p := range s.projects {
		if !scope.Matches(p) {
			continue
		}
		sum := model.ProjectSummary{Project: cloneProject(p)}
		for _, t := range s.tasks {
			if t.ProjectID == p.ID {
				sum.TaskCount++
			}
		}
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// UpdateProject overwrites the mutable fields of p. Assignments are replaced
// only when replaceAgents is set.
func (s *Store) UpdateProject(ctx context.Context, p model.Project, replaceAgents bool) (model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.projects[p.ID]
	if !ok {
		return model.Project{}, model.ErrNotFound
	}
	if !replaceAgents {
		p.TerrainAgentIDs = current.TerrainAgentIDs
	}
	p.TerrainAgentIDs = dedupe(p.TerrainAgentIDs)
	if err := s.checkProjectRefs(p); err != nil {
		return model.Project{}, err
	}
	p.CreatedByID = current.CreatedByID
	p.CreatedAt = current.CreatedAt
	p.UpdatedAt = s.timestamp()
	s.projects[p.ID] = cloneProject(p)
	return cloneProject(p), nil
}

// DeleteProject removes the project with its tasks, comments and assignments.
// Audit entries are kept.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[id]; !ok {
		return model.ErrNotFound
	}
	delete(s.projects, id)
	for tid, t := range s.tasks {
		if t.ProjectID == id {
			s.deleteTaskLocked(tid)
		}
	}
	return nil
}

func (s *Store) checkProjectRefs(p model.Project) error {
	if p.CreatedByID != "" {
		if _, ok := s.users[p.CreatedByID]; !ok {
			return fmt.Errorf("%w: unknown creator %s", model.ErrInvalidInput, p.CreatedByID)
		}
	}
	if p.BureauID != "" {
		if _, ok := s.users[p.BureauID]; !ok {
			return fmt.Errorf("%w: unknown bureau user %s", model.ErrInvalidInput, p.BureauID)
		}
	}
	for _, id := range p.TerrainAgentIDs {
		if _, ok := s.users[id]; !ok {
			return fmt.Errorf("%w: unknown terrain agent %s", model.ErrInvalidInput, id)
		}
	}
	return nil
}

// --- tasks ---

func (s *Store) CreateTask(ctx context.Context, t model.Task) (model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = ids.New()
	}
	if _, ok := s.tasks[t.ID]; ok {
		return model.Task{}, fmt.Errorf("%w: task id already exists", model.ErrConflict)
	}
	if err := s.checkTaskRefs(t); err != nil {
		return model.Task{}, err
	}
	now := s.timestamp()
	t.CreatedAt, t.UpdatedAt = now, now
	s.tasks[t.ID] = cloneTask(t)
	return cloneTask(t), nil
}

func (s *Store) FindTask(ctx context.Context, id string) (model.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return model.Task{}, model.ErrNotFound
	}
	return cloneTask(t), nil
}

// ListTasks returns tasks matching scope ordered by due date, undated last.
func (s *Store) ListTasks(ctx context.Context, scope model.TaskScope) ([]model.TaskSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.TaskSummary
	for _, t := range s.tasks {
		p := s.projects[t.ProjectID]
		if !scope.Matches(t, p) {
			continue
		}
		out = append(out, s.taskSummaryLocked(t, p))
	}
	sort.Slice(out, func(i, j int) bool { return dueBefore(out[i].Task, out[j].Task) })
	return out, nil
}

// ListProjectTasks returns the tasks of one project, newest first.
func (s *Store) ListProjectTasks(ctx context.Context, projectID string) ([]model.TaskSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p := s.projects[projectID]
	var out []model.TaskSummary
	for _, t := range s.tasks {
		if t.ProjectID == projectID {
			out = append(out, s.taskSummaryLocked(t, p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Store) UpdateTask(ctx context.Context, t model.Task) (model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.tasks[t.ID]
	if !ok {
		return model.Task{}, model.ErrNotFound
	}
	t.ProjectID = current.ProjectID
	if err := s.checkTaskRefs(t); err != nil {
		return model.Task{}, err
	}
	t.CreatedAt = current.CreatedAt
	t.UpdatedAt = s.timestamp()
	s.tasks[t.ID] = cloneTask(t)
	return cloneTask(t), nil
}

func (s *Store) DeleteTask(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return model.ErrNotFound
	}
	s.deleteTaskLocked(id)
	return nil
}

func (s *Store) deleteTaskLocked(id string) {
	delete(s.tasks, id)
	for cid, c := range s.comments {
		if c.TaskID == id {
			delete(s.comments, cid)
		}
	}
}

func (s *Store) checkTaskRefs(t model.Task) error {
	if _, ok := s.projects[t.ProjectID]; !ok {
		return fmt.Errorf("%w: unknown project %s", model.ErrInvalidInput, t.ProjectID)
	}
	if t.AssigneeID != "" {
		if _, ok := s.users[t.AssigneeID]; !ok {
			return fmt.Errorf("%w: unknown assignee %s", model.ErrInvalidInput, t.AssigneeID)
		}
	}
	return nil
}

func (s *Store) taskSummaryLocked(t model.Task, p model.Project) model.TaskSummary {
	sum := model.TaskSummary{Task: cloneTask(t), ProjectTitle: p.Title}
	for _, c := range s.comments {
		if c.TaskID == t.ID {
			sum.CommentCount++
		}
	}
	return sum
}

// --- comments ---

func (s *Store) CreateComment(ctx context.Context, c model.Comment) (model.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[c.TaskID]; !ok {
		return model.Comment{}, fmt.Errorf("%w: unknown task %s", model.ErrInvalidInput, c.TaskID)
	}
	if _, ok := s.users[c.AuthorID]; !ok {
		return model.Comment{}, fmt.Errorf("%w: unknown author %s", model.ErrInvalidInput, c.AuthorID)
	}
	if c.ID == "" {
		c.ID = ids.New()
	}
	c.CreatedAt = s.timestamp()
	s.comments[c.ID] = c
	return c, nil
}

// ListComments returns the comments of a task, oldest first.
func (s *Store) ListComments(ctx context.Context, taskID string) ([]model.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Comment
	for _, c := range s.comments {
		if c.TaskID == taskID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// --- audit ---

func (s *Store) AppendAudit(ctx context.Context, e audit.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, e)
	return nil
}

// ListAudit returns up to limit entries for projectID, newest first.
func (s *Store) ListAudit(ctx context.Context, projectID string, limit int) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Entry
	for i := len(s.audit) - 1; i >= 0; i-- {
		if s.audit[i].ProjectID != projectID {
			continue
		}
		out = append(out, s.audit[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// --- helpers ---

func dueBefore(a, b model.Task) bool {
	switch {
	case a.Due == nil && b.Due == nil:
	case a.Due == nil:
		return false
	case b.Due == nil:
		return true
	case !a.Due.Equal(*b.Due):
		return a.Due.Before(*b.Due)
	}
	return a.ID < b.ID
}

func cloneProject(p model.Project) model.Project {
	p.Latitude = cloneFloat(p.Latitude)
	p.Longitude = cloneFloat(p.Longitude)
	p.Budget = cloneFloat(p.Budget)
	p.StartDate = cloneTime(p.StartDate)
	p.EndDate = cloneTime(p.EndDate)
	p.Tags = append([]string(nil), p.Tags...)
	p.TerrainAgentIDs = append([]string{}, p.TerrainAgentIDs...)
	return p
}

func cloneTask(t model.Task) model.Task {
	t.Due = cloneTime(t.Due)
	return t
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
