// Package projects implements the request-handling core of the tracker: each
// operation resolves the caller, checks access, applies the role gate,
// mutates the store and records an audit entry.
package projects

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sitetrack.io/internal/access"
	"sitetrack.io/internal/audit"
	"sitetrack.io/internal/auth"
	"sitetrack.io/internal/model"
	"sitetrack.io/internal/stream"
)

// Store is the persistence collaborator of the service.
type Store interface {
	access.Store
	audit.Store

	CreateUser(ctx context.Context, u model.User) (model.User, error)
	ListUsers(ctx context.Context, role model.Role) ([]model.UserSummary, error)

	CreateProject(ctx context.Context, p model.Project) (model.Project, error)
	UpdateProject(ctx context.Context, p model.Project, replaceAgents bool) (model.Project, error)
	DeleteProject(ctx context.Context, id string) error

	ListProjectTasks(ctx context.Context, projectID string) ([]model.TaskSummary, error)
	CreateTask(ctx context.Context, t model.Task) (model.Task, error)
	UpdateTask(ctx context.Context, t model.Task) (model.Task, error)
	DeleteTask(ctx context.Context, id string) error

	CreateComment(ctx context.Context, c model.Comment) (model.Comment, error)
	ListComments(ctx context.Context, taskID string) ([]model.Comment, error)
}

// Publisher receives map marker changes.
type Publisher interface {
	Publish(evt stream.Event)
}

// Service wires the access resolver, the store and the audit recorder.
type Service struct {
	store    Store
	resolver *access.Resolver
	recorder *audit.Recorder
	feed     Publisher
	now      func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithPublisher routes marker changes to p.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.feed = p }
}

// WithRecorder overrides the audit recorder. By default entries go to the store.
func WithRecorder(r *audit.Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithClock overrides the clock used for dashboard due dates.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService builds a Service over store.
func NewService(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("projects store is required")
	}
	resolver, err := access.NewResolver(store)
	if err != nil {
		return nil, err
	}
	s := &Service{
		store:    store,
		resolver: resolver,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.recorder == nil {
		s.recorder = audit.NewRecorder(store)
	}
	return s, nil
}

// Resolver exposes the access resolver used by the service.
func (s *Service) Resolver() *access.Resolver { return s.resolver }

// actor loads the authenticated user. The role is always taken from the
// store, never from the token.
func (s *Service) actor(ctx context.Context) (model.User, error) {
	id, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return model.User{}, model.ErrUnauthenticated
	}
	user, err := s.store.FindUser(ctx, id.UserID)
	if errors.Is(err, model.ErrNotFound) {
		return model.User{}, model.ErrUnauthenticated
	}
	if err != nil {
		return model.User{}, fmt.Errorf("load actor: %w", err)
	}
	return user, nil
}

// denied converts a failed access check into an error. An admin can only
// fail a check when the record is missing.
func denied(actor model.User, kind, id string) error {
	if actor.Role == model.RoleAdmin {
		return fmt.Errorf("%w: %s %s", model.ErrNotFound, kind, id)
	}
	return fmt.Errorf("%w: no access to %s %s", model.ErrForbidden, kind, id)
}

func gate(actor model.User, action access.Action) error {
	if !access.Permits(actor.Role, action) {
		return fmt.Errorf("%w: %s is not allowed for role %s", model.ErrForbidden, action, actor.Role)
	}
	return nil
}

func (s *Service) requireProject(ctx context.Context, actor model.User, projectID string) error {
	ok, err := s.resolver.CanAccessProject(ctx, actor.ID, projectID)
	if err != nil {
		return err
	}
	if !ok {
		return denied(actor, "project", projectID)
	}
	return nil
}

func (s *Service) requireTask(ctx context.Context, actor model.User, taskID string) error {
	ok, err := s.resolver.CanAccessTask(ctx, actor.ID, taskID)
	if err != nil {
		return err
	}
	if !ok {
		return denied(actor, "task", taskID)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{model.ErrInvalidInput}, args...)...)
}
