package projects

import (
	"context"
	"net/mail"
	"strings"

	"sitetrack.io/internal/access"
	"sitetrack.io/internal/audit"
	"sitetrack.io/internal/auth"
	"sitetrack.io/internal/ids"
	"sitetrack.io/internal/model"
)

const minNameLength = 2

// UserInput carries the fields of a new account.
type UserInput struct {
	Email    string
	Password string
	Name     string
	Role     string
}

// ListUsers returns every user, newest first, optionally narrowed to a role.
// Admin only.
func (s *Service) ListUsers(ctx context.Context, role string) ([]model.UserSummary, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	if err := gate(actor, access.ActionManageUsers); err != nil {
		return nil, err
	}
	var filter model.Role
	if strings.TrimSpace(role) != "" {
		r, ok := model.ParseRole(role)
		if !ok {
			return nil, invalid("unknown role %q", role)
		}
		filter = r
	}
	return s.store.ListUsers(ctx, filter)
}

// CreateUser registers an account. Admin only; emails are unique.
func (s *Service) CreateUser(ctx context.Context, in UserInput) (model.User, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return model.User{}, err
	}
	if err := gate(actor, access.ActionManageUsers); err != nil {
		return model.User{}, err
	}

	addr, err := mail.ParseAddress(strings.TrimSpace(in.Email))
	if err != nil || addr.Name != "" {
		return model.User{}, invalid("email is not valid")
	}
	name := strings.TrimSpace(in.Name)
	if len([]rune(name)) < minNameLength {
		return model.User{}, invalid("name must be at least %d characters", minNameLength)
	}
	if len(in.Password) < auth.MinPasswordLength {
		return model.User{}, invalid("password must be at least %d characters", auth.MinPasswordLength)
	}
	role, ok := model.ParseRole(in.Role)
	if !ok {
		return model.User{}, invalid("unknown role %q", in.Role)
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return model.User{}, err
	}

	created, err := s.store.CreateUser(ctx, model.User{
		ID:           ids.New(),
		Email:        strings.ToLower(addr.Address),
		Name:         name,
		Role:         role,
		PasswordHash: hash,
	})
	if err != nil {
		return model.User{}, err
	}
	s.recorder.Record(ctx, audit.Entry{
		ActorID:  actor.ID,
		Entity:   audit.EntityUser,
		EntityID: created.ID,
		Action:   audit.ActionCreate,
		Detail:   audit.Snapshot{Title: created.Email},
	})
	return created, nil
}
