package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"sitetrack.io/internal/ids"
	"sitetrack.io/internal/model"
)

func (s *Store) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	if u.ID == "" {
		u.ID = ids.New()
	}
	err := s.db.QueryRowContext(ctx, `
		insert into users (id, email, name, role, password_hash)
		values ($1, lower($2), $3, $4, $5)
		returning email, created_at
	`, u.ID, u.Email, u.Name, string(u.Role), u.PasswordHash).Scan(&u.Email, &u.CreatedAt)
	if err != nil {
		return model.User{}, mapWriteError(err)
	}
	return u, nil
}

func (s *Store) FindUser(ctx context.Context, id string) (model.User, error) {
	var (
		u    model.User
		role string
	)
	err := s.db.QueryRowContext(ctx, `
		select id, email, name, role, password_hash, created_at
		from users
		where id = $1
	`, id).Scan(&u.ID, &u.Email, &u.Name, &role, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, model.ErrNotFound
	}
	if err != nil {
		return model.User{}, err
	}
	u.Role = model.Role(role)
	return u, nil
}

// ListUsers returns users newest first with relationship counts. An empty
// role lists everyone.
func (s *Store) ListUsers(ctx context.Context, role model.Role) ([]model.UserSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		select u.id, u.email, u.name, u.role, u.created_at,
		       (select count(*) from projects p where p.bureau_id = u.id),
		       (select count(*) from project_assignments a where a.user_id = u.id),
		       (select count(*) from tasks t where t.assignee_id = u.id)
		from users u
		where $1 = '' or u.role = $1
		order by u.created_at desc, u.id desc
	`, string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.UserSummary
	for rows.Next() {
		var (
			sum model.UserSummary
			r   string
		)
		if err := rows.Scan(&sum.ID, &sum.Email, &sum.Name, &r, &sum.CreatedAt,
			&sum.BureauProjects, &sum.TerrainProjects, &sum.AssignedTasks); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		sum.Role = model.Role(r)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
