package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"sitetrack.io/internal/ids"
	"sitetrack.io/internal/model"
)

const projectColumns = `
	p.id, p.title, p.client, p.location, p.coordinates, p.latitude, p.longitude,
	p.start_date, p.end_date, p.status, p.progress, p.description, p.budget, p.tags,
	coalesce(p.bureau_id, ''), p.created_by_id, p.created_at, p.updated_at,
	coalesce((select json_agg(a.user_id order by a.user_id)
	          from project_assignments a where a.project_id = p.id), '[]'::json)`

func scanProject(row scanner, extra ...any) (model.Project, error) {
	var (
		p                 model.Project
		lat, lng, budget  sql.NullFloat64
		start, end        sql.NullTime
		status            string
		rawTags, rawAgent []byte
	)
	dest := []any{
		&p.ID, &p.Title, &p.Client, &p.Location, &p.Coordinates, &lat, &lng,
		&start, &end, &status, &p.Progress, &p.Description, &budget, &rawTags,
		&p.BureauID, &p.CreatedByID, &p.CreatedAt, &p.UpdatedAt, &rawAgent,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return model.Project{}, err
	}
	p.Latitude, p.Longitude, p.Budget = floatPtr(lat), floatPtr(lng), floatPtr(budget)
	p.StartDate, p.EndDate = timePtr(start), timePtr(end)
	p.Status = model.ProjectStatus(status)
	if len(rawTags) > 0 {
		if err := json.Unmarshal(rawTags, &p.Tags); err != nil {
			return model.Project{}, fmt.Errorf("decode tags: %w", err)
		}
	}
	p.TerrainAgentIDs = []string{}
	if len(rawAgent) > 0 {
		if err := json.Unmarshal(rawAgent, &p.TerrainAgentIDs); err != nil {
			return model.Project{}, fmt.Errorf("decode assignments: %w", err)
		}
	}
	return p, nil
}

func encodeTags(tags []string) ([]byte, error) {
	if tags == nil {
		tags = []string{}
	}
	return json.Marshal(tags)
}

// CreateProject inserts the project and its assignments in one transaction.
func (s *Store) CreateProject(ctx context.Context, p model.Project) (model.Project, error) {
	if p.ID == "" {
		p.ID = ids.New()
	}
	tags, err := encodeTags(p.Tags)
	if err != nil {
		return model.Project{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Project{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into projects (id, title, client, location, coordinates, latitude, longitude,
			start_date, end_date, status, progress, description, budget, tags, bureau_id, created_by_id)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`, p.ID, p.Title, p.Client, p.Location, p.Coordinates, nullFloat(p.Latitude), nullFloat(p.Longitude),
		nullTime(p.StartDate), nullTime(p.EndDate), string(p.Status), p.Progress, p.Description,
		nullFloat(p.Budget), tags, nullIfEmpty(p.BureauID), p.CreatedByID); err != nil {
		return model.Project{}, mapWriteError(err)
	}
	if err := insertAssignments(ctx, tx, p.ID, p.TerrainAgentIDs); err != nil {
		return model.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Project{}, err
	}
	return s.FindProject(ctx, p.ID)
}

func insertAssignments(ctx context.Context, tx *sql.Tx, projectID string, userIDs []string) error {
	for _, userID := range userIDs {
		if _, err := tx.ExecContext(ctx, `
			insert into project_assignments (project_id, user_id)
			values ($1, $2)
			on conflict do nothing
		`, projectID, userID); err != nil {
			return mapWriteError(err)
		}
	}
	return nil
}

func (s *Store) FindProject(ctx context.Context, id string) (model.Project, error) {
	p, err := scanProject(s.db.QueryRowContext(ctx, `select `+projectColumns+` from projects p where p.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Project{}, model.ErrNotFound
	}
	if err != nil {
		return model.Project{}, err
	}
	return p, nil
}

// projectScopeSQL renders scope as a where clause over alias p. Placeholders
// are numbered from len(args)+1.
func projectScopeSQL(scope model.ProjectScope, args []any) (string, []any) {
	var conds []string
	if id := scope.BureauOrCreatorID; id != "" {
		args = append(args, id)
		n := strconv.Itoa(len(args))
		conds = append(conds, "(p.bureau_id = $"+n+" or p.created_by_id = $"+n+")")
	}
	if id := scope.AssignedAgentID; id != "" {
		args = append(args, id)
		conds = append(conds, "exists (select 1 from project_assignments a where a.project_id = p.id and a.user_id = $"+strconv.Itoa(len(args))+")")
	}
	return strings.Join(conds, " or "), args
}

// ListProjects returns projects in scope, most recently updated first.
func (s *Store) ListProjects(ctx context.Context, scope model.ProjectScope) ([]model.ProjectSummary, error) {
	query := `select ` + projectColumns + `,
		(select count(*) from tasks t where t.project_id = p.id),
		(select count(*) from attachments f where f.project_id = p.id)
		from projects p`
	where, args := projectScopeSQL(scope, nil)
	if where != "" {
		query += " where " + where
	}
	query += " order by p.updated_at desc, p.id desc"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ProjectSummary
	for rows.Next() {
		var sum model.ProjectSummary
		p, err := scanProject(rows, &sum.TaskCount, &sum.AttachmentCount)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		sum.Project = p
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateProject writes the mutable columns and, when replaceAgents is set,
// replaces the assignment rows in the same transaction.
func (s *Store) UpdateProject(ctx context.Context, p model.Project, replaceAgents bool) (model.Project, error) {
	tags, err := encodeTags(p.Tags)
	if err != nil {
		return model.Project{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Project{}, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update projects set
			title = $2, client = $3, location = $4, coordinates = $5, latitude = $6, longitude = $7,
			start_date = $8, end_date = $9, status = $10, progress = $11, description = $12,
			budget = $13, tags = $14, bureau_id = $15, updated_at = now()
		where id = $1
	`, p.ID, p.Title, p.Client, p.Location, p.Coordinates, nullFloat(p.Latitude), nullFloat(p.Longitude),
		nullTime(p.StartDate), nullTime(p.EndDate), string(p.Status), p.Progress, p.Description,
		nullFloat(p.Budget), tags, nullIfEmpty(p.BureauID))
	if err != nil {
		return model.Project{}, mapWriteError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return model.Project{}, model.ErrNotFound
	}
	if replaceAgents {
		if _, err := tx.ExecContext(ctx, `delete from project_assignments where project_id = $1`, p.ID); err != nil {
			return model.Project{}, err
		}
		if err := insertAssignments(ctx, tx, p.ID, p.TerrainAgentIDs); err != nil {
			return model.Project{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return model.Project{}, err
	}
	return s.FindProject(ctx, p.ID)
}

// DeleteProject removes the project. Tasks, comments, attachments and
// assignments cascade; audit rows are kept.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from projects where id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}
