package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"sitetrack.io/internal/ids"
	"sitetrack.io/internal/model"
)

const taskColumns = `t.id, t.project_id, t.title, t.status, t.progress, coalesce(t.assignee_id, ''), t.due, t.created_at, t.updated_at`

func scanTask(row scanner, extra ...any) (model.Task, error) {
	var (
		t      model.Task
		status string
		due    sql.NullTime
	)
	dest := []any{&t.ID, &t.ProjectID, &t.Title, &status, &t.Progress, &t.AssigneeID, &due, &t.CreatedAt, &t.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return model.Task{}, err
	}
	t.Status = model.TaskStatus(status)
	t.Due = timePtr(due)
	return t, nil
}

func (s *Store) CreateTask(ctx context.Context, t model.Task) (model.Task, error) {
	if t.ID == "" {
		t.ID = ids.New()
	}
	created, err := scanTask(s.db.QueryRowContext(ctx, `
		insert into tasks as t (id, project_id, title, status, progress, assignee_id, due)
		values ($1,$2,$3,$4,$5,$6,$7)
		returning `+taskColumns,
		t.ID, t.ProjectID, t.Title, string(t.Status), t.Progress, nullIfEmpty(t.AssigneeID), nullTime(t.Due)))
	if err != nil {
		return model.Task{}, mapWriteError(err)
	}
	return created, nil
}

func (s *Store) FindTask(ctx context.Context, id string) (model.Task, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx, `select `+taskColumns+` from tasks t where t.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Task{}, model.ErrNotFound
	}
	if err != nil {
		return model.Task{}, err
	}
	return t, nil
}

const taskSummarySelect = `select ` + taskColumns + `, p.title,
	(select count(*) from comments c where c.task_id = t.id)
	from tasks t
	join projects p on p.id = t.project_id`

func (s *Store) queryTaskSummaries(ctx context.Context, query string, args ...any) ([]model.TaskSummary, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.TaskSummary
	for rows.Next() {
		var sum model.TaskSummary
		t, err := scanTask(rows, &sum.ProjectTitle, &sum.CommentCount)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		sum.Task = t
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListTasks returns tasks in scope ordered by due date, undated last.
func (s *Store) ListTasks(ctx context.Context, scope model.TaskScope) ([]model.TaskSummary, error) {
	query := taskSummarySelect
	var (
		args  []any
		conds string
	)
	if scope.AssigneeID != "" {
		args = append(args, scope.AssigneeID)
		conds = "t.assignee_id = $" + strconv.Itoa(len(args))
	}
	if projectWhere, projectArgs := projectScopeSQL(scope.Project, args); projectWhere != "" {
		args = projectArgs
		if conds != "" {
			conds += " or "
		}
		conds += projectWhere
	}
	if conds != "" {
		query += " where " + conds
	}
	query += " order by t.due asc nulls last, t.id asc"
	return s.queryTaskSummaries(ctx, query, args...)
}

// ListProjectTasks returns the tasks of one project, newest first.
func (s *Store) ListProjectTasks(ctx context.Context, projectID string) ([]model.TaskSummary, error) {
	return s.queryTaskSummaries(ctx, taskSummarySelect+` where t.project_id = $1 order by t.created_at desc, t.id desc`, projectID)
}

func (s *Store) UpdateTask(ctx context.Context, t model.Task) (model.Task, error) {
	updated, err := scanTask(s.db.QueryRowContext(ctx, `
		update tasks as t set title = $2, status = $3, progress = $4, assignee_id = $5, due = $6, updated_at = now()
		where t.id = $1
		returning `+taskColumns,
		t.ID, t.Title, string(t.Status), t.Progress, nullIfEmpty(t.AssigneeID), nullTime(t.Due)))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Task{}, model.ErrNotFound
	}
	if err != nil {
		return model.Task{}, mapWriteError(err)
	}
	return updated, nil
}

func (s *Store) DeleteTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from tasks where id = $1`, id)
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

func (s *Store) CreateComment(ctx context.Context, c model.Comment) (model.Comment, error) {
	if c.ID == "" {
		c.ID = ids.New()
	}
	err := s.db.QueryRowContext(ctx, `
		insert into comments (id, task_id, author_id, body)
		values ($1, $2, $3, $4)
		returning created_at
	`, c.ID, c.TaskID, c.AuthorID, c.Body).Scan(&c.CreatedAt)
	if err != nil {
		return model.Comment{}, mapWriteError(err)
	}
	return c, nil
}

// ListComments returns the comments of a task, oldest first.
func (s *Store) ListComments(ctx context.Context, taskID string) ([]model.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, task_id, author_id, body, created_at
		from comments
		where task_id = $1
		order by created_at asc, id asc
	`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Comment
	for rows.Next() {
		var c model.Comment
		if err := rows.Scan(&c.ID, &c.TaskID, &c.AuthorID, &c.Body, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
