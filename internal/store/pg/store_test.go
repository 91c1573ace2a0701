package pg

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitetrack.io/internal/audit"
	"sitetrack.io/internal/model"
	"sitetrack.io/internal/projects"
)

var _ projects.Store = (*Store)(nil)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return New(db), mock
}

var projectCols = []string{
	"id", "title", "client", "location", "coordinates", "latitude", "longitude",
	"start_date", "end_date", "status", "progress", "description", "budget", "tags",
	"bureau_id", "created_by_id", "created_at", "updated_at", "agents",
}

func projectRow(id string, extra ...driver.Value) []driver.Value {
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	row := []driver.Value{
		id, "Villa Sidi Bou Said", "Client", "Tunis", "", 36.8, 10.18,
		ts, nil, "IN_PROGRESS", int64(40), "", nil, []byte(`["villa"]`),
		"u-bureau", "u-admin", ts, ts, []byte(`["u-a","u-b"]`),
	}
	return append(row, extra...)
}

func TestFindProjectDecodesRow(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("from projects p where p.id = ").
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows(projectCols).AddRow(projectRow("p1")...))

	p, err := s.FindProject(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, model.ProjectInProgress, p.Status)
	assert.Equal(t, 40, p.Progress)
	require.NotNil(t, p.Latitude)
	assert.InDelta(t, 36.8, *p.Latitude, 1e-9)
	assert.Nil(t, p.Budget)
	assert.Nil(t, p.EndDate)
	assert.Equal(t, []string{"villa"}, p.Tags)
	assert.Equal(t, []string{"u-a", "u-b"}, p.TerrainAgentIDs)
	assert.Equal(t, "u-bureau", p.BureauID)
}

func TestFindProjectNotFound(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("from projects p where p.id = ").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(projectCols))

	_, err := s.FindProject(context.Background(), "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestListProjectsScopeBuildsOrClause(t *testing.T) {
	s, mock := newMock(t)
	cols := append(append([]string{}, projectCols...), "task_count", "attachment_count")
	mock.ExpectQuery(`where \(p.bureau_id = \$1 or p.created_by_id = \$1\) or exists .*a.user_id = \$2\) order by p.updated_at desc`).
		WithArgs("u1", "u1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(projectRow("p1", int64(3), int64(1))...))

	out, err := s.ListProjects(context.Background(), model.ProjectScope{BureauOrCreatorID: "u1", AssignedAgentID: "u1"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 3, out[0].TaskCount)
	assert.Equal(t, 1, out[0].AttachmentCount)
}

func TestListProjectsAllHasNoWhere(t *testing.T) {
	s, mock := newMock(t)
	cols := append(append([]string{}, projectCols...), "task_count", "attachment_count")
	mock.ExpectQuery(`from projects p order by p.updated_at desc`).
		WillReturnRows(sqlmock.NewRows(cols))

	out, err := s.ListProjects(context.Background(), model.ProjectScope{})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestCreateProjectWritesAssignmentsInTx(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("insert into projects").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("insert into project_assignments").WithArgs("p1", "u-a").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("insert into project_assignments").WithArgs("p1", "u-b").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectQuery("from projects p where p.id = ").
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows(projectCols).AddRow(projectRow("p1")...))

	p, err := s.CreateProject(context.Background(), model.Project{
		ID: "p1", Title: "Villa", Status: model.ProjectPlanned, CreatedByID: "u-admin",
		TerrainAgentIDs: []string{"u-a", "u-b"},
	})
	require.NoError(t, err)
	assert.Equal(t, "p1", p.ID)
}

func TestCreateProjectUnknownAgentRollsBack(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("insert into projects").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("insert into project_assignments").
		WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation, ConstraintName: "project_assignments_user_id_fkey"})
	mock.ExpectRollback()

	_, err := s.CreateProject(context.Background(), model.Project{
		ID: "p1", Title: "Villa", Status: model.ProjectPlanned, CreatedByID: "u-admin",
		TerrainAgentIDs: []string{"ghost"},
	})
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestUpdateProjectReplacesAssignments(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("update projects set").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("delete from project_assignments").WithArgs("p1").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("insert into project_assignments").WithArgs("p1", "u-c").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectQuery("from projects p where p.id = ").
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows(projectCols).AddRow(projectRow("p1")...))

	_, err := s.UpdateProject(context.Background(), model.Project{ID: "p1", Title: "Villa", Status: model.ProjectPlanned, TerrainAgentIDs: []string{"u-c"}}, true)
	require.NoError(t, err)
}

func TestUpdateProjectMissingRow(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("update projects set").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := s.UpdateProject(context.Background(), model.Project{ID: "p1", Title: "Villa"}, false)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestDeleteProjectNotFound(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec("delete from projects").WithArgs("p1").WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, s.DeleteProject(context.Background(), "p1"), model.ErrNotFound)
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("insert into users").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation, ConstraintName: "users_email_key"})

	_, err := s.CreateUser(context.Background(), model.User{Email: "a@b.tn", Name: "A", Role: model.RoleBureau, PasswordHash: "x"})
	assert.ErrorIs(t, err, model.ErrConflict)
}

func TestFindUserNotFound(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("from users").WithArgs("nobody").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name", "role", "password_hash", "created_at"}))

	_, err := s.FindUser(context.Background(), "nobody")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestListUsersFiltersByRole(t *testing.T) {
	s, mock := newMock(t)
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("from users u").WithArgs("TERRAIN").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name", "role", "created_at", "b", "t", "a"}).
			AddRow("u1", "t@site.tn", "Terrain", "TERRAIN", ts, int64(0), int64(2), int64(5)))

	out, err := s.ListUsers(context.Background(), model.RoleTerrain)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, model.RoleTerrain, out[0].Role)
	assert.Equal(t, 2, out[0].TerrainProjects)
	assert.Equal(t, 5, out[0].AssignedTasks)
}

func TestListTasksCombinesAssigneeAndProjectScope(t *testing.T) {
	s, mock := newMock(t)
	ts := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	cols := []string{"id", "project_id", "title", "status", "progress", "assignee_id", "due", "created_at", "updated_at", "project_title", "comment_count"}
	mock.ExpectQuery(`where t.assignee_id = \$1 or exists .*a.user_id = \$2\) order by t.due asc nulls last, t.id asc`).
		WithArgs("u-t", "u-t").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("t1", "p1", "Coffrage", "TODO", int64(0), "u-t", ts, ts, ts, "Villa", int64(2)).
			AddRow("t2", "p1", "Dalle", "DOING", int64(50), "", nil, ts, ts, "Villa", int64(0)))

	out, err := s.ListTasks(context.Background(), model.TaskScope{AssigneeID: "u-t", Project: model.ProjectScope{AssignedAgentID: "u-t"}})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "Villa", out[0].ProjectTitle)
	assert.Equal(t, 2, out[0].CommentCount)
	assert.NotNil(t, out[0].Due)
	assert.Nil(t, out[1].Due)
	assert.Empty(t, out[1].AssigneeID)
}

func TestCreateTaskUnknownProject(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("insert into tasks").
		WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation})

	_, err := s.CreateTask(context.Background(), model.Task{ProjectID: "ghost", Title: "x", Status: model.TaskTodo})
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestAuditRoundTrip(t *testing.T) {
	s, mock := newMock(t)
	ts := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	entry := audit.Entry{
		ID: "a1", ActorID: "u1", Entity: audit.EntityProject, EntityID: "p1", Action: audit.ActionUpdate,
		Detail:    audit.ChangeSet{Progress: &audit.ProgressChange{From: 10, To: 40}},
		ProjectID: "p1", CreatedAt: ts,
	}
	detail, err := audit.EncodeDetail(entry.Detail)
	require.NoError(t, err)

	mock.ExpectExec("insert into audit_logs").
		WithArgs("a1", "u1", "Project", "p1", "UPDATE", detail, sqlmock.AnyArg(), ts).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, s.AppendAudit(context.Background(), entry))

	mock.ExpectQuery("from audit_logs").WithArgs("p1", 20).
		WillReturnRows(sqlmock.NewRows([]string{"id", "actor_id", "entity", "entity_id", "action", "detail", "project_id", "created_at"}).
			AddRow("a1", "u1", "Project", "p1", "UPDATE", detail, "p1", ts))
	out, err := s.ListAudit(context.Background(), "p1", 20)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, audit.ActionUpdate, out[0].Action)
	cs, ok := out[0].Detail.(audit.ChangeSet)
	require.True(t, ok)
	require.NotNil(t, cs.Progress)
	assert.Equal(t, 40, cs.Progress.To)
}
