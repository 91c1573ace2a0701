package access_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitetrack.io/internal/access"
	"sitetrack.io/internal/model"
	"sitetrack.io/internal/store/memory"
)

type world struct {
	store *memory.Store
	users map[string]model.User
	// projects by fixture name
	projects map[string]model.Project
	tasks    map[string]model.Task
}

func tickingClock() func() time.Time {
	t := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Minute)
		return t
	}
}

func day(d int) *time.Time {
	t := time.Date(2024, 6, d, 12, 0, 0, 0, time.UTC)
	return &t
}

// newWorld builds users of every role and projects covering each
// relationship disjunct.
func newWorld(t *testing.T) *world {
	t.Helper()
	ctx := context.Background()
	st := memory.New(memory.WithClock(tickingClock()))
	w := &world{store: st, users: map[string]model.User{}, projects: map[string]model.Project{}, tasks: map[string]model.Task{}}

	for name, role := range map[string]model.Role{
		"admin":    model.RoleAdmin,
		"bureauA":  model.RoleBureau,
		"bureauB":  model.RoleBureau,
		"terrainA": model.RoleTerrain,
		"terrainB": model.RoleTerrain,
		"guest":    model.Role("GUEST"),
	} {
		u, err := st.CreateUser(ctx, model.User{ID: name, Email: name + "@example.com", Name: name, Role: role})
		require.NoError(t, err)
		w.users[name] = u
	}

	addProject := func(name string, p model.Project) {
		p.ID = name
		p.Title = name
		p.Status = model.ProjectPlanned
		created, err := st.CreateProject(ctx, p)
		require.NoError(t, err)
		w.projects[name] = created
	}
	// bureauA is bureau only.
	addProject("p-bureau", model.Project{CreatedByID: "admin", BureauID: "bureauA", TerrainAgentIDs: []string{"terrainA"}})
	// bureauA is creator only.
	addProject("p-creator", model.Project{CreatedByID: "bureauA", BureauID: "bureauB"})
	// bureauA is both.
	addProject("p-both", model.Project{CreatedByID: "bureauA", BureauID: "bureauA"})
	// terrainB created it but holds no assignment.
	addProject("p-terrain-creator", model.Project{CreatedByID: "terrainB", TerrainAgentIDs: []string{"terrainA"}})
	// nobody but admin.
	addProject("p-orphan", model.Project{CreatedByID: "admin"})

	addTask := func(name, projectID, assignee string, due *time.Time) {
		created, err := st.CreateTask(ctx, model.Task{ID: name, ProjectID: projectID, Title: name, Status: model.TaskTodo, AssigneeID: assignee, Due: due})
		require.NoError(t, err)
		w.tasks[name] = created
	}
	addTask("t-bureau", "p-bureau", "", day(10))
	addTask("t-orphan-bureauB", "p-orphan", "bureauB", day(3))
	addTask("t-orphan-terrainB", "p-orphan", "terrainB", nil)
	addTask("t-creator", "p-creator", "terrainA", day(5))
	addTask("t-terrain-creator", "p-terrain-creator", "", nil)
	return w
}

func newResolver(t *testing.T, st access.Store) *access.Resolver {
	t.Helper()
	r, err := access.NewResolver(st)
	require.NoError(t, err)
	return r
}

func TestNewResolverRequiresStore(t *testing.T) {
	_, err := access.NewResolver(nil)
	require.Error(t, err)
}

func TestAdminAccessesEveryProject(t *testing.T) {
	w := newWorld(t)
	r := newResolver(t, w.store)
	for id := range w.projects {
		ok, err := r.CanAccessProject(context.Background(), "admin", id)
		require.NoError(t, err)
		assert.True(t, ok, "admin should access %s", id)
	}
}

func TestMissingRecordsFailClosed(t *testing.T) {
	w := newWorld(t)
	r := newResolver(t, w.store)
	ctx := context.Background()

	ok, err := r.CanAccessProject(ctx, "admin", "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = r.CanAccessProject(ctx, "ghost", "p-orphan")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = r.CanAccessProject(ctx, "", "p-orphan")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = r.CanAccessTask(ctx, "admin", "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	projects, err := r.ListVisibleProjects(ctx, "ghost")
	require.NoError(t, err)
	assert.Empty(t, projects)

	tasks, err := r.ListVisibleTasks(ctx, "ghost")
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestBureauPredicate(t *testing.T) {
	w := newWorld(t)
	r := newResolver(t, w.store)
	cases := map[string]bool{
		"p-bureau":          true,  // bureau disjunct
		"p-creator":         true,  // creator disjunct
		"p-both":            true,  // both
		"p-terrain-creator": false, // neither
		"p-orphan":          false,
	}
	for id, want := range cases {
		ok, err := r.CanAccessProject(context.Background(), "bureauA", id)
		require.NoError(t, err)
		assert.Equal(t, want, ok, "bureauA on %s", id)

		p := w.projects[id]
		assert.Equal(t, p.BureauID == "bureauA" || p.CreatedByID == "bureauA", ok, "predicate on %s", id)
	}
}

func TestTerrainPredicate(t *testing.T) {
	w := newWorld(t)
	r := newResolver(t, w.store)
	ctx := context.Background()

	for id, p := range w.projects {
		for _, user := range []string{"terrainA", "terrainB"} {
			ok, err := r.CanAccessProject(ctx, user, id)
			require.NoError(t, err)
			assert.Equal(t, p.HasAgent(user), ok, "%s on %s", user, id)
		}
	}

	ok, err := r.CanAccessProject(ctx, "terrainB", "p-terrain-creator")
	require.NoError(t, err)
	assert.False(t, ok, "creating a project grants a terrain agent nothing")
}

func TestUnknownRoleIsDenied(t *testing.T) {
	w := newWorld(t)
	r := newResolver(t, w.store)
	ctx := context.Background()
	for id := range w.projects {
		ok, err := r.CanAccessProject(ctx, "guest", id)
		require.NoError(t, err)
		assert.False(t, ok)
	}
	projects, err := r.ListVisibleProjects(ctx, "guest")
	require.NoError(t, err)
	assert.Empty(t, projects)
	tasks, err := r.ListVisibleTasks(ctx, "guest")
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestTaskAccessDelegatesToProject(t *testing.T) {
	w := newWorld(t)
	r := newResolver(t, w.store)
	ctx := context.Background()
	for userID := range w.users {
		for taskID, task := range w.tasks {
			taskOK, err := r.CanAccessTask(ctx, userID, taskID)
			require.NoError(t, err)
			projectOK, err := r.CanAccessProject(ctx, userID, task.ProjectID)
			require.NoError(t, err)
			assert.Equal(t, projectOK, taskOK, "%s on %s", userID, taskID)
		}
	}
}

func TestListVisibleProjectsMatchesPointChecks(t *testing.T) {
	w := newWorld(t)
	r := newResolver(t, w.store)
	ctx := context.Background()
	for userID := range w.users {
		listed, err := r.ListVisibleProjects(ctx, userID)
		require.NoError(t, err)
		seen := map[string]bool{}
		for _, p := range listed {
			seen[p.ID] = true
		}
		for projectID := range w.projects {
			ok, err := r.CanAccessProject(ctx, userID, projectID)
			require.NoError(t, err)
			assert.Equal(t, ok, seen[projectID], "%s listing vs point check on %s", userID, projectID)
		}
	}
}

func TestListVisibleProjectsOrderAndCounts(t *testing.T) {
	w := newWorld(t)
	r := newResolver(t, w.store)
	listed, err := r.ListVisibleProjects(context.Background(), "admin")
	require.NoError(t, err)
	require.Len(t, listed, len(w.projects))
	for i := 1; i < len(listed); i++ {
		assert.False(t, listed[i].UpdatedAt.After(listed[i-1].UpdatedAt), "not ordered by updated_at desc")
	}
	assert.Equal(t, "p-orphan", listed[0].ID)
	for _, p := range listed {
		if p.ID == "p-orphan" {
			assert.Equal(t, 2, p.TaskCount)
		}
	}
}

func taskIDs(tasks []model.TaskSummary) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return out
}

func TestListVisibleTasks(t *testing.T) {
	w := newWorld(t)
	r := newResolver(t, w.store)
	ctx := context.Background()

	all, err := r.ListVisibleTasks(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, []string{"t-orphan-bureauB", "t-creator", "t-bureau", "t-orphan-terrainB", "t-terrain-creator"}, taskIDs(all))

	// bureauB owns nothing but p-creator as bureau, and is assigned a task on p-orphan.
	bureauB, err := r.ListVisibleTasks(ctx, "bureauB")
	require.NoError(t, err)
	assert.Equal(t, []string{"t-orphan-bureauB", "t-creator"}, taskIDs(bureauB))

	ok, err := r.CanAccessTask(ctx, "bureauB", "t-orphan-bureauB")
	require.NoError(t, err)
	assert.False(t, ok, "listing widening must not leak into point checks")

	// terrainA sees every task of assigned projects plus its own assignment elsewhere.
	terrainA, err := r.ListVisibleTasks(ctx, "terrainA")
	require.NoError(t, err)
	assert.Equal(t, []string{"t-creator", "t-bureau", "t-terrain-creator"}, taskIDs(terrainA))

	// terrainB only sees the task assigned to it.
	terrainB, err := r.ListVisibleTasks(ctx, "terrainB")
	require.NoError(t, err)
	assert.Equal(t, []string{"t-orphan-terrainB"}, taskIDs(terrainB))
}

func TestTaskSummaryProjection(t *testing.T) {
	w := newWorld(t)
	r := newResolver(t, w.store)
	_, err := w.store.CreateComment(context.Background(), model.Comment{TaskID: "t-bureau", AuthorID: "bureauA", Body: "ok"})
	require.NoError(t, err)

	tasks, err := r.ListVisibleTasks(context.Background(), "bureauA")
	require.NoError(t, err)
	for _, task := range tasks {
		if task.ID == "t-bureau" {
			assert.Equal(t, "p-bureau", task.ProjectTitle)
			assert.Equal(t, 1, task.CommentCount)
			return
		}
	}
	t.Fatal("t-bureau not listed for bureauA")
}

type brokenStore struct {
	access.Store
	err error
}

func (b brokenStore) FindProject(context.Context, string) (model.Project, error) {
	return model.Project{}, b.err
}

func (b brokenStore) FindTask(context.Context, string) (model.Task, error) {
	return model.Task{}, b.err
}

func (b brokenStore) ListProjects(context.Context, model.ProjectScope) ([]model.ProjectSummary, error) {
	return nil, b.err
}

func TestStoreFailuresPropagate(t *testing.T) {
	w := newWorld(t)
	boom := errors.New("connection refused")
	r := newResolver(t, brokenStore{Store: w.store, err: boom})
	ctx := context.Background()

	_, err := r.CanAccessProject(ctx, "admin", "p-orphan")
	require.ErrorIs(t, err, boom)

	_, err = r.CanAccessTask(ctx, "admin", "t-bureau")
	require.ErrorIs(t, err, boom)

	_, err = r.ListVisibleProjects(ctx, "admin")
	require.ErrorIs(t, err, boom)
}

func TestCanSeeSnapshot(t *testing.T) {
	w := newWorld(t)
	r := newResolver(t, w.store)
	gone := model.Project{ID: "deleted", BureauID: "bureauA", TerrainAgentIDs: []string{"terrainB"}}

	for user, want := range map[string]bool{"admin": true, "bureauA": true, "bureauB": false, "terrainB": true, "terrainA": false, "ghost": false} {
		ok, err := r.CanSeeSnapshot(context.Background(), user, gone)
		require.NoError(t, err)
		assert.Equal(t, want, ok, user)
	}
}
