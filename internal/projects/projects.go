package projects

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sitetrack.io/internal/access"
	"sitetrack.io/internal/audit"
	"sitetrack.io/internal/geo"
	"sitetrack.io/internal/ids"
	"sitetrack.io/internal/model"
	"sitetrack.io/internal/stream"
)

// DetailAuditLimit caps the audit entries returned with a project.
const DetailAuditLimit = 20

const minTitleLength = 3

// ProjectFilter narrows a project listing. Zero values disable a filter.
type ProjectFilter struct {
	Status model.ProjectStatus
	// Search matches title, client or location, case-insensitively.
	Search string
}

// ProjectInput carries the fields of a new project.
type ProjectInput struct {
	Title           string
	Client          string
	Location        string
	Coordinates     string
	Latitude        *float64
	Longitude       *float64
	StartDate       *time.Time
	EndDate         *time.Time
	Status          model.ProjectStatus
	Progress        *int
	Description     string
	Budget          *float64
	Tags            []string
	BureauID        string
	TerrainAgentIDs []string
}

// ProjectPatch carries a partial update. Nil fields are left unchanged; a
// non-nil TerrainAgentIDs replaces every assignment.
type ProjectPatch struct {
	Title           *string
	Client          *string
	Location        *string
	Coordinates     *string
	Latitude        *float64
	Longitude       *float64
	StartDate       *time.Time
	EndDate         *time.Time
	Status          *model.ProjectStatus
	Progress        *int
	Description     *string
	Budget          *float64
	Tags            []string
	BureauID        *string
	TerrainAgentIDs *[]string
}

// ProjectDetail is a project with its tasks and recent audit trail.
type ProjectDetail struct {
	Project model.Project       `json:"project"`
	Tasks   []model.TaskSummary `json:"tasks"`
	Audit   []audit.Entry       `json:"audit"`
	Marker  *stream.Marker      `json:"marker,omitempty"`
}

// ListProjects returns the projects visible to the caller, most recently
// updated first, narrowed by filter.
func (s *Service) ListProjects(ctx context.Context, filter ProjectFilter) ([]model.ProjectSummary, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, invalid("unknown project status %q", filter.Status)
	}
	visible, err := s.resolver.ListVisibleProjects(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	out := make([]model.ProjectSummary, 0, len(visible))
	for _, p := range visible {
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if search != "" && !matchesSearch(p.Project, search) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func matchesSearch(p model.Project, needle string) bool {
	for _, field := range []string{p.Title, p.Client, p.Location} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

// GetProject returns a project with its tasks, newest first, and the last
// DetailAuditLimit audit entries.
func (s *Service) GetProject(ctx context.Context, id string) (ProjectDetail, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return ProjectDetail{}, err
	}
	if err := s.requireProject(ctx, actor, id); err != nil {
		return ProjectDetail{}, err
	}
	project, err := s.store.FindProject(ctx, id)
	if err != nil {
		return ProjectDetail{}, fmt.Errorf("load project %s: %w", id, err)
	}
	tasks, err := s.store.ListProjectTasks(ctx, id)
	if err != nil {
		return ProjectDetail{}, fmt.Errorf("list tasks of %s: %w", id, err)
	}
	entries, err := s.store.ListAudit(ctx, id, DetailAuditLimit)
	if err != nil {
		return ProjectDetail{}, fmt.Errorf("list audit of %s: %w", id, err)
	}
	detail := ProjectDetail{Project: project, Tasks: tasks, Audit: entries}
	if m, ok := markerFor(project); ok {
		detail.Marker = &m
	}
	return detail, nil
}

// CreateProject stores a new project owned by the caller. Coordinates text is
// geocoded when no explicit latitude and longitude are given.
func (s *Service) CreateProject(ctx context.Context, in ProjectInput) (model.Project, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return model.Project{}, err
	}
	if err := gate(actor, access.ActionCreateProject); err != nil {
		return model.Project{}, err
	}

	p := model.Project{
		ID:              ids.New(),
		Title:           strings.TrimSpace(in.Title),
		Client:          strings.TrimSpace(in.Client),
		Location:        strings.TrimSpace(in.Location),
		Coordinates:     strings.TrimSpace(in.Coordinates),
		Latitude:        in.Latitude,
		Longitude:       in.Longitude,
		StartDate:       in.StartDate,
		EndDate:         in.EndDate,
		Status:          in.Status,
		Description:     in.Description,
		Budget:          in.Budget,
		Tags:            in.Tags,
		BureauID:        strings.TrimSpace(in.BureauID),
		CreatedByID:     actor.ID,
		TerrainAgentIDs: in.TerrainAgentIDs,
	}
	if p.Status == "" {
		p.Status = model.ProjectPlanned
	}
	if in.Progress != nil {
		p.Progress = *in.Progress
	}
	if err := validateProject(p); err != nil {
		return model.Project{}, err
	}
	if err := geocode(&p); err != nil {
		return model.Project{}, err
	}

	created, err := s.store.CreateProject(ctx, p)
	if err != nil {
		return model.Project{}, err
	}
	s.recorder.Record(ctx, audit.Entry{
		ActorID:   actor.ID,
		Entity:    audit.EntityProject,
		EntityID:  created.ID,
		Action:    audit.ActionCreate,
		Detail:    audit.Snapshot{Title: created.Title},
		ProjectID: created.ID,
	})
	if _, ok := markerFor(created); ok {
		s.publishMarker(created)
	}
	return created, nil
}

// UpdateProject applies patch to a project the caller can access. Terrain
// agents are denied even with access.
func (s *Service) UpdateProject(ctx context.Context, id string, patch ProjectPatch) (model.Project, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return model.Project{}, err
	}
	if err := s.requireProject(ctx, actor, id); err != nil {
		return model.Project{}, err
	}
	if err := gate(actor, access.ActionUpdateProject); err != nil {
		return model.Project{}, err
	}

	before, err := s.store.FindProject(ctx, id)
	if err != nil {
		return model.Project{}, fmt.Errorf("load project %s: %w", id, err)
	}
	after := applyProjectPatch(before, patch)
	if err := validateProject(after); err != nil {
		return model.Project{}, err
	}
	relocated := patch.Latitude != nil || patch.Longitude != nil || patch.Coordinates != nil
	if relocated && patch.Latitude == nil && patch.Longitude == nil {
		// New coordinates text invalidates the previously geocoded point.
		after.Latitude, after.Longitude = nil, nil
	}
	if err := geocode(&after); err != nil {
		return model.Project{}, err
	}

	updated, err := s.store.UpdateProject(ctx, after, patch.TerrainAgentIDs != nil)
	if err != nil {
		return model.Project{}, err
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
		Entity:    audit.EntityProject,
		EntityID:  updated.ID,
		Action:    audit.ActionUpdate,
		Detail:    changes,
		ProjectID: updated.ID,
	})
	s.publishMarker(updated)
	return updated, nil
}

// DeleteProject removes a project. Only admins pass the gate, so a failed
// access check means the project does not exist.
func (s *Service) DeleteProject(ctx context.Context, id string) error {
	actor, err := s.actor(ctx)
	if err != nil {
		return err
	}
	if err := gate(actor, access.ActionDeleteProject); err != nil {
		return err
	}
	if err := s.requireProject(ctx, actor, id); err != nil {
		return err
	}
	project, err := s.store.FindProject(ctx, id)
	if err != nil {
		return fmt.Errorf("load project %s: %w", id, err)
	}
	if err := s.store.DeleteProject(ctx, id); err != nil {
		return err
	}
	s.recorder.Record(ctx, audit.Entry{
		ActorID:  actor.ID,
		Entity:   audit.EntityProject,
		EntityID: id,
		Action:   audit.ActionDelete,
		Detail:   audit.Snapshot{Title: project.Title},
	})
	if s.feed != nil {
		m, _ := markerFor(project)
		m.ProjectID = project.ID
		s.feed.Publish(stream.Event{Kind: stream.KindDelete, Marker: m, Project: project})
	}
	return nil
}

func applyProjectPatch(p model.Project, patch ProjectPatch) model.Project {
	if patch.Title != nil {
		p.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Client != nil {
		p.Client = strings.TrimSpace(*patch.Client)
	}
	if patch.Location != nil {
		p.Location = strings.TrimSpace(*patch.Location)
	}
	if patch.Coordinates != nil {
		p.Coordinates = strings.TrimSpace(*patch.Coordinates)
	}
	if patch.Latitude != nil {
		p.Latitude = patch.Latitude
	}
	if patch.Longitude != nil {
		p.Longitude = patch.Longitude
	}
	if patch.StartDate != nil {
		p.StartDate = patch.StartDate
	}
	if patch.EndDate != nil {
		p.EndDate = patch.EndDate
	}
	if patch.Status != nil {
		p.Status = *patch.Status
	}
	if patch.Progress != nil {
		p.Progress = *patch.Progress
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Budget != nil {
		p.Budget = patch.Budget
	}
	if patch.Tags != nil {
		p.Tags = patch.Tags
	}
	if patch.BureauID != nil {
		p.BureauID = strings.TrimSpace(*patch.BureauID)
	}
	if patch.TerrainAgentIDs != nil {
		p.TerrainAgentIDs = *patch.TerrainAgentIDs
	}
	return p
}

func validateProject(p model.Project) error {
	if len([]rune(p.Title)) < minTitleLength {
		return invalid("title must be at least %d characters", minTitleLength)
	}
	if !p.Status.Valid() {
		return invalid("unknown project status %q", p.Status)
	}
	if p.Progress < 0 || p.Progress > 100 {
		return invalid("progress must be between 0 and 100")
	}
	if p.StartDate != nil && p.EndDate != nil && p.EndDate.Before(*p.StartDate) {
		return invalid("end date precedes start date")
	}
	return nil
}

// geocode fills latitude and longitude from the coordinates text when no
// explicit pair is set. Unparsable text leaves the project without a point.
func geocode(p *model.Project) error {
	if (p.Latitude == nil) != (p.Longitude == nil) {
		return invalid("latitude and longitude must be set together")
	}
	if p.Latitude != nil {
		return nil
	}
	if pt, ok := geo.Parse(p.Coordinates); ok {
		lat, lng := pt.Lat, pt.Lng
		p.Latitude, p.Longitude = &lat, &lng
	}
	return nil
}

func markerFor(p model.Project) (stream.Marker, bool) {
	pt, ok := geo.Resolve(p.Latitude, p.Longitude, p.Coordinates)
	if !ok {
		return stream.Marker{}, false
	}
	return stream.Marker{
		ProjectID: p.ID,
		Title:     p.Title,
		Status:    p.Status,
		Progress:  p.Progress,
		Location:  p.Location,
		Lat:       pt.Lat,
		Lng:       pt.Lng,
		InRange:   pt.Valid(),
	}, true
}

// publishMarker announces the project's current marker, or its removal when
// the project no longer has a resolvable location.
func (s *Service) publishMarker(p model.Project) {
	if s.feed == nil {
		return
	}
	m, ok := markerFor(p)
	kind := stream.KindUpsert
	if !ok {
		kind = stream.KindDelete
		m = stream.Marker{ProjectID: p.ID, Title: p.Title, Status: p.Status}
	}
	s.feed.Publish(stream.Event{Kind: kind, Marker: m, Project: p})
}
