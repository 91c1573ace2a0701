package projects

import (
	"context"

	"golang.org/x/sync/errgroup"

	"sitetrack.io/internal/model"
	"sitetrack.io/internal/stream"
)

const recentProjects = 5

// Dashboard holds the caller's KPIs.
type Dashboard struct {
	ActiveProjects    int                    `json:"active_projects"`
	TotalProjects     int                    `json:"total_projects"`
	CompletedProjects int                    `json:"completed_projects"`
	PendingTasks      int                    `json:"pending_tasks"`
	OverdueTasks      int                    `json:"overdue_tasks"`
	DueToday          []model.TaskSummary    `json:"due_today"`
	RecentProjects    []model.ProjectSummary `json:"recent_projects"`
}

// Dashboard computes KPIs over the caller's visible projects and the visible
// tasks assigned to the caller.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return Dashboard{}, err
	}

	var (
		projects []model.ProjectSummary
		tasks    []model.TaskSummary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		projects, err = s.resolver.ListVisibleProjects(gctx, actor.ID)
		return err
	})
	g.Go(func() error {
		var err error
		tasks, err = s.resolver.ListVisibleTasks(gctx, actor.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}

	d := Dashboard{TotalProjects: len(projects), DueToday: []model.TaskSummary{}}
	for _, p := range projects {
		switch p.Status {
		case model.ProjectInProgress:
			d.ActiveProjects++
		case model.ProjectDelivered, model.ProjectClosed:
			d.CompletedProjects++
		}
	}
	d.RecentProjects = projects[:min(len(projects), recentProjects)]

	now := s.now()
	ty, tm, td := now.Date()
	for _, t := range tasks {
		if t.AssigneeID != actor.ID {
			continue
		}
		if t.Status != model.TaskDone {
			d.PendingTasks++
		}
		if t.Due == nil {
			continue
		}
		if y, m, dd := t.Due.In(now.Location()).Date(); y == ty && m == tm && dd == td {
			d.DueToday = append(d.DueToday, t)
		}
		if t.Status != model.TaskDone && t.Due.Before(now) {
			d.OverdueTasks++
		}
	}
	return d, nil
}

// MapMarkers returns a marker for every visible project with a resolvable
// location. Points outside WGS84 bounds are kept and flagged.
func (s *Service) MapMarkers(ctx context.Context) ([]stream.Marker, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	projects, err := s.resolver.ListVisibleProjects(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	markers := make([]stream.Marker, 0, len(projects))
	for _, p := range projects {
		if m, ok := markerFor(p.Project); ok {
			markers = append(markers, m)
		}
	}
	return markers, nil
}
