package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"sitetrack.io/internal/geo"
	"sitetrack.io/internal/model"
	"sitetrack.io/internal/projects"
)

type createProjectRequest struct {
	Title           string   `json:"title"`
	Client          string   `json:"client"`
	Location        string   `json:"location"`
	Coordinates     string   `json:"coordinates"`
	Latitude        *float64 `json:"latitude"`
	Longitude       *float64 `json:"longitude"`
	StartDate       *string  `json:"start_date"`
	EndDate         *string  `json:"end_date"`
	Status          string   `json:"status"`
	Progress        *int     `json:"progress"`
	Description     string   `json:"description"`
	Budget          *float64 `json:"budget"`
	Tags            []string `json:"tags"`
	BureauID        string   `json:"bureau_id"`
	TerrainAgentIDs []string `json:"terrain_agent_ids"`
}

type updateProjectRequest struct {
	Title           *string   `json:"title"`
	Client          *string   `json:"client"`
	Location        *string   `json:"location"`
	Coordinates     *string   `json:"coordinates"`
	Latitude        *float64  `json:"latitude"`
	Longitude       *float64  `json:"longitude"`
	StartDate       *string   `json:"start_date"`
	EndDate         *string   `json:"end_date"`
	Status          *string   `json:"status"`
	Progress        *int      `json:"progress"`
	Description     *string   `json:"description"`
	Budget          *float64  `json:"budget"`
	Tags            *[]string `json:"tags"`
	BureauID        *string   `json:"bureau_id"`
	TerrainAgentIDs *[]string `json:"terrain_agent_ids"`
}

type listResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

func newList[T any](items []T) listResponse[T] {
	if items == nil {
		items = []T{}
	}
	return listResponse[T]{Items: items, Count: len(items)}
}

func projectStatus(raw string) model.ProjectStatus {
	return model.ProjectStatus(strings.ToUpper(strings.TrimSpace(raw)))
}

func (a *API) handleProjectsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listProjects(w, r)
	case http.MethodPost:
		a.createProject(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleProjectResource(w http.ResponseWriter, r *http.Request) {
	id, sub, ok := resourcePath(r.URL.Path, "/v1/projects/")
	if !ok || sub != "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		a.getProject(w, r, id)
	case http.MethodPatch:
		a.updateProject(w, r, id)
	case http.MethodDelete:
		a.deleteProject(w, r, id)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) listProjects(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := projects.ProjectFilter{
		Status: projectStatus(q.Get("status")),
		Search: q.Get("q"),
	}
	items, err := a.svc.ListProjects(r.Context(), filter)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(items))
}

func (a *API) getProject(w http.ResponseWriter, r *http.Request, id string) {
	detail, err := a.svc.GetProject(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (a *API) createProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	start, err := parseDate("start_date", req.StartDate)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	end, err := parseDate("end_date", req.EndDate)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	p, err := a.svc.CreateProject(r.Context(), projects.ProjectInput{
		Title:           req.Title,
		Client:          req.Client,
		Location:        req.Location,
		Coordinates:     req.Coordinates,
		Latitude:        req.Latitude,
		Longitude:       req.Longitude,
		StartDate:       start,
		EndDate:         end,
		Status:          projectStatus(req.Status),
		Progress:        req.Progress,
		Description:     req.Description,
		Budget:          req.Budget,
		Tags:            req.Tags,
		BureauID:        req.BureauID,
		TerrainAgentIDs: req.TerrainAgentIDs,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/v1/projects/%s", p.ID))
	writeJSON(w, http.StatusCreated, p)
}

func (a *API) updateProject(w http.ResponseWriter, r *http.Request, id string) {
	var req updateProjectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	start, err := parseDate("start_date", req.StartDate)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	end, err := parseDate("end_date", req.EndDate)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	patch := projects.ProjectPatch{
		Title:           req.Title,
		Client:          req.Client,
		Location:        req.Location,
		Coordinates:     req.Coordinates,
		Latitude:        req.Latitude,
		Longitude:       req.Longitude,
		StartDate:       start,
		EndDate:         end,
		Progress:        req.Progress,
		Description:     req.Description,
		Budget:          req.Budget,
		BureauID:        req.BureauID,
		TerrainAgentIDs: req.TerrainAgentIDs,
	}
	if req.Status != nil {
		st := projectStatus(*req.Status)
		patch.Status = &st
	}
	if req.Tags != nil {
		patch.Tags = append([]string{}, (*req.Tags)...)
	}
	p, err := a.svc.UpdateProject(r.Context(), id, patch)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) deleteProject(w http.ResponseWriter, r *http.Request, id string) {
	if err := a.svc.DeleteProject(r.Context(), id); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleMapMarkers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	markers, err := a.svc.MapMarkers(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(markers))
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	d, err := a.svc.Dashboard(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type geoParseResponse struct {
	Found   bool       `json:"found"`
	Point   *geo.Point `json:"point,omitempty"`
	InRange bool       `json:"in_range"`
}

// handleGeoParse previews what the coordinate parser extracts from form text.
func (a *API) handleGeoParse(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	p, ok := geo.Parse(r.URL.Query().Get("q"))
	resp := geoParseResponse{Found: ok}
	if ok {
		resp.Point = &p
		resp.InRange = p.Valid()
	}
	writeJSON(w, http.StatusOK, resp)
}
