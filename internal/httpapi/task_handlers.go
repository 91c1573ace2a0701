package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"sitetrack.io/internal/model"
	"sitetrack.io/internal/projects"
)

type createTaskRequest struct {
	ProjectID  string  `json:"project_id"`
	Title      string  `json:"title"`
	Status     string  `json:"status"`
	Progress   *int    `json:"progress"`
	AssigneeID string  `json:"assignee_id"`
	Due        *string `json:"due"`
}

type updateTaskRequest struct {
	Title      *string `json:"title"`
	Status     *string `json:"status"`
	Progress   *int    `json:"progress"`
	AssigneeID *string `json:"assignee_id"`
	Due        *string `json:"due"`
}

type commentRequest struct {
	Body string `json:"body"`
}

func taskStatus(raw string) model.TaskStatus {
	return model.TaskStatus(strings.ToUpper(strings.TrimSpace(raw)))
}

func (a *API) handleTasksCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		items, err := a.svc.ListTasks(r.Context(), r.URL.Query().Get("project_id"))
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newList(items))
	case http.MethodPost:
		a.createTask(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleTaskResource(w http.ResponseWriter, r *http.Request) {
	id, sub, ok := resourcePath(r.URL.Path, "/v1/tasks/")
	if !ok {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch sub {
	case "":
		switch r.Method {
		case http.MethodPatch:
			a.updateTask(w, r, id)
		case http.MethodDelete:
			a.deleteTask(w, r, id)
		default:
			methodNotAllowed(w, r, http.MethodPatch, http.MethodDelete)
		}
	case "comments":
		a.handleComments(w, r, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) createTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	due, err := parseDate("due", req.Due)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	t, err := a.svc.CreateTask(r.Context(), projects.TaskInput{
		ProjectID:  req.ProjectID,
		Title:      req.Title,
		Status:     taskStatus(req.Status),
		Progress:   req.Progress,
		AssigneeID: req.AssigneeID,
		Due:        due,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/v1/tasks/%s", t.ID))
	writeJSON(w, http.StatusCreated, t)
}

func (a *API) updateTask(w http.ResponseWriter, r *http.Request, id string) {
	var req updateTaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	due, err := parseDate("due", req.Due)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	patch := projects.TaskPatch{
		Title:      req.Title,
		Progress:   req.Progress,
		AssigneeID: req.AssigneeID,
		Due:        due,
	}
	if req.Status != nil {
		st := taskStatus(*req.Status)
		patch.Status = &st
	}
	t, err := a.svc.UpdateTask(r.Context(), id, patch)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *API) deleteTask(w http.ResponseWriter, r *http.Request, id string) {
	if err := a.svc.DeleteTask(r.Context(), id); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleComments(w http.ResponseWriter, r *http.Request, taskID string) {
	switch r.Method {
	case http.MethodGet:
		items, err := a.svc.ListComments(r.Context(), taskID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newList(items))
	case http.MethodPost:
		var req commentRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		c, err := a.svc.AddComment(r.Context(), taskID, req.Body)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, c)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}
