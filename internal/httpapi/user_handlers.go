package httpapi

import (
	"fmt"
	"net/http"

	"sitetrack.io/internal/projects"
)

type createUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		items, err := a.svc.ListUsers(r.Context(), r.URL.Query().Get("role"))
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newList(items))
	case http.MethodPost:
		var req createUserRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		user, err := a.svc.CreateUser(r.Context(), projects.UserInput{
			Email:    req.Email,
			Password: req.Password,
			Name:     req.Name,
			Role:     req.Role,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		w.Header().Set("Location", fmt.Sprintf("/v1/users/%s", user.ID))
		writeJSON(w, http.StatusCreated, user)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}
