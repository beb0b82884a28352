package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"gatewise.org/internal/auth"
	"gatewise.org/internal/pagination"
	"gatewise.org/internal/rbac"
)

func (a *API) userListOptions() pagination.Options {
	return pagination.Options{
		DefaultPerPage:   a.cfg.DefaultPerPage,
		MaxPerPage:       a.cfg.MaxPerPage,
		DefaultOrderBy:   "created_at",
		AvailableOrderBy: []string{"created_at", "email", "name"},
		DefaultDirection: pagination.Desc,
		SearchFields:     []string{"email", "name"},
		Filters: []pagination.FilterSpec{
			{Field: "status", Op: pagination.OpEqual},
			{Field: "role_id", Op: pagination.OpIn},
			{Field: "country", Op: pagination.OpEqual},
		},
	}
}

type createUserRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
	RoleID   string `json:"roleId"`
	Country  string `json:"country"`
}

func (a *API) handleUserCreate(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		a.respondErrors(w, r, http.StatusBadRequest, "VALIDATION_FAILED", []string{"malformed JSON body"})
		return
	}
	user, err := a.rbac.CreateUser(r.Context(), req.Email, req.Name, req.Password, req.RoleID, req.Country)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, r, http.StatusCreated, "USER_CREATED", user, nil)
}

func (a *API) handleUserList(w http.ResponseWriter, r *http.Request) {
	d, err := pagination.FromQuery(r.URL.Query(), a.userListOptions())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	users, total, err := a.rbac.ListUsers(r.Context(), d)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if users == nil {
		users = []*rbac.User{}
	}
	a.respond(w, r, http.StatusOK, "OK", users, offsetMeta(d, total))
}

func (a *API) handleUserGet(w http.ResponseWriter, r *http.Request) {
	user, err := a.rbac.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, "OK", user, nil)
}

type updateUserRequest struct {
	Email    *string `json:"email"`
	Name     *string `json:"name"`
	Password *string `json:"password"`
	RoleID   *string `json:"roleId"`
	Status   *string `json:"status"`
	Country  *string `json:"country"`
}

func (a *API) handleUserUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		a.respondErrors(w, r, http.StatusBadRequest, "VALIDATION_FAILED", []string{"malformed JSON body"})
		return
	}
	user, err := a.rbac.UpdateUser(r.Context(), chi.URLParam(r, "id"), rbac.UserUpdate{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		RoleID:   req.RoleID,
		Status:   req.Status,
		Country:  req.Country,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, "USER_UPDATED", user, nil)
}

func (a *API) handleUserDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.rbac.DeleteUser(r.Context(), id); err != nil {
		a.fail(w, r, err)
		return
	}
	// Orphaned sessions must not outlive the account.
	if err := a.sessions.RevokeAll(r.Context(), id); err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, "USER_DELETED", nil, nil)
}

func (a *API) roleListOptions() pagination.Options {
	return pagination.Options{
		DefaultPerPage:   a.cfg.DefaultPerPage,
		MaxPerPage:       a.cfg.MaxPerPage,
		DefaultOrderBy:   "created_at",
		AvailableOrderBy: []string{"created_at", "name"},
		DefaultDirection: pagination.Asc,
		SearchFields:     []string{"name"},
		Filters: []pagination.FilterSpec{
			{Field: "type", Op: pagination.OpEqual},
		},
	}
}

type createRoleRequest struct {
	Name      string         `json:"name"`
	Type      string         `json:"type"`
	Abilities []auth.Ability `json:"abilities"`
}

func (a *API) handleRoleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		a.respondErrors(w, r, http.StatusBadRequest, "VALIDATION_FAILED", []string{"malformed JSON body"})
		return
	}
	role, err := a.rbac.CreateRole(r.Context(), req.Name, auth.RoleType(req.Type), req.Abilities)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, r, http.StatusCreated, "ROLE_CREATED", role, nil)
}

func (a *API) handleRoleList(w http.ResponseWriter, r *http.Request) {
	d, err := pagination.FromQuery(r.URL.Query(), a.roleListOptions())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	roles, total, err := a.rbac.ListRoles(r.Context(), d)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if roles == nil {
		roles = []*rbac.Role{}
	}
	a.respond(w, r, http.StatusOK, "OK", roles, offsetMeta(d, total))
}

func (a *API) handleRoleGet(w http.ResponseWriter, r *http.Request) {
	role, err := a.rbac.GetRole(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, "OK", role, nil)
}

type renameRoleRequest struct {
	Name string `json:"name"`
}

func (a *API) handleRoleRename(w http.ResponseWriter, r *http.Request) {
	var req renameRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		a.respondErrors(w, r, http.StatusBadRequest, "VALIDATION_FAILED", []string{"malformed JSON body"})
		return
	}
	role, err := a.rbac.RenameRole(r.Context(), chi.URLParam(r, "id"), req.Name)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, "ROLE_UPDATED", role, nil)
}

type roleAbilitiesRequest struct {
	Abilities []auth.Ability `json:"abilities"`
}

func (a *API) handleRoleAbilities(w http.ResponseWriter, r *http.Request) {
	var req roleAbilitiesRequest
	if err := decodeJSON(r, &req); err != nil {
		a.respondErrors(w, r, http.StatusBadRequest, "VALIDATION_FAILED", []string{"malformed JSON body"})
		return
	}
	id := chi.URLParam(r, "id")
	if err := a.rbac.SetRoleAbilities(r.Context(), id, req.Abilities); err != nil {
		a.fail(w, r, err)
		return
	}
	role, err := a.rbac.GetRole(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, "ROLE_ABILITIES_SET", role, nil)
}

func (a *API) handleRoleDelete(w http.ResponseWriter, r *http.Request) {
	if err := a.rbac.DeleteRole(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, "ROLE_DELETED", nil, nil)
}
