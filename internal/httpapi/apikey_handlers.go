package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"gatewise.org/internal/apikey"
	"gatewise.org/internal/pagination"
)

func (a *API) apiKeyListOptions() pagination.Options {
	return pagination.Options{
		DefaultPerPage:   a.cfg.DefaultPerPage,
		MaxPerPage:       a.cfg.MaxPerPage,
		DefaultOrderBy:   "created_at",
		AvailableOrderBy: []string{"created_at", "name"},
		DefaultDirection: pagination.Desc,
		SearchFields:     []string{"name", "key"},
		Filters: []pagination.FilterSpec{
			{Field: "type", Op: pagination.OpEqual},
			{Field: "is_active", Op: pagination.OpEqual},
		},
	}
}

type createAPIKeyRequest struct {
	Name      string     `json:"name"`
	Type      string     `json:"type"`
	StartDate *time.Time `json:"startDate"`
	EndDate   *time.Time `json:"endDate"`
}

// handleAPIKeyCreate returns the plaintext secret exactly once; only its
// hash is stored.
func (a *API) handleAPIKeyCreate(w http.ResponseWriter, r *http.Request) {
	var req createAPIKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		a.respondErrors(w, r, http.StatusBadRequest, "VALIDATION_FAILED", []string{"malformed JSON body"})
		return
	}
	k, secret, err := a.apikeys.Create(r.Context(), req.Name, apikey.Type(req.Type), req.StartDate, req.EndDate)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, r, http.StatusCreated, "API_KEY_CREATED", map[string]any{
		"apiKey":     k,
		"credential": k.Key + ":" + secret,
	}, nil)
}

func (a *API) handleAPIKeyList(w http.ResponseWriter, r *http.Request) {
	d, err := pagination.FromQuery(r.URL.Query(), a.apiKeyListOptions())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	keys, total, err := a.apikeys.List(r.Context(), d)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if keys == nil {
		keys = []*apikey.APIKey{}
	}
	a.respond(w, r, http.StatusOK, "OK", keys, offsetMeta(d, total))
}

func (a *API) handleAPIKeyGet(w http.ResponseWriter, r *http.Request) {
	k, err := a.apikeys.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, "OK", k, nil)
}

type renameAPIKeyRequest struct {
	Name string `json:"name"`
}

func (a *API) handleAPIKeyRename(w http.ResponseWriter, r *http.Request) {
	var req renameAPIKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		a.respondErrors(w, r, http.StatusBadRequest, "VALIDATION_FAILED", []string{"malformed JSON body"})
		return
	}
	if err := a.apikeys.Rename(r.Context(), chi.URLParam(r, "id"), req.Name); err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, "API_KEY_UPDATED", nil, nil)
}

func (a *API) handleAPIKeyActivate(w http.ResponseWriter, r *http.Request) {
	a.setAPIKeyActive(w, r, true, "API_KEY_ACTIVATED")
}

func (a *API) handleAPIKeyDeactivate(w http.ResponseWriter, r *http.Request) {
	a.setAPIKeyActive(w, r, false, "API_KEY_DEACTIVATED")
}

func (a *API) setAPIKeyActive(w http.ResponseWriter, r *http.Request, active bool, message string) {
	if err := a.apikeys.SetActive(r.Context(), chi.URLParam(r, "id"), active); err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, message, nil, nil)
}

func (a *API) handleAPIKeyResetSecret(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	secret, err := a.apikeys.ResetSecret(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	k, err := a.apikeys.Get(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, "API_KEY_SECRET_RESET", map[string]any{
		"credential": k.Key + ":" + secret,
	}, nil)
}

func (a *API) handleAPIKeyDelete(w http.ResponseWriter, r *http.Request) {
	if err := a.apikeys.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, "API_KEY_DELETED", nil, nil)
}
