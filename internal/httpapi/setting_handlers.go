package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gatewise.org/internal/pagination"
	"gatewise.org/internal/setting"
)

func (a *API) settingListOptions() pagination.Options {
	return pagination.Options{
		DefaultPerPage:   a.cfg.DefaultPerPage,
		MaxPerPage:       a.cfg.MaxPerPage,
		DefaultOrderBy:   "key",
		AvailableOrderBy: []string{"key", "updated_at"},
		DefaultDirection: pagination.Asc,
		SearchFields:     []string{"key", "description"},
	}
}

type setSettingRequest struct {
	Value       json.RawMessage `json:"value"`
	Description string          `json:"description"`
}

func (a *API) handleSettingSet(w http.ResponseWriter, r *http.Request) {
	var req setSettingRequest
	if err := decodeJSON(r, &req); err != nil {
		a.respondErrors(w, r, http.StatusBadRequest, "VALIDATION_FAILED", []string{"malformed JSON body"})
		return
	}
	st, err := a.settings.Set(r.Context(), chi.URLParam(r, "key"), req.Value, req.Description)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, "SETTING_SAVED", st, nil)
}

func (a *API) handleSettingList(w http.ResponseWriter, r *http.Request) {
	d, err := pagination.FromQuery(r.URL.Query(), a.settingListOptions())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	settings, total, err := a.settings.List(r.Context(), d)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if settings == nil {
		settings = []*setting.Setting{}
	}
	a.respond(w, r, http.StatusOK, "OK", settings, offsetMeta(d, total))
}

func (a *API) handleSettingGet(w http.ResponseWriter, r *http.Request) {
	st, err := a.settings.Get(r.Context(), chi.URLParam(r, "key"), false)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, "OK", st, nil)
}

func (a *API) handleSettingDelete(w http.ResponseWriter, r *http.Request) {
	if err := a.settings.Delete(r.Context(), chi.URLParam(r, "key")); err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, "SETTING_DELETED", nil, nil)
}

// handleSharedSetting exposes only the enabled state of a flag, not the
// value, so unauthenticated-area clients cannot read configuration payloads.
func (a *API) handleSharedSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	on, err := a.settings.FeatureEnabled(r.Context(), key, false)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, "OK", map[string]any{
		"key":     key,
		"enabled": on,
	}, nil)
}
