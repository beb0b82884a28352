package httpapi

import (
	"net/http"

	"gatewise.org/internal/activity"
	"gatewise.org/internal/auth"
	"gatewise.org/internal/pagination"
)

func (a *API) activityListOptions() pagination.Options {
	return pagination.Options{
		DefaultPerPage:   a.cfg.DefaultPerPage,
		MaxPerPage:       a.cfg.MaxPerPage,
		DefaultOrderBy:   "created_at",
		AvailableOrderBy: []string{"created_at", "event"},
		DefaultDirection: pagination.Desc,
		Filters: []pagination.FilterSpec{
			{Field: "event", Op: pagination.OpEqual},
		},
	}
}

func (a *API) handleActivityList(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())
	d, err := pagination.FromQuery(r.URL.Query(), a.activityListOptions())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	entries, total, err := a.activities.ListByUser(r.Context(), claims.SubjectID, d)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if entries == nil {
		entries = []*activity.Entry{}
	}
	a.respond(w, r, http.StatusOK, "OK", entries, offsetMeta(d, total))
}

func (a *API) handleAdminActivityList(w http.ResponseWriter, r *http.Request) {
	d, err := pagination.FromQuery(r.URL.Query(), a.activityListOptions())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	entries, total, err := a.activities.List(r.Context(), d)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if entries == nil {
		entries = []*activity.Entry{}
	}
	a.respond(w, r, http.StatusOK, "OK", entries, offsetMeta(d, total))
}
