package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"gatewise.org/internal/auth"
	"gatewise.org/internal/pagination"
	"gatewise.org/internal/termpolicy"
)

func (a *API) policyListOptions() pagination.Options {
	return pagination.Options{
		DefaultPerPage:   a.cfg.DefaultPerPage,
		MaxPerPage:       a.cfg.MaxPerPage,
		DefaultOrderBy:   "created_at",
		AvailableOrderBy: []string{"created_at", "version", "type"},
		DefaultDirection: pagination.Desc,
		Filters: []pagination.FilterSpec{
			{Field: "type", Op: pagination.OpEqual},
			{Field: "country", Op: pagination.OpEqual},
		},
	}
}

// handleUserPolicyList shows the caller the latest published versions per
// type, with their acceptance state, so clients know what must be accepted.
func (a *API) handleUserPolicyList(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())
	country := a.callerCountry(r, claims)

	type policyState struct {
		Policy   *termpolicy.Policy `json:"policy"`
		Accepted bool               `json:"accepted"`
	}
	var states []policyState
	for _, policyType := range []string{termpolicy.TypeTerms, termpolicy.TypePrivacy, termpolicy.TypeCookie} {
		p, err := a.policies.Latest(r.Context(), policyType, country)
		if err == termpolicy.ErrNotFound {
			continue
		}
		if err != nil {
			a.fail(w, r, err)
			return
		}
		accepted := a.policies.CheckAccepted(r.Context(), claims.SubjectID, policyType, country) == nil
		states = append(states, policyState{Policy: p, Accepted: accepted})
	}
	if states == nil {
		states = []policyState{}
	}
	a.respond(w, r, http.StatusOK, "OK", states, nil)
}

func (a *API) handlePolicyAccept(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())
	acc, err := a.policies.Accept(r.Context(), claims.SubjectID, chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if a.activities != nil {
		_, _ = a.activities.Record(r.Context(), claims.SubjectID, "termpolicy.accept", clientIP(r), map[string]any{
			"policyId": acc.PolicyID,
		})
	}
	a.respond(w, r, http.StatusCreated, "POLICY_ACCEPTED", acc, nil)
}

type createPolicyRequest struct {
	Type    string `json:"type"`
	Country string `json:"country"`
	Title   string `json:"title"`
	Body    string `json:"body"`
}

func (a *API) handlePolicyCreate(w http.ResponseWriter, r *http.Request) {
	var req createPolicyRequest
	if err := decodeJSON(r, &req); err != nil {
		a.respondErrors(w, r, http.StatusBadRequest, "VALIDATION_FAILED", []string{"malformed JSON body"})
		return
	}
	p, err := a.policies.Draft(r.Context(), req.Type, req.Country, req.Title, req.Body)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, r, http.StatusCreated, "POLICY_CREATED", p, nil)
}

func (a *API) handlePolicyList(w http.ResponseWriter, r *http.Request) {
	d, err := pagination.FromQuery(r.URL.Query(), a.policyListOptions())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	policies, total, err := a.policies.List(r.Context(), d)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if policies == nil {
		policies = []*termpolicy.Policy{}
	}
	a.respond(w, r, http.StatusOK, "OK", policies, offsetMeta(d, total))
}

func (a *API) handlePolicyPublish(w http.ResponseWriter, r *http.Request) {
	p, err := a.policies.Publish(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, "POLICY_PUBLISHED", p, nil)
}

func (a *API) handlePolicyDelete(w http.ResponseWriter, r *http.Request) {
	if err := a.policies.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, "POLICY_DELETED", nil, nil)
}
