package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"gatewise.org/internal/activity"
	"gatewise.org/internal/apikey"
	"gatewise.org/internal/auth"
	"gatewise.org/internal/notification"
	"gatewise.org/internal/obs"
	"gatewise.org/internal/pagination"
	"gatewise.org/internal/rbac"
	"gatewise.org/internal/session"
	"gatewise.org/internal/setting"
	"gatewise.org/internal/termpolicy"
)

// envelope is the uniform response body. Error responses mirror the shape
// with errors set and data omitted.
type envelope struct {
	StatusCode int      `json:"statusCode"`
	Message    string   `json:"message"`
	Metadata   any      `json:"metadata,omitempty"`
	Data       any      `json:"data,omitempty"`
	Errors     []string `json:"errors,omitempty"`
}

// listMeta is the metadata block of offset-paginated list responses.
type listMeta struct {
	Page      int   `json:"page"`
	PerPage   int   `json:"perPage"`
	Total     int64 `json:"total"`
	TotalPage int64 `json:"totalPage"`
}

// cursorMeta is the metadata block of cursor-paginated list responses.
// NextCursor is null once the collection is exhausted.
type cursorMeta struct {
	PerPage    int     `json:"perPage"`
	Total      int64   `json:"total"`
	NextCursor *string `json:"nextCursor"`
}

func offsetMeta(d pagination.Descriptor, total int64) listMeta {
	return listMeta{
		Page:      d.Page,
		PerPage:   d.PerPage,
		Total:     total,
		TotalPage: d.TotalPages(total),
	}
}

func (a *API) respond(w http.ResponseWriter, r *http.Request, status int, message string, data, metadata any) {
	a.writeEnvelope(w, r, envelope{
		StatusCode: status,
		Message:    message,
		Metadata:   metadata,
		Data:       data,
	})
}

func (a *API) respondErrors(w http.ResponseWriter, r *http.Request, status int, message string, errs []string) {
	a.writeEnvelope(w, r, envelope{
		StatusCode: status,
		Message:    message,
		Errors:     errs,
	})
}

func (a *API) writeEnvelope(w http.ResponseWriter, r *http.Request, env envelope) {
	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("x-custom-lang", requestLang(r))
	h.Set("x-timestamp", strconv.FormatInt(time.Now().Unix(), 10))
	h.Set("x-timezone", a.cfg.Timezone)
	h.Set("x-request-id", requestIDFrom(r.Context()))
	h.Set("x-version", "v1")
	h.Set("x-repo-version", a.version)

	w.WriteHeader(env.StatusCode)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		obs.LogRequest(map[string]any{
			"ts":    time.Now().UTC().Format(time.RFC3339Nano),
			"level": "error",
			"msg":   "envelope encode failed",
			"error": err.Error(),
		})
	}
}

func requestLang(r *http.Request) string {
	if lang := r.Header.Get("x-custom-lang"); lang != "" {
		return lang
	}
	return "en"
}

// fail maps domain sentinel errors onto HTTP statuses and stable message
// codes. Unknown errors become an opaque 500; the detail goes to the log
// only.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, message := classify(err)
	if status == http.StatusInternalServerError {
		obs.LogRequest(map[string]any{
			"ts":         time.Now().UTC().Format(time.RFC3339Nano),
			"level":      "error",
			"msg":        "request failed",
			"error":      err.Error(),
			"request_id": requestIDFrom(r.Context()),
			"path":       r.URL.Path,
		})
		a.respondErrors(w, r, status, message, nil)
		return
	}
	a.respondErrors(w, r, status, message, []string{err.Error()})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, rbac.ErrInvalidInput),
		errors.Is(err, apikey.ErrInvalidInput),
		errors.Is(err, setting.ErrInvalidInput),
		errors.Is(err, termpolicy.ErrInvalidInput),
		errors.Is(err, notification.ErrInvalidInput),
		errors.Is(err, activity.ErrInvalidInput),
		errors.Is(err, pagination.ErrInvalidCursor):
		return http.StatusBadRequest, "VALIDATION_FAILED"

	case errors.Is(err, rbac.ErrUnauthorized),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrUnauthorized),
		errors.Is(err, session.ErrRevoked),
		errors.Is(err, session.ErrExpired),
		errors.Is(err, session.ErrTokenIDMismatch),
		errors.Is(err, session.ErrInvalidRefresh),
		errors.Is(err, apikey.ErrInactive),
		errors.Is(err, apikey.ErrExpired),
		errors.Is(err, apikey.ErrInvalidSecret):
		return http.StatusUnauthorized, "UNAUTHORIZED"

	case errors.Is(err, auth.ErrRoleForbidden),
		errors.Is(err, auth.ErrAbilityForbidden),
		errors.Is(err, apikey.ErrTypeForbidden),
		errors.Is(err, termpolicy.ErrNotAccepted):
		return http.StatusForbidden, "FORBIDDEN"

	case errors.Is(err, rbac.ErrNotFound),
		errors.Is(err, session.ErrNotFound),
		errors.Is(err, apikey.ErrNotFound),
		errors.Is(err, setting.ErrNotFound),
		errors.Is(err, termpolicy.ErrNotFound),
		errors.Is(err, notification.ErrNotFound),
		errors.Is(err, activity.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"

	case errors.Is(err, rbac.ErrConflict),
		errors.Is(err, termpolicy.ErrAlreadyAccepted):
		return http.StatusConflict, "CONFLICT"
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}

// decodeJSON parses a request body into dst with unknown fields rejected.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return nil
}
