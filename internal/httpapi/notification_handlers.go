package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"gatewise.org/internal/auth"
	"gatewise.org/internal/notification"
	"gatewise.org/internal/pagination"
)

func (a *API) notificationListOptions() pagination.Options {
	return pagination.Options{
		DefaultPerPage:   a.cfg.DefaultPerPage,
		MaxPerPage:       a.cfg.MaxPerPage,
		DefaultOrderBy:   "created_at",
		AvailableOrderBy: []string{"created_at"},
		DefaultDirection: pagination.Desc,
		CursorMode:       true,
	}
}

// handleNotificationList pages the inbox by cursor so new arrivals cannot
// shift rows between pages.
func (a *API) handleNotificationList(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())
	d, err := pagination.FromQuery(r.URL.Query(), a.notificationListOptions())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	ns, total, err := a.notifications.List(r.Context(), claims.SubjectID, d)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	// Cursor-mode queries fetch one extra row; its presence means there is a
	// next page, keyed by the last row actually returned.
	var nextCursor *string
	if len(ns) > d.PerPage {
		ns = ns[:d.PerPage]
		last := ns[len(ns)-1]
		cur := pagination.EncodeCursor(last.CreatedAt.UTC().Format(time.RFC3339Nano), last.ID)
		nextCursor = &cur
	}
	if ns == nil {
		ns = []*notification.Notification{}
	}
	a.respond(w, r, http.StatusOK, "OK", ns, cursorMeta{
		PerPage:    d.PerPage,
		Total:      total,
		NextCursor: nextCursor,
	})
}

func (a *API) handleNotificationUnread(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())
	count, err := a.notifications.Unread(r.Context(), claims.SubjectID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, "OK", map[string]int64{"unread": count}, nil)
}

func (a *API) handleNotificationRead(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())
	if err := a.notifications.MarkRead(r.Context(), claims.SubjectID, chi.URLParam(r, "id")); err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, "NOTIFICATION_READ", nil, nil)
}

func (a *API) handleNotificationReadAll(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())
	if err := a.notifications.MarkAllRead(r.Context(), claims.SubjectID); err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, "NOTIFICATIONS_READ", nil, nil)
}

type sendNotificationRequest struct {
	UserID string `json:"userId"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	Topic  string `json:"topic"`
}

func (a *API) handleNotificationSend(w http.ResponseWriter, r *http.Request) {
	var req sendNotificationRequest
	if err := decodeJSON(r, &req); err != nil {
		a.respondErrors(w, r, http.StatusBadRequest, "VALIDATION_FAILED", []string{"malformed JSON body"})
		return
	}
	n, err := a.notifications.Send(r.Context(), req.UserID, req.Title, req.Body, req.Topic)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, r, http.StatusCreated, "NOTIFICATION_SENT", n, nil)
}

type broadcastRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Topic string `json:"topic"`
}

func (a *API) handleNotificationBroadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := decodeJSON(r, &req); err != nil {
		a.respondErrors(w, r, http.StatusBadRequest, "VALIDATION_FAILED", []string{"malformed JSON body"})
		return
	}
	sent, err := a.notifications.Broadcast(r.Context(), req.Title, req.Body, req.Topic)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, r, http.StatusCreated, "NOTIFICATION_BROADCAST", map[string]int{"delivered": sent}, nil)
}
