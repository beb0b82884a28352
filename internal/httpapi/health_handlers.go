package httpapi

import (
	"net/http"
	"time"
)

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	a.respond(w, r, http.StatusOK, "OK", map[string]string{"status": "ok"}, nil)
}

// handleReadyz pings the database; the process is not ready to serve until
// the store answers.
func (a *API) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if a.db != nil {
		if err := a.db.PingContext(r.Context()); err != nil {
			a.respondErrors(w, r, http.StatusServiceUnavailable, "NOT_READY", nil)
			return
		}
	}
	a.respond(w, r, http.StatusOK, "READY", map[string]string{"status": "ready"}, nil)
}

// handleHealthDetail reports component states for system-key callers.
func (a *API) handleHealthDetail(w http.ResponseWriter, r *http.Request) {
	detail := map[string]any{
		"version": a.version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	}
	dbStatus := "ok"
	if a.db != nil {
		if err := a.db.PingContext(r.Context()); err != nil {
			dbStatus = "unreachable"
		}
		stats := a.db.Stats()
		detail["database"] = map[string]any{
			"status":          dbStatus,
			"openConnections": stats.OpenConnections,
			"inUse":           stats.InUse,
			"idle":            stats.Idle,
		}
	} else {
		detail["database"] = map[string]any{"status": "not configured"}
	}
	status := http.StatusOK
	message := "OK"
	if dbStatus != "ok" {
		status = http.StatusServiceUnavailable
		message = "DEGRADED"
	}
	a.respond(w, r, status, message, detail, nil)
}
