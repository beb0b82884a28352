// Package httpapi exposes the REST surface: routing, middleware, route
// guards and the response envelope. Handlers stay thin; domain rules live in
// the service packages.
package httpapi

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gatewise.org/internal/activity"
	"gatewise.org/internal/apikey"
	"gatewise.org/internal/auth"
	"gatewise.org/internal/config"
	"gatewise.org/internal/notification"
	"gatewise.org/internal/obs"
	"gatewise.org/internal/rbac"
	"gatewise.org/internal/session"
	"gatewise.org/internal/setting"
	"gatewise.org/internal/termpolicy"
)

// Feature flags consulted by route guards.
const (
	featureNotifications = "feature.notifications"
)

// Deps carries everything the API needs. All fields are required unless
// noted.
type Deps struct {
	Config        *config.Config
	Tokens        *auth.Tokens
	RBAC          *rbac.Service
	Sessions      *session.Service
	APIKeys       *apikey.Service
	Settings      *setting.Service
	Policies      *termpolicy.Service
	Notifications *notification.Service
	Activities    *activity.Service
	DB            *sql.DB // readiness ping; may be nil in tests
	Version       string
}

// API is the HTTP layer of the service.
type API struct {
	cfg           *config.Config
	tokens        *auth.Tokens
	rbac          *rbac.Service
	sessions      *session.Service
	apikeys       *apikey.Service
	settings      *setting.Service
	policies      *termpolicy.Service
	notifications *notification.Service
	activities    *activity.Service
	db            *sql.DB
	version       string
}

// New constructs the API.
func New(d Deps) *API {
	return &API{
		cfg:           d.Config,
		tokens:        d.Tokens,
		rbac:          d.RBAC,
		sessions:      d.Sessions,
		apikeys:       d.APIKeys,
		settings:      d.Settings,
		policies:      d.Policies,
		notifications: d.Notifications,
		activities:    d.Activities,
		db:            d.DB,
		version:       d.Version,
	}
}

// Handler builds the full route tree wrapped with metrics instrumentation.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(a.requestID)
	r.Use(a.recovery)
	r.Use(a.loggingJSON)
	r.Use(a.securityHeaders)
	r.Use(a.cors)
	r.Use(a.rateLimit())
	r.Use(a.maxBody)

	r.Get("/healthz", a.handleHealthz)
	r.Get("/readyz", a.handleReadyz)
	r.Method(http.MethodGet, "/metrics", obs.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/public/user", func(r chi.Router) {
			r.Use(a.requireAPIKey(apikey.TypeDefault))
			r.Post("/login", a.handleLogin)
			r.Post("/refresh", a.handleRefresh)
		})

		r.Route("/user", func(r chi.Router) {
			r.Use(a.requireAPIKey(apikey.TypeDefault))
			r.Use(a.requireSession)

			// Policy endpoints stay reachable without the policy guard so a
			// user can read and accept the version that is blocking them.
			r.Get("/term-policy/list", a.handleUserPolicyList)
			r.Post("/term-policy/{id}/accept", a.handlePolicyAccept)

			r.Group(func(r chi.Router) {
				r.Use(a.requirePolicy(termpolicy.TypeTerms))

				r.Get("/profile", a.handleProfile)
				r.Delete("/logout", a.handleLogout)
				r.Get("/session/list", a.handleSessionList)
				r.Delete("/session/{id}/revoke", a.handleSessionRevoke)
				r.Get("/activity-log/list", a.handleActivityList)

				r.Group(func(r chi.Router) {
					r.Use(a.requireFeature(featureNotifications))
					r.Get("/notification/list", a.handleNotificationList)
					r.Get("/notification/unread", a.handleNotificationUnread)
					r.Patch("/notification/{id}/read", a.handleNotificationRead)
					r.Patch("/notification/read-all", a.handleNotificationReadAll)
				})
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(a.requireAPIKey(apikey.TypeDefault, apikey.TypeSystem))
			r.Use(a.requireSession)
			r.Use(a.requireRoles(auth.RoleAdmin))

			r.Post("/user/create", a.handleUserCreate)
			r.Get("/user/list", a.handleUserList)
			r.Get("/user/{id}", a.handleUserGet)
			r.Patch("/user/{id}/update", a.handleUserUpdate)
			r.Delete("/user/{id}/delete", a.handleUserDelete)

			r.Post("/role/create", a.handleRoleCreate)
			r.Get("/role/list", a.handleRoleList)
			r.Get("/role/{id}", a.handleRoleGet)
			r.Patch("/role/{id}/update", a.handleRoleRename)
			r.Put("/role/{id}/abilities", a.handleRoleAbilities)
			r.Delete("/role/{id}/delete", a.handleRoleDelete)

			// Key management additionally needs the api-key ability; the
			// superAdmin bypass in the evaluator still applies.
			r.Group(func(r chi.Router) {
				r.Use(a.requireAbilities(auth.Ability{Subject: "api-key", Action: "manage"}))
				r.Post("/api-key/create", a.handleAPIKeyCreate)
				r.Get("/api-key/list", a.handleAPIKeyList)
				r.Get("/api-key/{id}", a.handleAPIKeyGet)
				r.Patch("/api-key/{id}/update", a.handleAPIKeyRename)
				r.Patch("/api-key/{id}/activate", a.handleAPIKeyActivate)
				r.Patch("/api-key/{id}/deactivate", a.handleAPIKeyDeactivate)
				r.Post("/api-key/{id}/reset-secret", a.handleAPIKeyResetSecret)
				r.Delete("/api-key/{id}/delete", a.handleAPIKeyDelete)
			})

			r.Put("/setting/{key}", a.handleSettingSet)
			r.Get("/setting/list", a.handleSettingList)
			r.Get("/setting/{key}", a.handleSettingGet)
			r.Delete("/setting/{key}/delete", a.handleSettingDelete)

			r.Post("/term-policy/create", a.handlePolicyCreate)
			r.Get("/term-policy/list", a.handlePolicyList)
			r.Post("/term-policy/{id}/publish", a.handlePolicyPublish)
			r.Delete("/term-policy/{id}/delete", a.handlePolicyDelete)

			r.Post("/notification/send", a.handleNotificationSend)
			r.Post("/notification/broadcast", a.handleNotificationBroadcast)

			r.Get("/activity-log/list", a.handleAdminActivityList)
		})

		r.Route("/system", func(r chi.Router) {
			r.Use(a.requireAPIKey(apikey.TypeSystem))
			r.Get("/health/detail", a.handleHealthDetail)
			r.Get("/setting/{key}", a.handleSettingGet)
		})

		r.Route("/shared", func(r chi.Router) {
			r.Use(a.requireAPIKey(apikey.TypeDefault, apikey.TypeSystem))
			r.Get("/setting/{key}", a.handleSharedSetting)
		})
	})

	return obs.Instrument(r)
}
