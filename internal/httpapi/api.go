// Package httpapi exposes the platform over HTTP JSON.
package httpapi

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"procur.org/internal/auth"
	"procur.org/internal/group"
	"procur.org/internal/idp"
	"procur.org/internal/invite"
	"procur.org/internal/mail"
	"procur.org/internal/obs"
	"procur.org/internal/stream"
	"procur.org/internal/upload"
)

// UserDirectory is the user persistence surface the handlers need.
type UserDirectory interface {
	auth.UserStore
	FindUserByEmail(ctx context.Context, email string) (*auth.User, error)
	CreateUser(ctx context.Context, u *auth.User) error
	UpdateUser(ctx context.Context, u *auth.User) error
	SetUserActive(ctx context.Context, userID string, active bool) error
}

// ReadyProbe reports readiness, pinging the database when one is wired.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options wires the API's collaborators.
type Options struct {
	Version    string
	ReadyProbe ReadyProbe

	Validator *auth.Validator
	Resolver  *auth.Resolver
	Gate      *auth.Gate
	Provider  *idp.Provider
	Users     UserDirectory
	Groups    *group.Service
	Invites   *invite.Service

	// Optional subsystems; nil disables the matching endpoints.
	Uploads *upload.Service
	Mailer  *mail.Mailer
	Events  *stream.Stream

	Origins      []string
	MaxBodyBytes int64
	RateBurst    int
	RatePerSec   float64
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	version    string
	readyProbe ReadyProbe

	validator *auth.Validator
	resolver  *auth.Resolver
	gate      *auth.Gate
	provider  *idp.Provider
	users     UserDirectory
	groups    *group.Service
	invites   *invite.Service
	uploads   *upload.Service
	mailer    *mail.Mailer
	events    *stream.Stream

	origins      []string
	maxBodyBytes int64
	rateBurst    int
	ratePerSec   float64
}

// New assembles the API and registers its routes.
func New(opts Options) (*API, error) {
	switch {
	case opts.Validator == nil:
		return nil, errors.New("httpapi: validator is required")
	case opts.Resolver == nil:
		return nil, errors.New("httpapi: resolver is required")
	case opts.Gate == nil:
		return nil, errors.New("httpapi: gate is required")
	case opts.Provider == nil:
		return nil, errors.New("httpapi: identity provider is required")
	case opts.Users == nil:
		return nil, errors.New("httpapi: user directory is required")
	case opts.Groups == nil:
		return nil, errors.New("httpapi: group service is required")
	case opts.Invites == nil:
		return nil, errors.New("httpapi: invitation service is required")
	}

	a := &API{
		mux:        http.NewServeMux(),
		version:    opts.Version,
		readyProbe: opts.ReadyProbe,

		validator: opts.Validator,
		resolver:  opts.Resolver,
		gate:      opts.Gate,
		provider:  opts.Provider,
		users:     opts.Users,
		groups:    opts.Groups,
		invites:   opts.Invites,
		uploads:   opts.Uploads,
		mailer:    opts.Mailer,
		events:    opts.Events,

		origins:      opts.Origins,
		maxBodyBytes: opts.MaxBodyBytes,
		rateBurst:    opts.RateBurst,
		ratePerSec:   opts.RatePerSec,
	}
	if a.maxBodyBytes <= 0 {
		a.maxBodyBytes = 1 << 20
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 40
	}
	if a.ratePerSec <= 0 {
		a.ratePerSec = 20
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/api/auth/token", a.handleAuthToken)
	a.mux.HandleFunc("/api/auth/verify-token", a.handleVerifyToken)
	a.mux.HandleFunc("/api/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/api/auth/me", a.handleMe)
	a.mux.HandleFunc("/api/auth/dashboard", a.handleDashboard)
	a.mux.HandleFunc("/api/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/api/auth/check", a.handleCheck)

	a.mux.HandleFunc("/api/users/register", a.handleRegister)
	a.mux.HandleFunc("/api/users/profile", a.handleProfile)
	a.mux.HandleFunc("/api/users/groups", a.handleUserGroups)
	a.mux.HandleFunc("/api/users/notifications", a.handleUserNotifications)
	a.mux.HandleFunc("/api/users/", a.handleUserResource)

	a.mux.HandleFunc("/api/groups", a.handleGroupsCollection)
	a.mux.HandleFunc("/api/groups/", a.handleGroupScoped)

	a.mux.HandleFunc("/api/invitations", a.handleInvitationsCollection)
	a.mux.HandleFunc("/api/invitations/", a.handleInvitationScoped)

	if a.uploads != nil {
		a.mux.HandleFunc("/api/uploads/", a.handleUploadScoped)
		a.mux.Handle("/uploads/", http.StripPrefix("/uploads/",
			http.FileServer(http.Dir(a.uploads.Dir()))))
	}
	if a.events != nil {
		a.mux.HandleFunc("/api/events", a.handleEvents)
	}

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a, nil
}

// Handler returns the fully wrapped root handler.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = MaxBodyBytes(h, a.maxBodyBytes)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h, a.origins)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "procur-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}
