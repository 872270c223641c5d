package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"net/mail"
	"sort"
	"strings"
	"time"

	"procur.org/internal/audit"
	"procur.org/internal/auth"
	"procur.org/internal/group"
	"procur.org/internal/ids"
)

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	CompanyName string `json:"company_name"`
	Industry    string `json:"industry"`
	Phone       string `json:"phone"`
}

type updateProfileRequest struct {
	DisplayName *string `json:"display_name"`
	CompanyName *string `json:"company_name"`
	Industry    *string `json:"industry"`
	Phone       *string `json:"phone"`
	Bio         *string `json:"bio"`
}

const minPasswordLen = 8

// handleRegister creates the provider account and profile, then signs
// the new user in.
func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		writeError(w, r, http.StatusBadRequest, "a valid email is required")
		return
	}
	if len(req.Password) < minPasswordLen {
		writeError(w, r, http.StatusBadRequest,
			fmt.Sprintf("password must be at least %d characters", minPasswordLen))
		return
	}
	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		writeError(w, r, http.StatusBadRequest, "display_name is required")
		return
	}

	userID := ids.New()
	if err := a.provider.CreateAccount(r.Context(), userID, email, req.Password); err != nil {
		writeServiceError(w, r, err)
		return
	}
	now := time.Now().UTC()
	user := &auth.User{
		ID:          userID,
		Email:       email,
		DisplayName: displayName,
		CompanyName: strings.TrimSpace(req.CompanyName),
		Industry:    strings.TrimSpace(req.Industry),
		Phone:       strings.TrimSpace(req.Phone),
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := a.users.CreateUser(r.Context(), user); err != nil {
		writeServiceError(w, r, err)
		return
	}
	token, claims, err := a.provider.SignIn(r.Context(), email, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if a.mailer != nil {
		go a.mailer.SendWelcome(context.Background(), email, displayName)
	}
	_ = audit.LogEvent(r.Context(), "user.registered", map[string]any{"subject": userID})
	writeData(w, http.StatusCreated, sessionResponse{
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Format(time.RFC3339),
		User:      *user,
	})
}

// handleProfile reads or updates the signed-in user's own profile.
func (a *API) handleProfile(w http.ResponseWriter, r *http.Request) {
	user, err := requireUser(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeData(w, http.StatusOK, user)
	case http.MethodPut:
		a.updateProfile(w, r, user)
	case http.MethodDelete:
		a.deleteOwnAccount(w, r, user)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

// deleteOwnAccount soft-deletes the signed-in user: memberships are
// released, the profile is deactivated, and every session is revoked.
// Group owners must hand off their groups first.
func (a *API) deleteOwnAccount(w http.ResponseWriter, r *http.Request, user auth.User) {
	groups, err := a.groups.UserGroups(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	for _, g := range groups {
		if g.AdminID == user.ID {
			writeError(w, r, http.StatusConflict,
				"cannot delete account while managing groups; transfer administration first")
			return
		}
	}
	for _, g := range groups {
		_ = a.groups.Leave(r.Context(), user, g.ID)
	}
	if err := a.users.SetUserActive(r.Context(), user.ID, false); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := a.provider.RevokeAllTokens(r.Context(), user.ID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if token, ok := auth.TokenFromContext(r.Context()); ok {
		a.validator.Blacklist().Add(token, 0)
	}
	_ = audit.LogEvent(r.Context(), "user.account_deleted", map[string]any{"subject": user.ID})
	writeData(w, http.StatusOK, map[string]any{"deleted": true})
}

func (a *API) updateProfile(w http.ResponseWriter, r *http.Request, user auth.User) {
	var req updateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.DisplayName != nil {
		name := strings.TrimSpace(*req.DisplayName)
		if name == "" {
			writeError(w, r, http.StatusBadRequest, "display_name must not be empty")
			return
		}
		user.DisplayName = name
	}
	if req.CompanyName != nil {
		user.CompanyName = strings.TrimSpace(*req.CompanyName)
	}
	if req.Industry != nil {
		user.Industry = strings.TrimSpace(*req.Industry)
	}
	if req.Phone != nil {
		user.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Bio != nil {
		user.Bio = strings.TrimSpace(*req.Bio)
	}
	user.UpdatedAt = time.Now().UTC()
	if err := a.users.UpdateUser(r.Context(), &user); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, user)
}

// handleUserGroups lists the signed-in user's groups.
func (a *API) handleUserGroups(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	user, err := requireUser(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	groups, err := a.groups.UserGroups(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, groups)
}

type notification struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data"`
	Read      bool           `json:"read"`
	CreatedAt time.Time      `json:"created_at"`
}

// handleUserNotifications surfaces pending join requests for the groups
// the signed-in user administers, newest first.
func (a *API) handleUserNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	user, err := requireUser(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	limit := intQuery(r.URL.Query().Get("limit"), 20)
	if limit <= 0 {
		limit = 20
	}
	groups, err := a.groups.UserGroups(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	notifications := []notification{}
	for _, g := range groups {
		if g.AdminID != user.ID {
			continue
		}
		requests, err := a.groups.ListJoinRequests(r.Context(), user, g.ID, group.StatusPending)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		for _, req := range requests {
			notifications = append(notifications, notification{
				ID:      req.ID,
				Type:    "join_request",
				Title:   "New join request for " + g.Name,
				Message: "A buyer wants to join your group",
				Data: map[string]any{
					"group_id":   g.ID,
					"group_name": g.Name,
					"user_id":    req.UserID,
					"request_id": req.ID,
				},
				CreatedAt: req.CreatedAt,
			})
		}
	}
	sort.Slice(notifications, func(i, j int) bool {
		return notifications[i].CreatedAt.After(notifications[j].CreatedAt)
	})
	if len(notifications) > limit {
		notifications = notifications[:limit]
	}
	writeData(w, http.StatusOK, map[string]any{
		"notifications": notifications,
		"unread_count":  len(notifications),
	})
}

// handleUserResource serves /api/users/{id}: profile reads and account
// deactivation, both gated on the actor's standing with the target.
func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	actor, err := requireUser(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	targetID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/users/"), "/")
	if targetID == "" || strings.Contains(targetID, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	ok, err := a.gate.CanActOnUser(r.Context(), actor, targetID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !ok {
		writeServiceError(w, r, fmt.Errorf("%w: no shared group administration", auth.ErrForbidden))
		return
	}
	switch r.Method {
	case http.MethodGet:
		target, err := a.users.Find(r.Context(), targetID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, target)
	case http.MethodDelete:
		if err := a.users.SetUserActive(r.Context(), targetID, false); err != nil {
			writeServiceError(w, r, err)
			return
		}
		if err := a.provider.RevokeAllTokens(r.Context(), targetID); err != nil {
			writeServiceError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "user.deactivated", map[string]any{
			"subject": targetID,
			"actor":   actor.ID,
		})
		writeData(w, http.StatusOK, map[string]any{"deactivated": true})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}
