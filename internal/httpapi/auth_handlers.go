package httpapi

import (
	"net/http"
	"strings"
	"time"

	"procur.org/internal/audit"
	"procur.org/internal/auth"
)

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type verifyTokenRequest struct {
	Token string `json:"token"`
}

type sessionResponse struct {
	Token     string    `json:"token"`
	ExpiresAt string    `json:"expires_at"`
	User      auth.User `json:"user"`
}

// handleAuthToken exchanges email/password for a credential.
func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req signInRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	token, claims, err := a.provider.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	user, err := a.resolver.Resolve(r.Context(), claims.Subject)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.sign_in", map[string]any{"subject": claims.Subject})
	writeData(w, http.StatusOK, sessionResponse{
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Format(time.RFC3339),
		User:      user,
	})
}

// handleVerifyToken validates a credential supplied in the body and
// returns the user it resolves to.
func (a *API) handleVerifyToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req verifyTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	claims, err := a.validator.Validate(r.Context(), strings.TrimSpace(req.Token), true)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	user, err := a.resolver.Resolve(r.Context(), claims.Subject)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"valid": true,
		"user":  user,
	})
}

// handleRefresh mints a fresh credential for the authenticated user.
func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	user, err := requireUser(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	token, err := a.provider.CreateCustomToken(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"token": token,
		"user":  user,
	})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	user, err := requireUser(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, user)
}

// handleDashboard aggregates the signed-in user's memberships.
func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
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
	administered := 0
	for _, g := range groups {
		if g.AdminID == user.ID {
			administered++
		}
	}
	writeData(w, http.StatusOK, map[string]any{
		"user":               user,
		"groups":             groups,
		"group_count":        len(groups),
		"administered_count": administered,
	})
}

// handleLogout revokes the presented credential for the remainder of its
// lifetime.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	user, err := requireUser(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	token, ok := auth.TokenFromContext(r.Context())
	if !ok {
		writeServiceError(w, r, auth.ErrUnauthorized)
		return
	}
	a.validator.Blacklist().Add(token, 0)
	_ = audit.LogEvent(r.Context(), "auth.sign_out", map[string]any{"subject": user.ID})
	writeData(w, http.StatusOK, map[string]any{"signed_out": true})
}

func (a *API) handleCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if user := callerOrNil(r.Context()); user != nil {
		writeData(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"user_id":       user.ID,
		})
		return
	}
	writeData(w, http.StatusOK, map[string]any{"authenticated": false})
}
