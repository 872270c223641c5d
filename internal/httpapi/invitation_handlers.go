package httpapi

import (
	"net/http"
	"strings"
	"time"

	"procur.org/internal/invite"
)

// invitationView decorates an invitation with its shareable URL and
// derived status.
type invitationView struct {
	invite.Invitation
	URL    string `json:"url"`
	Status string `json:"status"`
}

func (a *API) inviteView(inv invite.Invitation) invitationView {
	return invitationView{
		Invitation: inv,
		URL:        a.invites.URL(inv.Token),
		Status:     inv.Status(time.Now()),
	}
}

func (a *API) inviteViews(invs []invite.Invitation) []invitationView {
	views := make([]invitationView, 0, len(invs))
	for _, inv := range invs {
		views = append(views, a.inviteView(inv))
	}
	return views
}

func (a *API) handleInvitationsCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	user, err := requireUser(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var input invite.CreateInput
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	inv, err := a.invites.Create(r.Context(), user, input)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, a.inviteView(*inv))
}

// handleInvitationScoped routes /api/invitations/{...}.
func (a *API) handleInvitationScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/invitations/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")

	switch {
	case len(parts) == 2 && parts[0] == "validate":
		a.validateInvitation(w, r, parts[1])
	case len(parts) == 2 && parts[0] == "join":
		a.joinByInvitation(w, r, parts[1])
	case len(parts) == 2 && parts[0] == "group":
		a.listGroupInvitations(w, r, parts[1])
	case len(parts) == 1 && parts[0] == "my-invitations":
		a.listMyInvitations(w, r)
	case len(parts) == 1:
		a.deactivateInvitation(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "regenerate":
		a.regenerateInvitation(w, r, parts[0])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

// validateInvitation is public: it always answers 200 with a verdict.
func (a *API) validateInvitation(w http.ResponseWriter, r *http.Request, token string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	verdict, err := a.invites.Validate(r.Context(), token)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, verdict)
}

func (a *API) joinByInvitation(w http.ResponseWriter, r *http.Request, token string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	user, err := requireUser(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	g, err := a.invites.Join(r.Context(), user, token)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"joined": true,
		"group":  g,
	})
}

func (a *API) listGroupInvitations(w http.ResponseWriter, r *http.Request, groupID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	user, err := requireUser(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	invs, err := a.invites.ListForGroup(r.Context(), user, groupID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, a.inviteViews(invs))
}

func (a *API) listMyInvitations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	user, err := requireUser(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	invs, err := a.invites.ListMine(r.Context(), user)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, a.inviteViews(invs))
}

func (a *API) deactivateInvitation(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	user, err := requireUser(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := a.invites.Deactivate(r.Context(), user, id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"deactivated": true})
}

func (a *API) regenerateInvitation(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	user, err := requireUser(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	inv, err := a.invites.Regenerate(r.Context(), user, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, a.inviteView(*inv))
}
