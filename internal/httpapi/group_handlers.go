package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"procur.org/internal/group"
)

type joinGroupRequest struct {
	Message string `json:"message"`
}

type reviewJoinRequest struct {
	Approve bool   `json:"approve"`
	Message string `json:"message"`
}

func (a *API) handleGroupsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createGroup(w, r)
	case http.MethodGet:
		a.listGroups(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleGroupScoped routes /api/groups/{id} and its sub-resources.
func (a *API) handleGroupScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/groups/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	groupID := parts[0]

	// Join-request reviews address the request directly; the group is
	// resolved from the stored request.
	if parts[0] == "join-requests" {
		if len(parts) == 2 {
			a.reviewJoinRequest(w, r, parts[1])
		} else {
			writeError(w, r, http.StatusNotFound, "resource not found")
		}
		return
	}

	switch {
	case len(parts) == 1:
		a.handleGroupResource(w, r, groupID)
	case len(parts) == 2 && parts[1] == "join":
		a.joinGroup(w, r, groupID)
	case len(parts) == 2 && parts[1] == "join-requests":
		a.listJoinRequests(w, r, groupID)
	case len(parts) == 3 && parts[1] == "join-requests":
		a.reviewJoinRequest(w, r, parts[2])
	case len(parts) == 2 && parts[1] == "members":
		a.listMembers(w, r, groupID)
	case len(parts) == 3 && parts[1] == "members":
		a.removeMember(w, r, groupID, parts[2])
	case len(parts) == 2 && parts[1] == "leave":
		a.leaveGroup(w, r, groupID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) createGroup(w http.ResponseWriter, r *http.Request) {
	user, err := requireUser(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var input group.CreateInput
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	g, err := a.groups.Create(r.Context(), user, input)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/groups/"+g.ID)
	writeData(w, http.StatusCreated, g)
}

func (a *API) listGroups(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := group.ListFilter{
		Industry: strings.TrimSpace(q.Get("industry")),
		Search:   strings.TrimSpace(q.Get("search")),
		Sort:     strings.TrimSpace(q.Get("sort")),
		Page:     max(intQuery(q.Get("page"), 1), 1),
		PageSize: intQuery(q.Get("page_size"), 20),
	}
	groups, total, err := a.groups.List(r.Context(), callerOrNil(r.Context()), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeList(w, groups, filter.Page, filter.PageSize, total)
}

func (a *API) handleGroupResource(w http.ResponseWriter, r *http.Request, groupID string) {
	switch r.Method {
	case http.MethodGet:
		g, err := a.groups.Get(r.Context(), callerOrNil(r.Context()), groupID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, g)
	case http.MethodPut:
		user, err := requireUser(r.Context())
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		var input group.UpdateInput
		if err := decodeJSON(w, r, &input); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		g, err := a.groups.Update(r.Context(), user, groupID, input)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, g)
	case http.MethodDelete:
		user, err := requireUser(r.Context())
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if err := a.groups.Delete(r.Context(), user, groupID); err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, map[string]any{"deleted": true})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) joinGroup(w http.ResponseWriter, r *http.Request, groupID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	user, err := requireUser(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var req joinGroupRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
	}
	jr, err := a.groups.RequestJoin(r.Context(), user, groupID, req.Message)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, jr)
}

func (a *API) listJoinRequests(w http.ResponseWriter, r *http.Request, groupID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	user, err := requireUser(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	status := group.JoinRequestStatus(strings.TrimSpace(r.URL.Query().Get("status")))
	requests, err := a.groups.ListJoinRequests(r.Context(), user, groupID, status)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, requests)
}

func (a *API) reviewJoinRequest(w http.ResponseWriter, r *http.Request, requestID string) {
	if r.Method != http.MethodPatch && r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPatch, http.MethodPut)
		return
	}
	user, err := requireUser(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var req reviewJoinRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	jr, err := a.groups.ReviewJoinRequest(r.Context(), user, requestID, req.Approve, req.Message)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, jr)
}

func (a *API) listMembers(w http.ResponseWriter, r *http.Request, groupID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	members, err := a.groups.ListMembers(r.Context(), callerOrNil(r.Context()), groupID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, members)
}

func (a *API) removeMember(w http.ResponseWriter, r *http.Request, groupID, userID string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	user, err := requireUser(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := a.groups.RemoveMember(r.Context(), user, groupID, userID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"removed": true})
}

func (a *API) leaveGroup(w http.ResponseWriter, r *http.Request, groupID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	user, err := requireUser(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := a.groups.Leave(r.Context(), user, groupID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"left": true})
}

func intQuery(raw string, def int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
