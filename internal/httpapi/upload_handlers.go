package httpapi

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"procur.org/internal/group"
	"procur.org/internal/upload"
)

// handleUploadScoped routes /api/uploads/{avatar|group-logo/{id}|group-banner/{id}|upload-url}.
func (a *API) handleUploadScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/uploads/"), "/")
	parts := strings.Split(path, "/")

	switch {
	case len(parts) == 1 && parts[0] == "avatar":
		switch r.Method {
		case http.MethodPost:
			a.uploadAvatar(w, r)
		case http.MethodDelete:
			a.deleteAvatar(w, r)
		default:
			methodNotAllowed(w, r, http.MethodPost, http.MethodDelete)
		}
	case len(parts) == 1 && parts[0] == "upload-url":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.handleUploadURL(w, r)
	case len(parts) == 2 && parts[0] == "group-logo":
		a.uploadGroupImage(w, r, parts[1], group.ImageLogo)
	case len(parts) == 2 && parts[0] == "group-banner":
		a.uploadGroupImage(w, r, parts[1], group.ImageBanner)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

// readUploadFile pulls the "file" part out of a multipart form.
func (a *API) readUploadFile(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	if err := r.ParseMultipartForm(a.uploads.MaxBytes()); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid multipart form")
		return nil, false
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "file field is required")
		return nil, false
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, a.uploads.MaxBytes()+1))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "could not read file")
		return nil, false
	}
	return data, true
}

func (a *API) uploadAvatar(w http.ResponseWriter, r *http.Request) {
	user, err := requireUser(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	data, ok := a.readUploadFile(w, r)
	if !ok {
		return
	}
	rel, err := a.uploads.SaveImage(r.Context(), upload.KindUser, user.ID, data)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	previous := user.AvatarURL
	user.AvatarURL = rel
	user.UpdatedAt = time.Now().UTC()
	if err := a.users.UpdateUser(r.Context(), &user); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if previous != "" {
		_ = a.uploads.Delete(r.Context(), previous)
	}
	writeData(w, http.StatusOK, map[string]any{
		"url":  a.uploads.PublicURL(rel),
		"user": user,
	})
}

// deleteAvatar removes the signed-in user's avatar file and clears the
// stored URL.
func (a *API) deleteAvatar(w http.ResponseWriter, r *http.Request) {
	user, err := requireUser(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if user.AvatarURL != "" {
		_ = a.uploads.Delete(r.Context(), user.AvatarURL)
		user.AvatarURL = ""
		user.UpdatedAt = time.Now().UTC()
		if err := a.users.UpdateUser(r.Context(), &user); err != nil {
			writeServiceError(w, r, err)
			return
		}
	}
	writeData(w, http.StatusOK, map[string]any{"deleted": true, "user": user})
}

// handleUploadURL validates an intended upload and points the client at
// the matching endpoint. Kept request/response compatible with a future
// move to presigned object-storage URLs.
func (a *API) handleUploadURL(w http.ResponseWriter, r *http.Request) {
	if _, err := requireUser(r.Context()); err != nil {
		writeServiceError(w, r, err)
		return
	}
	q := r.URL.Query()
	size, err := strconv.ParseInt(strings.TrimSpace(q.Get("file_size")), 10, 64)
	if err != nil || size <= 0 {
		writeError(w, r, http.StatusBadRequest, "file_size is required")
		return
	}
	if size > a.uploads.MaxBytes() {
		writeError(w, r, http.StatusRequestEntityTooLarge, "file too large")
		return
	}
	if !a.uploads.TypeAllowed(q.Get("file_type")) {
		writeError(w, r, http.StatusUnsupportedMediaType, "file type not allowed")
		return
	}
	uploadType := strings.TrimSpace(q.Get("upload_type"))
	if uploadType == "" {
		uploadType = "avatar"
	}
	groupID := strings.TrimSpace(q.Get("group_id"))
	var endpoint string
	switch uploadType {
	case "avatar":
		endpoint = "/api/uploads/avatar"
	case "group_logo":
		if groupID != "" {
			endpoint = "/api/uploads/group-logo/" + groupID
		}
	case "group_banner":
		if groupID != "" {
			endpoint = "/api/uploads/group-banner/" + groupID
		}
	}
	if endpoint == "" {
		writeError(w, r, http.StatusBadRequest, "invalid upload type")
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"upload_url":    endpoint,
		"method":        http.MethodPost,
		"max_file_size": a.uploads.MaxBytes(),
		"allowed_types": a.uploads.AllowedTypes(),
	})
}

func (a *API) uploadGroupImage(w http.ResponseWriter, r *http.Request, groupID string, kind group.ImageKind) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	user, err := requireUser(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	data, ok := a.readUploadFile(w, r)
	if !ok {
		return
	}
	rel, err := a.uploads.SaveImage(r.Context(), upload.KindGroup, groupID, data)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	g, previous, err := a.groups.SetImage(r.Context(), user, groupID, kind, rel)
	if err != nil {
		// The file is orphaned if authorization failed; clean it up.
		_ = a.uploads.Delete(r.Context(), rel)
		writeServiceError(w, r, err)
		return
	}
	if previous != "" {
		_ = a.uploads.Delete(r.Context(), previous)
	}
	writeData(w, http.StatusOK, map[string]any{
		"url":   a.uploads.PublicURL(rel),
		"group": g,
	})
}
