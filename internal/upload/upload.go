// Package upload stores validated image files for avatars and group art.
package upload

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"procur.org/internal/auth"
	"procur.org/internal/obs"
)

// Kind selects the storage subdirectory for an upload.
type Kind string

const (
	KindUser  Kind = "users"
	KindGroup Kind = "groups"
)

const urlPrefix = "/uploads/"

var extByMIME = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Service writes validated images under dir/{users,groups}/ and hands out
// their public URLs.
type Service struct {
	dir      string
	maxBytes int64
	allowed  map[string]string
	cdnURL   string
}

// NewService constructs a Service and makes sure the storage directories
// exist.
func NewService(dir string, maxBytes int64, allowedMIME []string, cdnURL string) (*Service, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("upload: storage directory is required")
	}
	if maxBytes <= 0 {
		return nil, errors.New("upload: max size must be positive")
	}
	allowed := make(map[string]string, len(allowedMIME))
	for _, mime := range allowedMIME {
		mime = strings.TrimSpace(strings.ToLower(mime))
		ext, ok := extByMIME[mime]
		if !ok {
			return nil, fmt.Errorf("upload: unsupported mime type %q", mime)
		}
		allowed[mime] = ext
	}
	if len(allowed) == 0 {
		return nil, errors.New("upload: at least one mime type must be allowed")
	}
	for _, kind := range []Kind{KindUser, KindGroup} {
		if err := os.MkdirAll(filepath.Join(dir, string(kind)), 0o755); err != nil {
			return nil, fmt.Errorf("upload: create storage dir: %w", err)
		}
	}
	return &Service{
		dir:      dir,
		maxBytes: maxBytes,
		allowed:  allowed,
		cdnURL:   strings.TrimRight(strings.TrimSpace(cdnURL), "/"),
	}, nil
}

// Dir returns the root storage directory, for static file serving.
func (s *Service) Dir() string { return s.dir }

// MaxBytes returns the per-file size cap.
func (s *Service) MaxBytes() int64 { return s.maxBytes }

// TypeAllowed reports whether a declared MIME type is on the allow-list.
func (s *Service) TypeAllowed(mime string) bool {
	_, ok := s.allowed[strings.TrimSpace(strings.ToLower(mime))]
	return ok
}

// AllowedTypes lists the accepted MIME types in sorted order.
func (s *Service) AllowedTypes() []string {
	types := make([]string, 0, len(s.allowed))
	for mime := range s.allowed {
		types = append(types, mime)
	}
	sort.Strings(types)
	return types
}

// SaveImage validates and stores an image, returning its public URL. The
// content type is sniffed from the bytes; the client's declared type is
// ignored.
func (s *Service) SaveImage(ctx context.Context, kind Kind, ownerID string, data []byte) (string, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return "", fmt.Errorf("%w: owner id is required", auth.ErrInvalidInput)
	}
	if kind != KindUser && kind != KindGroup {
		return "", fmt.Errorf("%w: unsupported upload kind %q", auth.ErrInvalidInput, kind)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty file", auth.ErrInvalidInput)
	}
	if int64(len(data)) > s.maxBytes {
		return "", fmt.Errorf("%w: file exceeds %d bytes", auth.ErrInvalidInput, s.maxBytes)
	}
	mime := http.DetectContentType(data)
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	ext, ok := s.allowed[mime]
	if !ok {
		return "", fmt.Errorf("%w: content type %s is not allowed", auth.ErrInvalidInput, mime)
	}

	name := ownerID + "-" + uuid.NewString() + ext
	full := filepath.Join(s.dir, string(kind), name)
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("upload: write file: %w", err)
	}
	obs.Debug("file stored", map[string]any{"path": full, "bytes": len(data)})
	return s.PublicURL(urlPrefix + string(kind) + "/" + name), nil
}

// PublicURL prefixes a relative upload URL with the CDN base when one is
// configured.
func (s *Service) PublicURL(rel string) string {
	if s.cdnURL == "" {
		return rel
	}
	return s.cdnURL + rel
}

// Delete removes a locally hosted file by its public URL. URLs pointing
// elsewhere (CDN-only history, external avatars) are left alone.
func (s *Service) Delete(ctx context.Context, url string) error {
	rel, ok := s.localPath(url)
	if !ok {
		return nil
	}
	if err := os.Remove(rel); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("upload: remove file: %w", err)
	}
	return nil
}

// localPath maps a public URL back to a file inside the storage dir,
// refusing anything that escapes it.
func (s *Service) localPath(url string) (string, bool) {
	if s.cdnURL != "" {
		url = strings.TrimPrefix(url, s.cdnURL)
	}
	if !strings.HasPrefix(url, urlPrefix) {
		return "", false
	}
	rel := path.Clean(strings.TrimPrefix(url, urlPrefix))
	if rel == "." || strings.HasPrefix(rel, "..") || path.IsAbs(rel) {
		return "", false
	}
	return filepath.Join(s.dir, filepath.FromSlash(rel)), true
}
