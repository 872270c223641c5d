package upload

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"procur.org/internal/auth"
)

// pngHeader is the 8-byte PNG signature plus padding, enough for content
// sniffing to call it image/png.
var pngHeader = append([]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, make([]byte, 16)...)

func newTestService(t *testing.T, cdn string) *Service {
	t.Helper()
	s, err := NewService(t.TempDir(), 1024, []string{"image/png", "image/jpeg"}, cdn)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return s
}

func TestSaveImage(t *testing.T) {
	s := newTestService(t, "")
	url, err := s.SaveImage(context.Background(), KindUser, "u1", pngHeader)
	if err != nil {
		t.Fatalf("SaveImage: %v", err)
	}
	if !strings.HasPrefix(url, "/uploads/users/u1-") || !strings.HasSuffix(url, ".png") {
		t.Fatalf("unexpected url %q", url)
	}
	full := filepath.Join(s.Dir(), "users", strings.TrimPrefix(url, "/uploads/users/"))
	if _, err := os.Stat(full); err != nil {
		t.Fatalf("stored file missing: %v", err)
	}
}

func TestSaveImageUniqueNames(t *testing.T) {
	s := newTestService(t, "")
	ctx := context.Background()
	a, _ := s.SaveImage(ctx, KindUser, "u1", pngHeader)
	b, _ := s.SaveImage(ctx, KindUser, "u1", pngHeader)
	if a == b {
		t.Fatalf("consecutive uploads should not collide: %q", a)
	}
}

func TestSaveImageRejectsDisallowedType(t *testing.T) {
	s := newTestService(t, "")
	// plain text sniffs as text/plain
	_, err := s.SaveImage(context.Background(), KindUser, "u1", []byte("hello world, definitely not an image"))
	if !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("want ErrInvalidInput, got %v", err)
	}
}

func TestSaveImageIgnoresDeclaredType(t *testing.T) {
	s := newTestService(t, "")
	// bytes say PNG regardless of what any header claimed upstream
	url, err := s.SaveImage(context.Background(), KindGroup, "g1", pngHeader)
	if err != nil {
		t.Fatalf("SaveImage: %v", err)
	}
	if !strings.HasSuffix(url, ".png") {
		t.Fatalf("extension should follow sniffed type: %q", url)
	}
}

func TestSaveImageSizeCap(t *testing.T) {
	s := newTestService(t, "")
	big := append(append([]byte{}, pngHeader...), make([]byte, 2048)...)
	if _, err := s.SaveImage(context.Background(), KindUser, "u1", big); !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("oversized file: want ErrInvalidInput, got %v", err)
	}
	if _, err := s.SaveImage(context.Background(), KindUser, "u1", nil); !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("empty file: want ErrInvalidInput, got %v", err)
	}
}

func TestCDNPrefix(t *testing.T) {
	s := newTestService(t, "https://cdn.procur.org/")
	url, err := s.SaveImage(context.Background(), KindUser, "u1", pngHeader)
	if err != nil {
		t.Fatalf("SaveImage: %v", err)
	}
	if !strings.HasPrefix(url, "https://cdn.procur.org/uploads/users/") {
		t.Fatalf("cdn prefix missing: %q", url)
	}
}

func TestDelete(t *testing.T) {
	s := newTestService(t, "")
	ctx := context.Background()
	url, _ := s.SaveImage(ctx, KindUser, "u1", pngHeader)

	if err := s.Delete(ctx, url); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	full := filepath.Join(s.Dir(), "users", strings.TrimPrefix(url, "/uploads/users/"))
	if _, err := os.Stat(full); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("file should be gone after delete")
	}

	// external and hostile URLs are no-ops
	if err := s.Delete(ctx, "https://elsewhere.example.com/pic.png"); err != nil {
		t.Fatalf("external url delete should be a no-op: %v", err)
	}
	if err := s.Delete(ctx, "/uploads/../../etc/passwd"); err != nil {
		t.Fatalf("traversal attempt should be a no-op: %v", err)
	}
}

func TestNewServiceValidation(t *testing.T) {
	if _, err := NewService("", 1024, []string{"image/png"}, ""); err == nil {
		t.Fatal("empty dir should fail")
	}
	if _, err := NewService(t.TempDir(), 1024, []string{"application/zip"}, ""); err == nil {
		t.Fatal("non-image mime should fail")
	}
	if _, err := NewService(t.TempDir(), 0, []string{"image/png"}, ""); err == nil {
		t.Fatal("zero size cap should fail")
	}
}
