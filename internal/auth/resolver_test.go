package auth

import (
	"context"
	"errors"
	"testing"
)

type stubUsers struct {
	users map[string]User
	calls int
}

func (s *stubUsers) Find(ctx context.Context, userID string) (*User, error) {
	s.calls++
	u, ok := s.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func TestResolve(t *testing.T) {
	users := &stubUsers{users: map[string]User{
		"u1": {Email: "u1@example.com", DisplayName: "User One", Active: true},
	}}
	r, err := NewResolver(users)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	got, err := r.Resolve(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	// the subject id wins over whatever the stored row carries
	if got.ID != "u1" {
		t.Fatalf("resolved id = %q, want subject id", got.ID)
	}
	if got.Email != "u1@example.com" {
		t.Fatalf("unexpected profile: %+v", got)
	}
}

func TestResolveUnknownSubject(t *testing.T) {
	r, _ := NewResolver(&stubUsers{users: map[string]User{}})
	if _, err := r.Resolve(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveInactive(t *testing.T) {
	r, _ := NewResolver(&stubUsers{users: map[string]User{
		"u1": {Email: "u1@example.com", Active: false},
	}})
	if _, err := r.Resolve(context.Background(), "u1"); !errors.Is(err, ErrInactive) {
		t.Fatalf("expected ErrInactive, got %v", err)
	}
}

func TestResolveReadsFreshEveryCall(t *testing.T) {
	users := &stubUsers{users: map[string]User{
		"u1": {Email: "u1@example.com", Active: true},
	}}
	r, _ := NewResolver(users)
	ctx := context.Background()

	if _, err := r.Resolve(ctx, "u1"); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	users.users["u1"] = User{Email: "u1@example.com", Active: false}
	if _, err := r.Resolve(ctx, "u1"); !errors.Is(err, ErrInactive) {
		t.Fatalf("deactivation must apply on the next call, got %v", err)
	}
	if users.calls != 2 {
		t.Fatalf("expected a store read per call, got %d", users.calls)
	}
}
