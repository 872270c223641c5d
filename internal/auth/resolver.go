package auth

import (
	"context"
	"fmt"
	"strings"
)

// Resolver loads the stored profile behind a verified subject. Every call
// reads the store so profile edits and deactivations take effect on the
// next request.
type Resolver struct {
	users UserStore
}

// NewResolver constructs a Resolver.
func NewResolver(users UserStore) (*Resolver, error) {
	if users == nil {
		return nil, fmt.Errorf("%w: user store is required", ErrInvalidInput)
	}
	return &Resolver{users: users}, nil
}

// Resolve returns the user record for the subject. Unknown subjects get
// ErrNotFound; deactivated accounts get ErrInactive.
func (r *Resolver) Resolve(ctx context.Context, subjectID string) (User, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return User{}, fmt.Errorf("%w: subject id is required", ErrInvalidInput)
	}
	user, err := r.users.Find(ctx, subjectID)
	if err != nil {
		return User{}, err
	}
	if !user.Active {
		return User{}, ErrInactive
	}
	resolved := *user
	resolved.ID = subjectID
	return resolved, nil
}
