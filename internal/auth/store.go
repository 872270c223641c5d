package auth

import "context"

// UserStore reads stored user profiles.
type UserStore interface {
	Find(ctx context.Context, userID string) (*User, error)
}

// MembershipStore reads group membership rows. Implementations must hit the
// backing store on every call; the gate never caches role lookups.
type MembershipStore interface {
	FindMember(ctx context.Context, groupID, userID string) (*Membership, error)
	ListUserMemberships(ctx context.Context, userID string) ([]Membership, error)
}

// GroupDirectory answers the group-level questions the gate needs without
// pulling in the full group model.
type GroupDirectory interface {
	PrivacyOf(ctx context.Context, groupID string) (Privacy, error)
	GroupActive(ctx context.Context, groupID string) (bool, error)
}

// TokenVerifier is the identity-provider boundary: it decodes and checks a
// raw credential, returning its claims.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, credential string) (Claims, error)
}
