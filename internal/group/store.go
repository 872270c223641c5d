package group

import (
	"context"

	"procur.org/internal/auth"
)

// Store describes persistence operations required by the group service.
// The postgres implementation also backs auth.MembershipStore and
// auth.GroupDirectory so the gate reads the same rows.
type Store interface {
	CreateGroup(ctx context.Context, g *Group) error
	GetGroup(ctx context.Context, id string) (*Group, error)
	ListGroups(ctx context.Context, filter ListFilter) ([]Group, int, error)
	UpdateGroup(ctx context.Context, g *Group) error
	SetGroupActive(ctx context.Context, id string, active bool) error
	AdjustMemberCount(ctx context.Context, groupID string, delta int) error

	AddMember(ctx context.Context, m auth.Membership) error
	RemoveMember(ctx context.Context, groupID, userID string) error
	ListMembers(ctx context.Context, groupID string) ([]Member, error)
	CountAdmins(ctx context.Context, groupID string) (int, error)
	ListUserGroups(ctx context.Context, userID string) ([]Group, error)

	CreateJoinRequest(ctx context.Context, req *JoinRequest) error
	GetJoinRequest(ctx context.Context, id string) (*JoinRequest, error)
	FindPendingJoinRequest(ctx context.Context, groupID, userID string) (*JoinRequest, error)
	ListJoinRequests(ctx context.Context, groupID string, status JoinRequestStatus) ([]JoinRequest, error)
	UpdateJoinRequest(ctx context.Context, req *JoinRequest) error
}

// Notifier sends best-effort email notifications for group events. A nil
// notifier disables them.
type Notifier interface {
	NotifyJoinRequest(ctx context.Context, g *Group, requester auth.User, adminEmail string)
	NotifyJoinReviewed(ctx context.Context, g *Group, requesterEmail string, approved bool)
}
