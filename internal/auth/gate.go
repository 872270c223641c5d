package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"procur.org/internal/obs"
)

// Gate answers authorization questions about groups. Membership rows are
// re-read on every check so role changes and removals apply immediately.
type Gate struct {
	members MembershipStore
	groups  GroupDirectory
	denied  func(ctx context.Context, event string, fields map[string]any)
}

// GateOption configures Gate behavior.
type GateOption func(*Gate)

// WithDenialLogger installs a hook invoked on every authorization denial,
// typically audit.LogEvent.
func WithDenialLogger(fn func(ctx context.Context, event string, fields map[string]any)) GateOption {
	return func(g *Gate) {
		if fn != nil {
			g.denied = fn
		}
	}
}

// NewGate constructs a Gate.
func NewGate(members MembershipStore, groups GroupDirectory, opts ...GateOption) (*Gate, error) {
	if members == nil {
		return nil, fmt.Errorf("%w: membership store is required", ErrInvalidInput)
	}
	if groups == nil {
		return nil, fmt.Errorf("%w: group directory is required", ErrInvalidInput)
	}
	g := &Gate{
		members: members,
		groups:  groups,
		denied:  func(context.Context, string, map[string]any) {},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func (g *Gate) deny(ctx context.Context, event, userID, groupID string) {
	obs.CountAuthDenial("forbidden")
	fields := map[string]any{"group_id": groupID}
	if userID != "" {
		fields["subject"] = userID
	}
	g.denied(ctx, event, fields)
}

// RoleOf returns the user's role in the group. Store failures are swallowed
// on purpose: an authorization probe degrades to "no role" rather than
// surfacing an internal error.
func (g *Gate) RoleOf(ctx context.Context, user User, groupID string) (Role, bool) {
	member, err := g.members.FindMember(ctx, groupID, user.ID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			obs.Debug("membership lookup failed", map[string]any{
				"group_id": groupID,
				"subject":  user.ID,
				"error":    err.Error(),
			})
		}
		return "", false
	}
	return member.Role, true
}

// RequireMember ensures the user belongs to the group.
func (g *Gate) RequireMember(ctx context.Context, user User, groupID string) error {
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return fmt.Errorf("%w: group id is required", ErrInvalidInput)
	}
	if _, err := g.members.FindMember(ctx, groupID, user.ID); err != nil {
		if errors.Is(err, ErrNotFound) {
			g.deny(ctx, "group.member_required", user.ID, groupID)
			return fmt.Errorf("%w: not a member of group %s", ErrForbidden, groupID)
		}
		return err
	}
	return nil
}

// RequireAdmin ensures the user is an admin of the group. A plain member
// row is not enough; the role must be admin.
func (g *Gate) RequireAdmin(ctx context.Context, user User, groupID string) error {
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return fmt.Errorf("%w: group id is required", ErrInvalidInput)
	}
	member, err := g.members.FindMember(ctx, groupID, user.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			g.deny(ctx, "group.admin_required", user.ID, groupID)
			return fmt.Errorf("%w: not a member of group %s", ErrForbidden, groupID)
		}
		return err
	}
	if member.Role != RoleAdmin {
		g.deny(ctx, "group.admin_required", user.ID, groupID)
		return fmt.Errorf("%w: admin role required for group %s", ErrForbidden, groupID)
	}
	return nil
}

// EnforcePrivacy checks whether the caller may see the group. Public groups
// are visible to everyone, anonymous callers included. Private and
// invite-only groups require an authenticated member.
func (g *Gate) EnforcePrivacy(ctx context.Context, groupID string, user *User) error {
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return fmt.Errorf("%w: group id is required", ErrInvalidInput)
	}
	privacy, err := g.groups.PrivacyOf(ctx, groupID)
	if err != nil {
		return err
	}
	if privacy == PrivacyPublic {
		return nil
	}
	if user == nil {
		g.deny(ctx, "group.privacy", "", groupID)
		return fmt.Errorf("%w: authentication required for %s group", ErrUnauthorized, privacy)
	}
	if _, err := g.members.FindMember(ctx, groupID, user.ID); err != nil {
		if errors.Is(err, ErrNotFound) {
			g.deny(ctx, "group.privacy", user.ID, groupID)
			return fmt.Errorf("%w: group %s is %s", ErrForbidden, groupID, privacy)
		}
		return err
	}
	return nil
}

// CanActOnUser reports whether the actor may operate on the target's
// account: self-service, platform admins, and admins of an active group
// the target belongs to. The shared-group check is a linear scan over the
// actor's admin memberships, which is fine at the group counts seen here.
func (g *Gate) CanActOnUser(ctx context.Context, actor User, targetUserID string) (bool, error) {
	targetUserID = strings.TrimSpace(targetUserID)
	if targetUserID == "" {
		return false, fmt.Errorf("%w: target user id is required", ErrInvalidInput)
	}
	if actor.ID == targetUserID {
		return true, nil
	}
	if actor.Admin {
		return true, nil
	}
	memberships, err := g.members.ListUserMemberships(ctx, actor.ID)
	if err != nil {
		return false, err
	}
	for _, m := range memberships {
		if m.Role != RoleAdmin {
			continue
		}
		active, err := g.groups.GroupActive(ctx, m.GroupID)
		if err != nil || !active {
			continue
		}
		if _, err := g.members.FindMember(ctx, m.GroupID, targetUserID); err == nil {
			return true, nil
		}
	}
	return false, nil
}
