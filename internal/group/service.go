// Package group implements purchasing groups: creation, discovery,
// membership and the join-request workflow.
package group

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"procur.org/internal/audit"
	"procur.org/internal/auth"
	"procur.org/internal/ids"
	"procur.org/internal/obs"
	"procur.org/internal/stream"
)

const (
	maxNameLen        = 120
	maxDescriptionLen = 2000
	defaultPageSize   = 20
	maxPageSize       = 100
)

// Service provides group operations on top of the store, with the gate
// deciding who may do what.
type Service struct {
	store    Store
	gate     *auth.Gate
	users    auth.UserStore
	notifier Notifier
	events   *stream.Stream
	now      func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithNotifier enables email notifications for join-request events.
func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) { s.notifier = n }
}

// WithEvents enables realtime notification events.
func WithEvents(st *stream.Stream) ServiceOption {
	return func(s *Service) { s.events = st }
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a Service.
func NewService(store Store, gate *auth.Gate, users auth.UserStore, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("group: store is required")
	}
	if gate == nil {
		return nil, errors.New("group: gate is required")
	}
	if users == nil {
		return nil, errors.New("group: user store is required")
	}
	s := &Service{store: store, gate: gate, users: users, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) publish(evt stream.Event) {
	if s.events != nil {
		s.events.Publish(evt)
	}
}

// Create registers a new group. The creator becomes its admin and first
// member.
func (s *Service) Create(ctx context.Context, creator auth.User, input CreateInput) (*Group, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: group name is required", auth.ErrInvalidInput)
	}
	if len(name) > maxNameLen {
		return nil, fmt.Errorf("%w: group name exceeds %d characters", auth.ErrInvalidInput, maxNameLen)
	}
	if len(input.Description) > maxDescriptionLen {
		return nil, fmt.Errorf("%w: description exceeds %d characters", auth.ErrInvalidInput, maxDescriptionLen)
	}
	privacy, err := auth.ParsePrivacy(input.Privacy)
	if err != nil {
		return nil, fmt.Errorf("%w: unsupported privacy %q", auth.ErrInvalidInput, input.Privacy)
	}
	if input.MaxMembers < 0 || input.MinOrderValue < 0 {
		return nil, fmt.Errorf("%w: limits must not be negative", auth.ErrInvalidInput)
	}
	if input.CommissionRate < 0 || input.CommissionRate > 100 {
		return nil, fmt.Errorf("%w: commission rate must be between 0 and 100", auth.ErrInvalidInput)
	}

	now := s.now().UTC()
	g := &Group{
		ID:             ids.New(),
		Name:           name,
		Description:    strings.TrimSpace(input.Description),
		Industry:       strings.TrimSpace(input.Industry),
		Privacy:        privacy,
		MaxMembers:     input.MaxMembers,
		MinOrderValue:  input.MinOrderValue,
		CommissionRate: input.CommissionRate,
		Tags:           dedupeTags(input.Tags),
		AdminID:        creator.ID,
		MemberCount:    1,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateGroup(ctx, g); err != nil {
		return nil, err
	}
	if err := s.store.AddMember(ctx, auth.Membership{
		GroupID:  g.ID,
		UserID:   creator.ID,
		Role:     auth.RoleAdmin,
		JoinedAt: now,
	}); err != nil {
		return nil, err
	}
	_ = audit.LogEvent(ctx, "group.created", map[string]any{"group_id": g.ID, "name": g.Name})
	return g, nil
}

// Get returns a group, honoring its privacy for the caller. A nil caller
// is an anonymous request.
func (s *Service) Get(ctx context.Context, caller *auth.User, id string) (*Group, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: group id is required", auth.ErrInvalidInput)
	}
	if err := s.gate.EnforcePrivacy(ctx, id, caller); err != nil {
		return nil, err
	}
	return s.store.GetGroup(ctx, id)
}

// List returns groups matching the filter. Anonymous callers only see
// public groups.
func (s *Service) List(ctx context.Context, caller *auth.User, filter ListFilter) ([]Group, int, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = defaultPageSize
	}
	if filter.PageSize > maxPageSize {
		filter.PageSize = maxPageSize
	}
	switch filter.Sort {
	case "", "created_at", "name", "member_count":
	default:
		return nil, 0, fmt.Errorf("%w: unsupported sort %q", auth.ErrInvalidInput, filter.Sort)
	}
	filter.PublicOnly = caller == nil
	return s.store.ListGroups(ctx, filter)
}

// Update modifies group settings. Admin only.
func (s *Service) Update(ctx context.Context, actor auth.User, id string, input UpdateInput) (*Group, error) {
	if err := s.gate.RequireAdmin(ctx, actor, id); err != nil {
		return nil, err
	}
	g, err := s.store.GetGroup(ctx, id)
	if err != nil {
		return nil, err
	}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" || len(name) > maxNameLen {
			return nil, fmt.Errorf("%w: invalid group name", auth.ErrInvalidInput)
		}
		g.Name = name
	}
	if input.Description != nil {
		if len(*input.Description) > maxDescriptionLen {
			return nil, fmt.Errorf("%w: description exceeds %d characters", auth.ErrInvalidInput, maxDescriptionLen)
		}
		g.Description = strings.TrimSpace(*input.Description)
	}
	if input.Industry != nil {
		g.Industry = strings.TrimSpace(*input.Industry)
	}
	if input.Privacy != nil {
		privacy, err := auth.ParsePrivacy(*input.Privacy)
		if err != nil {
			return nil, fmt.Errorf("%w: unsupported privacy %q", auth.ErrInvalidInput, *input.Privacy)
		}
		g.Privacy = privacy
	}
	if input.MaxMembers != nil {
		if *input.MaxMembers < 0 {
			return nil, fmt.Errorf("%w: max members must not be negative", auth.ErrInvalidInput)
		}
		g.MaxMembers = *input.MaxMembers
	}
	if input.MinOrderValue != nil {
		if *input.MinOrderValue < 0 {
			return nil, fmt.Errorf("%w: min order value must not be negative", auth.ErrInvalidInput)
		}
		g.MinOrderValue = *input.MinOrderValue
	}
	if input.CommissionRate != nil {
		if *input.CommissionRate < 0 || *input.CommissionRate > 100 {
			return nil, fmt.Errorf("%w: commission rate must be between 0 and 100", auth.ErrInvalidInput)
		}
		g.CommissionRate = *input.CommissionRate
	}
	if input.Tags != nil {
		g.Tags = dedupeTags(input.Tags)
	}
	g.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateGroup(ctx, g); err != nil {
		return nil, err
	}
	_ = audit.LogEvent(ctx, "group.updated", map[string]any{"group_id": g.ID})
	return g, nil
}

// Delete deactivates the group. Admin only; rows stay for history.
func (s *Service) Delete(ctx context.Context, actor auth.User, id string) error {
	if err := s.gate.RequireAdmin(ctx, actor, id); err != nil {
		return err
	}
	if err := s.store.SetGroupActive(ctx, id, false); err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "group.deleted", map[string]any{"group_id": id})
	return nil
}

// SetImage replaces one of the group's image URLs and returns the
// updated group along with the previous URL so the caller can clean up
// the old file. Admin only.
func (s *Service) SetImage(ctx context.Context, actor auth.User, groupID string, kind ImageKind, url string) (*Group, string, error) {
	if err := s.gate.RequireAdmin(ctx, actor, groupID); err != nil {
		return nil, "", err
	}
	g, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, "", err
	}
	var previous string
	switch kind {
	case ImageLogo:
		previous = g.LogoURL
		g.LogoURL = url
	case ImageBanner:
		previous = g.BannerURL
		g.BannerURL = url
	default:
		return nil, "", fmt.Errorf("%w: unsupported image kind %q", auth.ErrInvalidInput, kind)
	}
	g.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateGroup(ctx, g); err != nil {
		return nil, "", err
	}
	_ = audit.LogEvent(ctx, "group.image.updated", map[string]any{"group_id": g.ID, "kind": string(kind)})
	return g, previous, nil
}

// RequestJoin files a join request for the actor.
func (s *Service) RequestJoin(ctx context.Context, actor auth.User, groupID, message string) (*JoinRequest, error) {
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return nil, fmt.Errorf("%w: group id is required", auth.ErrInvalidInput)
	}
	g, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !g.Active {
		return nil, fmt.Errorf("%w: group is not accepting members", auth.ErrConflict)
	}
	if _, ok := s.gate.RoleOf(ctx, actor, groupID); ok {
		return nil, fmt.Errorf("%w: already a member", auth.ErrConflict)
	}
	if _, err := s.store.FindPendingJoinRequest(ctx, groupID, actor.ID); err == nil {
		return nil, fmt.Errorf("%w: join request already pending", auth.ErrConflict)
	} else if !errors.Is(err, auth.ErrNotFound) {
		return nil, err
	}
	if g.MaxMembers > 0 && g.MemberCount >= g.MaxMembers {
		return nil, fmt.Errorf("%w: group is full", auth.ErrConflict)
	}

	now := s.now().UTC()
	req := &JoinRequest{
		ID:        ids.New(),
		GroupID:   groupID,
		UserID:    actor.ID,
		Message:   strings.TrimSpace(message),
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateJoinRequest(ctx, req); err != nil {
		return nil, err
	}
	_ = audit.LogEvent(ctx, "group.join_requested", map[string]any{"group_id": groupID, "request_id": req.ID})

	s.notifyAdmin(ctx, g, actor)
	s.publish(stream.Event{
		Type:         stream.EventJoinRequestCreated,
		GroupID:      groupID,
		TargetUserID: g.AdminID,
		ActorID:      actor.ID,
		Payload:      map[string]any{"request_id": req.ID},
	})
	return req, nil
}

func (s *Service) notifyAdmin(ctx context.Context, g *Group, requester auth.User) {
	if s.notifier == nil {
		return
	}
	admin, err := s.users.Find(ctx, g.AdminID)
	if err != nil {
		obs.Debug("admin lookup for notification failed", map[string]any{
			"group_id": g.ID, "error": err.Error(),
		})
		return
	}
	s.notifier.NotifyJoinRequest(ctx, g, requester, admin.Email)
}

// ListJoinRequests returns requests for the group, optionally filtered by
// status. Admin only.
func (s *Service) ListJoinRequests(ctx context.Context, actor auth.User, groupID string, status JoinRequestStatus) ([]JoinRequest, error) {
	if err := s.gate.RequireAdmin(ctx, actor, groupID); err != nil {
		return nil, err
	}
	switch status {
	case "", StatusPending, StatusApproved, StatusRejected:
	default:
		return nil, fmt.Errorf("%w: unsupported status %q", auth.ErrInvalidInput, status)
	}
	return s.store.ListJoinRequests(ctx, groupID, status)
}

// ReviewJoinRequest approves or rejects a pending request. The admin check
// runs against the request's own group, never one supplied by the caller.
func (s *Service) ReviewJoinRequest(ctx context.Context, actor auth.User, requestID string, approve bool, adminMessage string) (*JoinRequest, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return nil, fmt.Errorf("%w: request id is required", auth.ErrInvalidInput)
	}
	req, err := s.store.GetJoinRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.RequireAdmin(ctx, actor, req.GroupID); err != nil {
		return nil, err
	}
	if req.Status != StatusPending {
		return nil, fmt.Errorf("%w: request already %s", auth.ErrConflict, req.Status)
	}

	now := s.now().UTC()
	if approve {
		req.Status = StatusApproved
	} else {
		req.Status = StatusRejected
	}
	req.ReviewedAt = &now
	req.ReviewedBy = actor.ID
	req.AdminMessage = strings.TrimSpace(adminMessage)
	req.UpdatedAt = now

	if approve {
		if err := s.store.AddMember(ctx, auth.Membership{
			GroupID:  req.GroupID,
			UserID:   req.UserID,
			Role:     auth.RoleMember,
			JoinedAt: now,
		}); err != nil {
			return nil, err
		}
		if err := s.store.AdjustMemberCount(ctx, req.GroupID, 1); err != nil {
			return nil, err
		}
	}
	if err := s.store.UpdateJoinRequest(ctx, req); err != nil {
		return nil, err
	}
	_ = audit.LogEvent(ctx, "group.join_reviewed", map[string]any{
		"group_id": req.GroupID, "request_id": req.ID, "status": string(req.Status),
	})

	s.notifyReviewed(ctx, req, approve)
	s.publish(stream.Event{
		Type:         stream.EventJoinRequestReviewed,
		GroupID:      req.GroupID,
		TargetUserID: req.UserID,
		ActorID:      actor.ID,
		Payload:      map[string]any{"request_id": req.ID, "status": string(req.Status)},
	})
	if approve {
		s.publish(stream.Event{
			Type:    stream.EventMemberJoined,
			GroupID: req.GroupID,
			ActorID: req.UserID,
		})
	}
	return req, nil
}

func (s *Service) notifyReviewed(ctx context.Context, req *JoinRequest, approved bool) {
	if s.notifier == nil {
		return
	}
	g, err := s.store.GetGroup(ctx, req.GroupID)
	if err != nil {
		return
	}
	user, err := s.users.Find(ctx, req.UserID)
	if err != nil {
		return
	}
	s.notifier.NotifyJoinReviewed(ctx, g, user.Email, approved)
}

// ListMembers returns the roster, admins first. Visibility follows the
// group's privacy.
func (s *Service) ListMembers(ctx context.Context, caller *auth.User, groupID string) ([]Member, error) {
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return nil, fmt.Errorf("%w: group id is required", auth.ErrInvalidInput)
	}
	if err := s.gate.EnforcePrivacy(ctx, groupID, caller); err != nil {
		return nil, err
	}
	members, err := s.store.ListMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(members, func(i, j int) bool {
		if members[i].Role != members[j].Role {
			return members[i].Role == auth.RoleAdmin
		}
		return members[i].JoinedAt.Before(members[j].JoinedAt)
	})
	return members, nil
}

// RemoveMember expels a member. Admin only; admins cannot expel themselves.
func (s *Service) RemoveMember(ctx context.Context, actor auth.User, groupID, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user id is required", auth.ErrInvalidInput)
	}
	if err := s.gate.RequireAdmin(ctx, actor, groupID); err != nil {
		return err
	}
	if userID == actor.ID {
		return fmt.Errorf("%w: use leave to remove yourself", auth.ErrInvalidInput)
	}
	if err := s.store.RemoveMember(ctx, groupID, userID); err != nil {
		return err
	}
	if err := s.store.AdjustMemberCount(ctx, groupID, -1); err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "group.member_removed", map[string]any{"group_id": groupID, "member": userID})
	s.publish(stream.Event{
		Type:         stream.EventMemberRemoved,
		GroupID:      groupID,
		TargetUserID: userID,
		ActorID:      actor.ID,
	})
	return nil
}

// Leave removes the actor from the group. The last admin cannot leave.
func (s *Service) Leave(ctx context.Context, actor auth.User, groupID string) error {
	if err := s.gate.RequireMember(ctx, actor, groupID); err != nil {
		return err
	}
	if role, _ := s.gate.RoleOf(ctx, actor, groupID); role == auth.RoleAdmin {
		admins, err := s.store.CountAdmins(ctx, groupID)
		if err != nil {
			return err
		}
		if admins <= 1 {
			return fmt.Errorf("%w: the last admin cannot leave the group", auth.ErrConflict)
		}
	}
	if err := s.store.RemoveMember(ctx, groupID, actor.ID); err != nil {
		return err
	}
	if err := s.store.AdjustMemberCount(ctx, groupID, -1); err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "group.member_left", map[string]any{"group_id": groupID})
	s.publish(stream.Event{
		Type:    stream.EventMemberLeft,
		GroupID: groupID,
		ActorID: actor.ID,
	})
	return nil
}

// UserGroups returns the groups the user belongs to.
func (s *Service) UserGroups(ctx context.Context, userID string) ([]Group, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", auth.ErrInvalidInput)
	}
	return s.store.ListUserGroups(ctx, userID)
}

func dedupeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(strings.ToLower(tag))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
