// Package invite implements shareable group invitation links.
package invite

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"procur.org/internal/audit"
	"procur.org/internal/auth"
	"procur.org/internal/group"
	"procur.org/internal/stream"
)

const (
	tokenBytes        = 32
	defaultExpiryDays = 7
	maxExpiryDays     = 90
)

// Store persists invitations.
type Store interface {
	CreateInvitation(ctx context.Context, inv *Invitation) error
	GetInvitation(ctx context.Context, id string) (*Invitation, error)
	GetInvitationByToken(ctx context.Context, token string) (*Invitation, error)
	ListGroupInvitations(ctx context.Context, groupID string) ([]Invitation, error)
	ListInvitationsByCreator(ctx context.Context, userID string) ([]Invitation, error)
	UpdateInvitation(ctx context.Context, inv *Invitation) error
}

// Mailer sends invitation emails. A nil mailer disables them.
type Mailer interface {
	SendInvitations(ctx context.Context, groupName, inviteURL string, emails []string)
}

// Service provides the invitation lifecycle on top of the store.
type Service struct {
	store       Store
	groups      group.Store
	gate        *auth.Gate
	mailer      Mailer
	events      *stream.Stream
	frontendURL string
	now         func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithMailer enables invitation emails.
func WithMailer(m Mailer) ServiceOption {
	return func(s *Service) { s.mailer = m }
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

// NewService constructs a Service. frontendURL is the base for generated
// invite links.
func NewService(store Store, groups group.Store, gate *auth.Gate, frontendURL string, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("invite: store is required")
	}
	if groups == nil {
		return nil, errors.New("invite: group store is required")
	}
	if gate == nil {
		return nil, errors.New("invite: gate is required")
	}
	s := &Service{
		store:       store,
		groups:      groups,
		gate:        gate,
		frontendURL: strings.TrimRight(strings.TrimSpace(frontendURL), "/"),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// URL returns the shareable link for an invitation token.
func (s *Service) URL(token string) string {
	return s.frontendURL + "/join/" + token
}

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("invite: generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Create issues an invitation for the group. Admin only. When emails are
// supplied the invite link is sent to each of them.
func (s *Service) Create(ctx context.Context, actor auth.User, input CreateInput) (*Invitation, error) {
	groupID := strings.TrimSpace(input.GroupID)
	if groupID == "" {
		return nil, fmt.Errorf("%w: group id is required", auth.ErrInvalidInput)
	}
	if err := s.gate.RequireAdmin(ctx, actor, groupID); err != nil {
		return nil, err
	}
	g, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !g.Active {
		return nil, fmt.Errorf("%w: group is not accepting members", auth.ErrConflict)
	}
	days := input.ExpiryDays
	if days <= 0 {
		days = defaultExpiryDays
	}
	if days > maxExpiryDays {
		return nil, fmt.Errorf("%w: expiry exceeds %d days", auth.ErrInvalidInput, maxExpiryDays)
	}
	if input.MaxUses < 0 {
		return nil, fmt.Errorf("%w: max uses must not be negative", auth.ErrInvalidInput)
	}
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	inv := &Invitation{
		ID:        uuid.NewString(),
		GroupID:   groupID,
		Token:     token,
		CreatedBy: actor.ID,
		ExpiresAt: now.AddDate(0, 0, days),
		MaxUses:   input.MaxUses,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateInvitation(ctx, inv); err != nil {
		return nil, err
	}
	_ = audit.LogEvent(ctx, "invite.created", map[string]any{"group_id": groupID, "invitation_id": inv.ID})

	if s.mailer != nil && len(input.Emails) > 0 {
		s.mailer.SendInvitations(ctx, g.Name, s.URL(inv.Token), input.Emails)
	}
	return inv, nil
}

// Validate answers whether the token can still be used. It never returns
// an error for a bad token; the reason is part of the answer.
func (s *Service) Validate(ctx context.Context, token string) (Validation, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Validation{Reason: "missing token"}, nil
	}
	inv, err := s.store.GetInvitationByToken(ctx, token)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return Validation{Reason: "invitation not found"}, nil
		}
		return Validation{}, err
	}
	now := s.now().UTC()
	switch inv.Status(now) {
	case "inactive":
		return Validation{Reason: "invitation deactivated"}, nil
	case "expired":
		return Validation{Reason: "invitation expired"}, nil
	case "used_up":
		return Validation{Reason: "invitation fully used"}, nil
	}
	g, err := s.groups.GetGroup(ctx, inv.GroupID)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return Validation{Reason: "group no longer exists"}, nil
		}
		return Validation{}, err
	}
	if !g.Active {
		return Validation{Reason: "group is not accepting members"}, nil
	}
	return Validation{
		Valid:       true,
		GroupID:     g.ID,
		GroupName:   g.Name,
		GroupActive: g.Active,
	}, nil
}

// Join adds the actor to the invitation's group, consuming one use.
func (s *Service) Join(ctx context.Context, actor auth.User, token string) (*group.Group, error) {
	check, err := s.Validate(ctx, token)
	if err != nil {
		return nil, err
	}
	if !check.Valid {
		return nil, fmt.Errorf("%w: %s", auth.ErrInvalidInput, check.Reason)
	}
	if _, ok := s.gate.RoleOf(ctx, actor, check.GroupID); ok {
		return nil, fmt.Errorf("%w: already a member", auth.ErrConflict)
	}
	g, err := s.groups.GetGroup(ctx, check.GroupID)
	if err != nil {
		return nil, err
	}
	if g.MaxMembers > 0 && g.MemberCount >= g.MaxMembers {
		return nil, fmt.Errorf("%w: group is full", auth.ErrConflict)
	}

	now := s.now().UTC()
	if err := s.groups.AddMember(ctx, auth.Membership{
		GroupID:  g.ID,
		UserID:   actor.ID,
		Role:     auth.RoleMember,
		JoinedAt: now,
	}); err != nil {
		return nil, err
	}
	if err := s.groups.AdjustMemberCount(ctx, g.ID, 1); err != nil {
		return nil, err
	}

	inv, err := s.store.GetInvitationByToken(ctx, strings.TrimSpace(token))
	if err != nil {
		return nil, err
	}
	inv.CurrentUses++
	inv.UpdatedAt = now
	if err := s.store.UpdateInvitation(ctx, inv); err != nil {
		return nil, err
	}
	_ = audit.LogEvent(ctx, "invite.joined", map[string]any{"group_id": g.ID, "invitation_id": inv.ID})

	if s.events != nil {
		s.events.Publish(stream.Event{
			Type:    stream.EventMemberJoined,
			GroupID: g.ID,
			ActorID: actor.ID,
			Payload: map[string]any{"via": "invitation"},
		})
	}
	g.MemberCount++
	return g, nil
}

// ListForGroup returns all invitations of the group. Admin only.
func (s *Service) ListForGroup(ctx context.Context, actor auth.User, groupID string) ([]Invitation, error) {
	if err := s.gate.RequireAdmin(ctx, actor, groupID); err != nil {
		return nil, err
	}
	return s.store.ListGroupInvitations(ctx, groupID)
}

// ListMine returns invitations the actor created.
func (s *Service) ListMine(ctx context.Context, actor auth.User) ([]Invitation, error) {
	return s.store.ListInvitationsByCreator(ctx, actor.ID)
}

// Deactivate turns the invitation off. Group admin only.
func (s *Service) Deactivate(ctx context.Context, actor auth.User, id string) error {
	inv, err := s.authorize(ctx, actor, id)
	if err != nil {
		return err
	}
	inv.Active = false
	inv.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateInvitation(ctx, inv); err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "invite.deactivated", map[string]any{"invitation_id": inv.ID})
	return nil
}

// Regenerate replaces the token, resets usage and reactivates the
// invitation. Group admin only.
func (s *Service) Regenerate(ctx context.Context, actor auth.User, id string) (*Invitation, error) {
	inv, err := s.authorize(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	inv.Token = token
	inv.CurrentUses = 0
	inv.Active = true
	inv.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateInvitation(ctx, inv); err != nil {
		return nil, err
	}
	_ = audit.LogEvent(ctx, "invite.regenerated", map[string]any{"invitation_id": inv.ID})
	return inv, nil
}

func (s *Service) authorize(ctx context.Context, actor auth.User, id string) (*Invitation, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: invitation id is required", auth.ErrInvalidInput)
	}
	inv, err := s.store.GetInvitation(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.gate.RequireAdmin(ctx, actor, inv.GroupID); err != nil {
		return nil, err
	}
	return inv, nil
}
