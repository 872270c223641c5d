package auth

import (
	"strings"
	"time"
)

// Claims is the decoded identity-provider credential. Extra carries
// provider-specific fields that the platform passes through untouched.
type Claims struct {
	Subject   string
	Email     string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Disabled  bool
	Extra     map[string]any
}

// User is the platform profile stored for an authenticated subject.
type User struct {
	ID          string    `json:"uid"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	CompanyName string    `json:"company_name,omitempty"`
	Industry    string    `json:"industry,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	Bio         string    `json:"bio,omitempty"`
	Active      bool      `json:"is_active"`
	Admin       bool      `json:"is_admin"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Role is a member's standing inside a group.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Membership links a user to a group with a role.
type Membership struct {
	GroupID  string    `json:"group_id"`
	UserID   string    `json:"user_id"`
	Role     Role      `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// Privacy controls who may see a group and how it is joined.
type Privacy string

const (
	PrivacyPublic     Privacy = "public"
	PrivacyPrivate    Privacy = "private"
	PrivacyInviteOnly Privacy = "invite_only"
)

// ParsePrivacy normalizes and validates a privacy value.
func ParsePrivacy(s string) (Privacy, error) {
	switch p := Privacy(strings.TrimSpace(strings.ToLower(s))); p {
	case PrivacyPublic, PrivacyPrivate, PrivacyInviteOnly:
		return p, nil
	case "":
		return PrivacyPublic, nil
	default:
		return "", ErrInvalidInput
	}
}
