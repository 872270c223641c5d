package group

import (
	"time"

	"procur.org/internal/auth"
)

// Group is a purchasing group: a negotiated buying pool with one owning
// admin and a member roster.
type Group struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Description    string       `json:"description,omitempty"`
	Industry       string       `json:"industry,omitempty"`
	Privacy        auth.Privacy `json:"privacy"`
	MaxMembers     int          `json:"max_members,omitempty"`
	MinOrderValue  float64      `json:"min_order_value,omitempty"`
	CommissionRate float64      `json:"commission_rate,omitempty"`
	LogoURL        string       `json:"logo_url,omitempty"`
	BannerURL      string       `json:"banner_url,omitempty"`
	Tags           []string     `json:"tags,omitempty"`
	AdminID        string       `json:"admin_id"`
	MemberCount    int          `json:"member_count"`
	Active         bool         `json:"is_active"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// JoinRequestStatus is the review state of a join request.
type JoinRequestStatus string

const (
	StatusPending  JoinRequestStatus = "pending"
	StatusApproved JoinRequestStatus = "approved"
	StatusRejected JoinRequestStatus = "rejected"
)

// JoinRequest is a user's petition to join a group, reviewed by a group
// admin.
type JoinRequest struct {
	ID           string            `json:"id"`
	GroupID      string            `json:"group_id"`
	UserID       string            `json:"user_id"`
	Message      string            `json:"message,omitempty"`
	Status       JoinRequestStatus `json:"status"`
	ReviewedAt   *time.Time        `json:"reviewed_at,omitempty"`
	ReviewedBy   string            `json:"reviewed_by,omitempty"`
	AdminMessage string            `json:"admin_message,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// ImageKind selects which group image URL an upload replaces.
type ImageKind string

const (
	ImageLogo   ImageKind = "logo"
	ImageBanner ImageKind = "banner"
)

// CreateInput carries the fields accepted when creating a group.
type CreateInput struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Industry       string   `json:"industry"`
	Privacy        string   `json:"privacy"`
	MaxMembers     int      `json:"max_members"`
	MinOrderValue  float64  `json:"min_order_value"`
	CommissionRate float64  `json:"commission_rate"`
	Tags           []string `json:"tags"`
}

// UpdateInput carries optional group updates; nil fields stay unchanged.
type UpdateInput struct {
	Name           *string  `json:"name"`
	Description    *string  `json:"description"`
	Industry       *string  `json:"industry"`
	Privacy        *string  `json:"privacy"`
	MaxMembers     *int     `json:"max_members"`
	MinOrderValue  *float64 `json:"min_order_value"`
	CommissionRate *float64 `json:"commission_rate"`
	Tags           []string `json:"tags"`
}

// ListFilter narrows and pages group listings.
type ListFilter struct {
	Industry   string
	Search     string
	Sort       string
	Page       int
	PageSize   int
	PublicOnly bool
}

// Member is a roster entry joined with its profile fields.
type Member struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	Role        auth.Role `json:"role"`
	JoinedAt    time.Time `json:"joined_at"`
}
