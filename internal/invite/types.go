package invite

import "time"

// Invitation is a shareable join link for a group.
type Invitation struct {
	ID          string    `json:"id"`
	GroupID     string    `json:"group_id"`
	Token       string    `json:"token"`
	CreatedBy   string    `json:"created_by"`
	ExpiresAt   time.Time `json:"expires_at"`
	MaxUses     int       `json:"max_uses,omitempty"` // 0 means unlimited
	CurrentUses int       `json:"current_uses"`
	Active      bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Status derives the invitation's presentation state at the given time.
func (inv *Invitation) Status(now time.Time) string {
	switch {
	case !inv.Active:
		return "inactive"
	case now.After(inv.ExpiresAt):
		return "expired"
	case inv.MaxUses > 0 && inv.CurrentUses >= inv.MaxUses:
		return "used_up"
	default:
		return "active"
	}
}

// CreateInput carries the fields accepted when creating an invitation.
type CreateInput struct {
	GroupID    string   `json:"group_id"`
	ExpiryDays int      `json:"expiry_days"`
	MaxUses    int      `json:"max_uses"`
	Emails     []string `json:"emails"`
}

// Validation is the public answer to "can this token still be used".
type Validation struct {
	Valid       bool   `json:"valid"`
	Reason      string `json:"reason,omitempty"`
	GroupID     string `json:"group_id,omitempty"`
	GroupName   string `json:"group_name,omitempty"`
	GroupActive bool   `json:"-"`
}
