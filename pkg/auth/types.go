// Package auth defines the authenticated identity types consumed by the
// collaboration core. Credential verification is performed upstream by the
// identity/session system; this package only models the identity it hands
// to each request.
package auth

import "time"

// User represents an account known to the identity system
type User struct {
	ID          int64      `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email,omitempty"`
	DisplayName string     `json:"display_name,omitempty"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	LastSeenAt  *time.Time `json:"last_seen_at,omitempty"`
}

// AuthContext carries the authenticated identity attached to a request.
// The identity system is trusted to have verified credentials before the
// request reaches this service.
type AuthContext struct {
	User *User `json:"user"`
}

// UserID returns the authenticated user ID, or 0 when unauthenticated
func (a *AuthContext) UserID() int64 {
	if a == nil || a.User == nil {
		return 0
	}
	return a.User.ID
}
