package invites

import (
	"errors"
	"time"
)

// Invitation is a time-limited, single-role grant that a recipient can
// redeem to join a course. The token is the whole secret; anyone holding
// it can accept.
type Invitation struct {
	ID         int64      `json:"id"`
	Token      string     `json:"token"`
	CourseID   int64      `json:"course_id"`
	RoleID     int64      `json:"role_id"`
	RoleName   string     `json:"role_name,omitempty"`
	InvitedBy  int64      `json:"invited_by"`
	Email      *string    `json:"email,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	Revoked    bool       `json:"revoked"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
	AcceptedBy *int64     `json:"accepted_by,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Pending reports whether the invitation can still be accepted
func (i *Invitation) Pending(now time.Time) bool {
	if i.Revoked || i.AcceptedAt != nil {
		return false
	}
	if i.ExpiresAt != nil && !i.ExpiresAt.After(now) {
		return false
	}
	return true
}

// ErrInvalidToken covers every way a token can fail: unknown, revoked,
// expired, already used. Callers get one answer so the API cannot be used
// to probe which invitations exist.
var ErrInvalidToken = errors.New("invitation token is invalid or expired")

// ErrRoleNotFound is returned when the invitation references a role that
// does not belong to the course
var ErrRoleNotFound = errors.New("role not found for this course")
