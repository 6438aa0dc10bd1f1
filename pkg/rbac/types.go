package rbac

import (
	"errors"
	"time"
)

// Permission is one entry in the global permission catalog. The catalog is
// fixed at startup; roles reference permissions, they never define them.
type Permission struct {
	ID          int64    `json:"id"`
	Code        string   `json:"code"`
	Category    Category `json:"category"`
	Description string   `json:"description"`
}

// Category groups permissions for display
type Category string

const (
	CategoryContent   Category = "content"
	CategoryStructure Category = "structure"
	CategoryCourse    Category = "course"
)

// Role is a named permission set scoped to a single course. Role names are
// unique per course, not globally.
type Role struct {
	ID          int64     `json:"id"`
	CourseID    int64     `json:"course_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Template    string    `json:"template,omitempty"`
	Permissions []string  `json:"permissions"`
	CreatedBy   int64     `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// GrantsOwnership reports whether the role carries the owner-defining
// permission. A course's "owners" are the collaborators whose role grants
// collaborator management, regardless of the role's name.
func (r *Role) GrantsOwnership() bool {
	for _, code := range r.Permissions {
		if code == PermManageCollaborators {
			return true
		}
	}
	return false
}

// Collaborator binds a user to exactly one role on one course
type Collaborator struct {
	ID        int64     `json:"id"`
	CourseID  int64     `json:"course_id"`
	UserID    int64     `json:"user_id"`
	RoleID    int64     `json:"role_id"`
	RoleName  string    `json:"role_name,omitempty"`
	Username  string    `json:"username,omitempty"`
	InvitedBy *int64    `json:"invited_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Sentinel errors surfaced by the store. Handlers map these onto the
// stable API error codes.
var (
	ErrRoleNotFound         = errors.New("role not found")
	ErrDuplicateRole        = errors.New("a role with this name already exists for the course")
	ErrRoleInUse            = errors.New("role is still assigned to collaborators")
	ErrUnknownTemplate      = errors.New("unknown role template")
	ErrUnknownPermission    = errors.New("unknown permission code")
	ErrCollaboratorNotFound = errors.New("collaborator not found")
	ErrLastOwner            = errors.New("cannot remove the last owner of a course")
)
