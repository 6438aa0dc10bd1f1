package audit

import (
	"encoding/json"
	"time"
)

// Action identifies what happened. The vocabulary is closed: handlers must
// use one of these constants, never free text, so feeds and filters stay
// renderable.
type Action string

const (
	// Course lifecycle
	ActionCourseCreate Action = "course.create"
	ActionCourseUpdate Action = "course.update"
	ActionCourseDelete Action = "course.delete"

	// Structural mutations
	ActionActivityCreate  Action = "activity.create"
	ActionActivityUpdate  Action = "activity.update"
	ActionActivityDelete  Action = "activity.delete"
	ActionActivityReorder Action = "activity.reorder"

	// Role lifecycle
	ActionRoleCreate Action = "role.create"
	ActionRoleDelete Action = "role.delete"

	// Collaborator lifecycle
	ActionCollaboratorAdd        Action = "collaborator.add"
	ActionCollaboratorRoleChange Action = "collaborator.role_change"
	ActionCollaboratorRemove     Action = "collaborator.remove"

	// Invitation lifecycle
	ActionInvitationCreate Action = "invitation.create"
	ActionInvitationAccept Action = "invitation.accept"
	ActionInvitationRevoke Action = "invitation.revoke"

	// Comment lifecycle
	ActionCommentCreate    Action = "comment.create"
	ActionCommentUpdate    Action = "comment.update"
	ActionCommentResolve   Action = "comment.resolve"
	ActionCommentUnresolve Action = "comment.unresolve"
	ActionCommentDelete    Action = "comment.delete"
)

// EntityType identifies the kind of entity an entry refers to
type EntityType string

const (
	EntityCourse       EntityType = "course"
	EntityActivity     EntityType = "activity"
	EntityRole         EntityType = "role"
	EntityCollaborator EntityType = "collaborator"
	EntityInvitation   EntityType = "invitation"
	EntityComment      EntityType = "comment"
)

// FieldChange records the before/after values of a single field
type FieldChange struct {
	Before interface{} `json:"before"`
	After  interface{} `json:"after"`
}

// Changes is a structural diff holding only the fields that changed
type Changes map[string]FieldChange

// Entry is a single immutable audit record. Rows are never updated or
// deleted; retention is unbounded for the lifetime of the course.
//
// ActorID deliberately has no foreign key to the user table: history must
// survive user deletion. The read path resolves the display name with an
// outer join and substitutes a placeholder for vanished actors.
type Entry struct {
	ID         int64      `json:"id"`
	CourseID   int64      `json:"course_id"`
	ActorID    int64      `json:"actor_id"`
	Action     Action     `json:"action"`
	EntityType EntityType `json:"entity_type"`
	EntityID   int64      `json:"entity_id"`
	Changes    Changes    `json:"changes,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// FeedItem is an Entry annotated for human consumption
type FeedItem struct {
	Entry
	ActorName string `json:"actor_name"`
	Summary   string `json:"summary"`
}

// ToJSON converts the entry to JSON
func (e *Entry) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// ChangedFields returns the sorted names of changed fields
func (e *Entry) ChangedFields() []string {
	return sortedKeys(e.Changes)
}
