package rbac

import (
	"context"
	"database/sql"
	"fmt"
)

// Permission codes. The catalog is closed: roles may only reference codes
// defined here, and handlers may only require codes defined here.
const (
	PermContentView    = "content.view"
	PermContentEdit    = "content.edit"
	PermContentComment = "content.comment"
	PermContentReview  = "content.review"

	PermStructureEdit    = "structure.edit"
	PermStructureReorder = "structure.reorder"

	PermCourseEdit          = "course.edit"
	PermCourseDelete        = "course.delete"
	PermManageRoles         = "course.manage_roles"
	PermManageCollaborators = "course.manage_collaborators"
	PermInvite              = "course.invite"
	PermViewAudit           = "course.view_audit"
)

// Catalog is the full permission catalog, in display order
var Catalog = []Permission{
	{Code: PermContentView, Category: CategoryContent, Description: "View course content"},
	{Code: PermContentEdit, Category: CategoryContent, Description: "Create and edit activities and content"},
	{Code: PermContentComment, Category: CategoryContent, Description: "Comment on activities"},
	{Code: PermContentReview, Category: CategoryContent, Description: "Review and approve content"},
	{Code: PermStructureEdit, Category: CategoryStructure, Description: "Add and remove course structure"},
	{Code: PermStructureReorder, Category: CategoryStructure, Description: "Reorder course structure"},
	{Code: PermCourseEdit, Category: CategoryCourse, Description: "Edit course settings"},
	{Code: PermCourseDelete, Category: CategoryCourse, Description: "Delete the course"},
	{Code: PermManageRoles, Category: CategoryCourse, Description: "Create and delete roles"},
	{Code: PermManageCollaborators, Category: CategoryCourse, Description: "Add, remove, and reassign collaborators"},
	{Code: PermInvite, Category: CategoryCourse, Description: "Create and revoke invitations"},
	{Code: PermViewAudit, Category: CategoryCourse, Description: "View the audit trail"},
}

// Role templates. Templates are starting points: an instantiated role is an
// independent copy and later edits to it never touch the template.
const (
	TemplateOwner    = "owner"
	TemplateDesigner = "designer"
	TemplateReviewer = "reviewer"
	TemplateSME      = "sme"
)

// Templates maps template names to their permission sets
var Templates = map[string][]string{
	TemplateOwner: {
		PermContentView, PermContentEdit, PermContentComment, PermContentReview,
		PermStructureEdit, PermStructureReorder,
		PermCourseEdit, PermCourseDelete, PermManageRoles, PermManageCollaborators,
		PermInvite, PermViewAudit,
	},
	TemplateDesigner: {
		PermContentView, PermContentEdit, PermContentComment,
		PermStructureEdit, PermStructureReorder,
	},
	TemplateReviewer: {
		PermContentView, PermContentComment, PermContentReview,
	},
	TemplateSME: {
		PermContentView, PermContentEdit, PermContentComment,
	},
}

// templateDisplayNames maps template names to default role names
var templateDisplayNames = map[string]string{
	TemplateOwner:    "Owner",
	TemplateDesigner: "Instructional Designer",
	TemplateReviewer: "Reviewer",
	TemplateSME:      "Subject Matter Expert",
}

// IsValidPermission reports whether code is in the catalog
func IsValidPermission(code string) bool {
	for _, p := range Catalog {
		if p.Code == code {
			return true
		}
	}
	return false
}

// SeedPermissions inserts the catalog rows, skipping any that already
// exist. Safe to run on every startup.
func SeedPermissions(ctx context.Context, db *sql.DB) error {
	for _, p := range Catalog {
		_, err := db.ExecContext(ctx, `
			INSERT INTO permissions (code, category, description)
			VALUES ($1, $2, $3)
			ON CONFLICT (code) DO NOTHING`,
			p.Code, string(p.Category), p.Description)
		if err != nil {
			return fmt.Errorf("failed to seed permission %s: %w", p.Code, err)
		}
	}
	return nil
}
