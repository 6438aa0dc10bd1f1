package rbac

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/courseforge/courseforge/pkg/observability"
)

// Checker answers permission questions. Implementations must consult
// current state on every call: a collaborator whose role changed sees the
// new permissions on their very next request, so there is no cache layer
// anywhere in the check path.
type Checker interface {
	HasPermission(ctx context.Context, userID, courseID int64, code string) (bool, error)
	EffectivePermissions(ctx context.Context, userID, courseID int64) ([]string, error)
	IsCollaborator(ctx context.Context, userID, courseID int64) (bool, error)
}

// PermissionChecker resolves permissions with a single indexed join per
// check. Absent collaborator, absent course, and missing grant are all the
// same answer: false, nil.
type PermissionChecker struct {
	db      *sql.DB
	metrics *observability.Metrics
}

// NewPermissionChecker creates a checker. metrics may be nil.
func NewPermissionChecker(db *sql.DB, metrics *observability.Metrics) *PermissionChecker {
	return &PermissionChecker{db: db, metrics: metrics}
}

// HasPermission reports whether the user's role on the course grants code
func (c *PermissionChecker) HasPermission(ctx context.Context, userID, courseID int64, code string) (bool, error) {
	var allowed bool
	err := c.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1
			FROM collaborators cb
			JOIN role_permissions rp ON rp.role_id = cb.role_id
			JOIN permissions p ON p.id = rp.permission_id
			WHERE cb.user_id = $1 AND cb.course_id = $2 AND p.code = $3
		)`,
		userID, courseID, code).Scan(&allowed)
	if err != nil {
		return false, fmt.Errorf("permission check failed: %w", err)
	}

	if c.metrics != nil {
		c.metrics.PermissionChecksTotal.WithLabelValues(code, strconv.FormatBool(allowed)).Inc()
	}
	return allowed, nil
}

// EffectivePermissions returns every permission code the user's role
// grants on the course. A non-collaborator gets an empty slice.
func (c *PermissionChecker) EffectivePermissions(ctx context.Context, userID, courseID int64) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT p.code
		FROM collaborators cb
		JOIN role_permissions rp ON rp.role_id = cb.role_id
		JOIN permissions p ON p.id = rp.permission_id
		WHERE cb.user_id = $1 AND cb.course_id = $2
		ORDER BY p.code`,
		userID, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load effective permissions: %w", err)
	}
	defer rows.Close()

	codes := []string{}
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("failed to scan permission code: %w", err)
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// IsCollaborator reports whether the user holds any role on the course
func (c *PermissionChecker) IsCollaborator(ctx context.Context, userID, courseID int64) (bool, error) {
	var exists bool
	err := c.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM collaborators WHERE user_id = $1 AND course_id = $2)`,
		userID, courseID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("collaborator check failed: %w", err)
	}
	return exists, nil
}
