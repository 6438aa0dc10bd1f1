package rbac

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// Store implements role and collaborator persistence on PostgreSQL
type Store struct {
	db *sql.DB
}

// NewStore creates a new RBAC store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for callers that need to share a
// transaction with this store
func (s *Store) DB() *sql.DB {
	return s.db
}

// isUniqueViolation detects unique-constraint errors from both the
// production driver and the sqlite driver the tests run on
func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// ListPermissions returns the persisted catalog in display order
func (s *Store) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, code, category, description FROM permissions ORDER BY category, code`)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Code, &p.Category, &p.Description); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// CreateRole creates a custom role with the given permission codes.
// Returns ErrDuplicateRole when the name is already taken within the
// course and ErrUnknownPermission for codes outside the catalog.
func (s *Store) CreateRole(ctx context.Context, courseID int64, name, description string, permissionCodes []string, createdBy int64) (*Role, error) {
	if name == "" {
		return nil, fmt.Errorf("role name is required")
	}
	for _, code := range permissionCodes {
		if !IsValidPermission(code) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPermission, code)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	role, err := s.createRoleTx(ctx, tx, courseID, name, description, "", permissionCodes, createdBy)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit role creation: %w", err)
	}
	return role, nil
}

// CreateRoleFromTemplate instantiates a template as an independent role.
// Later edits to the role never affect the template.
func (s *Store) CreateRoleFromTemplate(ctx context.Context, courseID int64, template string, createdBy int64) (*Role, error) {
	codes, ok := Templates[template]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTemplate, template)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	role, err := s.createRoleTx(ctx, tx, courseID, templateDisplayNames[template], "", template, codes, createdBy)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit role creation: %w", err)
	}
	return role, nil
}

func (s *Store) createRoleTx(ctx context.Context, tx *sql.Tx, courseID int64, name, description, template string, codes []string, createdBy int64) (*Role, error) {
	now := time.Now().UTC()
	role := &Role{
		CourseID:    courseID,
		Name:        name,
		Description: description,
		Template:    template,
		Permissions: codes,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := tx.QueryRowContext(ctx, `
		INSERT INTO roles (course_id, name, description, template_name, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		courseID, name, description, template, createdBy, now, now,
	).Scan(&role.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateRole
		}
		return nil, fmt.Errorf("failed to insert role: %w", err)
	}

	for _, code := range codes {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO role_permissions (role_id, permission_id)
			SELECT $1, id FROM permissions WHERE code = $2`,
			role.ID, code)
		if err != nil {
			return nil, fmt.Errorf("failed to grant permission %s: %w", code, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPermission, code)
		}
	}

	return role, nil
}

// GetRole returns a role with its permission codes loaded
func (s *Store) GetRole(ctx context.Context, roleID int64) (*Role, error) {
	var (
		role     Role
		template sql.NullString
		created  sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, course_id, name, description, template_name, created_by, created_at, updated_at
		FROM roles WHERE id = $1`, roleID,
	).Scan(&role.ID, &role.CourseID, &role.Name, &role.Description, &template, &created, &role.CreatedAt, &role.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrRoleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	role.Template = template.String
	role.CreatedBy = created.Int64

	role.Permissions, err = s.rolePermissions(ctx, role.ID)
	if err != nil {
		return nil, err
	}
	return &role, nil
}

func (s *Store) rolePermissions(ctx context.Context, roleID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.code
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1
		ORDER BY p.code`, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load role permissions: %w", err)
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

// ListRoles returns all roles defined for a course, permissions included
func (s *Store) ListRoles(ctx context.Context, courseID int64) ([]*Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, course_id, name, description, template_name, created_by, created_at, updated_at
		FROM roles WHERE course_id = $1 ORDER BY name`, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []*Role
	for rows.Next() {
		var (
			role     Role
			template sql.NullString
			created  sql.NullInt64
		)
		err := rows.Scan(&role.ID, &role.CourseID, &role.Name, &role.Description, &template, &created, &role.CreatedAt, &role.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		role.Template = template.String
		role.CreatedBy = created.Int64
		roles = append(roles, &role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, role := range roles {
		role.Permissions, err = s.rolePermissions(ctx, role.ID)
		if err != nil {
			return nil, err
		}
	}
	return roles, nil
}

// DeleteRole removes a role and its permission grants. A role still
// assigned to any collaborator cannot be deleted.
func (s *Store) DeleteRole(ctx context.Context, roleID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var inUse bool
	err = tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM collaborators WHERE role_id = $1)`, roleID,
	).Scan(&inUse)
	if err != nil {
		return fmt.Errorf("failed to check role usage: %w", err)
	}
	if inUse {
		return ErrRoleInUse
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return fmt.Errorf("failed to delete role permissions: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, roleID)
	if err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRoleNotFound
	}

	return tx.Commit()
}

// AddCollaborator grants a user a role on a course. A user holds at most
// one role per course: adding an existing collaborator reassigns their
// role instead of duplicating the row. The created flag reports which of
// the two happened.
func (s *Store) AddCollaborator(ctx context.Context, courseID, userID, roleID int64, invitedBy *int64) (collab *Collaborator, created bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := s.roleBelongsToCourse(ctx, tx, roleID, courseID); err != nil {
		return nil, false, err
	}

	var existingID int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM collaborators WHERE course_id = $1 AND user_id = $2`,
		courseID, userID).Scan(&existingID)

	now := time.Now().UTC()
	switch {
	case err == sql.ErrNoRows:
		err = tx.QueryRowContext(ctx, `
			INSERT INTO collaborators (course_id, user_id, role_id, invited_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			courseID, userID, roleID, invitedBy, now, now).Scan(&existingID)
		if err != nil {
			// Concurrent insert of the same (course, user) pair: the unique
			// constraint is the arbiter, fall through to reassignment.
			if isUniqueViolation(err) {
				if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
					return nil, false, err
				}
				return s.AddCollaborator(ctx, courseID, userID, roleID, invitedBy)
			}
			return nil, false, fmt.Errorf("failed to insert collaborator: %w", err)
		}
		created = true
	case err != nil:
		return nil, false, fmt.Errorf("failed to check existing collaborator: %w", err)
	default:
		_, err = tx.ExecContext(ctx,
			`UPDATE collaborators SET role_id = $1, updated_at = $2 WHERE id = $3`,
			roleID, now, existingID)
		if err != nil {
			return nil, false, fmt.Errorf("failed to reassign collaborator role: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit collaborator change: %w", err)
	}

	collab, err = s.GetCollaborator(ctx, courseID, userID)
	return collab, created, err
}

func (s *Store) roleBelongsToCourse(ctx context.Context, tx *sql.Tx, roleID, courseID int64) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM roles WHERE id = $1 AND course_id = $2`, roleID, courseID).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, ErrRoleNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to verify role: %w", err)
	}
	return id, nil
}

// GetCollaborator returns one collaborator with role and user names joined
func (s *Store) GetCollaborator(ctx context.Context, courseID, userID int64) (*Collaborator, error) {
	var (
		c         Collaborator
		invitedBy sql.NullInt64
		username  sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT c.id, c.course_id, c.user_id, c.role_id, r.name, u.username, c.invited_by, c.created_at, c.updated_at
		FROM collaborators c
		JOIN roles r ON r.id = c.role_id
		LEFT JOIN users u ON u.id = c.user_id
		WHERE c.course_id = $1 AND c.user_id = $2`,
		courseID, userID,
	).Scan(&c.ID, &c.CourseID, &c.UserID, &c.RoleID, &c.RoleName, &username, &invitedBy, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrCollaboratorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get collaborator: %w", err)
	}
	c.Username = username.String
	if invitedBy.Valid {
		c.InvitedBy = &invitedBy.Int64
	}
	return &c, nil
}

// ListCollaborators returns everyone on a course with their role
func (s *Store) ListCollaborators(ctx context.Context, courseID int64) ([]*Collaborator, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.course_id, c.user_id, c.role_id, r.name, u.username, c.invited_by, c.created_at, c.updated_at
		FROM collaborators c
		JOIN roles r ON r.id = c.role_id
		LEFT JOIN users u ON u.id = c.user_id
		WHERE c.course_id = $1
		ORDER BY c.created_at, c.id`, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list collaborators: %w", err)
	}
	defer rows.Close()

	var collabs []*Collaborator
	for rows.Next() {
		var (
			c         Collaborator
			invitedBy sql.NullInt64
			username  sql.NullString
		)
		err := rows.Scan(&c.ID, &c.CourseID, &c.UserID, &c.RoleID, &c.RoleName, &username, &invitedBy, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan collaborator: %w", err)
		}
		c.Username = username.String
		if invitedBy.Valid {
			c.InvitedBy = &invitedBy.Int64
		}
		collabs = append(collabs, &c)
	}
	return collabs, rows.Err()
}

// RemoveCollaborator deletes a collaborator. Removing the last owner is
// refused so the course can never become unmanageable; ownership is
// decided by the role's permissions, not its name.
func (s *Store) RemoveCollaborator(ctx context.Context, courseID, userID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	targetIsOwner, err := s.holdsOwnerPermissionTx(ctx, tx, courseID, userID)
	if err != nil {
		return err
	}
	if targetIsOwner {
		owners, err := s.countOwnersTx(ctx, tx, courseID)
		if err != nil {
			return err
		}
		if owners <= 1 {
			return ErrLastOwner
		}
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM collaborators WHERE course_id = $1 AND user_id = $2`,
		courseID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove collaborator: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrCollaboratorNotFound
	}

	return tx.Commit()
}

// CountOwners returns how many collaborators hold the owner-defining
// permission on the course
func (s *Store) CountOwners(ctx context.Context, courseID int64) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	return s.countOwnersTx(ctx, tx, courseID)
}

func (s *Store) countOwnersTx(ctx context.Context, tx *sql.Tx, courseID int64) (int, error) {
	var count int
	err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM collaborators c
		JOIN role_permissions rp ON rp.role_id = c.role_id
		JOIN permissions p ON p.id = rp.permission_id
		WHERE c.course_id = $1 AND p.code = $2`,
		courseID, PermManageCollaborators).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count owners: %w", err)
	}
	return count, nil
}

func (s *Store) holdsOwnerPermissionTx(ctx context.Context, tx *sql.Tx, courseID, userID int64) (bool, error) {
	var holds bool
	err := tx.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1
			FROM collaborators c
			JOIN role_permissions rp ON rp.role_id = c.role_id
			JOIN permissions p ON p.id = rp.permission_id
			WHERE c.course_id = $1 AND c.user_id = $2 AND p.code = $3
		)`,
		courseID, userID, PermManageCollaborators).Scan(&holds)
	if err != nil {
		return false, fmt.Errorf("failed to check owner permission: %w", err)
	}
	return holds, nil
}

// EnsureOwnerCollaborator makes userID an owner of courseID, creating the
// Owner role from its template if the course has none. Idempotent: an
// existing collaborator row is left untouched.
func (s *Store) EnsureOwnerCollaborator(ctx context.Context, courseID, userID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.EnsureOwnerCollaboratorTx(ctx, tx, courseID, userID); err != nil {
		return err
	}
	return tx.Commit()
}

// EnsureOwnerCollaboratorTx is EnsureOwnerCollaborator inside a caller
// transaction, so course creation can commit the course row and its owner
// atomically.
func (s *Store) EnsureOwnerCollaboratorTx(ctx context.Context, tx *sql.Tx, courseID, userID int64) error {
	var existing int64
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM collaborators WHERE course_id = $1 AND user_id = $2`,
		courseID, userID).Scan(&existing)
	if err == nil {
		return nil
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("failed to check existing collaborator: %w", err)
	}

	var roleID int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM roles WHERE course_id = $1 AND template_name = $2 LIMIT 1`,
		courseID, TemplateOwner).Scan(&roleID)
	if err == sql.ErrNoRows {
		role, cerr := s.createRoleTx(ctx, tx, courseID, templateDisplayNames[TemplateOwner], "", TemplateOwner, Templates[TemplateOwner], userID)
		if cerr != nil {
			return cerr
		}
		roleID = role.ID
	} else if err != nil {
		return fmt.Errorf("failed to find owner role: %w", err)
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO collaborators (course_id, user_id, role_id, invited_by, created_at, updated_at)
		VALUES ($1, $2, $3, NULL, $4, $5)
		ON CONFLICT (course_id, user_id) DO NOTHING`,
		courseID, userID, roleID, now, now)
	if err != nil {
		return fmt.Errorf("failed to insert owner collaborator: %w", err)
	}
	return nil
}
