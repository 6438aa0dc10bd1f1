package rbac

import (
	"context"
	"database/sql"
	"testing"

	"github.com/courseforge/courseforge/pkg/storage/sqlitetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) (*Store, *sql.DB) {
	t.Helper()

	db := sqlitetest.Open(t)
	require.NoError(t, SeedPermissions(context.Background(), db))
	return NewStore(db), db
}

func TestSeedPermissionsIdempotent(t *testing.T) {
	store, db := setupStore(t)

	// Seeding again must not duplicate rows
	require.NoError(t, SeedPermissions(context.Background(), db))

	perms, err := store.ListPermissions(context.Background())
	require.NoError(t, err)
	assert.Len(t, perms, len(Catalog))
}

func TestCreateRoleFromTemplate(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	role, err := store.CreateRoleFromTemplate(ctx, 1, TemplateDesigner, 10)
	require.NoError(t, err)

	assert.Equal(t, "Instructional Designer", role.Name)
	assert.Equal(t, TemplateDesigner, role.Template)

	loaded, err := store.GetRole(ctx, role.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, Templates[TemplateDesigner], loaded.Permissions)
	assert.False(t, loaded.GrantsOwnership())
}

func TestCreateRoleFromUnknownTemplate(t *testing.T) {
	store, _ := setupStore(t)

	_, err := store.CreateRoleFromTemplate(context.Background(), 1, "superadmin", 10)
	assert.ErrorIs(t, err, ErrUnknownTemplate)
}

func TestTemplateInstancesAreIndependent(t *testing.T) {
	store, db := setupStore(t)
	ctx := context.Background()

	role, err := store.CreateRoleFromTemplate(ctx, 1, TemplateReviewer, 10)
	require.NoError(t, err)

	// Stripping a permission from the instantiated role must not change
	// what the template produces for the next course
	_, err = db.Exec(`
		DELETE FROM role_permissions
		WHERE role_id = $1 AND permission_id = (SELECT id FROM permissions WHERE code = $2)`,
		role.ID, PermContentReview)
	require.NoError(t, err)

	other, err := store.CreateRoleFromTemplate(ctx, 2, TemplateReviewer, 10)
	require.NoError(t, err)

	loaded, err := store.GetRole(ctx, other.ID)
	require.NoError(t, err)
	assert.Contains(t, loaded.Permissions, PermContentReview)
}

func TestCreateRoleDuplicateName(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	_, err := store.CreateRole(ctx, 1, "Editors", "", []string{PermContentEdit}, 10)
	require.NoError(t, err)

	_, err = store.CreateRole(ctx, 1, "Editors", "", []string{PermContentView}, 10)
	assert.ErrorIs(t, err, ErrDuplicateRole)

	// Same name on a different course is fine
	_, err = store.CreateRole(ctx, 2, "Editors", "", []string{PermContentEdit}, 10)
	assert.NoError(t, err)
}

func TestCreateRoleUnknownPermission(t *testing.T) {
	store, _ := setupStore(t)

	_, err := store.CreateRole(context.Background(), 1, "Weird", "", []string{"content.teleport"}, 10)
	assert.ErrorIs(t, err, ErrUnknownPermission)
}

func TestDeleteRole(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	role, err := store.CreateRole(ctx, 1, "Temp", "", []string{PermContentView}, 10)
	require.NoError(t, err)

	require.NoError(t, store.DeleteRole(ctx, role.ID))

	_, err = store.GetRole(ctx, role.ID)
	assert.ErrorIs(t, err, ErrRoleNotFound)
}

func TestDeleteRoleInUse(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	role, err := store.CreateRole(ctx, 1, "Writers", "", []string{PermContentEdit}, 10)
	require.NoError(t, err)

	_, _, err = store.AddCollaborator(ctx, 1, 42, role.ID, nil)
	require.NoError(t, err)

	err = store.DeleteRole(ctx, role.ID)
	assert.ErrorIs(t, err, ErrRoleInUse)

	// Once unassigned, deletion goes through
	require.NoError(t, store.RemoveCollaborator(ctx, 1, 42))
	assert.NoError(t, store.DeleteRole(ctx, role.ID))
}

func TestAddCollaboratorReassignsExisting(t *testing.T) {
	store, db := setupStore(t)
	ctx := context.Background()

	designer, err := store.CreateRoleFromTemplate(ctx, 1, TemplateDesigner, 10)
	require.NoError(t, err)
	reviewer, err := store.CreateRoleFromTemplate(ctx, 1, TemplateReviewer, 10)
	require.NoError(t, err)

	first, created, err := store.AddCollaborator(ctx, 1, 42, designer.ID, nil)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, designer.ID, first.RoleID)

	second, created, err := store.AddCollaborator(ctx, 1, 42, reviewer.ID, nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, reviewer.ID, second.RoleID)

	var count int
	require.NoError(t, db.QueryRow(
		`SELECT COUNT(*) FROM collaborators WHERE course_id = 1 AND user_id = 42`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestAddCollaboratorRejectsForeignRole(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	otherCourseRole, err := store.CreateRoleFromTemplate(ctx, 2, TemplateDesigner, 10)
	require.NoError(t, err)

	_, _, err = store.AddCollaborator(ctx, 1, 42, otherCourseRole.ID, nil)
	assert.ErrorIs(t, err, ErrRoleNotFound)
}

func TestRemoveLastOwnerBlocked(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.EnsureOwnerCollaborator(ctx, 1, 10))

	err := store.RemoveCollaborator(ctx, 1, 10)
	assert.ErrorIs(t, err, ErrLastOwner)

	// With a second owner the first can leave
	owner, err := store.GetCollaborator(ctx, 1, 10)
	require.NoError(t, err)
	_, _, err = store.AddCollaborator(ctx, 1, 11, owner.RoleID, nil)
	require.NoError(t, err)

	require.NoError(t, store.RemoveCollaborator(ctx, 1, 10))

	// And now the remaining owner is pinned again
	err = store.RemoveCollaborator(ctx, 1, 11)
	assert.ErrorIs(t, err, ErrLastOwner)
}

func TestLastOwnerGuardFollowsPermissionsNotName(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	// A custom role that grants collaborator management counts as owner,
	// whatever it is called
	admin, err := store.CreateRole(ctx, 1, "Course Admin", "",
		[]string{PermContentView, PermManageCollaborators}, 10)
	require.NoError(t, err)

	_, _, err = store.AddCollaborator(ctx, 1, 42, admin.ID, nil)
	require.NoError(t, err)

	err = store.RemoveCollaborator(ctx, 1, 42)
	assert.ErrorIs(t, err, ErrLastOwner)
}

func TestRemoveNonOwnerAlwaysAllowed(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.EnsureOwnerCollaborator(ctx, 1, 10))

	reviewer, err := store.CreateRoleFromTemplate(ctx, 1, TemplateReviewer, 10)
	require.NoError(t, err)
	_, _, err = store.AddCollaborator(ctx, 1, 42, reviewer.ID, nil)
	require.NoError(t, err)

	assert.NoError(t, store.RemoveCollaborator(ctx, 1, 42))
}

func TestEnsureOwnerCollaboratorIdempotent(t *testing.T) {
	store, db := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.EnsureOwnerCollaborator(ctx, 1, 10))
	require.NoError(t, store.EnsureOwnerCollaborator(ctx, 1, 10))

	var collabs, roles int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM collaborators WHERE course_id = 1`).Scan(&collabs))
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM roles WHERE course_id = 1`).Scan(&roles))
	assert.Equal(t, 1, collabs)
	assert.Equal(t, 1, roles)

	owner, err := store.GetCollaborator(ctx, 1, 10)
	require.NoError(t, err)

	role, err := store.GetRole(ctx, owner.RoleID)
	require.NoError(t, err)
	assert.True(t, role.GrantsOwnership())
	assert.ElementsMatch(t, Templates[TemplateOwner], role.Permissions)
}
