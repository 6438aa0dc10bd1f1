package rbac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasPermission(t *testing.T) {
	store, db := setupStore(t)
	checker := NewPermissionChecker(db, nil)
	ctx := context.Background()

	reviewer, err := store.CreateRoleFromTemplate(ctx, 1, TemplateReviewer, 10)
	require.NoError(t, err)
	_, _, err = store.AddCollaborator(ctx, 1, 42, reviewer.ID, nil)
	require.NoError(t, err)

	ok, err := checker.HasPermission(ctx, 42, 1, PermContentComment)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = checker.HasPermission(ctx, 42, 1, PermContentEdit)
	require.NoError(t, err)
	assert.False(t, ok)

	// Same user, different course: no grant
	ok, err = checker.HasPermission(ctx, 42, 2, PermContentComment)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHasPermissionNonCollaborator(t *testing.T) {
	_, db := setupStore(t)
	checker := NewPermissionChecker(db, nil)

	ok, err := checker.HasPermission(context.Background(), 999, 1, PermContentView)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRoleChangeTakesEffectImmediately(t *testing.T) {
	store, db := setupStore(t)
	checker := NewPermissionChecker(db, nil)
	ctx := context.Background()

	reviewer, err := store.CreateRoleFromTemplate(ctx, 1, TemplateReviewer, 10)
	require.NoError(t, err)
	designer, err := store.CreateRoleFromTemplate(ctx, 1, TemplateDesigner, 10)
	require.NoError(t, err)

	_, _, err = store.AddCollaborator(ctx, 1, 42, reviewer.ID, nil)
	require.NoError(t, err)

	ok, err := checker.HasPermission(ctx, 42, 1, PermStructureEdit)
	require.NoError(t, err)
	assert.False(t, ok)

	// Reassign and check again with no intervening step: the next check
	// must see the new role
	_, _, err = store.AddCollaborator(ctx, 1, 42, designer.ID, nil)
	require.NoError(t, err)

	ok, err = checker.HasPermission(ctx, 42, 1, PermStructureEdit)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRemovalRevokesAccessImmediately(t *testing.T) {
	store, db := setupStore(t)
	checker := NewPermissionChecker(db, nil)
	ctx := context.Background()

	require.NoError(t, store.EnsureOwnerCollaborator(ctx, 1, 10))
	sme, err := store.CreateRoleFromTemplate(ctx, 1, TemplateSME, 10)
	require.NoError(t, err)
	_, _, err = store.AddCollaborator(ctx, 1, 42, sme.ID, nil)
	require.NoError(t, err)

	ok, err := checker.HasPermission(ctx, 42, 1, PermContentEdit)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.RemoveCollaborator(ctx, 1, 42))

	ok, err = checker.HasPermission(ctx, 42, 1, PermContentEdit)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEffectivePermissions(t *testing.T) {
	store, db := setupStore(t)
	checker := NewPermissionChecker(db, nil)
	ctx := context.Background()

	sme, err := store.CreateRoleFromTemplate(ctx, 1, TemplateSME, 10)
	require.NoError(t, err)
	_, _, err = store.AddCollaborator(ctx, 1, 42, sme.ID, nil)
	require.NoError(t, err)

	codes, err := checker.EffectivePermissions(ctx, 42, 1)
	require.NoError(t, err)
	assert.ElementsMatch(t, Templates[TemplateSME], codes)

	// Non-collaborators get an empty set, not an error
	codes, err = checker.EffectivePermissions(ctx, 999, 1)
	require.NoError(t, err)
	assert.Empty(t, codes)
}

func TestIsCollaborator(t *testing.T) {
	store, db := setupStore(t)
	checker := NewPermissionChecker(db, nil)
	ctx := context.Background()

	require.NoError(t, store.EnsureOwnerCollaborator(ctx, 1, 10))

	ok, err := checker.IsCollaborator(ctx, 10, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = checker.IsCollaborator(ctx, 11, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}
