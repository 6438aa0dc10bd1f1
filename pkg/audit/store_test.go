package audit

import (
	"context"
	"testing"
	"time"

	"github.com/courseforge/courseforge/pkg/storage/sqlitetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndQuery(t *testing.T) {
	db := sqlitetest.Open(t)
	store := NewStore(db, nil)
	ctx := context.Background()

	entry := &Entry{
		CourseID:   1,
		ActorID:    10,
		Action:     ActionCourseUpdate,
		EntityType: EntityCourse,
		EntityID:   1,
		Changes:    Changes{"title": {Before: "a", After: "b"}},
	}
	require.NoError(t, store.Record(ctx, entry))
	require.NotZero(t, entry.ID)

	entries, err := store.GetForCourse(ctx, 1, Filter{}, 50, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	got := entries[0]
	assert.Equal(t, ActionCourseUpdate, got.Action)
	require.Contains(t, got.Changes, "title")
	assert.Equal(t, "a", got.Changes["title"].Before)
	assert.Equal(t, "b", got.Changes["title"].After)
}

func TestOrderingNewestFirstStable(t *testing.T) {
	db := sqlitetest.Open(t)
	store := NewStore(db, nil)
	ctx := context.Background()

	// Identical timestamps: the id breaks the tie so order stays stable
	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, store.Record(ctx, &Entry{
			CourseID: 1, ActorID: 10, Action: ActionCommentCreate,
			EntityType: EntityComment, EntityID: int64(i + 1), CreatedAt: ts,
		}))
	}

	entries, err := store.GetForCourse(ctx, 1, Filter{}, 50, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, int64(3), entries[0].EntityID)
	assert.Equal(t, int64(2), entries[1].EntityID)
	assert.Equal(t, int64(1), entries[2].EntityID)
}

func TestFilters(t *testing.T) {
	db := sqlitetest.Open(t)
	store := NewStore(db, nil)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, &Entry{
		CourseID: 1, ActorID: 10, Action: ActionRoleCreate, EntityType: EntityRole, EntityID: 5,
	}))
	require.NoError(t, store.Record(ctx, &Entry{
		CourseID: 1, ActorID: 11, Action: ActionCommentCreate, EntityType: EntityComment, EntityID: 6,
	}))
	require.NoError(t, store.Record(ctx, &Entry{
		CourseID: 2, ActorID: 10, Action: ActionRoleCreate, EntityType: EntityRole, EntityID: 7,
	}))

	byAction, err := store.GetForCourse(ctx, 1, Filter{Action: ActionRoleCreate}, 50, 0)
	require.NoError(t, err)
	require.Len(t, byAction, 1)
	assert.Equal(t, int64(5), byAction[0].EntityID)

	byActor, err := store.GetByActor(ctx, 1, 11, 50, 0)
	require.NoError(t, err)
	require.Len(t, byActor, 1)
	assert.Equal(t, int64(6), byActor[0].EntityID)

	byEntity, err := store.GetForEntity(ctx, 1, EntityComment, 6)
	require.NoError(t, err)
	assert.Len(t, byEntity, 1)
}

func TestFeedResolvesActorNames(t *testing.T) {
	db := sqlitetest.Open(t)
	store := NewStore(db, nil)
	ctx := context.Background()

	alice := sqlitetest.InsertUser(t, db, "alice")

	require.NoError(t, store.Record(ctx, &Entry{
		CourseID: 1, ActorID: alice, Action: ActionCourseCreate, EntityType: EntityCourse, EntityID: 1,
	}))
	// Actor 999 never existed (or was deleted): the entry must still render
	require.NoError(t, store.Record(ctx, &Entry{
		CourseID: 1, ActorID: 999, Action: ActionCommentDelete, EntityType: EntityComment, EntityID: 3,
	}))

	items, err := store.GetFeed(ctx, 1, 50, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, DeletedActorName, items[0].ActorName)
	assert.Equal(t, "deleted a comment", items[0].Summary)
	assert.Equal(t, "alice", items[1].ActorName)
	assert.Equal(t, "created the course", items[1].Summary)
}

func TestPagination(t *testing.T) {
	db := sqlitetest.Open(t)
	store := NewStore(db, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Record(ctx, &Entry{
			CourseID: 1, ActorID: 10, Action: ActionCommentCreate,
			EntityType: EntityComment, EntityID: int64(i + 1),
		}))
	}

	page, err := store.GetForCourse(ctx, 1, Filter{}, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(3), page[0].EntityID)
	assert.Equal(t, int64(2), page[1].EntityID)
}
