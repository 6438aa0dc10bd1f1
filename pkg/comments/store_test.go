package comments

import (
	"context"
	"database/sql"
	"testing"

	"github.com/courseforge/courseforge/pkg/rbac"
	"github.com/courseforge/courseforge/pkg/storage/sqlitetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store    *Store
	roles    *rbac.Store
	db       *sql.DB
	courseID int64
	alice    int64
	bob      int64
	carol    int64
}

// setup creates a course with alice, bob, and carol as collaborators.
// carol exists as a user but does not collaborate.
func setup(t *testing.T) *fixture {
	t.Helper()

	db := sqlitetest.Open(t)
	ctx := context.Background()
	require.NoError(t, rbac.SeedPermissions(ctx, db))

	f := &fixture{
		store: NewStore(db, nil),
		roles: rbac.NewStore(db),
		db:    db,
		alice: sqlitetest.InsertUser(t, db, "alice"),
		bob:   sqlitetest.InsertUser(t, db, "bob"),
		carol: sqlitetest.InsertUser(t, db, "carol"),
	}
	f.courseID = sqlitetest.InsertCourse(t, db, "Intro to Go", f.alice)

	require.NoError(t, f.roles.EnsureOwnerCollaborator(ctx, f.courseID, f.alice))
	sme, err := f.roles.CreateRoleFromTemplate(ctx, f.courseID, rbac.TemplateSME, f.alice)
	require.NoError(t, err)
	_, _, err = f.roles.AddCollaborator(ctx, f.courseID, f.bob, sme.ID, nil)
	require.NoError(t, err)

	return f
}

func (f *fixture) mentionedUsers(t *testing.T, commentID int64) []int64 {
	t.Helper()

	rows, err := f.db.Query(
		`SELECT mentioned_user_id FROM mentions WHERE comment_id = $1 ORDER BY mentioned_user_id`, commentID)
	require.NoError(t, err)
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		require.NoError(t, rows.Scan(&id))
		ids = append(ids, id)
	}
	return ids
}

func TestCreateCommentWithMentions(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	comment, err := f.store.Create(ctx, CreateParams{
		CourseID: f.courseID,
		AuthorID: f.alice,
		Content:  "@bob can you draft module two?",
	})
	require.NoError(t, err)

	assert.Equal(t, []int64{f.bob}, f.mentionedUsers(t, comment.ID))
}

func TestMentionsOnlyResolveCollaborators(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// carol is a real user but not on the course; dave does not exist
	comment, err := f.store.Create(ctx, CreateParams{
		CourseID: f.courseID,
		AuthorID: f.alice,
		Content:  "@carol @dave @bob please chime in",
	})
	require.NoError(t, err)

	assert.Equal(t, []int64{f.bob}, f.mentionedUsers(t, comment.ID))
}

func TestQuotedEmailMentionResolves(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// bob's email is bob@example.com; the quoted form carries it intact
	comment, err := f.store.Create(ctx, CreateParams{
		CourseID: f.courseID,
		AuthorID: f.alice,
		Content:  `@"bob@example.com" please review the outline`,
	})
	require.NoError(t, err)

	assert.Equal(t, []int64{f.bob}, f.mentionedUsers(t, comment.ID))
}

func TestSelfMentionIsIgnored(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	comment, err := f.store.Create(ctx, CreateParams{
		CourseID: f.courseID,
		AuthorID: f.bob,
		Content:  "note to self: @bob fix the typo, ask @alice",
	})
	require.NoError(t, err)

	assert.Equal(t, []int64{f.alice}, f.mentionedUsers(t, comment.ID))
}

func TestDuplicateMentionNotifiesOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	comment, err := f.store.Create(ctx, CreateParams{
		CourseID: f.courseID,
		AuthorID: f.alice,
		Content:  "@bob then @bob again and @Bob once more",
	})
	require.NoError(t, err)

	assert.Equal(t, []int64{f.bob}, f.mentionedUsers(t, comment.ID))
}

func TestReplyDepthLimit(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	top, err := f.store.Create(ctx, CreateParams{
		CourseID: f.courseID, AuthorID: f.alice, Content: "thread start",
	})
	require.NoError(t, err)

	reply, err := f.store.Create(ctx, CreateParams{
		CourseID: f.courseID, AuthorID: f.bob, ParentID: &top.ID, Content: "first reply",
	})
	require.NoError(t, err)

	_, err = f.store.Create(ctx, CreateParams{
		CourseID: f.courseID, AuthorID: f.alice, ParentID: &reply.ID, Content: "reply to reply",
	})
	assert.ErrorIs(t, err, ErrNestedReply)
}

func TestReplyInheritsParentActivityScope(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	activityID := int64(7)
	top, err := f.store.Create(ctx, CreateParams{
		CourseID: f.courseID, ActivityID: &activityID, AuthorID: f.alice, Content: "on the activity",
	})
	require.NoError(t, err)

	// The reply claims no activity but lands on the parent's
	reply, err := f.store.Create(ctx, CreateParams{
		CourseID: f.courseID, AuthorID: f.bob, ParentID: &top.ID, Content: "agreed",
	})
	require.NoError(t, err)
	require.NotNil(t, reply.ActivityID)
	assert.Equal(t, activityID, *reply.ActivityID)
}

func TestReplyToForeignCourseParent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	top, err := f.store.Create(ctx, CreateParams{
		CourseID: f.courseID, AuthorID: f.alice, Content: "thread",
	})
	require.NoError(t, err)

	_, err = f.store.Create(ctx, CreateParams{
		CourseID: f.courseID + 1, AuthorID: f.alice, ParentID: &top.ID, Content: "cross-course reply",
	})
	assert.ErrorIs(t, err, ErrCommentNotFound)
}

func TestListThreadsNestsReplies(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	first, err := f.store.Create(ctx, CreateParams{CourseID: f.courseID, AuthorID: f.alice, Content: "first"})
	require.NoError(t, err)
	_, err = f.store.Create(ctx, CreateParams{CourseID: f.courseID, AuthorID: f.bob, ParentID: &first.ID, Content: "re: first"})
	require.NoError(t, err)
	_, err = f.store.Create(ctx, CreateParams{CourseID: f.courseID, AuthorID: f.bob, Content: "second"})
	require.NoError(t, err)

	threads, err := f.store.ListThreads(ctx, f.courseID, nil, false)
	require.NoError(t, err)
	require.Len(t, threads, 2)

	assert.Equal(t, "first", threads[0].Content)
	require.Len(t, threads[0].Replies, 1)
	assert.Equal(t, "re: first", threads[0].Replies[0].Content)
	assert.Empty(t, threads[1].Replies)
	assert.Equal(t, "alice", threads[0].AuthorName)
}

func TestResolvedThreadsHiddenByDefault(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	open, err := f.store.Create(ctx, CreateParams{CourseID: f.courseID, AuthorID: f.alice, Content: "open"})
	require.NoError(t, err)
	done, err := f.store.Create(ctx, CreateParams{CourseID: f.courseID, AuthorID: f.alice, Content: "done"})
	require.NoError(t, err)

	_, err = f.store.SetResolved(ctx, done.ID, true)
	require.NoError(t, err)

	threads, err := f.store.ListThreads(ctx, f.courseID, nil, false)
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, open.ID, threads[0].ID)

	all, err := f.store.ListThreads(ctx, f.courseID, nil, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	// Unresolve brings it back
	_, err = f.store.SetResolved(ctx, done.ID, false)
	require.NoError(t, err)
	threads, err = f.store.ListThreads(ctx, f.courseID, nil, false)
	require.NoError(t, err)
	assert.Len(t, threads, 2)
}

func TestListThreadsScopesByActivity(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	activityID := int64(7)
	_, err := f.store.Create(ctx, CreateParams{CourseID: f.courseID, ActivityID: &activityID, AuthorID: f.alice, Content: "on activity"})
	require.NoError(t, err)
	_, err = f.store.Create(ctx, CreateParams{CourseID: f.courseID, AuthorID: f.alice, Content: "on course"})
	require.NoError(t, err)

	courseLevel, err := f.store.ListThreads(ctx, f.courseID, nil, false)
	require.NoError(t, err)
	require.Len(t, courseLevel, 1)
	assert.Equal(t, "on course", courseLevel[0].Content)

	activityLevel, err := f.store.ListThreads(ctx, f.courseID, &activityID, false)
	require.NoError(t, err)
	require.Len(t, activityLevel, 1)
	assert.Equal(t, "on activity", activityLevel[0].Content)
}

func TestEditReDerivesMentions(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	comment, err := f.store.Create(ctx, CreateParams{
		CourseID: f.courseID, AuthorID: f.alice, Content: "@bob take a look",
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{f.bob}, f.mentionedUsers(t, comment.ID))

	// Editing bob out removes his notification
	_, err = f.store.UpdateContent(ctx, comment.ID, "never mind, handled it")
	require.NoError(t, err)
	assert.Empty(t, f.mentionedUsers(t, comment.ID))
}

func TestEditKeepsReadStateOfSurvivingMentions(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	comment, err := f.store.Create(ctx, CreateParams{
		CourseID: f.courseID, AuthorID: f.alice, Content: "@bob take a look",
	})
	require.NoError(t, err)

	notifs, err := f.store.UnreadMentions(ctx, f.bob)
	require.NoError(t, err)
	require.Len(t, notifs, 1)
	require.NoError(t, f.store.MarkMentionRead(ctx, notifs[0].ID, f.bob))

	_, err = f.store.UpdateContent(ctx, comment.ID, "@bob take another look")
	require.NoError(t, err)

	// The mention survived the edit without being reset to unread
	notifs, err = f.store.UnreadMentions(ctx, f.bob)
	require.NoError(t, err)
	assert.Empty(t, notifs)
}

func TestDeleteThreadCascades(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	top, err := f.store.Create(ctx, CreateParams{CourseID: f.courseID, AuthorID: f.alice, Content: "thread @bob"})
	require.NoError(t, err)
	_, err = f.store.Create(ctx, CreateParams{CourseID: f.courseID, AuthorID: f.bob, ParentID: &top.ID, Content: "reply @alice"})
	require.NoError(t, err)

	require.NoError(t, f.store.Delete(ctx, top.ID))

	var comments, mentions int
	require.NoError(t, f.db.QueryRow(`SELECT COUNT(*) FROM comments`).Scan(&comments))
	require.NoError(t, f.db.QueryRow(`SELECT COUNT(*) FROM mentions`).Scan(&mentions))
	assert.Zero(t, comments)
	assert.Zero(t, mentions)
}

func TestUnreadMentions(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.store.Create(ctx, CreateParams{
		CourseID: f.courseID, AuthorID: f.alice, Content: "@bob first ask",
	})
	require.NoError(t, err)
	_, err = f.store.Create(ctx, CreateParams{
		CourseID: f.courseID, AuthorID: f.alice, Content: "@bob second ask",
	})
	require.NoError(t, err)

	notifs, err := f.store.UnreadMentions(ctx, f.bob)
	require.NoError(t, err)
	require.Len(t, notifs, 2)
	assert.Equal(t, "alice", notifs[0].AuthorName)
	assert.Contains(t, notifs[0].Snippet, "second ask")

	n, err := f.store.MarkAllMentionsRead(ctx, f.bob)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	notifs, err = f.store.UnreadMentions(ctx, f.bob)
	require.NoError(t, err)
	assert.Empty(t, notifs)
}

func TestMarkMentionReadRequiresOwnership(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.store.Create(ctx, CreateParams{
		CourseID: f.courseID, AuthorID: f.alice, Content: "@bob check this",
	})
	require.NoError(t, err)

	notifs, err := f.store.UnreadMentions(ctx, f.bob)
	require.NoError(t, err)
	require.Len(t, notifs, 1)

	// alice cannot mark bob's mention read
	err = f.store.MarkMentionRead(ctx, notifs[0].ID, f.alice)
	assert.ErrorIs(t, err, ErrMentionNotFound)
}
