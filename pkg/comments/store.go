package comments

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/courseforge/courseforge/pkg/observability"
)

// snippetLength bounds the comment excerpt carried on mention notifications
const snippetLength = 120

// Store persists comments and mention notifications
type Store struct {
	db      *sql.DB
	metrics *observability.Metrics
}

// NewStore creates a comment store. metrics may be nil.
func NewStore(db *sql.DB, metrics *observability.Metrics) *Store {
	return &Store{db: db, metrics: metrics}
}

// CreateParams describes a new comment
type CreateParams struct {
	CourseID   int64
	ActivityID *int64
	AuthorID   int64
	ParentID   *int64
	Content    string
}

// Create inserts a comment and derives its mentions in one transaction.
// Replying to a reply is refused: threads are exactly one level deep. A
// reply inherits the parent's activity scope.
func (s *Store) Create(ctx context.Context, p CreateParams) (*Comment, error) {
	if strings.TrimSpace(p.Content) == "" {
		return nil, fmt.Errorf("comment content is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if p.ParentID != nil {
		var (
			parentCourse   int64
			parentActivity sql.NullInt64
			grandparent    sql.NullInt64
		)
		err := tx.QueryRowContext(ctx,
			`SELECT course_id, activity_id, parent_id FROM comments WHERE id = $1`,
			*p.ParentID).Scan(&parentCourse, &parentActivity, &grandparent)
		if err == sql.ErrNoRows {
			return nil, ErrCommentNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load parent comment: %w", err)
		}
		if parentCourse != p.CourseID {
			return nil, ErrCommentNotFound
		}
		if grandparent.Valid {
			return nil, ErrNestedReply
		}
		if parentActivity.Valid {
			p.ActivityID = &parentActivity.Int64
		} else {
			p.ActivityID = nil
		}
	}

	now := time.Now().UTC()
	comment := &Comment{
		CourseID:   p.CourseID,
		ActivityID: p.ActivityID,
		AuthorID:   p.AuthorID,
		ParentID:   p.ParentID,
		Content:    p.Content,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO comments (course_id, activity_id, author_id, parent_id, content, resolved, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6, $7)
		RETURNING id`,
		p.CourseID, p.ActivityID, p.AuthorID, p.ParentID, p.Content, now, now,
	).Scan(&comment.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert comment: %w", err)
	}

	if err := s.syncMentions(ctx, tx, comment); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit comment: %w", err)
	}
	return comment, nil
}

// syncMentions reconciles the mentions table with the names currently in
// the comment text. A name resolves case-insensitively against the
// username, display name, or email of a current collaborator; the author
// never notifies themselves. Mentions that survive an edit keep their
// read state.
func (s *Store) syncMentions(ctx context.Context, tx *sql.Tx, comment *Comment) error {
	names := ParseMentions(comment.Content)

	keep := make([]int64, 0, len(names))
	for _, name := range names {
		rows, err := tx.QueryContext(ctx, `
			SELECT u.id
			FROM collaborators c
			JOIN users u ON u.id = c.user_id
			WHERE c.course_id = $1
			  AND (LOWER(u.username) = $2 OR LOWER(u.display_name) = $2 OR LOWER(u.email) = $2)`,
			comment.CourseID, strings.ToLower(name))
		if err != nil {
			return fmt.Errorf("failed to resolve mention %q: %w", name, err)
		}
		for rows.Next() {
			var userID int64
			if err := rows.Scan(&userID); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan mentioned user: %w", err)
			}
			if userID != comment.AuthorID {
				keep = append(keep, userID)
			}
		}
		if err := rows.Close(); err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	inserted := 0
	for _, userID := range keep {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO mentions (comment_id, mentioned_user_id, read, created_at)
			VALUES ($1, $2, FALSE, $3)
			ON CONFLICT (comment_id, mentioned_user_id) DO NOTHING`,
			comment.ID, userID, now)
		if err != nil {
			return fmt.Errorf("failed to insert mention: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	// Drop mentions whose names were edited out
	query := `DELETE FROM mentions WHERE comment_id = $1`
	args := []interface{}{comment.ID}
	if len(keep) > 0 {
		placeholders := make([]string, len(keep))
		for i, userID := range keep {
			args = append(args, userID)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		query += fmt.Sprintf(" AND mentioned_user_id NOT IN (%s)", strings.Join(placeholders, ", "))
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to prune stale mentions: %w", err)
	}

	if inserted > 0 && s.metrics != nil {
		s.metrics.MentionsTotal.Add(float64(inserted))
	}
	return nil
}

// Get returns a single comment
func (s *Store) Get(ctx context.Context, id int64) (*Comment, error) {
	var (
		c          Comment
		activityID sql.NullInt64
		parentID   sql.NullInt64
		authorName sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT c.id, c.course_id, c.activity_id, c.author_id, u.username, c.parent_id, c.content, c.resolved, c.created_at, c.updated_at
		FROM comments c
		LEFT JOIN users u ON u.id = c.author_id
		WHERE c.id = $1`, id,
	).Scan(&c.ID, &c.CourseID, &activityID, &c.AuthorID, &authorName, &parentID, &c.Content, &c.Resolved, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrCommentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get comment: %w", err)
	}

	if activityID.Valid {
		c.ActivityID = &activityID.Int64
	}
	if parentID.Valid {
		c.ParentID = &parentID.Int64
	}
	c.AuthorName = authorName.String
	return &c, nil
}

// UpdateContent replaces the comment text and re-derives mentions. The
// permission decision (author or moderator) belongs to the caller.
func (s *Store) UpdateContent(ctx context.Context, id int64, content string) (*Comment, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("comment content is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		c          Comment
		activityID sql.NullInt64
		parentID   sql.NullInt64
	)
	err = tx.QueryRowContext(ctx, `
		SELECT id, course_id, activity_id, author_id, parent_id, resolved, created_at
		FROM comments WHERE id = $1`, id,
	).Scan(&c.ID, &c.CourseID, &activityID, &c.AuthorID, &parentID, &c.Resolved, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrCommentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load comment: %w", err)
	}
	if activityID.Valid {
		c.ActivityID = &activityID.Int64
	}
	if parentID.Valid {
		c.ParentID = &parentID.Int64
	}

	now := time.Now().UTC()
	c.Content = content
	c.UpdatedAt = now

	if _, err := tx.ExecContext(ctx,
		`UPDATE comments SET content = $1, updated_at = $2 WHERE id = $3`,
		content, now, id); err != nil {
		return nil, fmt.Errorf("failed to update comment: %w", err)
	}

	if err := s.syncMentions(ctx, tx, &c); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit comment update: %w", err)
	}
	return &c, nil
}

// SetResolved flips the resolved flag. Resolved comments disappear from
// default listings but are never deleted by resolution.
func (s *Store) SetResolved(ctx context.Context, id int64, resolved bool) (*Comment, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE comments SET resolved = $1, updated_at = $2 WHERE id = $3`,
		resolved, time.Now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to set resolved: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrCommentNotFound
	}
	return s.Get(ctx, id)
}

// ListThreads returns the comment threads for a course or one activity,
// oldest first, replies nested under their parents. activityID nil means
// course-level comments. Resolved threads are hidden unless asked for.
func (s *Store) ListThreads(ctx context.Context, courseID int64, activityID *int64, includeResolved bool) ([]*Comment, error) {
	query := `
		SELECT c.id, c.course_id, c.activity_id, c.author_id, u.username, c.parent_id, c.content, c.resolved, c.created_at, c.updated_at
		FROM comments c
		LEFT JOIN users u ON u.id = c.author_id
		WHERE c.course_id = $1`
	args := []interface{}{courseID}

	if activityID != nil {
		args = append(args, *activityID)
		query += fmt.Sprintf(" AND c.activity_id = $%d", len(args))
	} else {
		query += " AND c.activity_id IS NULL"
	}
	query += " ORDER BY c.created_at, c.id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	byID := map[int64]*Comment{}
	var order []*Comment
	var replies []*Comment

	for rows.Next() {
		var (
			c        Comment
			actID    sql.NullInt64
			parentID sql.NullInt64
			author   sql.NullString
		)
		err := rows.Scan(&c.ID, &c.CourseID, &actID, &c.AuthorID, &author, &parentID, &c.Content, &c.Resolved, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		if actID.Valid {
			c.ActivityID = &actID.Int64
		}
		c.AuthorName = author.String

		if parentID.Valid {
			c.ParentID = &parentID.Int64
			replies = append(replies, &c)
			continue
		}
		if c.Resolved && !includeResolved {
			continue
		}
		byID[c.ID] = &c
		order = append(order, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Replies attach to their surviving parents; a reply whose thread is
	// hidden as resolved is hidden with it
	for _, reply := range replies {
		if parent, ok := byID[*reply.ParentID]; ok {
			parent.Replies = append(parent.Replies, reply)
		}
	}
	return order, nil
}

// Delete removes a comment. Deleting a top-level comment takes its replies
// and all their mentions with it.
func (s *Store) Delete(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM mentions
		WHERE comment_id IN (SELECT id FROM comments WHERE id = $1 OR parent_id = $1)`,
		id); err != nil {
		return fmt.Errorf("failed to delete mentions: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM comments WHERE parent_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete replies: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrCommentNotFound
	}

	return tx.Commit()
}

// UnreadMentions returns the user's unread mention notifications, newest
// first, with a snippet of the mentioning comment.
func (s *Store) UnreadMentions(ctx context.Context, userID int64) ([]*MentionNotification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.comment_id, m.mentioned_user_id, m.read, m.created_at,
		       c.course_id, c.activity_id, c.author_id, u.username, c.content
		FROM mentions m
		JOIN comments c ON c.id = m.comment_id
		LEFT JOIN users u ON u.id = c.author_id
		WHERE m.mentioned_user_id = $1 AND m.read = FALSE
		ORDER BY m.created_at DESC, m.id DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list unread mentions: %w", err)
	}
	defer rows.Close()

	var notifs []*MentionNotification
	for rows.Next() {
		var (
			n          MentionNotification
			activityID sql.NullInt64
			authorName sql.NullString
			content    string
		)
		err := rows.Scan(&n.ID, &n.CommentID, &n.MentionedUserID, &n.Read, &n.CreatedAt,
			&n.CourseID, &activityID, &n.AuthorID, &authorName, &content)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mention: %w", err)
		}
		if activityID.Valid {
			n.ActivityID = &activityID.Int64
		}
		n.AuthorName = authorName.String
		n.Snippet = snippet(content)
		notifs = append(notifs, &n)
	}
	return notifs, rows.Err()
}

// MarkMentionRead marks one of the user's mentions as read
func (s *Store) MarkMentionRead(ctx context.Context, mentionID, userID int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE mentions SET read = TRUE WHERE id = $1 AND mentioned_user_id = $2`,
		mentionID, userID)
	if err != nil {
		return fmt.Errorf("failed to mark mention read: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrMentionNotFound
	}
	return nil
}

// MarkAllMentionsRead marks every unread mention for the user and returns
// how many were flipped
func (s *Store) MarkAllMentionsRead(ctx context.Context, userID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE mentions SET read = TRUE WHERE mentioned_user_id = $1 AND read = FALSE`,
		userID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark mentions read: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func snippet(content string) string {
	runes := []rune(content)
	if len(runes) <= snippetLength {
		return content
	}
	return string(runes[:snippetLength]) + "..."
}
