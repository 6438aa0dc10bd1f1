package courses

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/courseforge/courseforge/pkg/rbac"
)

// Store persists courses and activities. Course creation and owner
// bootstrap share one transaction through the rbac store.
type Store struct {
	db   *sql.DB
	rbac *rbac.Store
}

// NewStore creates a course store
func NewStore(db *sql.DB, rbacStore *rbac.Store) *Store {
	return &Store{db: db, rbac: rbacStore}
}

// CreateCourse inserts the course and makes the creator its owner
// atomically. If the tx fails midway there is neither an orphan course
// nor a dangling owner role.
func (s *Store) CreateCourse(ctx context.Context, title, description string, creatorID int64) (*Course, error) {
	if title == "" {
		return nil, fmt.Errorf("course title is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	course := &Course{
		Title:       title,
		Description: description,
		CreatedBy:   creatorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO courses (title, description, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		title, description, creatorID, now, now,
	).Scan(&course.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert course: %w", err)
	}

	if err := s.rbac.EnsureOwnerCollaboratorTx(ctx, tx, course.ID, creatorID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit course creation: %w", err)
	}
	return course, nil
}

// GetCourse returns one course
func (s *Store) GetCourse(ctx context.Context, id int64) (*Course, error) {
	var c Course
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, description, created_by, created_at, updated_at
		FROM courses WHERE id = $1`, id,
	).Scan(&c.ID, &c.Title, &c.Description, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrCourseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get course: %w", err)
	}
	return &c, nil
}

// ListCoursesForUser returns the courses the user collaborates on
func (s *Store) ListCoursesForUser(ctx context.Context, userID int64) ([]*Course, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT co.id, co.title, co.description, co.created_by, co.created_at, co.updated_at
		FROM courses co
		JOIN collaborators cb ON cb.course_id = co.id
		WHERE cb.user_id = $1
		ORDER BY co.created_at DESC, co.id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list courses: %w", err)
	}
	defer rows.Close()

	var courses []*Course
	for rows.Next() {
		var c Course
		if err := rows.Scan(&c.ID, &c.Title, &c.Description, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan course: %w", err)
		}
		courses = append(courses, &c)
	}
	return courses, rows.Err()
}

// UpdateCourse applies non-nil fields and returns the updated course
func (s *Store) UpdateCourse(ctx context.Context, id int64, title, description *string) (*Course, error) {
	course, err := s.GetCourse(ctx, id)
	if err != nil {
		return nil, err
	}

	if title != nil {
		if *title == "" {
			return nil, fmt.Errorf("course title is required")
		}
		course.Title = *title
	}
	if description != nil {
		course.Description = *description
	}
	course.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx, `
		UPDATE courses SET title = $1, description = $2, updated_at = $3 WHERE id = $4`,
		course.Title, course.Description, course.UpdatedAt, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update course: %w", err)
	}
	return course, nil
}

// DeleteCourse removes the course and all its collaboration state in one
// transaction. The audit trail is deliberately left in place.
func (s *Store) DeleteCourse(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	statements := []string{
		`DELETE FROM mentions WHERE comment_id IN (SELECT id FROM comments WHERE course_id = $1)`,
		`DELETE FROM comments WHERE course_id = $1`,
		`DELETE FROM invitations WHERE course_id = $1`,
		`DELETE FROM collaborators WHERE course_id = $1`,
		`DELETE FROM role_permissions WHERE role_id IN (SELECT id FROM roles WHERE course_id = $1)`,
		`DELETE FROM roles WHERE course_id = $1`,
		`DELETE FROM activities WHERE course_id = $1`,
	}
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("failed to delete course state: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete course: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrCourseNotFound
	}

	return tx.Commit()
}

// CreateActivity appends an activity at the end of the course
func (s *Store) CreateActivity(ctx context.Context, courseID int64, title, body string, creatorID int64) (*Activity, error) {
	if title == "" {
		return nil, fmt.Errorf("activity title is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var position int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), 0) + 1 FROM activities WHERE course_id = $1`,
		courseID).Scan(&position)
	if err != nil {
		return nil, fmt.Errorf("failed to compute position: %w", err)
	}

	now := time.Now().UTC()
	activity := &Activity{
		CourseID:  courseID,
		Title:     title,
		Body:      body,
		Position:  position,
		CreatedBy: creatorID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO activities (course_id, title, body, position, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		courseID, title, body, position, creatorID, now, now,
	).Scan(&activity.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert activity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit activity: %w", err)
	}
	return activity, nil
}

// GetActivity returns one activity scoped to its course
func (s *Store) GetActivity(ctx context.Context, courseID, activityID int64) (*Activity, error) {
	var a Activity
	err := s.db.QueryRowContext(ctx, `
		SELECT id, course_id, title, body, position, created_by, created_at, updated_at
		FROM activities WHERE id = $1 AND course_id = $2`,
		activityID, courseID,
	).Scan(&a.ID, &a.CourseID, &a.Title, &a.Body, &a.Position, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrActivityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get activity: %w", err)
	}
	return &a, nil
}

// ListActivities returns the course's activities in position order
func (s *Store) ListActivities(ctx context.Context, courseID int64) ([]*Activity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, course_id, title, body, position, created_by, created_at, updated_at
		FROM activities WHERE course_id = $1
		ORDER BY position, id`, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	defer rows.Close()

	var activities []*Activity
	for rows.Next() {
		var a Activity
		err := rows.Scan(&a.ID, &a.CourseID, &a.Title, &a.Body, &a.Position, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		activities = append(activities, &a)
	}
	return activities, rows.Err()
}

// UpdateActivity applies non-nil fields and returns the updated activity
func (s *Store) UpdateActivity(ctx context.Context, courseID, activityID int64, title, body *string) (*Activity, error) {
	activity, err := s.GetActivity(ctx, courseID, activityID)
	if err != nil {
		return nil, err
	}

	if title != nil {
		if *title == "" {
			return nil, fmt.Errorf("activity title is required")
		}
		activity.Title = *title
	}
	if body != nil {
		activity.Body = *body
	}
	activity.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx, `
		UPDATE activities SET title = $1, body = $2, updated_at = $3 WHERE id = $4`,
		activity.Title, activity.Body, activity.UpdatedAt, activityID)
	if err != nil {
		return nil, fmt.Errorf("failed to update activity: %w", err)
	}
	return activity, nil
}

// DeleteActivity removes one activity and its comment threads
func (s *Store) DeleteActivity(ctx context.Context, courseID, activityID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM mentions WHERE comment_id IN
			(SELECT id FROM comments WHERE course_id = $1 AND activity_id = $2)`,
		courseID, activityID); err != nil {
		return fmt.Errorf("failed to delete activity mentions: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM comments WHERE course_id = $1 AND activity_id = $2`,
		courseID, activityID); err != nil {
		return fmt.Errorf("failed to delete activity comments: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM activities WHERE id = $1 AND course_id = $2`,
		activityID, courseID)
	if err != nil {
		return fmt.Errorf("failed to delete activity: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrActivityNotFound
	}

	return tx.Commit()
}

// ReorderActivities assigns positions 1..n following orderedIDs, which
// must be a permutation of the course's activities.
func (s *Store) ReorderActivities(ctx context.Context, courseID int64, orderedIDs []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM activities WHERE course_id = $1`, courseID)
	if err != nil {
		return fmt.Errorf("failed to load activities: %w", err)
	}
	current := map[int64]bool{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan activity id: %w", err)
		}
		current[id] = true
	}
	if err := rows.Close(); err != nil {
		return err
	}

	if len(orderedIDs) != len(current) {
		return ErrBadReorder
	}
	seen := map[int64]bool{}
	for _, id := range orderedIDs {
		if !current[id] || seen[id] {
			return ErrBadReorder
		}
		seen[id] = true
	}

	now := time.Now().UTC()
	for i, id := range orderedIDs {
		if _, err := tx.ExecContext(ctx,
			`UPDATE activities SET position = $1, updated_at = $2 WHERE id = $3`,
			i+1, now, id); err != nil {
			return fmt.Errorf("failed to reposition activity %d: %w", id, err)
		}
	}

	return tx.Commit()
}
