package courses

import (
	"errors"
	"time"

	"github.com/courseforge/courseforge/pkg/audit"
)

// Course is the root resource everything else hangs off
type Course struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	CreatedBy   int64     `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Snapshot captures the auditable fields of a course
func (c *Course) Snapshot() audit.Snapshot {
	return audit.Snapshot{
		"title":       c.Title,
		"description": c.Description,
	}
}

// Activity is one unit of course content, ordered by Position
type Activity struct {
	ID        int64     `json:"id"`
	CourseID  int64     `json:"course_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	Position  int       `json:"position"`
	CreatedBy int64     `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Snapshot captures the auditable fields of an activity
func (a *Activity) Snapshot() audit.Snapshot {
	return audit.Snapshot{
		"title":    a.Title,
		"body":     a.Body,
		"position": a.Position,
	}
}

var (
	ErrCourseNotFound   = errors.New("course not found")
	ErrActivityNotFound = errors.New("activity not found")
	// ErrBadReorder means the submitted ordering is not a permutation of
	// the course's current activities
	ErrBadReorder = errors.New("reorder must list every activity of the course exactly once")
)
