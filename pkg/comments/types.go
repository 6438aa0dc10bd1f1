package comments

import (
	"errors"
	"time"
)

// Comment is a discussion entry on a course or one of its activities.
// Threads are exactly one level deep: a comment either has no parent or
// its parent is itself parentless.
type Comment struct {
	ID         int64      `json:"id"`
	CourseID   int64      `json:"course_id"`
	ActivityID *int64     `json:"activity_id,omitempty"`
	AuthorID   int64      `json:"author_id"`
	AuthorName string     `json:"author_name,omitempty"`
	ParentID   *int64     `json:"parent_id,omitempty"`
	Content    string     `json:"content"`
	Resolved   bool       `json:"resolved"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	Replies    []*Comment `json:"replies,omitempty"`
}

// Mention is a notification that a comment named a collaborator
type Mention struct {
	ID              int64     `json:"id"`
	CommentID       int64     `json:"comment_id"`
	MentionedUserID int64     `json:"mentioned_user_id"`
	Read            bool      `json:"read"`
	CreatedAt       time.Time `json:"created_at"`
}

// MentionNotification is a mention joined with enough comment context to
// render an inbox entry
type MentionNotification struct {
	Mention
	CourseID   int64  `json:"course_id"`
	ActivityID *int64 `json:"activity_id,omitempty"`
	AuthorID   int64  `json:"author_id"`
	AuthorName string `json:"author_name,omitempty"`
	Snippet    string `json:"snippet"`
}

var (
	ErrCommentNotFound = errors.New("comment not found")
	ErrNestedReply     = errors.New("replies to replies are not allowed")
	ErrMentionNotFound = errors.New("mention not found")
)
