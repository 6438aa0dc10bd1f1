package comments

import "github.com/courseforge/courseforge/pkg/storage/postgres"

// Migrations returns the schema changes owned by the comments package
func Migrations() []postgres.Migration {
	return []postgres.Migration{
		{
			Version:     17,
			Description: "create comments table",
			SQL: `
				CREATE TABLE IF NOT EXISTS comments (
					id BIGSERIAL PRIMARY KEY,
					course_id BIGINT NOT NULL,
					activity_id BIGINT,
					author_id BIGINT NOT NULL,
					parent_id BIGINT REFERENCES comments(id),
					content TEXT NOT NULL,
					resolved BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
				)`,
		},
		{
			Version:     18,
			Description: "create mentions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS mentions (
					id BIGSERIAL PRIMARY KEY,
					comment_id BIGINT NOT NULL REFERENCES comments(id),
					mentioned_user_id BIGINT NOT NULL,
					read BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					UNIQUE (comment_id, mentioned_user_id)
				)`,
		},
		{
			Version:     19,
			Description: "index comments and mentions for listing",
			SQL: `
				CREATE INDEX IF NOT EXISTS idx_comments_course_activity
					ON comments (course_id, activity_id, created_at);
				CREATE INDEX IF NOT EXISTS idx_mentions_user_unread
					ON mentions (mentioned_user_id, read)`,
		},
	}
}
