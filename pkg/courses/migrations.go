package courses

import "github.com/courseforge/courseforge/pkg/storage/postgres"

// Migrations returns the schema changes owned by the courses package
func Migrations() []postgres.Migration {
	return []postgres.Migration{
		{
			Version:     5,
			Description: "create courses table",
			SQL: `
				CREATE TABLE IF NOT EXISTS courses (
					id BIGSERIAL PRIMARY KEY,
					title TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					created_by BIGINT NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
				)`,
		},
		{
			Version:     6,
			Description: "create activities table",
			SQL: `
				CREATE TABLE IF NOT EXISTS activities (
					id BIGSERIAL PRIMARY KEY,
					course_id BIGINT NOT NULL REFERENCES courses(id),
					title TEXT NOT NULL,
					body TEXT NOT NULL DEFAULT '',
					position INTEGER NOT NULL DEFAULT 0,
					created_by BIGINT NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
				);
				CREATE INDEX IF NOT EXISTS idx_activities_course
					ON activities (course_id, position)`,
		},
	}
}
