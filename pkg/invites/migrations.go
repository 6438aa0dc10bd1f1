package invites

import "github.com/courseforge/courseforge/pkg/storage/postgres"

// Migrations returns the schema changes owned by the invites package
func Migrations() []postgres.Migration {
	return []postgres.Migration{
		{
			Version:     15,
			Description: "create invitations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS invitations (
					id BIGSERIAL PRIMARY KEY,
					token TEXT NOT NULL UNIQUE,
					course_id BIGINT NOT NULL,
					role_id BIGINT NOT NULL REFERENCES roles(id),
					invited_by BIGINT NOT NULL,
					email TEXT,
					expires_at TIMESTAMP,
					revoked BOOLEAN NOT NULL DEFAULT FALSE,
					accepted_at TIMESTAMP,
					accepted_by BIGINT,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
				)`,
		},
		{
			Version:     16,
			Description: "index invitations by course",
			SQL: `
				CREATE INDEX IF NOT EXISTS idx_invitations_course
					ON invitations (course_id, created_at DESC)`,
		},
	}
}
