package audit

import "github.com/courseforge/courseforge/pkg/storage/postgres"

// Migrations returns the schema changes owned by the audit package.
// actor_id intentionally carries no foreign key so history survives user
// deletion.
func Migrations() []postgres.Migration {
	return []postgres.Migration{
		{
			Version:     20,
			Description: "create audit_entries table",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_entries (
					id BIGSERIAL PRIMARY KEY,
					course_id BIGINT NOT NULL,
					actor_id BIGINT NOT NULL,
					action TEXT NOT NULL,
					entity_type TEXT NOT NULL,
					entity_id BIGINT NOT NULL,
					changes TEXT,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
				)`,
		},
		{
			Version:     21,
			Description: "index audit_entries for course and entity lookups",
			SQL: `
				CREATE INDEX IF NOT EXISTS idx_audit_course_created
					ON audit_entries (course_id, created_at DESC, id DESC);
				CREATE INDEX IF NOT EXISTS idx_audit_entity
					ON audit_entries (course_id, entity_type, entity_id)`,
		},
	}
}
