package rbac

import "github.com/courseforge/courseforge/pkg/storage/postgres"

// Migrations returns the schema changes owned by the rbac package
func Migrations() []postgres.Migration {
	return []postgres.Migration{
		{
			Version:     10,
			Description: "create permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS permissions (
					id BIGSERIAL PRIMARY KEY,
					code TEXT NOT NULL UNIQUE,
					category TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT ''
				)`,
		},
		{
			Version:     11,
			Description: "create roles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS roles (
					id BIGSERIAL PRIMARY KEY,
					course_id BIGINT NOT NULL,
					name TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					template_name TEXT NOT NULL DEFAULT '',
					created_by BIGINT,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					UNIQUE (course_id, name)
				)`,
		},
		{
			Version:     12,
			Description: "create role_permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS role_permissions (
					role_id BIGINT NOT NULL REFERENCES roles(id),
					permission_id BIGINT NOT NULL REFERENCES permissions(id),
					PRIMARY KEY (role_id, permission_id)
				)`,
		},
		{
			Version:     13,
			Description: "create collaborators table",
			SQL: `
				CREATE TABLE IF NOT EXISTS collaborators (
					id BIGSERIAL PRIMARY KEY,
					course_id BIGINT NOT NULL,
					user_id BIGINT NOT NULL,
					role_id BIGINT NOT NULL REFERENCES roles(id),
					invited_by BIGINT,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					UNIQUE (course_id, user_id)
				)`,
		},
		{
			Version:     14,
			Description: "index collaborators by user for permission checks",
			SQL: `
				CREATE INDEX IF NOT EXISTS idx_collaborators_user
					ON collaborators (user_id, course_id)`,
		},
	}
}
