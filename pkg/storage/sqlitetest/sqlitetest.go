// Package sqlitetest provides an in-memory SQLite database with the full
// application schema for store tests. The production schema lives in the
// per-package migrations; this mirror keeps the same tables and constraints
// in SQLite dialect so stores can be exercised without PostgreSQL.
package sqlitetest

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	email TEXT,
	display_name TEXT,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	last_seen_at DATETIME
);

CREATE TABLE courses (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	created_by INTEGER NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE activities (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	course_id INTEGER NOT NULL REFERENCES courses(id),
	title TEXT NOT NULL,
	body TEXT NOT NULL DEFAULT '',
	position INTEGER NOT NULL DEFAULT 0,
	created_by INTEGER NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE permissions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	code TEXT NOT NULL UNIQUE,
	category TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT ''
);

CREATE TABLE roles (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	course_id INTEGER NOT NULL,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	template_name TEXT NOT NULL DEFAULT '',
	created_by INTEGER,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (course_id, name)
);

CREATE TABLE role_permissions (
	role_id INTEGER NOT NULL REFERENCES roles(id),
	permission_id INTEGER NOT NULL REFERENCES permissions(id),
	PRIMARY KEY (role_id, permission_id)
);

CREATE TABLE collaborators (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	course_id INTEGER NOT NULL,
	user_id INTEGER NOT NULL,
	role_id INTEGER NOT NULL REFERENCES roles(id),
	invited_by INTEGER,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (course_id, user_id)
);

CREATE TABLE invitations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	token TEXT NOT NULL UNIQUE,
	course_id INTEGER NOT NULL,
	role_id INTEGER NOT NULL REFERENCES roles(id),
	invited_by INTEGER NOT NULL,
	email TEXT,
	expires_at DATETIME,
	revoked BOOLEAN NOT NULL DEFAULT FALSE,
	accepted_at DATETIME,
	accepted_by INTEGER,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE comments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	course_id INTEGER NOT NULL,
	activity_id INTEGER,
	author_id INTEGER NOT NULL,
	parent_id INTEGER REFERENCES comments(id),
	content TEXT NOT NULL,
	resolved BOOLEAN NOT NULL DEFAULT FALSE,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE mentions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	comment_id INTEGER NOT NULL REFERENCES comments(id),
	mentioned_user_id INTEGER NOT NULL,
	read BOOLEAN NOT NULL DEFAULT FALSE,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (comment_id, mentioned_user_id)
);

CREATE TABLE audit_entries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	course_id INTEGER NOT NULL,
	actor_id INTEGER NOT NULL,
	action TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	entity_id INTEGER NOT NULL,
	changes TEXT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Open returns an in-memory database with the full schema applied. The
// database is closed automatically when the test finishes.
func Open(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	// A single connection keeps every statement on the same in-memory DB
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	return db
}

// InsertUser creates a user row and returns its ID
func InsertUser(t *testing.T, db *sql.DB, username string) int64 {
	t.Helper()

	res, err := db.Exec(
		`INSERT INTO users (username, email, display_name, is_active) VALUES (?, ?, ?, TRUE)`,
		username, username+"@example.com", username)
	if err != nil {
		t.Fatalf("failed to insert user %s: %v", username, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("failed to get user id: %v", err)
	}
	return id
}

// InsertCourse creates a course row and returns its ID
func InsertCourse(t *testing.T, db *sql.DB, title string, createdBy int64) int64 {
	t.Helper()

	now := time.Now().UTC()
	res, err := db.Exec(
		`INSERT INTO courses (title, created_by, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		title, createdBy, now, now)
	if err != nil {
		t.Fatalf("failed to insert course %s: %v", title, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("failed to get course id: %v", err)
	}
	return id
}
