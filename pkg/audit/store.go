package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/courseforge/courseforge/pkg/observability"
)

// DeletedActorName is shown when the acting user no longer exists. The
// actor column carries no foreign key, so entries outlive their authors.
const DeletedActorName = "deleted user"

// Store persists and queries the append-only audit trail
type Store struct {
	db      *sql.DB
	metrics *observability.Metrics
}

// NewStore creates an audit store. metrics may be nil.
func NewStore(db *sql.DB, metrics *observability.Metrics) *Store {
	return &Store{db: db, metrics: metrics}
}

// Record implements Logger by appending one row. The trail is append-only:
// no update or delete statement exists anywhere in this package.
func (s *Store) Record(ctx context.Context, e *Entry) error {
	var changesJSON sql.NullString
	if len(e.Changes) > 0 {
		data, err := json.Marshal(e.Changes)
		if err != nil {
			return fmt.Errorf("failed to marshal audit changes: %w", err)
		}
		changesJSON = sql.NullString{String: string(data), Valid: true}
	}

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO audit_entries (course_id, actor_id, action, entity_type, entity_id, changes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		e.CourseID, e.ActorID, string(e.Action), string(e.EntityType), e.EntityID, changesJSON, e.CreatedAt,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}

	if s.metrics != nil {
		s.metrics.AuditEntriesTotal.WithLabelValues(string(e.Action)).Inc()
	}
	return nil
}

// Filter narrows audit queries. Zero values mean no constraint.
type Filter struct {
	Action     Action
	EntityType EntityType
	ActorID    int64
}

// GetForCourse returns a page of the course trail, newest first. Ordering is
// (created_at DESC, id DESC) so entries sharing a timestamp stay stable.
func (s *Store) GetForCourse(ctx context.Context, courseID int64, filter Filter, limit, offset int) ([]*Entry, error) {
	query := `
		SELECT id, course_id, actor_id, action, entity_type, entity_id, changes, created_at
		FROM audit_entries
		WHERE course_id = $1`
	args := []interface{}{courseID}

	if filter.Action != "" {
		args = append(args, string(filter.Action))
		query += fmt.Sprintf(" AND action = $%d", len(args))
	}
	if filter.EntityType != "" {
		args = append(args, string(filter.EntityType))
		query += fmt.Sprintf(" AND entity_type = $%d", len(args))
	}
	if filter.ActorID != 0 {
		args = append(args, filter.ActorID)
		query += fmt.Sprintf(" AND actor_id = $%d", len(args))
	}

	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// GetForEntity returns the full history of a single entity, newest first
func (s *Store) GetForEntity(ctx context.Context, courseID int64, entityType EntityType, entityID int64) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, course_id, actor_id, action, entity_type, entity_id, changes, created_at
		FROM audit_entries
		WHERE course_id = $1 AND entity_type = $2 AND entity_id = $3
		ORDER BY created_at DESC, id DESC`,
		courseID, string(entityType), entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query entity history: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// GetByActor returns everything one user did in a course, newest first
func (s *Store) GetByActor(ctx context.Context, courseID, actorID int64, limit, offset int) ([]*Entry, error) {
	return s.GetForCourse(ctx, courseID, Filter{ActorID: actorID}, limit, offset)
}

// GetFeed returns a page of the trail rendered for display: actor names are
// resolved with an outer join so deleted users show a placeholder, and each
// entry carries a human-readable summary.
func (s *Store) GetFeed(ctx context.Context, courseID int64, limit, offset int) ([]*FeedItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.course_id, a.actor_id, a.action, a.entity_type, a.entity_id, a.changes, a.created_at,
		       u.display_name, u.username
		FROM audit_entries a
		LEFT JOIN users u ON u.id = a.actor_id
		WHERE a.course_id = $1
		ORDER BY a.created_at DESC, a.id DESC
		LIMIT $2 OFFSET $3`,
		courseID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit feed: %w", err)
	}
	defer rows.Close()

	var items []*FeedItem
	for rows.Next() {
		var (
			item        FeedItem
			changesJSON sql.NullString
			displayName sql.NullString
			username    sql.NullString
		)
		err := rows.Scan(&item.ID, &item.CourseID, &item.ActorID, &item.Action, &item.EntityType,
			&item.EntityID, &changesJSON, &item.CreatedAt, &displayName, &username)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed item: %w", err)
		}
		if err := unmarshalChanges(changesJSON, &item.Entry); err != nil {
			return nil, err
		}

		switch {
		case displayName.Valid && displayName.String != "":
			item.ActorName = displayName.String
		case username.Valid:
			item.ActorName = username.String
		default:
			item.ActorName = DeletedActorName
		}
		item.Summary = Summarize(&item.Entry)
		items = append(items, &item)
	}
	return items, rows.Err()
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var (
			e           Entry
			changesJSON sql.NullString
		)
		err := rows.Scan(&e.ID, &e.CourseID, &e.ActorID, &e.Action, &e.EntityType,
			&e.EntityID, &changesJSON, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if err := unmarshalChanges(changesJSON, &e); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func unmarshalChanges(raw sql.NullString, e *Entry) error {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw.String), &e.Changes); err != nil {
		return fmt.Errorf("failed to unmarshal audit changes for entry %d: %w", e.ID, err)
	}
	return nil
}

var actionPhrases = map[Action]string{
	ActionCourseCreate:           "created the course",
	ActionCourseUpdate:           "updated the course",
	ActionCourseDelete:           "deleted the course",
	ActionActivityCreate:         "added an activity",
	ActionActivityUpdate:         "updated an activity",
	ActionActivityDelete:         "removed an activity",
	ActionActivityReorder:        "reordered activities",
	ActionRoleCreate:             "created a role",
	ActionRoleDelete:             "deleted a role",
	ActionCollaboratorAdd:        "added a collaborator",
	ActionCollaboratorRoleChange: "changed a collaborator's role",
	ActionCollaboratorRemove:     "removed a collaborator",
	ActionInvitationCreate:       "created an invitation",
	ActionInvitationAccept:       "accepted an invitation",
	ActionInvitationRevoke:       "revoked an invitation",
	ActionCommentCreate:          "left a comment",
	ActionCommentUpdate:          "edited a comment",
	ActionCommentResolve:         "resolved a comment",
	ActionCommentUnresolve:       "reopened a comment",
	ActionCommentDelete:          "deleted a comment",
}

// Summarize renders one entry as a short human-readable phrase. Update
// actions list the changed fields.
func Summarize(e *Entry) string {
	phrase, ok := actionPhrases[e.Action]
	if !ok {
		phrase = string(e.Action)
	}

	switch e.Action {
	case ActionCourseUpdate, ActionActivityUpdate, ActionCommentUpdate:
		if fields := e.ChangedFields(); len(fields) > 0 {
			return fmt.Sprintf("%s (%s)", phrase, strings.Join(fields, ", "))
		}
	}
	return phrase
}
