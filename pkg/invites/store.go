package invites

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/courseforge/courseforge/pkg/observability"
	"github.com/lib/pq"
)

// DefaultEmailTTL is applied when an invitation targets an email address
// and the creator gave no explicit expiry. Shareable links without an
// email may be created without expiry.
const DefaultEmailTTL = 7 * 24 * time.Hour

// tokenBytes of entropy go into each token before URL-safe encoding
const tokenBytes = 32

// Store persists invitations and handles redemption
type Store struct {
	db      *sql.DB
	metrics *observability.Metrics
}

// NewStore creates an invitation store. metrics may be nil.
func NewStore(db *sql.DB, metrics *observability.Metrics) *Store {
	return &Store{db: db, metrics: metrics}
}

// CreateParams describes a new invitation
type CreateParams struct {
	CourseID  int64
	RoleID    int64
	InvitedBy int64
	Email     *string
	ExpiresIn *time.Duration
}

// Create mints a new invitation token. Email invitations default to a
// seven-day expiry; only explicit link invitations may live forever.
func (s *Store) Create(ctx context.Context, p CreateParams) (*Invitation, error) {
	var roleID int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM roles WHERE id = $1 AND course_id = $2`,
		p.RoleID, p.CourseID).Scan(&roleID)
	if err == sql.ErrNoRows {
		return nil, ErrRoleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to verify role: %w", err)
	}

	token, err := generateToken()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	inv := &Invitation{
		Token:     token,
		CourseID:  p.CourseID,
		RoleID:    p.RoleID,
		InvitedBy: p.InvitedBy,
		Email:     p.Email,
		CreatedAt: now,
	}

	switch {
	case p.ExpiresIn != nil:
		t := now.Add(*p.ExpiresIn)
		inv.ExpiresAt = &t
	case p.Email != nil && *p.Email != "":
		t := now.Add(DefaultEmailTTL)
		inv.ExpiresAt = &t
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO invitations (token, course_id, role_id, invited_by, email, expires_at, revoked, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		RETURNING id`,
		inv.Token, inv.CourseID, inv.RoleID, inv.InvitedBy, inv.Email, inv.ExpiresAt, inv.CreatedAt,
	).Scan(&inv.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create invitation: %w", err)
	}

	s.count("created")
	return inv, nil
}

func generateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate invitation token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Validate returns the invitation for a token if it is still redeemable.
// Unknown, revoked, expired, and already-used tokens all yield the same
// ErrInvalidToken.
func (s *Store) Validate(ctx context.Context, token string) (*Invitation, error) {
	inv, err := s.getByToken(ctx, s.db, token)
	if err != nil {
		return nil, err
	}
	if !inv.Pending(time.Now().UTC()) {
		return nil, ErrInvalidToken
	}
	return inv, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (s *Store) getByToken(ctx context.Context, q querier, token string) (*Invitation, error) {
	var (
		inv        Invitation
		email      sql.NullString
		expiresAt  sql.NullTime
		acceptedAt sql.NullTime
		acceptedBy sql.NullInt64
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, token, course_id, role_id, invited_by, email, expires_at, revoked, accepted_at, accepted_by, created_at
		FROM invitations WHERE token = $1`, token,
	).Scan(&inv.ID, &inv.Token, &inv.CourseID, &inv.RoleID, &inv.InvitedBy,
		&email, &expiresAt, &inv.Revoked, &acceptedAt, &acceptedBy, &inv.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up invitation: %w", err)
	}

	if email.Valid {
		inv.Email = &email.String
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		inv.ExpiresAt = &t
	}
	if acceptedAt.Valid {
		t := acceptedAt.Time
		inv.AcceptedAt = &t
	}
	if acceptedBy.Valid {
		inv.AcceptedBy = &acceptedBy.Int64
	}
	return &inv, nil
}

// Revoke flips the one-way revoked flag. Revoking an already-revoked
// invitation is a no-op; the flag never un-flips.
func (s *Store) Revoke(ctx context.Context, courseID int64, token string) (*Invitation, error) {
	inv, err := s.getByToken(ctx, s.db, token)
	if err != nil {
		return nil, err
	}
	if inv.CourseID != courseID {
		return nil, ErrInvalidToken
	}
	if inv.Revoked {
		return inv, nil
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE invitations SET revoked = TRUE WHERE id = $1`, inv.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to revoke invitation: %w", err)
	}
	inv.Revoked = true

	s.count("revoked")
	return inv, nil
}

// AcceptResult reports what Accept did
type AcceptResult struct {
	Invitation *Invitation
	// AlreadyCollaborator is true when the redeemer was on the course
	// already; their existing role is left untouched.
	AlreadyCollaborator bool
}

// Accept redeems a token for userID inside one transaction: validation,
// collaborator insert, and the invitation's accepted mark commit together.
// A concurrent double redemption is settled by the unique
// (course_id, user_id) constraint, not by locking.
func (s *Store) Accept(ctx context.Context, token string, userID int64) (*AcceptResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	inv, err := s.getByToken(ctx, tx, token)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if !inv.Pending(now) {
		// Redemption is idempotent for the user who consumed the token: a
		// repeat accept reports the existing collaboration. Anyone else
		// gets the uniform rejection.
		if inv.AcceptedBy != nil && *inv.AcceptedBy == userID {
			return &AcceptResult{Invitation: inv, AlreadyCollaborator: true}, nil
		}
		return nil, ErrInvalidToken
	}

	var existing int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM collaborators WHERE course_id = $1 AND user_id = $2`,
		inv.CourseID, userID).Scan(&existing)

	already := false
	switch {
	case err == sql.ErrNoRows:
		_, err = tx.ExecContext(ctx, `
			INSERT INTO collaborators (course_id, user_id, role_id, invited_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			inv.CourseID, userID, inv.RoleID, inv.InvitedBy, now, now)
		if err != nil {
			if isUniqueViolation(err) {
				already = true
			} else {
				return nil, fmt.Errorf("failed to add collaborator: %w", err)
			}
		}
	case err != nil:
		return nil, fmt.Errorf("failed to check existing collaborator: %w", err)
	default:
		already = true
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE invitations SET accepted_at = $1, accepted_by = $2
		WHERE id = $3 AND accepted_at IS NULL`,
		now, userID, inv.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark invitation accepted: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit acceptance: %w", err)
	}

	inv.AcceptedAt = &now
	inv.AcceptedBy = &userID

	s.count("accepted")
	return &AcceptResult{Invitation: inv, AlreadyCollaborator: already}, nil
}

// ListPending returns the invitations for a course that can still be
// accepted, newest first
func (s *Store) ListPending(ctx context.Context, courseID int64) ([]*Invitation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.token, i.course_id, i.role_id, r.name, i.invited_by, i.email, i.expires_at, i.revoked, i.accepted_at, i.accepted_by, i.created_at
		FROM invitations i
		JOIN roles r ON r.id = i.role_id
		WHERE i.course_id = $1
		  AND i.revoked = FALSE
		  AND i.accepted_at IS NULL
		  AND (i.expires_at IS NULL OR i.expires_at > $2)
		ORDER BY i.created_at DESC, i.id DESC`,
		courseID, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list pending invitations: %w", err)
	}
	defer rows.Close()

	var invs []*Invitation
	for rows.Next() {
		var (
			inv        Invitation
			email      sql.NullString
			expiresAt  sql.NullTime
			acceptedAt sql.NullTime
			acceptedBy sql.NullInt64
		)
		err := rows.Scan(&inv.ID, &inv.Token, &inv.CourseID, &inv.RoleID, &inv.RoleName, &inv.InvitedBy,
			&email, &expiresAt, &inv.Revoked, &acceptedAt, &acceptedBy, &inv.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		if email.Valid {
			inv.Email = &email.String
		}
		if expiresAt.Valid {
			t := expiresAt.Time
			inv.ExpiresAt = &t
		}
		invs = append(invs, &inv)
	}
	return invs, rows.Err()
}

// CleanupExpired deletes invitations that expired without being accepted.
// Run periodically; expiry itself is enforced at validation time, this
// just keeps the table small.
func (s *Store) CleanupExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM invitations
		WHERE expires_at IS NOT NULL AND expires_at < $1 AND accepted_at IS NULL`,
		time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to clean up expired invitations: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	if n > 0 && s.metrics != nil {
		s.metrics.InvitationsTotal.WithLabelValues("expired_cleaned").Add(float64(n))
	}
	return n, nil
}

func (s *Store) count(event string) {
	if s.metrics != nil {
		s.metrics.InvitationsTotal.WithLabelValues(event).Inc()
	}
}

func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
