package invites

import (
	"errors"
	"net/http"
	"time"

	"github.com/courseforge/courseforge/pkg/audit"
	"github.com/courseforge/courseforge/pkg/contextkeys"
	"github.com/courseforge/courseforge/pkg/httputil"
	"github.com/courseforge/courseforge/pkg/middleware"
	"github.com/courseforge/courseforge/pkg/observability"
)

// Handlers exposes invitation management over HTTP. Course-scoped routes
// sit behind the course.invite decorator; accept only needs an identity,
// the token itself is the authorization.
type Handlers struct {
	store    *Store
	auditLog audit.Logger
}

// NewHandlers creates invitation HTTP handlers
func NewHandlers(store *Store, auditLog audit.Logger) *Handlers {
	return &Handlers{store: store, auditLog: auditLog}
}

type createInvitationRequest struct {
	RoleID         int64   `json:"role_id"`
	Email          *string `json:"email,omitempty"`
	ExpiresInHours *int    `json:"expires_in_hours,omitempty"`
}

// Create handles POST /courses/{course_id}/invitations
func (h *Handlers) Create(w http.ResponseWriter, r *http.Request) {
	courseID, _ := contextkeys.GetCourseID(r.Context())
	actor := middleware.GetAuthContext(r)

	var req createInvitationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.RoleID <= 0 {
		httputil.WriteValidationError(w, "role_id is required")
		return
	}

	params := CreateParams{
		CourseID:  courseID,
		RoleID:    req.RoleID,
		InvitedBy: actor.UserID(),
		Email:     req.Email,
	}
	if req.ExpiresInHours != nil {
		if *req.ExpiresInHours <= 0 {
			httputil.WriteValidationError(w, "expires_in_hours must be positive")
			return
		}
		d := time.Duration(*req.ExpiresInHours) * time.Hour
		params.ExpiresIn = &d
	}

	inv, err := h.store.Create(r.Context(), params)
	if errors.Is(err, ErrRoleNotFound) {
		httputil.WriteValidationError(w, "role does not exist for this course")
		return
	}
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to create invitation")
		httputil.WriteInternalError(w)
		return
	}

	h.record(r, &audit.Entry{
		CourseID:   courseID,
		ActorID:    actor.UserID(),
		Action:     audit.ActionInvitationCreate,
		EntityType: audit.EntityInvitation,
		EntityID:   inv.ID,
		Changes:    audit.Created(invitationSnapshot(inv)),
	})

	httputil.WriteCreated(w, inv)
}

// ListPending handles GET /courses/{course_id}/invitations
func (h *Handlers) ListPending(w http.ResponseWriter, r *http.Request) {
	courseID, _ := contextkeys.GetCourseID(r.Context())

	invs, err := h.store.ListPending(r.Context(), courseID)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to list invitations")
		httputil.WriteInternalError(w)
		return
	}
	if invs == nil {
		invs = []*Invitation{}
	}
	httputil.WriteSuccess(w, map[string]interface{}{"invitations": invs})
}

// Revoke handles POST /courses/{course_id}/invitations/{token}/revoke.
// Revocation is one-way and idempotent.
func (h *Handlers) Revoke(w http.ResponseWriter, r *http.Request) {
	courseID, _ := contextkeys.GetCourseID(r.Context())
	actor := middleware.GetAuthContext(r)

	token, err := httputil.ParsePathString(r, "token")
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	inv, err := h.store.Revoke(r.Context(), courseID, token)
	if errors.Is(err, ErrInvalidToken) {
		httputil.WriteNotFound(w, "invitation not found")
		return
	}
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to revoke invitation")
		httputil.WriteInternalError(w)
		return
	}

	h.record(r, &audit.Entry{
		CourseID:   courseID,
		ActorID:    actor.UserID(),
		Action:     audit.ActionInvitationRevoke,
		EntityType: audit.EntityInvitation,
		EntityID:   inv.ID,
	})

	httputil.WriteSuccess(w, inv)
}

// Preview handles GET /invitations/{token}. Any authenticated holder of a
// valid token may see which course and role it grants before accepting.
func (h *Handlers) Preview(w http.ResponseWriter, r *http.Request) {
	token, err := httputil.ParsePathString(r, "token")
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	inv, err := h.store.Validate(r.Context(), token)
	if errors.Is(err, ErrInvalidToken) {
		httputil.WriteErrorCode(w, http.StatusNotFound, httputil.CodeInvalidOrExpiredToken, err.Error())
		return
	}
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to validate invitation")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"course_id":  inv.CourseID,
		"role_id":    inv.RoleID,
		"expires_at": inv.ExpiresAt,
	})
}

// Accept handles POST /invitations/{token}/accept
func (h *Handlers) Accept(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetAuthContext(r)
	if actor == nil || actor.User == nil {
		httputil.WriteUnauthenticated(w)
		return
	}

	token, err := httputil.ParsePathString(r, "token")
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	result, err := h.store.Accept(r.Context(), token, actor.User.ID)
	if errors.Is(err, ErrInvalidToken) {
		httputil.WriteErrorCode(w, http.StatusNotFound, httputil.CodeInvalidOrExpiredToken, err.Error())
		return
	}
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to accept invitation")
		httputil.WriteInternalError(w)
		return
	}

	h.record(r, &audit.Entry{
		CourseID:   result.Invitation.CourseID,
		ActorID:    actor.User.ID,
		Action:     audit.ActionInvitationAccept,
		EntityType: audit.EntityInvitation,
		EntityID:   result.Invitation.ID,
	})

	httputil.WriteSuccess(w, map[string]interface{}{
		"course_id":            result.Invitation.CourseID,
		"role_id":              result.Invitation.RoleID,
		"already_collaborator": result.AlreadyCollaborator,
	})
}

func invitationSnapshot(inv *Invitation) audit.Snapshot {
	snap := audit.Snapshot{"role_id": inv.RoleID}
	if inv.Email != nil {
		snap["email"] = *inv.Email
	}
	if inv.ExpiresAt != nil {
		snap["expires_at"] = inv.ExpiresAt.Format(time.RFC3339)
	}
	return snap
}

func (h *Handlers) record(r *http.Request, entry *audit.Entry) {
	if h.auditLog == nil {
		return
	}
	if err := h.auditLog.Record(r.Context(), entry); err != nil {
		observability.FromContext(r.Context()).WithError(err).
			WithField("action", string(entry.Action)).
			Error("failed to record audit entry")
	}
}
