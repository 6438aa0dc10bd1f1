package rbac

import (
	"errors"
	"net/http"

	"github.com/courseforge/courseforge/pkg/audit"
	"github.com/courseforge/courseforge/pkg/contextkeys"
	"github.com/courseforge/courseforge/pkg/httputil"
	"github.com/courseforge/courseforge/pkg/middleware"
	"github.com/courseforge/courseforge/pkg/observability"
)

// Handlers exposes role and collaborator management over HTTP
type Handlers struct {
	store    *Store
	checker  Checker
	auditLog audit.Logger
}

// NewHandlers creates RBAC HTTP handlers
func NewHandlers(store *Store, checker Checker, auditLog audit.Logger) *Handlers {
	return &Handlers{store: store, checker: checker, auditLog: auditLog}
}

// ListPermissions handles GET /permissions. The catalog is global, so no
// course scope applies; any authenticated caller may read it.
func (h *Handlers) ListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.store.ListPermissions(r.Context())
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to list permissions")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"permissions": perms})
}

// ListTemplates handles GET /role-templates
func (h *Handlers) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates := make([]map[string]interface{}, 0, len(Templates))
	for _, name := range []string{TemplateOwner, TemplateDesigner, TemplateReviewer, TemplateSME} {
		templates = append(templates, map[string]interface{}{
			"template":     name,
			"display_name": templateDisplayNames[name],
			"permissions":  Templates[name],
		})
	}
	httputil.WriteSuccess(w, map[string]interface{}{"templates": templates})
}

// ListRoles handles GET /courses/{course_id}/roles
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	courseID, _ := contextkeys.GetCourseID(r.Context())

	roles, err := h.store.ListRoles(r.Context(), courseID)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to list roles")
		httputil.WriteInternalError(w)
		return
	}
	if roles == nil {
		roles = []*Role{}
	}
	httputil.WriteSuccess(w, map[string]interface{}{"roles": roles})
}

type createRoleRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Template    string   `json:"template"`
	Permissions []string `json:"permissions"`
}

// CreateRole handles POST /courses/{course_id}/roles. Supply either a
// template name or an explicit name plus permission codes.
func (h *Handlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	courseID, _ := contextkeys.GetCourseID(r.Context())
	actor := middleware.GetAuthContext(r)

	var req createRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	var (
		role *Role
		err  error
	)
	if req.Template != "" {
		role, err = h.store.CreateRoleFromTemplate(r.Context(), courseID, req.Template, actor.UserID())
	} else {
		if req.Name == "" {
			httputil.WriteValidationError(w, "name is required when no template is given")
			return
		}
		role, err = h.store.CreateRole(r.Context(), courseID, req.Name, req.Description, req.Permissions, actor.UserID())
	}

	switch {
	case errors.Is(err, ErrDuplicateRole):
		httputil.WriteConflict(w, httputil.CodeDuplicateRole, err.Error())
		return
	case errors.Is(err, ErrUnknownTemplate), errors.Is(err, ErrUnknownPermission):
		httputil.WriteValidationError(w, err.Error())
		return
	case err != nil:
		observability.FromContext(r.Context()).WithError(err).Error("failed to create role")
		httputil.WriteInternalError(w)
		return
	}

	h.record(r, &audit.Entry{
		CourseID:   courseID,
		ActorID:    actor.UserID(),
		Action:     audit.ActionRoleCreate,
		EntityType: audit.EntityRole,
		EntityID:   role.ID,
		Changes: audit.Created(audit.Snapshot{
			"name":        role.Name,
			"template":    role.Template,
			"permissions": role.Permissions,
		}),
	})

	httputil.WriteCreated(w, role)
}

// GetRole handles GET /courses/{course_id}/roles/{role_id}
func (h *Handlers) GetRole(w http.ResponseWriter, r *http.Request) {
	courseID, _ := contextkeys.GetCourseID(r.Context())

	roleID, ok := httputil.ParsePathInt64OrError(w, r, "role_id")
	if !ok {
		return
	}

	role, err := h.store.GetRole(r.Context(), roleID)
	if errors.Is(err, ErrRoleNotFound) || (err == nil && role.CourseID != courseID) {
		httputil.WriteNotFound(w, "role not found")
		return
	}
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to get role")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, role)
}

// DeleteRole handles DELETE /courses/{course_id}/roles/{role_id}. A role
// still assigned to collaborators is refused.
func (h *Handlers) DeleteRole(w http.ResponseWriter, r *http.Request) {
	courseID, _ := contextkeys.GetCourseID(r.Context())
	actor := middleware.GetAuthContext(r)

	roleID, ok := httputil.ParsePathInt64OrError(w, r, "role_id")
	if !ok {
		return
	}

	role, err := h.store.GetRole(r.Context(), roleID)
	if errors.Is(err, ErrRoleNotFound) || (err == nil && role.CourseID != courseID) {
		httputil.WriteNotFound(w, "role not found")
		return
	}
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to get role")
		httputil.WriteInternalError(w)
		return
	}

	err = h.store.DeleteRole(r.Context(), roleID)
	switch {
	case errors.Is(err, ErrRoleInUse):
		httputil.WriteConflict(w, httputil.CodeValidation, err.Error())
		return
	case errors.Is(err, ErrRoleNotFound):
		httputil.WriteNotFound(w, "role not found")
		return
	case err != nil:
		observability.FromContext(r.Context()).WithError(err).Error("failed to delete role")
		httputil.WriteInternalError(w)
		return
	}

	h.record(r, &audit.Entry{
		CourseID:   courseID,
		ActorID:    actor.UserID(),
		Action:     audit.ActionRoleDelete,
		EntityType: audit.EntityRole,
		EntityID:   roleID,
		Changes: audit.Deleted(audit.Snapshot{
			"name":        role.Name,
			"permissions": role.Permissions,
		}),
	})

	httputil.WriteNoContent(w)
}

// ListCollaborators handles GET /courses/{course_id}/collaborators
func (h *Handlers) ListCollaborators(w http.ResponseWriter, r *http.Request) {
	courseID, _ := contextkeys.GetCourseID(r.Context())

	collabs, err := h.store.ListCollaborators(r.Context(), courseID)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to list collaborators")
		httputil.WriteInternalError(w)
		return
	}
	if collabs == nil {
		collabs = []*Collaborator{}
	}
	httputil.WriteSuccess(w, map[string]interface{}{"collaborators": collabs})
}

type addCollaboratorRequest struct {
	UserID int64 `json:"user_id"`
	RoleID int64 `json:"role_id"`
}

// AddCollaborator handles POST /courses/{course_id}/collaborators. Adding
// a user who already collaborates reassigns their role.
func (h *Handlers) AddCollaborator(w http.ResponseWriter, r *http.Request) {
	courseID, _ := contextkeys.GetCourseID(r.Context())
	actor := middleware.GetAuthContext(r)

	var req addCollaboratorRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.UserID <= 0 || req.RoleID <= 0 {
		httputil.WriteValidationError(w, "user_id and role_id are required")
		return
	}

	// Capture the previous role for the audit diff before the change lands
	var previousRole string
	if existing, err := h.store.GetCollaborator(r.Context(), courseID, req.UserID); err == nil {
		previousRole = existing.RoleName
	}

	actorID := actor.UserID()
	collab, created, err := h.store.AddCollaborator(r.Context(), courseID, req.UserID, req.RoleID, &actorID)
	switch {
	case errors.Is(err, ErrRoleNotFound):
		httputil.WriteValidationError(w, "role does not exist for this course")
		return
	case err != nil:
		observability.FromContext(r.Context()).WithError(err).Error("failed to add collaborator")
		httputil.WriteInternalError(w)
		return
	}

	entry := &audit.Entry{
		CourseID:   courseID,
		ActorID:    actorID,
		EntityType: audit.EntityCollaborator,
		EntityID:   collab.UserID,
	}
	if created {
		entry.Action = audit.ActionCollaboratorAdd
		entry.Changes = audit.Created(audit.Snapshot{"role": collab.RoleName})
	} else {
		entry.Action = audit.ActionCollaboratorRoleChange
		entry.Changes = audit.Diff(
			audit.Snapshot{"role": previousRole},
			audit.Snapshot{"role": collab.RoleName},
		)
	}
	h.record(r, entry)

	if created {
		httputil.WriteCreated(w, collab)
		return
	}
	httputil.WriteSuccess(w, collab)
}

// RemoveCollaborator handles DELETE /courses/{course_id}/collaborators/{user_id}.
// Removing the last owner is refused with a conflict.
func (h *Handlers) RemoveCollaborator(w http.ResponseWriter, r *http.Request) {
	courseID, _ := contextkeys.GetCourseID(r.Context())
	actor := middleware.GetAuthContext(r)

	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}

	removed, err := h.store.GetCollaborator(r.Context(), courseID, userID)
	if errors.Is(err, ErrCollaboratorNotFound) {
		httputil.WriteNotFound(w, "collaborator not found")
		return
	}
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to get collaborator")
		httputil.WriteInternalError(w)
		return
	}

	err = h.store.RemoveCollaborator(r.Context(), courseID, userID)
	switch {
	case errors.Is(err, ErrLastOwner):
		httputil.WriteConflict(w, httputil.CodeLastOwnerRemovalBlocked, err.Error())
		return
	case errors.Is(err, ErrCollaboratorNotFound):
		httputil.WriteNotFound(w, "collaborator not found")
		return
	case err != nil:
		observability.FromContext(r.Context()).WithError(err).Error("failed to remove collaborator")
		httputil.WriteInternalError(w)
		return
	}

	h.record(r, &audit.Entry{
		CourseID:   courseID,
		ActorID:    actor.UserID(),
		Action:     audit.ActionCollaboratorRemove,
		EntityType: audit.EntityCollaborator,
		EntityID:   userID,
		Changes:    audit.Deleted(audit.Snapshot{"role": removed.RoleName}),
	})

	httputil.WriteNoContent(w)
}

// GetMyPermissions handles GET /courses/{course_id}/my-permissions,
// returning the caller's effective permission codes
func (h *Handlers) GetMyPermissions(w http.ResponseWriter, r *http.Request) {
	courseID, _ := contextkeys.GetCourseID(r.Context())
	actor := middleware.GetAuthContext(r)

	codes, err := h.checker.EffectivePermissions(r.Context(), actor.UserID(), courseID)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to load effective permissions")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"permissions": codes})
}

// record appends an audit entry, logging failures without failing the
// request that already committed
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
