package comments

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/courseforge/courseforge/pkg/audit"
	"github.com/courseforge/courseforge/pkg/auth"
	"github.com/courseforge/courseforge/pkg/contextkeys"
	"github.com/courseforge/courseforge/pkg/httputil"
	"github.com/courseforge/courseforge/pkg/middleware"
	"github.com/courseforge/courseforge/pkg/observability"
	"github.com/courseforge/courseforge/pkg/rbac"
)

// Handlers exposes comments and mention notifications over HTTP
type Handlers struct {
	store    *Store
	checker  rbac.Checker
	auditLog audit.Logger
}

// NewHandlers creates comment HTTP handlers
func NewHandlers(store *Store, checker rbac.Checker, auditLog audit.Logger) *Handlers {
	return &Handlers{store: store, checker: checker, auditLog: auditLog}
}

type createCommentRequest struct {
	ActivityID *int64 `json:"activity_id,omitempty"`
	ParentID   *int64 `json:"parent_id,omitempty"`
	Content    string `json:"content"`
}

// Create handles POST /courses/{course_id}/comments
func (h *Handlers) Create(w http.ResponseWriter, r *http.Request) {
	courseID, _ := contextkeys.GetCourseID(r.Context())
	actor := middleware.GetAuthContext(r)

	var req createCommentRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Content == "" {
		httputil.WriteValidationError(w, "content is required")
		return
	}

	comment, err := h.store.Create(r.Context(), CreateParams{
		CourseID:   courseID,
		ActivityID: req.ActivityID,
		AuthorID:   actor.UserID(),
		ParentID:   req.ParentID,
		Content:    req.Content,
	})
	switch {
	case errors.Is(err, ErrNestedReply):
		httputil.WriteConflict(w, httputil.CodeNestedReplyNotAllowed, err.Error())
		return
	case errors.Is(err, ErrCommentNotFound):
		httputil.WriteNotFound(w, "parent comment not found")
		return
	case err != nil:
		observability.FromContext(r.Context()).WithError(err).Error("failed to create comment")
		httputil.WriteInternalError(w)
		return
	}

	h.record(r, &audit.Entry{
		CourseID:   courseID,
		ActorID:    actor.UserID(),
		Action:     audit.ActionCommentCreate,
		EntityType: audit.EntityComment,
		EntityID:   comment.ID,
	})

	httputil.WriteCreated(w, comment)
}

// List handles GET /courses/{course_id}/comments.
// ?activity_id= scopes to one activity; without it, course-level threads
// are returned. ?include_resolved=true shows resolved threads too.
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	courseID, _ := contextkeys.GetCourseID(r.Context())

	var activityID *int64
	if raw := r.URL.Query().Get("activity_id"); raw != "" {
		id, err := parseInt64(raw)
		if err != nil {
			httputil.WriteValidationError(w, "activity_id must be an integer")
			return
		}
		activityID = &id
	}
	includeResolved := httputil.ParseBoolQuery(r, "include_resolved", false)

	threads, err := h.store.ListThreads(r.Context(), courseID, activityID, includeResolved)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to list comments")
		httputil.WriteInternalError(w)
		return
	}
	if threads == nil {
		threads = []*Comment{}
	}
	httputil.WriteSuccess(w, map[string]interface{}{"comments": threads})
}

type updateCommentRequest struct {
	Content string `json:"content"`
}

// Update handles PATCH /courses/{course_id}/comments/{comment_id}. The
// author may edit their own comment; collaborator managers may moderate
// anyone's.
func (h *Handlers) Update(w http.ResponseWriter, r *http.Request) {
	comment, actor, ok := h.loadForModeration(w, r)
	if !ok {
		return
	}

	var req updateCommentRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Content == "" {
		httputil.WriteValidationError(w, "content is required")
		return
	}

	updated, err := h.store.UpdateContent(r.Context(), comment.ID, req.Content)
	if errors.Is(err, ErrCommentNotFound) {
		httputil.WriteNotFound(w, "comment not found")
		return
	}
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to update comment")
		httputil.WriteInternalError(w)
		return
	}

	h.record(r, &audit.Entry{
		CourseID:   comment.CourseID,
		ActorID:    actor.UserID(),
		Action:     audit.ActionCommentUpdate,
		EntityType: audit.EntityComment,
		EntityID:   comment.ID,
		Changes: audit.Diff(
			audit.Snapshot{"content": comment.Content},
			audit.Snapshot{"content": updated.Content},
		),
	})

	httputil.WriteSuccess(w, updated)
}

// Resolve handles POST /courses/{course_id}/comments/{comment_id}/resolve
func (h *Handlers) Resolve(w http.ResponseWriter, r *http.Request) {
	h.setResolved(w, r, true, audit.ActionCommentResolve)
}

// Unresolve handles POST /courses/{course_id}/comments/{comment_id}/unresolve
func (h *Handlers) Unresolve(w http.ResponseWriter, r *http.Request) {
	h.setResolved(w, r, false, audit.ActionCommentUnresolve)
}

func (h *Handlers) setResolved(w http.ResponseWriter, r *http.Request, resolved bool, action audit.Action) {
	courseID, _ := contextkeys.GetCourseID(r.Context())
	actor := middleware.GetAuthContext(r)

	commentID, ok := httputil.ParsePathInt64OrError(w, r, "comment_id")
	if !ok {
		return
	}

	existing, err := h.store.Get(r.Context(), commentID)
	if errors.Is(err, ErrCommentNotFound) || (err == nil && existing.CourseID != courseID) {
		httputil.WriteNotFound(w, "comment not found")
		return
	}
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to load comment")
		httputil.WriteInternalError(w)
		return
	}

	updated, err := h.store.SetResolved(r.Context(), commentID, resolved)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to set resolved")
		httputil.WriteInternalError(w)
		return
	}

	if existing.Resolved != updated.Resolved {
		h.record(r, &audit.Entry{
			CourseID:   courseID,
			ActorID:    actor.UserID(),
			Action:     action,
			EntityType: audit.EntityComment,
			EntityID:   commentID,
		})
	}

	httputil.WriteSuccess(w, updated)
}

// Delete handles DELETE /courses/{course_id}/comments/{comment_id}.
// Author or moderator only; deleting a thread removes its replies.
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	comment, actor, ok := h.loadForModeration(w, r)
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), comment.ID); err != nil {
		if errors.Is(err, ErrCommentNotFound) {
			httputil.WriteNotFound(w, "comment not found")
			return
		}
		observability.FromContext(r.Context()).WithError(err).Error("failed to delete comment")
		httputil.WriteInternalError(w)
		return
	}

	h.record(r, &audit.Entry{
		CourseID:   comment.CourseID,
		ActorID:    actor.UserID(),
		Action:     audit.ActionCommentDelete,
		EntityType: audit.EntityComment,
		EntityID:   comment.ID,
	})

	httputil.WriteNoContent(w)
}

// loadForModeration fetches the comment and enforces the author-or-manager
// rule shared by Update and Delete
func (h *Handlers) loadForModeration(w http.ResponseWriter, r *http.Request) (*Comment, *auth.AuthContext, bool) {
	courseID, _ := contextkeys.GetCourseID(r.Context())
	actor := middleware.GetAuthContext(r)

	commentID, ok := httputil.ParsePathInt64OrError(w, r, "comment_id")
	if !ok {
		return nil, nil, false
	}

	comment, err := h.store.Get(r.Context(), commentID)
	if errors.Is(err, ErrCommentNotFound) || (err == nil && comment.CourseID != courseID) {
		httputil.WriteNotFound(w, "comment not found")
		return nil, nil, false
	}
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to load comment")
		httputil.WriteInternalError(w)
		return nil, nil, false
	}

	if comment.AuthorID != actor.UserID() {
		canModerate, err := h.checker.HasPermission(r.Context(), actor.UserID(), courseID, rbac.PermManageCollaborators)
		if err != nil {
			observability.FromContext(r.Context()).WithError(err).Error("moderation check failed")
			httputil.WriteInternalError(w)
			return nil, nil, false
		}
		if !canModerate {
			httputil.WritePermissionDenied(w)
			return nil, nil, false
		}
	}

	return comment, actor, true
}

// UnreadMentions handles GET /mentions
func (h *Handlers) UnreadMentions(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetAuthContext(r)
	if actor == nil || actor.User == nil {
		httputil.WriteUnauthenticated(w)
		return
	}

	notifs, err := h.store.UnreadMentions(r.Context(), actor.User.ID)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to list mentions")
		httputil.WriteInternalError(w)
		return
	}
	if notifs == nil {
		notifs = []*MentionNotification{}
	}
	httputil.WriteSuccess(w, map[string]interface{}{"mentions": notifs})
}

// MarkMentionRead handles POST /mentions/{mention_id}/read
func (h *Handlers) MarkMentionRead(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetAuthContext(r)
	if actor == nil || actor.User == nil {
		httputil.WriteUnauthenticated(w)
		return
	}

	mentionID, ok := httputil.ParsePathInt64OrError(w, r, "mention_id")
	if !ok {
		return
	}

	err := h.store.MarkMentionRead(r.Context(), mentionID, actor.User.ID)
	if errors.Is(err, ErrMentionNotFound) {
		httputil.WriteNotFound(w, "mention not found")
		return
	}
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to mark mention read")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteNoContent(w)
}

// MarkAllMentionsRead handles POST /mentions/read-all
func (h *Handlers) MarkAllMentionsRead(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetAuthContext(r)
	if actor == nil || actor.User == nil {
		httputil.WriteUnauthenticated(w)
		return
	}

	n, err := h.store.MarkAllMentionsRead(r.Context(), actor.User.ID)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to mark mentions read")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"marked": n})
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

func parseInt64(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}
