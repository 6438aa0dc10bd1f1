package courses

import (
	"errors"
	"net/http"

	"github.com/courseforge/courseforge/pkg/audit"
	"github.com/courseforge/courseforge/pkg/contextkeys"
	"github.com/courseforge/courseforge/pkg/httputil"
	"github.com/courseforge/courseforge/pkg/middleware"
	"github.com/courseforge/courseforge/pkg/observability"
)

// Handlers exposes course and activity management over HTTP
type Handlers struct {
	store    *Store
	auditLog audit.Logger
}

// NewHandlers creates course HTTP handlers
func NewHandlers(store *Store, auditLog audit.Logger) *Handlers {
	return &Handlers{store: store, auditLog: auditLog}
}

type createCourseRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// CreateCourse handles POST /courses. The creator becomes the course's
// first owner in the same transaction.
func (h *Handlers) CreateCourse(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetAuthContext(r)
	if actor == nil || actor.User == nil {
		httputil.WriteUnauthenticated(w)
		return
	}

	var req createCourseRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Title == "" {
		httputil.WriteValidationError(w, "title is required")
		return
	}

	course, err := h.store.CreateCourse(r.Context(), req.Title, req.Description, actor.User.ID)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to create course")
		httputil.WriteInternalError(w)
		return
	}

	h.record(r, &audit.Entry{
		CourseID:   course.ID,
		ActorID:    actor.User.ID,
		Action:     audit.ActionCourseCreate,
		EntityType: audit.EntityCourse,
		EntityID:   course.ID,
		Changes:    audit.Created(course.Snapshot()),
	})

	httputil.WriteCreated(w, course)
}

// ListMyCourses handles GET /courses, returning the caller's courses
func (h *Handlers) ListMyCourses(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetAuthContext(r)
	if actor == nil || actor.User == nil {
		httputil.WriteUnauthenticated(w)
		return
	}

	courses, err := h.store.ListCoursesForUser(r.Context(), actor.User.ID)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to list courses")
		httputil.WriteInternalError(w)
		return
	}
	if courses == nil {
		courses = []*Course{}
	}
	httputil.WriteSuccess(w, map[string]interface{}{"courses": courses})
}

// GetCourse handles GET /courses/{course_id}
func (h *Handlers) GetCourse(w http.ResponseWriter, r *http.Request) {
	courseID, _ := contextkeys.GetCourseID(r.Context())

	course, err := h.store.GetCourse(r.Context(), courseID)
	if errors.Is(err, ErrCourseNotFound) {
		httputil.WriteNotFound(w, "course not found")
		return
	}
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to get course")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, course)
}

type updateCourseRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}

// UpdateCourse handles PATCH /courses/{course_id}
func (h *Handlers) UpdateCourse(w http.ResponseWriter, r *http.Request) {
	courseID, _ := contextkeys.GetCourseID(r.Context())
	actor := middleware.GetAuthContext(r)

	var req updateCourseRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	before, err := h.store.GetCourse(r.Context(), courseID)
	if errors.Is(err, ErrCourseNotFound) {
		httputil.WriteNotFound(w, "course not found")
		return
	}
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to get course")
		httputil.WriteInternalError(w)
		return
	}
	beforeSnap := before.Snapshot()

	course, err := h.store.UpdateCourse(r.Context(), courseID, req.Title, req.Description)
	if err != nil {
		if errors.Is(err, ErrCourseNotFound) {
			httputil.WriteNotFound(w, "course not found")
			return
		}
		httputil.WriteValidationError(w, err.Error())
		return
	}

	if changes := audit.Diff(beforeSnap, course.Snapshot()); changes != nil {
		h.record(r, &audit.Entry{
			CourseID:   courseID,
			ActorID:    actor.UserID(),
			Action:     audit.ActionCourseUpdate,
			EntityType: audit.EntityCourse,
			EntityID:   courseID,
			Changes:    changes,
		})
	}

	httputil.WriteSuccess(w, course)
}

// DeleteCourse handles DELETE /courses/{course_id}
func (h *Handlers) DeleteCourse(w http.ResponseWriter, r *http.Request) {
	courseID, _ := contextkeys.GetCourseID(r.Context())
	actor := middleware.GetAuthContext(r)

	course, err := h.store.GetCourse(r.Context(), courseID)
	if errors.Is(err, ErrCourseNotFound) {
		httputil.WriteNotFound(w, "course not found")
		return
	}
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to get course")
		httputil.WriteInternalError(w)
		return
	}

	if err := h.store.DeleteCourse(r.Context(), courseID); err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to delete course")
		httputil.WriteInternalError(w)
		return
	}

	// The trail outlives the course by design
	h.record(r, &audit.Entry{
		CourseID:   courseID,
		ActorID:    actor.UserID(),
		Action:     audit.ActionCourseDelete,
		EntityType: audit.EntityCourse,
		EntityID:   courseID,
		Changes:    audit.Deleted(course.Snapshot()),
	})

	httputil.WriteNoContent(w)
}

type createActivityRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// CreateActivity handles POST /courses/{course_id}/activities
func (h *Handlers) CreateActivity(w http.ResponseWriter, r *http.Request) {
	courseID, _ := contextkeys.GetCourseID(r.Context())
	actor := middleware.GetAuthContext(r)

	var req createActivityRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Title == "" {
		httputil.WriteValidationError(w, "title is required")
		return
	}

	activity, err := h.store.CreateActivity(r.Context(), courseID, req.Title, req.Body, actor.UserID())
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to create activity")
		httputil.WriteInternalError(w)
		return
	}

	h.record(r, &audit.Entry{
		CourseID:   courseID,
		ActorID:    actor.UserID(),
		Action:     audit.ActionActivityCreate,
		EntityType: audit.EntityActivity,
		EntityID:   activity.ID,
		Changes:    audit.Created(activity.Snapshot()),
	})

	httputil.WriteCreated(w, activity)
}

// ListActivities handles GET /courses/{course_id}/activities
func (h *Handlers) ListActivities(w http.ResponseWriter, r *http.Request) {
	courseID, _ := contextkeys.GetCourseID(r.Context())

	activities, err := h.store.ListActivities(r.Context(), courseID)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to list activities")
		httputil.WriteInternalError(w)
		return
	}
	if activities == nil {
		activities = []*Activity{}
	}
	httputil.WriteSuccess(w, map[string]interface{}{"activities": activities})
}

// GetActivity handles GET /courses/{course_id}/activities/{activity_id}
func (h *Handlers) GetActivity(w http.ResponseWriter, r *http.Request) {
	courseID, _ := contextkeys.GetCourseID(r.Context())

	activityID, ok := httputil.ParsePathInt64OrError(w, r, "activity_id")
	if !ok {
		return
	}

	activity, err := h.store.GetActivity(r.Context(), courseID, activityID)
	if errors.Is(err, ErrActivityNotFound) {
		httputil.WriteNotFound(w, "activity not found")
		return
	}
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to get activity")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, activity)
}

type updateActivityRequest struct {
	Title *string `json:"title,omitempty"`
	Body  *string `json:"body,omitempty"`
}

// UpdateActivity handles PATCH /courses/{course_id}/activities/{activity_id}
func (h *Handlers) UpdateActivity(w http.ResponseWriter, r *http.Request) {
	courseID, _ := contextkeys.GetCourseID(r.Context())
	actor := middleware.GetAuthContext(r)

	activityID, ok := httputil.ParsePathInt64OrError(w, r, "activity_id")
	if !ok {
		return
	}

	var req updateActivityRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	before, err := h.store.GetActivity(r.Context(), courseID, activityID)
	if errors.Is(err, ErrActivityNotFound) {
		httputil.WriteNotFound(w, "activity not found")
		return
	}
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to get activity")
		httputil.WriteInternalError(w)
		return
	}
	beforeSnap := before.Snapshot()

	activity, err := h.store.UpdateActivity(r.Context(), courseID, activityID, req.Title, req.Body)
	if err != nil {
		if errors.Is(err, ErrActivityNotFound) {
			httputil.WriteNotFound(w, "activity not found")
			return
		}
		httputil.WriteValidationError(w, err.Error())
		return
	}

	if changes := audit.Diff(beforeSnap, activity.Snapshot()); changes != nil {
		h.record(r, &audit.Entry{
			CourseID:   courseID,
			ActorID:    actor.UserID(),
			Action:     audit.ActionActivityUpdate,
			EntityType: audit.EntityActivity,
			EntityID:   activityID,
			Changes:    changes,
		})
	}

	httputil.WriteSuccess(w, activity)
}

// DeleteActivity handles DELETE /courses/{course_id}/activities/{activity_id}
func (h *Handlers) DeleteActivity(w http.ResponseWriter, r *http.Request) {
	courseID, _ := contextkeys.GetCourseID(r.Context())
	actor := middleware.GetAuthContext(r)

	activityID, ok := httputil.ParsePathInt64OrError(w, r, "activity_id")
	if !ok {
		return
	}

	activity, err := h.store.GetActivity(r.Context(), courseID, activityID)
	if errors.Is(err, ErrActivityNotFound) {
		httputil.WriteNotFound(w, "activity not found")
		return
	}
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to get activity")
		httputil.WriteInternalError(w)
		return
	}

	if err := h.store.DeleteActivity(r.Context(), courseID, activityID); err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to delete activity")
		httputil.WriteInternalError(w)
		return
	}

	h.record(r, &audit.Entry{
		CourseID:   courseID,
		ActorID:    actor.UserID(),
		Action:     audit.ActionActivityDelete,
		EntityType: audit.EntityActivity,
		EntityID:   activityID,
		Changes:    audit.Deleted(activity.Snapshot()),
	})

	httputil.WriteNoContent(w)
}

type reorderRequest struct {
	ActivityIDs []int64 `json:"activity_ids"`
}

// ReorderActivities handles POST /courses/{course_id}/activities/reorder
func (h *Handlers) ReorderActivities(w http.ResponseWriter, r *http.Request) {
	courseID, _ := contextkeys.GetCourseID(r.Context())
	actor := middleware.GetAuthContext(r)

	var req reorderRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	before, err := h.store.ListActivities(r.Context(), courseID)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to list activities")
		httputil.WriteInternalError(w)
		return
	}
	beforeOrder := make([]interface{}, len(before))
	for i, a := range before {
		beforeOrder[i] = a.ID
	}

	err = h.store.ReorderActivities(r.Context(), courseID, req.ActivityIDs)
	if errors.Is(err, ErrBadReorder) {
		httputil.WriteValidationError(w, err.Error())
		return
	}
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to reorder activities")
		httputil.WriteInternalError(w)
		return
	}

	afterOrder := make([]interface{}, len(req.ActivityIDs))
	for i, id := range req.ActivityIDs {
		afterOrder[i] = id
	}
	h.record(r, &audit.Entry{
		CourseID:   courseID,
		ActorID:    actor.UserID(),
		Action:     audit.ActionActivityReorder,
		EntityType: audit.EntityCourse,
		EntityID:   courseID,
		Changes: audit.Diff(
			audit.Snapshot{"order": beforeOrder},
			audit.Snapshot{"order": afterOrder},
		),
	})

	httputil.WriteNoContent(w)
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
