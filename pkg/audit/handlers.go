package audit

import (
	"net/http"
	"strconv"

	"github.com/courseforge/courseforge/pkg/contextkeys"
	"github.com/courseforge/courseforge/pkg/httputil"
	"github.com/courseforge/courseforge/pkg/observability"
	"github.com/gorilla/mux"
)

// Handlers exposes the audit trail over HTTP. All routes are mounted
// behind the course.view_audit access decorator.
type Handlers struct {
	store *Store
}

// NewHandlers creates audit HTTP handlers
func NewHandlers(store *Store) *Handlers {
	return &Handlers{store: store}
}

// GetCourseTrail handles GET /courses/{course_id}/audit.
// Supports ?action=, ?entity_type=, ?actor_id=, ?limit=, ?offset=.
func (h *Handlers) GetCourseTrail(w http.ResponseWriter, r *http.Request) {
	courseID, ok := contextkeys.GetCourseID(r.Context())
	if !ok {
		httputil.WriteErrorCode(w, http.StatusBadRequest, httputil.CodeMissingCourseID, "course_id is required")
		return
	}

	filter := Filter{
		Action:     Action(r.URL.Query().Get("action")),
		EntityType: EntityType(r.URL.Query().Get("entity_type")),
	}
	if raw := r.URL.Query().Get("actor_id"); raw != "" {
		actorID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httputil.WriteValidationError(w, "actor_id must be an integer")
			return
		}
		filter.ActorID = actorID
	}

	limit, offset := httputil.ParsePagination(r, 50, 100)

	entries, err := h.store.GetForCourse(r.Context(), courseID, filter, limit, offset)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to load audit trail")
		httputil.WriteInternalError(w)
		return
	}
	if entries == nil {
		entries = []*Entry{}
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"entries": entries,
		"limit":   limit,
		"offset":  offset,
	})
}

// GetEntityHistory handles GET /courses/{course_id}/audit/{entity_type}/{entity_id}
func (h *Handlers) GetEntityHistory(w http.ResponseWriter, r *http.Request) {
	courseID, ok := contextkeys.GetCourseID(r.Context())
	if !ok {
		httputil.WriteErrorCode(w, http.StatusBadRequest, httputil.CodeMissingCourseID, "course_id is required")
		return
	}

	entityType := EntityType(mux.Vars(r)["entity_type"])
	switch entityType {
	case EntityCourse, EntityActivity, EntityRole, EntityCollaborator, EntityInvitation, EntityComment:
	default:
		httputil.WriteValidationError(w, "unknown entity type")
		return
	}

	entityID, ok := httputil.ParsePathInt64OrError(w, r, "entity_id")
	if !ok {
		return
	}

	entries, err := h.store.GetForEntity(r.Context(), courseID, entityType, entityID)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to load entity history")
		httputil.WriteInternalError(w)
		return
	}
	if entries == nil {
		entries = []*Entry{}
	}

	httputil.WriteSuccess(w, map[string]interface{}{"entries": entries})
}

// GetFeed handles GET /courses/{course_id}/feed
func (h *Handlers) GetFeed(w http.ResponseWriter, r *http.Request) {
	courseID, ok := contextkeys.GetCourseID(r.Context())
	if !ok {
		httputil.WriteErrorCode(w, http.StatusBadRequest, httputil.CodeMissingCourseID, "course_id is required")
		return
	}

	limit, offset := httputil.ParsePagination(r, 50, 100)

	items, err := h.store.GetFeed(r.Context(), courseID, limit, offset)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to load activity feed")
		httputil.WriteInternalError(w)
		return
	}
	if items == nil {
		items = []*FeedItem{}
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"items":  items,
		"limit":  limit,
		"offset": offset,
	})
}
