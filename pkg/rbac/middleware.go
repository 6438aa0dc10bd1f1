package rbac

import (
	"net/http"
	"strconv"

	"github.com/courseforge/courseforge/pkg/contextkeys"
	"github.com/courseforge/courseforge/pkg/httputil"
	"github.com/courseforge/courseforge/pkg/middleware"
	"github.com/courseforge/courseforge/pkg/observability"
	"github.com/gorilla/mux"
)

// AccessDecorator guards HTTP routes with per-course permission checks.
// Every protected route resolves {course_id} from the path, looks up the
// caller's identity, and runs a fresh check. Denials are uniform: a caller
// cannot tell a missing course from a forbidden one.
type AccessDecorator struct {
	checker Checker
	metrics *observability.Metrics
}

// NewAccessDecorator creates an access decorator. metrics may be nil.
func NewAccessDecorator(checker Checker, metrics *observability.Metrics) *AccessDecorator {
	return &AccessDecorator{checker: checker, metrics: metrics}
}

// RequirePermission returns middleware that admits only callers whose role
// on the course grants code
func (d *AccessDecorator) RequirePermission(code string) func(http.Handler) http.Handler {
	return d.require(func(r *http.Request, userID, courseID int64) (bool, error) {
		return d.checker.HasPermission(r.Context(), userID, courseID, code)
	})
}

// RequireAnyPermission admits callers holding at least one of the codes
func (d *AccessDecorator) RequireAnyPermission(codes ...string) func(http.Handler) http.Handler {
	return d.require(func(r *http.Request, userID, courseID int64) (bool, error) {
		for _, code := range codes {
			ok, err := d.checker.HasPermission(r.Context(), userID, courseID, code)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	})
}

// RequireCollaborator admits any collaborator on the course, whatever
// their role grants
func (d *AccessDecorator) RequireCollaborator() func(http.Handler) http.Handler {
	return d.require(func(r *http.Request, userID, courseID int64) (bool, error) {
		return d.checker.IsCollaborator(r.Context(), userID, courseID)
	})
}

func (d *AccessDecorator) require(check func(r *http.Request, userID, courseID int64) (bool, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := middleware.GetAuthContext(r)
			if authCtx == nil || authCtx.User == nil {
				d.countDenial("unauthenticated")
				httputil.WriteUnauthenticated(w)
				return
			}

			raw, ok := mux.Vars(r)["course_id"]
			if !ok || raw == "" {
				d.countDenial("missing_course_id")
				httputil.WriteErrorCode(w, http.StatusBadRequest, httputil.CodeMissingCourseID, "course_id is required")
				return
			}
			courseID, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				d.countDenial("missing_course_id")
				httputil.WriteErrorCode(w, http.StatusBadRequest, httputil.CodeMissingCourseID, "course_id must be an integer")
				return
			}

			allowed, err := check(r, authCtx.User.ID, courseID)
			if err != nil {
				observability.FromContext(r.Context()).WithError(err).Error("permission check failed")
				httputil.WriteInternalError(w)
				return
			}
			if !allowed {
				d.countDenial("permission_denied")
				httputil.WritePermissionDenied(w)
				return
			}

			ctx := contextkeys.WithCourseID(r.Context(), courseID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (d *AccessDecorator) countDenial(reason string) {
	if d.metrics != nil {
		d.metrics.AccessDeniedTotal.WithLabelValues(reason).Inc()
	}
}
