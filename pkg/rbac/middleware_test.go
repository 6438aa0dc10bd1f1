package rbac

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/courseforge/courseforge/pkg/auth"
	"github.com/courseforge/courseforge/pkg/contextkeys"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChecker struct {
	granted map[string]bool
	collab  bool
}

func (f *fakeChecker) HasPermission(ctx context.Context, userID, courseID int64, code string) (bool, error) {
	return f.granted[code], nil
}

func (f *fakeChecker) EffectivePermissions(ctx context.Context, userID, courseID int64) ([]string, error) {
	codes := []string{}
	for code, ok := range f.granted {
		if ok {
			codes = append(codes, code)
		}
	}
	return codes, nil
}

func (f *fakeChecker) IsCollaborator(ctx context.Context, userID, courseID int64) (bool, error) {
	return f.collab, nil
}

func decoratedRequest(t *testing.T, decorator func(http.Handler) http.Handler, path string, authed bool) (*httptest.ResponseRecorder, *int64) {
	t.Helper()

	var seenCourseID *int64
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := contextkeys.GetCourseID(r.Context()); ok {
			seenCourseID = &id
		}
		w.WriteHeader(http.StatusOK)
	})

	router := mux.NewRouter()
	router.Handle("/courses/{course_id}/resource", decorator(handler))
	router.Handle("/unscoped", decorator(handler))

	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authed {
		authCtx := &auth.AuthContext{User: &auth.User{ID: 42, Username: "alice", IsActive: true}}
		req = req.WithContext(contextkeys.WithAuth(req.Context(), authCtx))
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec, seenCourseID
}

func TestRequirePermissionAllowed(t *testing.T) {
	d := NewAccessDecorator(&fakeChecker{granted: map[string]bool{PermContentView: true}}, nil)

	rec, courseID := decoratedRequest(t, d.RequirePermission(PermContentView), "/courses/7/resource", true)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, courseID)
	assert.Equal(t, int64(7), *courseID)
}

func TestRequirePermissionDenied(t *testing.T) {
	d := NewAccessDecorator(&fakeChecker{granted: map[string]bool{}}, nil)

	rec, _ := decoratedRequest(t, d.RequirePermission(PermContentEdit), "/courses/7/resource", true)

	assert.Equal(t, http.StatusForbidden, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "permission_denied", body["code"])
	// The denial is uniform: it must not reveal whether the course exists
	assert.Equal(t, "access denied", body["error"])
}

func TestRequirePermissionUnauthenticated(t *testing.T) {
	d := NewAccessDecorator(&fakeChecker{granted: map[string]bool{PermContentView: true}}, nil)

	rec, _ := decoratedRequest(t, d.RequirePermission(PermContentView), "/courses/7/resource", false)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequirePermissionMissingCourseID(t *testing.T) {
	d := NewAccessDecorator(&fakeChecker{granted: map[string]bool{PermContentView: true}}, nil)

	rec, _ := decoratedRequest(t, d.RequirePermission(PermContentView), "/unscoped", true)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "missing_course_id", body["code"])
}

func TestRequireAnyPermission(t *testing.T) {
	d := NewAccessDecorator(&fakeChecker{granted: map[string]bool{PermContentReview: true}}, nil)

	rec, _ := decoratedRequest(t,
		d.RequireAnyPermission(PermContentEdit, PermContentReview), "/courses/7/resource", true)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = decoratedRequest(t,
		d.RequireAnyPermission(PermContentEdit, PermStructureEdit), "/courses/7/resource", true)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireCollaborator(t *testing.T) {
	d := NewAccessDecorator(&fakeChecker{collab: true}, nil)
	rec, _ := decoratedRequest(t, d.RequireCollaborator(), "/courses/7/resource", true)
	assert.Equal(t, http.StatusOK, rec.Code)

	d = NewAccessDecorator(&fakeChecker{collab: false}, nil)
	rec, _ = decoratedRequest(t, d.RequireCollaborator(), "/courses/7/resource", true)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
