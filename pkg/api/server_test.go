package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/courseforge/courseforge/pkg/observability"
	"github.com/courseforge/courseforge/pkg/rbac"
	"github.com/courseforge/courseforge/pkg/storage/sqlitetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	server *Server
	db     *sql.DB
	alice  int64
	bob    int64
	carol  int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := sqlitetest.Open(t)
	require.NoError(t, rbac.SeedPermissions(context.Background(), db))

	env := &testEnv{
		db:    db,
		alice: sqlitetest.InsertUser(t, db, "alice"),
		bob:   sqlitetest.InsertUser(t, db, "bob"),
		carol: sqlitetest.InsertUser(t, db, "carol"),
	}
	env.server = NewServer(db, observability.NewLogger(observability.ErrorLevel, io.Discard), Options{})
	return env
}

// do performs a request as the given user and decodes the JSON response
func (e *testEnv) do(t *testing.T, userID int64, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()

	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, buf)
	if userID != 0 {
		req.Header.Set("X-User-ID", fmt.Sprintf("%d", userID))
	}

	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded),
			"response was not JSON: %s", rec.Body.String())
	}
	return rec.Code, decoded
}

func (e *testEnv) createCourse(t *testing.T, userID int64, title string) int64 {
	t.Helper()

	status, body := e.do(t, userID, http.MethodPost, "/api/v1/courses",
		map[string]string{"title": title})
	require.Equal(t, http.StatusCreated, status)
	return int64(body["id"].(float64))
}

func TestCourseCreationGrantsOwnership(t *testing.T) {
	env := newTestEnv(t)
	courseID := env.createCourse(t, env.alice, "Intro to Go")

	status, body := env.do(t, env.alice, http.MethodGet,
		fmt.Sprintf("/api/v1/courses/%d", courseID), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Intro to Go", body["title"])

	status, body = env.do(t, env.alice, http.MethodGet,
		fmt.Sprintf("/api/v1/courses/%d/my-permissions", courseID), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["permissions"], len(rbac.Templates[rbac.TemplateOwner]))
}

func TestDenialIsUniform(t *testing.T) {
	env := newTestEnv(t)
	courseID := env.createCourse(t, env.alice, "Private")

	// A real course the caller cannot see and a course that does not exist
	// answer identically
	status, body := env.do(t, env.bob, http.MethodGet,
		fmt.Sprintf("/api/v1/courses/%d", courseID), nil)
	require.Equal(t, http.StatusForbidden, status)

	status2, body2 := env.do(t, env.bob, http.MethodGet, "/api/v1/courses/999999", nil)
	require.Equal(t, http.StatusForbidden, status2)
	assert.Equal(t, body["error"], body2["error"])
	assert.Equal(t, body["code"], body2["code"])
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, 0, http.MethodGet, "/api/v1/courses", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "unauthenticated", body["code"])
}

func TestCollaboratorLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	courseID := env.createCourse(t, env.alice, "Team Course")
	base := fmt.Sprintf("/api/v1/courses/%d", courseID)

	// Owner creates a reviewer role from the template
	status, body := env.do(t, env.alice, http.MethodPost, base+"/roles",
		map[string]string{"template": "reviewer"})
	require.Equal(t, http.StatusCreated, status)
	roleID := int64(body["id"].(float64))

	// And adds bob with it
	status, _ = env.do(t, env.alice, http.MethodPost, base+"/collaborators",
		map[string]int64{"user_id": env.bob, "role_id": roleID})
	require.Equal(t, http.StatusCreated, status)

	// bob can now view but not edit
	status, _ = env.do(t, env.bob, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = env.do(t, env.bob, http.MethodPatch, base,
		map[string]string{"title": "Hijacked"})
	assert.Equal(t, http.StatusForbidden, status)

	// bob cannot remove alice, and alice cannot remove herself as the
	// last owner
	status, _ = env.do(t, env.bob, http.MethodDelete,
		fmt.Sprintf("%s/collaborators/%d", base, env.alice), nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body = env.do(t, env.alice, http.MethodDelete,
		fmt.Sprintf("%s/collaborators/%d", base, env.alice), nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "last_owner_removal_blocked", body["code"])

	// Removing bob works
	status, _ = env.do(t, env.alice, http.MethodDelete,
		fmt.Sprintf("%s/collaborators/%d", base, env.bob), nil)
	assert.Equal(t, http.StatusNoContent, status)
}

func TestDuplicateRoleConflict(t *testing.T) {
	env := newTestEnv(t)
	courseID := env.createCourse(t, env.alice, "Roles")
	path := fmt.Sprintf("/api/v1/courses/%d/roles", courseID)

	status, _ := env.do(t, env.alice, http.MethodPost, path,
		map[string]interface{}{"name": "Editors", "permissions": []string{"content.edit"}})
	require.Equal(t, http.StatusCreated, status)

	status, body := env.do(t, env.alice, http.MethodPost, path,
		map[string]interface{}{"name": "Editors", "permissions": []string{"content.view"}})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "duplicate_role", body["code"])
}

func TestInvitationFlowOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	courseID := env.createCourse(t, env.alice, "Invited")
	base := fmt.Sprintf("/api/v1/courses/%d", courseID)

	status, body := env.do(t, env.alice, http.MethodPost, base+"/roles",
		map[string]string{"template": "sme"})
	require.Equal(t, http.StatusCreated, status)
	roleID := int64(body["id"].(float64))

	status, body = env.do(t, env.alice, http.MethodPost, base+"/invitations",
		map[string]interface{}{"role_id": roleID})
	require.Equal(t, http.StatusCreated, status)
	token := body["token"].(string)

	// carol accepts and gains the role's access
	status, body = env.do(t, env.carol, http.MethodPost,
		"/api/v1/invitations/"+token+"/accept", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["already_collaborator"])

	status, _ = env.do(t, env.carol, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusOK, status)

	// carol retrying is harmless
	status, body = env.do(t, env.carol, http.MethodPost,
		"/api/v1/invitations/"+token+"/accept", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["already_collaborator"])

	// For anyone else the consumed token answers like an unknown one
	status, body = env.do(t, env.bob, http.MethodPost,
		"/api/v1/invitations/"+token+"/accept", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "invalid_or_expired_token", body["code"])
}

func TestRevokedInvitationCannotBeAccepted(t *testing.T) {
	env := newTestEnv(t)
	courseID := env.createCourse(t, env.alice, "Revoked")
	base := fmt.Sprintf("/api/v1/courses/%d", courseID)

	status, body := env.do(t, env.alice, http.MethodPost, base+"/roles",
		map[string]string{"template": "reviewer"})
	require.Equal(t, http.StatusCreated, status)
	roleID := int64(body["id"].(float64))

	status, body = env.do(t, env.alice, http.MethodPost, base+"/invitations",
		map[string]interface{}{"role_id": roleID})
	require.Equal(t, http.StatusCreated, status)
	token := body["token"].(string)

	status, _ = env.do(t, env.alice, http.MethodPost,
		base+"/invitations/"+token+"/revoke", nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = env.do(t, env.carol, http.MethodPost,
		"/api/v1/invitations/"+token+"/accept", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestCommentThreadAndMentionsOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	courseID := env.createCourse(t, env.alice, "Discussed")
	base := fmt.Sprintf("/api/v1/courses/%d", courseID)

	status, body := env.do(t, env.alice, http.MethodPost, base+"/roles",
		map[string]string{"template": "sme"})
	require.Equal(t, http.StatusCreated, status)
	roleID := int64(body["id"].(float64))
	status, _ = env.do(t, env.alice, http.MethodPost, base+"/collaborators",
		map[string]int64{"user_id": env.bob, "role_id": roleID})
	require.Equal(t, http.StatusCreated, status)

	status, body = env.do(t, env.alice, http.MethodPost, base+"/comments",
		map[string]string{"content": "@bob please review the outline"})
	require.Equal(t, http.StatusCreated, status)
	commentID := int64(body["id"].(float64))

	// bob sees the mention in his inbox
	status, body = env.do(t, env.bob, http.MethodGet, "/api/v1/mentions", nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, body["mentions"], 1)

	// replies work, but only one level deep
	status, body = env.do(t, env.bob, http.MethodPost, base+"/comments",
		map[string]interface{}{"content": "on it", "parent_id": commentID})
	require.Equal(t, http.StatusCreated, status)
	replyID := int64(body["id"].(float64))

	status, body = env.do(t, env.alice, http.MethodPost, base+"/comments",
		map[string]interface{}{"content": "thanks", "parent_id": replyID})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "nested_reply_not_allowed", body["code"])

	// bob cannot edit alice's comment, alice (owner) can moderate bob's
	status, _ = env.do(t, env.bob, http.MethodPatch,
		fmt.Sprintf("%s/comments/%d", base, commentID),
		map[string]string{"content": "edited by bob"})
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = env.do(t, env.alice, http.MethodDelete,
		fmt.Sprintf("%s/comments/%d", base, replyID), nil)
	assert.Equal(t, http.StatusNoContent, status)
}

func TestAuditTrailOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	courseID := env.createCourse(t, env.alice, "Audited")
	base := fmt.Sprintf("/api/v1/courses/%d", courseID)

	status, _ := env.do(t, env.alice, http.MethodPatch, base,
		map[string]string{"title": "Audited v2"})
	require.Equal(t, http.StatusOK, status)

	status, body := env.do(t, env.alice, http.MethodGet, base+"/audit", nil)
	require.Equal(t, http.StatusOK, status)
	entries := body["entries"].([]interface{})
	require.Len(t, entries, 2)

	// Newest first: the update precedes the creation in the listing
	first := entries[0].(map[string]interface{})
	assert.Equal(t, "course.update", first["action"])
	changes := first["changes"].(map[string]interface{})
	title := changes["title"].(map[string]interface{})
	assert.Equal(t, "Audited", title["before"])
	assert.Equal(t, "Audited v2", title["after"])

	// The feed resolves names and summaries
	status, body = env.do(t, env.alice, http.MethodGet, base+"/feed", nil)
	require.Equal(t, http.StatusOK, status)
	items := body["items"].([]interface{})
	require.Len(t, items, 2)
	assert.Equal(t, "alice", items[0].(map[string]interface{})["actor_name"])
	assert.Equal(t, "updated the course (title)", items[0].(map[string]interface{})["summary"])
}
