// Package api wires the stores, handlers, and middleware into the HTTP
// server.
package api

import (
	"database/sql"
	"net/http"

	"github.com/courseforge/courseforge/pkg/audit"
	"github.com/courseforge/courseforge/pkg/auth"
	"github.com/courseforge/courseforge/pkg/comments"
	"github.com/courseforge/courseforge/pkg/courses"
	"github.com/courseforge/courseforge/pkg/httputil"
	"github.com/courseforge/courseforge/pkg/invites"
	"github.com/courseforge/courseforge/pkg/middleware"
	"github.com/courseforge/courseforge/pkg/observability"
	"github.com/courseforge/courseforge/pkg/rbac"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
)

// Options configures optional server collaborators
type Options struct {
	// Metrics may be nil to disable instrumentation
	Metrics *observability.Metrics
	// Redis enables distributed rate limiting when set; without it an
	// in-process limiter is used
	Redis *redis.Client
	// Directory overrides the default SQL-backed user lookup (tests)
	Directory auth.Directory
}

// Server is the assembled HTTP API
type Server struct {
	router *mux.Router

	Invitations *invites.Store
}

// NewServer builds the full route table on top of one database handle
func NewServer(db *sql.DB, logger *observability.Logger, opts Options) *Server {
	directory := opts.Directory
	if directory == nil {
		directory = auth.NewSQLDirectory(db)
	}

	auditStore := audit.NewStore(db, opts.Metrics)
	rbacStore := rbac.NewStore(db)
	checker := rbac.NewPermissionChecker(db, opts.Metrics)
	courseStore := courses.NewStore(db, rbacStore)
	inviteStore := invites.NewStore(db, opts.Metrics)
	commentStore := comments.NewStore(db, opts.Metrics)

	guard := rbac.NewAccessDecorator(checker, opts.Metrics)

	courseHandlers := courses.NewHandlers(courseStore, auditStore)
	rbacHandlers := rbac.NewHandlers(rbacStore, checker, auditStore)
	inviteHandlers := invites.NewHandlers(inviteStore, auditStore)
	commentHandlers := comments.NewHandlers(commentStore, checker, auditStore)
	auditHandlers := audit.NewHandlers(auditStore)

	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFound(w, "route not found")
	})

	// Global middleware, outermost first
	router.Use(middleware.RequestIDMiddleware)
	if opts.Metrics != nil {
		router.Use(observability.HTTPMetricsMiddleware(opts.Metrics))
	}
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(observability.WithLogger(r.Context(), logger)))
		})
	})
	router.Use(middleware.NewIdentityMiddleware(directory, false).Handler)
	if opts.Redis != nil {
		router.Use(middleware.NewDistributedRateLimitMiddleware(opts.Redis).Handler)
	} else {
		router.Use(middleware.NewRateLimitMiddleware().Handler)
	}

	v1 := router.PathPrefix("/api/v1").Subrouter()

	// Catalog and identity-scoped routes (no course in the path)
	v1.HandleFunc("/permissions", rbacHandlers.ListPermissions).Methods(http.MethodGet)
	v1.HandleFunc("/role-templates", rbacHandlers.ListTemplates).Methods(http.MethodGet)
	v1.HandleFunc("/courses", courseHandlers.CreateCourse).Methods(http.MethodPost)
	v1.HandleFunc("/courses", courseHandlers.ListMyCourses).Methods(http.MethodGet)
	v1.HandleFunc("/invitations/{token}", inviteHandlers.Preview).Methods(http.MethodGet)
	v1.HandleFunc("/invitations/{token}/accept", inviteHandlers.Accept).Methods(http.MethodPost)
	v1.HandleFunc("/mentions", commentHandlers.UnreadMentions).Methods(http.MethodGet)
	v1.HandleFunc("/mentions/read-all", commentHandlers.MarkAllMentionsRead).Methods(http.MethodPost)
	v1.HandleFunc("/mentions/{mention_id}/read", commentHandlers.MarkMentionRead).Methods(http.MethodPost)

	// Course-scoped routes behind the access decorators
	course := func(perm string, h http.HandlerFunc) http.Handler {
		return guard.RequirePermission(perm)(h)
	}
	collaborator := func(h http.HandlerFunc) http.Handler {
		return guard.RequireCollaborator()(h)
	}

	v1.Handle("/courses/{course_id}", course(rbac.PermContentView, courseHandlers.GetCourse)).Methods(http.MethodGet)
	v1.Handle("/courses/{course_id}", course(rbac.PermCourseEdit, courseHandlers.UpdateCourse)).Methods(http.MethodPatch)
	v1.Handle("/courses/{course_id}", course(rbac.PermCourseDelete, courseHandlers.DeleteCourse)).Methods(http.MethodDelete)

	v1.Handle("/courses/{course_id}/activities", course(rbac.PermContentView, courseHandlers.ListActivities)).Methods(http.MethodGet)
	v1.Handle("/courses/{course_id}/activities", course(rbac.PermContentEdit, courseHandlers.CreateActivity)).Methods(http.MethodPost)
	v1.Handle("/courses/{course_id}/activities/reorder", course(rbac.PermStructureReorder, courseHandlers.ReorderActivities)).Methods(http.MethodPost)
	v1.Handle("/courses/{course_id}/activities/{activity_id}", course(rbac.PermContentView, courseHandlers.GetActivity)).Methods(http.MethodGet)
	v1.Handle("/courses/{course_id}/activities/{activity_id}", course(rbac.PermContentEdit, courseHandlers.UpdateActivity)).Methods(http.MethodPatch)
	v1.Handle("/courses/{course_id}/activities/{activity_id}", course(rbac.PermStructureEdit, courseHandlers.DeleteActivity)).Methods(http.MethodDelete)

	v1.Handle("/courses/{course_id}/roles", collaborator(rbacHandlers.ListRoles)).Methods(http.MethodGet)
	v1.Handle("/courses/{course_id}/roles", course(rbac.PermManageRoles, rbacHandlers.CreateRole)).Methods(http.MethodPost)
	v1.Handle("/courses/{course_id}/roles/{role_id}", collaborator(rbacHandlers.GetRole)).Methods(http.MethodGet)
	v1.Handle("/courses/{course_id}/roles/{role_id}", course(rbac.PermManageRoles, rbacHandlers.DeleteRole)).Methods(http.MethodDelete)

	v1.Handle("/courses/{course_id}/collaborators", collaborator(rbacHandlers.ListCollaborators)).Methods(http.MethodGet)
	v1.Handle("/courses/{course_id}/collaborators", course(rbac.PermManageCollaborators, rbacHandlers.AddCollaborator)).Methods(http.MethodPost)
	v1.Handle("/courses/{course_id}/collaborators/{user_id}", course(rbac.PermManageCollaborators, rbacHandlers.RemoveCollaborator)).Methods(http.MethodDelete)
	v1.Handle("/courses/{course_id}/my-permissions", collaborator(rbacHandlers.GetMyPermissions)).Methods(http.MethodGet)

	v1.Handle("/courses/{course_id}/invitations", course(rbac.PermInvite, inviteHandlers.Create)).Methods(http.MethodPost)
	v1.Handle("/courses/{course_id}/invitations", course(rbac.PermInvite, inviteHandlers.ListPending)).Methods(http.MethodGet)
	v1.Handle("/courses/{course_id}/invitations/{token}/revoke", course(rbac.PermInvite, inviteHandlers.Revoke)).Methods(http.MethodPost)

	v1.Handle("/courses/{course_id}/comments", course(rbac.PermContentView, commentHandlers.List)).Methods(http.MethodGet)
	v1.Handle("/courses/{course_id}/comments", course(rbac.PermContentComment, commentHandlers.Create)).Methods(http.MethodPost)
	v1.Handle("/courses/{course_id}/comments/{comment_id}", course(rbac.PermContentComment, commentHandlers.Update)).Methods(http.MethodPatch)
	v1.Handle("/courses/{course_id}/comments/{comment_id}", course(rbac.PermContentComment, commentHandlers.Delete)).Methods(http.MethodDelete)
	v1.Handle("/courses/{course_id}/comments/{comment_id}/resolve", course(rbac.PermContentComment, commentHandlers.Resolve)).Methods(http.MethodPost)
	v1.Handle("/courses/{course_id}/comments/{comment_id}/unresolve", course(rbac.PermContentComment, commentHandlers.Unresolve)).Methods(http.MethodPost)

	v1.Handle("/courses/{course_id}/audit", course(rbac.PermViewAudit, auditHandlers.GetCourseTrail)).Methods(http.MethodGet)
	v1.Handle("/courses/{course_id}/audit/{entity_type}/{entity_id}", course(rbac.PermViewAudit, auditHandlers.GetEntityHistory)).Methods(http.MethodGet)
	v1.Handle("/courses/{course_id}/feed", course(rbac.PermViewAudit, auditHandlers.GetFeed)).Methods(http.MethodGet)

	return &Server{
		router:      router,
		Invitations: inviteStore,
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
