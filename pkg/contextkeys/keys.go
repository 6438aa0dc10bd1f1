// Package contextkeys provides centralized context key definitions
//
// All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage
// discoverable.
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// AuthKey contains *auth.AuthContext
	// Set by: middleware.IdentityMiddleware (pkg/middleware/auth.go)
	// Required by: all protected API endpoints, the access decorators
	// Type: *auth.AuthContext
	AuthKey Key = "auth_context"

	// CourseIDKey contains the course ID the request is scoped to
	// Set by: rbac decorators after resolving {course_id}
	// Type: int64
	CourseIDKey Key = "course_id"

	// RequestIDKey contains request ID string (UUID)
	// Set by: middleware.RequestIDMiddleware
	// Used by: logger, audit trail
	// Type: string
	RequestIDKey Key = "request_id"

	// LoggerKey contains *observability.Logger
	// Set by: observability middleware
	// Used by: handlers that need structured logging with request context
	// Type: *observability.Logger
	LoggerKey Key = "logger"
)

// WithAuth adds authentication context to the context
func WithAuth(ctx context.Context, authCtx interface{}) context.Context {
	return context.WithValue(ctx, AuthKey, authCtx)
}

// WithCourseID adds the resolved course ID to the context
func WithCourseID(ctx context.Context, courseID int64) context.Context {
	return context.WithValue(ctx, CourseIDKey, courseID)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// GetCourseID retrieves the course ID from context
func GetCourseID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(CourseIDKey).(int64)
	return id, ok
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}
