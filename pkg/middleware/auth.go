package middleware

import (
	"net/http"
	"strconv"

	"github.com/courseforge/courseforge/pkg/auth"
	"github.com/courseforge/courseforge/pkg/contextkeys"
	"github.com/courseforge/courseforge/pkg/httputil"
)

// IdentityHeader carries the authenticated user ID, set by the upstream
// identity/session system. This service trusts the value and performs no
// credential verification of its own.
const IdentityHeader = "X-User-ID"

// IdentityMiddleware resolves the authenticated actor for each request
type IdentityMiddleware struct {
	directory auth.Directory
	optional  bool // if true, allow requests without an identity
}

// NewIdentityMiddleware creates a new identity middleware
func NewIdentityMiddleware(directory auth.Directory, optional bool) *IdentityMiddleware {
	return &IdentityMiddleware{
		directory: directory,
		optional:  optional,
	}
}

// Handler wraps an HTTP handler with identity resolution
func (m *IdentityMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(IdentityHeader)
		if header == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthenticated(w)
			return
		}

		userID, err := strconv.ParseInt(header, 10, 64)
		if err != nil || userID <= 0 {
			httputil.WriteUnauthenticated(w)
			return
		}

		user, err := m.directory.GetUser(r.Context(), userID)
		if err != nil || !user.IsActive {
			httputil.WriteUnauthenticated(w)
			return
		}

		authCtx := &auth.AuthContext{User: user}
		ctx := contextkeys.WithAuth(r.Context(), authCtx)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetAuthContext extracts the auth context from a request
func GetAuthContext(r *http.Request) *auth.AuthContext {
	ctx := r.Context().Value(contextkeys.AuthKey)
	if ctx == nil {
		return nil
	}
	authCtx, ok := ctx.(*auth.AuthContext)
	if !ok {
		return nil
	}
	return authCtx
}
