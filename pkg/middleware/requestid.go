package middleware

import (
	"net/http"

	"github.com/courseforge/courseforge/pkg/contextkeys"
	"github.com/google/uuid"
)

// RequestIDHeader is the header carrying (or returning) the request ID
const RequestIDHeader = "X-Request-ID"

// RequestIDMiddleware attaches a request ID to every request, generating
// one when the caller did not supply it
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, requestID)
		ctx := contextkeys.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
