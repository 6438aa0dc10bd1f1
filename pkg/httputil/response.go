// Package httputil provides HTTP handler utilities for consistent error
// handling, JSON encoding/decoding, and request parsing.
package httputil

import (
	"encoding/json"
	"net/http"
)

// Stable error codes surfaced to callers. Transport-level retries key off
// these; the codes are part of the API contract and must not change.
const (
	CodeUnauthenticated         = "unauthenticated"
	CodePermissionDenied        = "permission_denied"
	CodeMissingCourseID         = "missing_course_id"
	CodeDuplicateRole           = "duplicate_role"
	CodeNestedReplyNotAllowed   = "nested_reply_not_allowed"
	CodeInvalidOrExpiredToken   = "invalid_or_expired_token"
	CodeLastOwnerRemovalBlocked = "last_owner_removal_blocked"
	CodeNotFound                = "not_found"
	CodeValidation              = "validation_failed"
	CodeInternal                = "internal"
)

// ErrorResponse is the standardized error envelope
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteErrorCode writes a JSON error response with a stable code
func WriteErrorCode(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// WriteSuccess writes a successful response (200 OK) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteCreated writes a successful creation response (201 Created)
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteNoContent writes a successful response with no content (204)
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteValidationError writes a validation error naming the offending
// field or constraint (400 Bad Request)
func WriteValidationError(w http.ResponseWriter, message string) {
	WriteErrorCode(w, http.StatusBadRequest, CodeValidation, message)
}

// WriteUnauthenticated writes a 401 with the unauthenticated code
func WriteUnauthenticated(w http.ResponseWriter) {
	WriteErrorCode(w, http.StatusUnauthorized, CodeUnauthenticated, "authentication required")
}

// WritePermissionDenied writes the uniform denial response. The message is
// deliberately terse and identical for missing and forbidden resources so
// callers cannot enumerate course IDs.
func WritePermissionDenied(w http.ResponseWriter) {
	WriteErrorCode(w, http.StatusForbidden, CodePermissionDenied, "access denied")
}

// WriteNotFound writes a 404 for an entity that is genuinely absent, as
// opposed to present but forbidden
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteErrorCode(w, http.StatusNotFound, CodeNotFound, message)
}

// WriteConflict writes a 409 with the supplied code
func WriteConflict(w http.ResponseWriter, code, message string) {
	WriteErrorCode(w, http.StatusConflict, code, message)
}

// WriteInternalError writes a generic 500. The underlying error is expected
// to be logged with full context by the caller; it is never sent to the
// client.
func WriteInternalError(w http.ResponseWriter) {
	WriteErrorCode(w, http.StatusInternalServerError, CodeInternal, "internal error")
}
