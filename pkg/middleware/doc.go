// Package middleware provides HTTP middleware for identity resolution,
// request IDs, and rate limiting.
//
// Identity is resolved from a trusted upstream header: the identity/session
// system authenticates the caller and forwards the user ID. Authorization
// (per-course permissions) is NOT handled here; see pkg/rbac for the access
// decorators.
package middleware
