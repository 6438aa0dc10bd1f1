// Package rbac implements per-course role-based access control.
//
// A fixed permission catalog feeds course-scoped roles; collaborators bind
// one user to one role per course. Checks always run against current state
// so role edits take effect on the next request. HTTP routes are guarded
// by the AccessDecorator, which resolves {course_id}, checks the caller's
// grant, and denies uniformly without revealing whether a course exists.
package rbac
