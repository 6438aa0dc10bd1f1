// Package audit implements the append-only change trail for courses.
//
// Every privileged mutation records who did what to which entity, with a
// structural before/after diff of the changed fields only. Entries are
// immutable once written and are kept for the lifetime of the course.
package audit
