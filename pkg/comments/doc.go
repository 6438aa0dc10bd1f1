// Package comments implements single-level threaded discussions on courses
// and activities, with @mention notifications for collaborators.
//
// Mentions are derived from comment text at write time and resolve only
// against people who collaborate on the course when the comment is saved.
package comments
