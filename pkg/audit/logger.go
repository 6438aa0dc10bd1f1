package audit

import (
	"context"
)

// Logger records audit entries. Handlers depend on this interface so tests
// can capture entries without a database.
type Logger interface {
	// Record appends one entry to the trail. A failure to record must not
	// abort the mutation it describes; callers log and continue.
	Record(ctx context.Context, e *Entry) error
}

// NopLogger discards all entries
type NopLogger struct{}

// Record implements Logger
func (NopLogger) Record(ctx context.Context, e *Entry) error { return nil }

// CaptureLogger collects entries in memory for tests
type CaptureLogger struct {
	Entries []*Entry
}

// Record implements Logger
func (c *CaptureLogger) Record(ctx context.Context, e *Entry) error {
	c.Entries = append(c.Entries, e)
	return nil
}

// Last returns the most recently captured entry, or nil
func (c *CaptureLogger) Last() *Entry {
	if len(c.Entries) == 0 {
		return nil
	}
	return c.Entries[len(c.Entries)-1]
}
