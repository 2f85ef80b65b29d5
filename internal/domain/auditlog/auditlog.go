// Package auditlog defines the append-only operator activity log.
package auditlog

import (
	"context"
	"time"
)

// Entry is one line of the activity log. At is split into a date and a
// time-of-day column when stored.
type Entry struct {
	Task      string
	At        time.Time
	ActorName string
}

// Sink appends entries to the activity log.
type Sink interface {
	Append(ctx context.Context, e Entry) error
}
