package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/xenking/pdv-backend/internal/domain/auditlog"
)

const insertAuditEntrySQL = `INSERT INTO audit_log (task, logged_on, logged_at, actor_name)
	VALUES ($1, $2, $3, $4)`

var _ auditlog.Sink = (*AuditLog)(nil)

// AuditLog appends operator activity to the audit_log table.
type AuditLog struct {
	db DB
}

// NewAuditLog returns an AuditLog that writes through db.
func NewAuditLog(db DB) *AuditLog {
	return &AuditLog{db: db}
}

// Append inserts e, splitting its timestamp into a date and a time of day in
// the timestamp's own location.
func (a *AuditLog) Append(ctx context.Context, e auditlog.Entry) error {
	day, clock := splitTimestamp(e.At)
	if _, err := a.db.Exec(ctx, insertAuditEntrySQL, e.Task, day, clock, e.ActorName); err != nil {
		return errors.Wrap(err, "insert audit entry")
	}
	return nil
}

func splitTimestamp(at time.Time) (pgtype.Date, pgtype.Time) {
	y, m, d := at.Date()
	h, mi, sec := at.Clock()
	micros := (int64(h)*3600+int64(mi)*60+int64(sec))*1_000_000 + int64(at.Nanosecond()/1000)
	return pgtype.Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC), Valid: true},
		pgtype.Time{Microseconds: micros, Valid: true}
}
