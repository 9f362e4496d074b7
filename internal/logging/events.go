package logging

import (
	"database/sql"
	"fmt"
	"time"
)

// #region log-event
// LogEvent appends an event to the run_events table.
func LogEvent(db *sql.DB, ev RunEvent) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO run_events (run_id, section, trial, kind, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ev.RunID,
		nullIfEmpty(ev.Section),
		ev.Trial,
		ev.Kind,
		nullIfEmpty(ev.Detail),
		ev.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log event: %w", err)
	}
	return nil
}
// #endregion log-event

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
// #endregion helpers
