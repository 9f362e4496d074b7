package logging

import (
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// #region helpers
func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	_, err = db.Exec(`CREATE TABLE run_events (
		run_id     TEXT NOT NULL,
		section    TEXT,
		trial      INTEGER NOT NULL,
		kind       TEXT NOT NULL,
		detail     TEXT,
		created_at TEXT NOT NULL
	)`)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}
// #endregion helpers

// #region log-event-tests
func TestLogEvent_Success(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	detail, _ := json.Marshal(TransitionRecord{From: "practice", To: "main", Reason: "condition", Trials: 10, Correct: 9})
	err := LogEvent(db, RunEvent{
		RunID:     "run-1",
		Section:   "practice",
		Trial:     9,
		Kind:      EventTransition,
		Detail:    string(detail),
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var kind, stored, created string
	if err := db.QueryRow("SELECT kind, detail, created_at FROM run_events").Scan(&kind, &stored, &created); err != nil {
		t.Fatalf("query: %v", err)
	}
	if kind != EventTransition {
		t.Errorf("expected kind transition, got %s", kind)
	}
	var rec TransitionRecord
	if err := json.Unmarshal([]byte(stored), &rec); err != nil {
		t.Fatalf("unmarshal detail: %v", err)
	}
	if rec.To != "main" || rec.Correct != 9 {
		t.Errorf("unexpected record: %+v", rec)
	}
	if created != "2026-01-01T00:00:00Z" {
		t.Errorf("unexpected created_at %s", created)
	}
}

func TestLogEvent_NullOptionalFields(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	if err := LogEvent(db, RunEvent{RunID: "run-2", Trial: -1, Kind: EventAbort}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var section, detail sql.NullString
	var created string
	if err := db.QueryRow("SELECT section, detail, created_at FROM run_events").Scan(&section, &detail, &created); err != nil {
		t.Fatalf("query: %v", err)
	}
	if section.Valid || detail.Valid {
		t.Errorf("expected NULL section and detail, got %v / %v", section, detail)
	}
	if created == "" {
		t.Error("expected created_at to default to now")
	}
}

func TestLogEvent_MissingTable(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if err := LogEvent(db, RunEvent{RunID: "x", Kind: EventCompile}); err == nil {
		t.Fatal("expected error when run_events is missing")
	}
}
// #endregion log-event-tests
