package state

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/stimsched/internal/experiment"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	test_name   TEXT NOT NULL,
	device_json TEXT NOT NULL,
	roots_json  TEXT NOT NULL,
	status      TEXT NOT NULL,
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS scene_buffers (
	run_id      TEXT NOT NULL,
	section     TEXT NOT NULL,
	scene       TEXT NOT NULL,
	trials      INTEGER NOT NULL,
	objects     INTEGER NOT NULL,
	rows_blob   BLOB NOT NULL,
	background  BLOB NOT NULL,
	scene_end   TEXT NOT NULL,
	PRIMARY KEY (run_id, section, scene),
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE TABLE IF NOT EXISTS trial_results (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL,
	section     TEXT NOT NULL,
	trial       INTEGER NOT NULL,
	block       INTEGER NOT NULL,
	responded   INTEGER NOT NULL,
	scored      INTEGER NOT NULL,
	correct     INTEGER NOT NULL,
	distance    REAL NOT NULL,
	detail_json TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE TABLE IF NOT EXISTS run_events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL,
	section     TEXT,
	trial       INTEGER NOT NULL,
	kind        TEXT NOT NULL,
	detail      TEXT,
	created_at  TEXT NOT NULL
);
`
// #endregion schema

// #region store-struct
// Store persists runs, compiled scene buffers and trial results in SQLite.
type Store struct {
	db *sql.DB
}
// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}
// #endregion constructor

// #region runs
// CreateRun inserts a new run row.
func (s *Store) CreateRun(rec RunRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.Status == "" {
		rec.Status = StatusPresenting
	}
	dev, err := json.Marshal(rec.Device)
	if err != nil {
		return fmt.Errorf("marshal device: %w", err)
	}
	roots, err := json.Marshal(rec.Roots)
	if err != nil {
		return fmt.Errorf("marshal roots: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO runs (run_id, test_name, device_json, roots_json, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Test, string(dev), string(roots), rec.Status, rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// SetStatus updates the status of a run.
func (s *Store) SetStatus(runID, status string) error {
	res, err := s.db.Exec(`UPDATE runs SET status = ? WHERE run_id = ?`, status, runID)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(runID string) (RunRecord, error) {
	row := s.db.QueryRow(
		`SELECT run_id, test_name, device_json, roots_json, status, created_at
		 FROM runs WHERE run_id = ?`, runID,
	)
	rec, err := scanRun(row)
	if err != nil {
		return RunRecord{}, fmt.Errorf("get run %s: %w", runID, err)
	}
	return rec, nil
}

// ListRuns returns the most recent runs.
func (s *Store) ListRuns(limit int) ([]RunRecord, error) {
	rows, err := s.db.Query(
		`SELECT run_id, test_name, device_json, roots_json, status, created_at
		 FROM runs ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (RunRecord, error) {
	var rec RunRecord
	var devJSON, rootsJSON, createdStr string
	if err := row.Scan(&rec.RunID, &rec.Test, &devJSON, &rootsJSON, &rec.Status, &createdStr); err != nil {
		return RunRecord{}, err
	}
	if err := json.Unmarshal([]byte(devJSON), &rec.Device); err != nil {
		return RunRecord{}, fmt.Errorf("unmarshal device: %w", err)
	}
	if err := json.Unmarshal([]byte(rootsJSON), &rec.Roots); err != nil {
		return RunRecord{}, fmt.Errorf("unmarshal roots: %w", err)
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return rec, nil
}
// #endregion runs

// #region scenes
// SaveScene stores (or replaces) the compiled buffers of one scene.
func (s *Store) SaveScene(buf SceneBuffer) error {
	end, err := json.Marshal(buf.SceneEnd)
	if err != nil {
		return fmt.Errorf("marshal scene end: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO scene_buffers
		 (run_id, section, scene, trials, objects, rows_blob, background, scene_end)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		buf.RunID, buf.Section, buf.Scene, buf.Trials, buf.Objects,
		encodeFloats(buf.Rows), encodeFloats(buf.Background), string(end),
	)
	if err != nil {
		return fmt.Errorf("save scene %s/%s: %w", buf.Section, buf.Scene, err)
	}
	return nil
}

// LoadScene reads back the compiled buffers of one scene.
func (s *Store) LoadScene(runID, section, scene string) (SceneBuffer, error) {
	buf := SceneBuffer{RunID: runID, Section: section, Scene: scene}
	var rows, bg []byte
	var end string
	err := s.db.QueryRow(
		`SELECT trials, objects, rows_blob, background, scene_end
		 FROM scene_buffers WHERE run_id = ? AND section = ? AND scene = ?`,
		runID, section, scene,
	).Scan(&buf.Trials, &buf.Objects, &rows, &bg, &end)
	if err != nil {
		return SceneBuffer{}, fmt.Errorf("load scene %s/%s: %w", section, scene, err)
	}
	buf.Rows = decodeFloats(rows)
	buf.Background = decodeFloats(bg)
	if err := json.Unmarshal([]byte(end), &buf.SceneEnd); err != nil {
		return SceneBuffer{}, fmt.Errorf("unmarshal scene end: %w", err)
	}
	return buf, nil
}
// #endregion scenes

// #region trials
type trialDetail struct {
	Frames     []int              `json:"frames"`
	Numbers    []int              `json:"numbers"`
	Values     []experiment.Value `json:"values"`
	Response   experiment.Value   `json:"response"`
	TrialValue experiment.Value   `json:"trial_value"`
}

// RecordTrial appends the outcome of one trial.
func (s *Store) RecordTrial(row TrialRow) error {
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	detail, err := json.Marshal(trialDetail{
		Frames:     row.Frames,
		Numbers:    row.Numbers,
		Values:     row.Values,
		Response:   row.Response,
		TrialValue: row.TrialValue,
	})
	if err != nil {
		return fmt.Errorf("marshal trial detail: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO trial_results
		 (run_id, section, trial, block, responded, scored, correct, distance, detail_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.RunID, row.Section, row.Trial, row.Block,
		boolInt(row.Responded), boolInt(row.Scored), boolInt(row.Correct), row.Distance,
		string(detail), row.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record trial %d: %w", row.Trial, err)
	}
	return nil
}

// ListTrials returns every recorded trial of a run in presentation order.
func (s *Store) ListTrials(runID string) ([]TrialRow, error) {
	rows, err := s.db.Query(
		`SELECT section, trial, block, responded, scored, correct, distance, detail_json, created_at
		 FROM trial_results WHERE run_id = ? ORDER BY id`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list trials: %w", err)
	}
	defer rows.Close()

	var out []TrialRow
	for rows.Next() {
		row := TrialRow{RunID: runID}
		var responded, scored, correct int
		var detailJSON, createdStr string
		if err := rows.Scan(&row.Section, &row.Trial, &row.Block, &responded, &scored, &correct,
			&row.Distance, &detailJSON, &createdStr); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		var d trialDetail
		if err := json.Unmarshal([]byte(detailJSON), &d); err != nil {
			return nil, fmt.Errorf("unmarshal trial detail: %w", err)
		}
		row.Frames, row.Numbers, row.Values = d.Frames, d.Numbers, d.Values
		row.Response, row.TrialValue = d.Response, d.TrialValue
		row.Responded, row.Scored, row.Correct = responded != 0, scored != 0, correct != 0
		row.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, row)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
// #endregion trials

// #region float-encoding
func encodeFloats(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeFloats(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
// #endregion float-encoding
