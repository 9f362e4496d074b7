package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/danielpatrickdp/stimsched/internal/experiment"
)

func tempDB(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGetRun(t *testing.T) {
	s := tempDB(t)
	rec := RunRecord{
		RunID:  "run-1",
		Test:   "staircase",
		Device: experiment.DefaultDevice(),
		Roots:  map[string]uint64{"main": 0xfedcba9876543210},
	}
	if err := s.CreateRun(rec); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	got, err := s.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Test != "staircase" || got.Status != StatusPresenting {
		t.Fatalf("unexpected run %+v", got)
	}
	if diff := cmp.Diff(experiment.DefaultDevice(), got.Device); diff != "" {
		t.Fatalf("device mismatch (-want +got):\n%s", diff)
	}
	if got.Roots["main"] != 0xfedcba9876543210 {
		t.Fatalf("root %#x lost its high bits", got.Roots["main"])
	}
	if got.CreatedAt.IsZero() {
		t.Fatal("expected created_at to be set")
	}

	if err := s.SetStatus("run-1", StatusEnded); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	got, err = s.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != StatusEnded {
		t.Fatalf("status %q, want %q", got.Status, StatusEnded)
	}

	if err := s.SetStatus("missing", StatusEnded); err == nil {
		t.Fatal("expected error for a missing run")
	}
	if _, err := s.GetRun("missing"); err == nil {
		t.Fatal("expected error for a missing run")
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	s := tempDB(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		if err := s.CreateRun(RunRecord{RunID: id, Test: "t", CreatedAt: base.Add(time.Duration(i) * time.Minute)}); err != nil {
			t.Fatalf("CreateRun %s: %v", id, err)
		}
	}
	runs, err := s.ListRuns(2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].RunID != "c" || runs[1].RunID != "b" {
		t.Fatalf("expected [c b], got %+v", runs)
	}
}

func TestSaveAndLoadScene(t *testing.T) {
	s := tempDB(t)
	if err := s.CreateRun(RunRecord{RunID: "r", Test: "t"}); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	buf := SceneBuffer{
		RunID:      "r",
		Section:    "main",
		Scene:      "stim",
		Trials:     2,
		Objects:    2,
		Rows:       []float32{0, 1.5, -2.25, 3e6},
		Background: []float32{0.5, 0.5, 0.5},
		SceneEnd:   []int{120, 90},
	}
	if err := s.SaveScene(buf); err != nil {
		t.Fatalf("SaveScene: %v", err)
	}

	got, err := s.LoadScene("r", "main", "stim")
	if err != nil {
		t.Fatalf("LoadScene: %v", err)
	}
	if diff := cmp.Diff(buf, got); diff != "" {
		t.Fatalf("scene mismatch (-want +got):\n%s", diff)
	}

	// saving the same scene again replaces it
	buf.SceneEnd = []int{60, 60}
	if err := s.SaveScene(buf); err != nil {
		t.Fatalf("SaveScene: %v", err)
	}
	got, err = s.LoadScene("r", "main", "stim")
	if err != nil {
		t.Fatalf("LoadScene: %v", err)
	}
	if diff := cmp.Diff([]int{60, 60}, got.SceneEnd); diff != "" {
		t.Fatalf("scene end mismatch (-want +got):\n%s", diff)
	}

	if _, err := s.LoadScene("r", "main", "missing"); err == nil {
		t.Fatal("expected error for a missing scene")
	}
}

func TestRecordAndListTrials(t *testing.T) {
	s := tempDB(t)
	if err := s.CreateRun(RunRecord{RunID: "r", Test: "t"}); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	rows := []TrialRow{
		{
			RunID: "r", Section: "main", Trial: 0, Block: -1,
			Frames: []int{120}, Numbers: []int{2}, Values: []experiment.Value{experiment.Scalar(0.3)},
			Responded: true, Response: experiment.Scalar(0.3), TrialValue: experiment.Scalar(0.3),
			Scored: true, Correct: true,
		},
		{
			RunID: "r", Section: "main", Trial: 1, Block: -1,
			Frames: []int{120}, Numbers: []int{1}, Values: []experiment.Value{experiment.Vec2(1, 2)},
			Responded: true, Response: experiment.Vec2(4, 6), TrialValue: experiment.Vec2(1, 2),
			Scored: true, Correct: false, Distance: 5,
		},
	}
	for _, r := range rows {
		if err := s.RecordTrial(r); err != nil {
			t.Fatalf("RecordTrial %d: %v", r.Trial, err)
		}
	}

	got, err := s.ListTrials("r")
	if err != nil {
		t.Fatalf("ListTrials: %v", err)
	}
	if len(got) != len(rows) {
		t.Fatalf("expected %d trials, got %d", len(rows), len(got))
	}
	for i := range rows {
		rows[i].CreatedAt = got[i].CreatedAt
	}
	if diff := cmp.Diff(rows, got); diff != "" {
		t.Fatalf("trials mismatch (-want +got):\n%s", diff)
	}

	empty, err := s.ListTrials("other")
	if err != nil {
		t.Fatalf("ListTrials: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected no trials, got %d", len(empty))
	}
}

func TestFloatEncodingRoundTrip(t *testing.T) {
	in := []float32{1, -1, 0.1, 1e-30}
	if diff := cmp.Diff(in, decodeFloats(encodeFloats(in))); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
	if n := len(encodeFloats(in)); n != 16 {
		t.Fatalf("encoded %d bytes, want 16", n)
	}
}
