package replay

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/danielpatrickdp/stimsched/internal/catalog"
	"github.com/danielpatrickdp/stimsched/internal/gate"
	"github.com/danielpatrickdp/stimsched/internal/run"
	"github.com/danielpatrickdp/stimsched/internal/state"
)

func load(t *testing.T, path string) *Fixture {
	t.Helper()
	f, err := LoadFixture(path)
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	return f
}

func replay(t *testing.T, f *Fixture, opts Options) ([]TrialResult, *run.Run) {
	t.Helper()
	test, err := f.Test()
	if err != nil {
		t.Fatalf("Test: %v", err)
	}
	results, r, err := Replay(context.Background(), test, f, opts)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	return results, r
}

func boolp(b bool) *bool { return &b }

func TestStaircaseFixture(t *testing.T) {
	f := load(t, filepath.Join("testdata", "staircase.yaml"))
	if f.Definition != "staircase" {
		t.Fatalf("catalog names are not rewritten, got %q", f.Definition)
	}

	results, r := replay(t, f, Options{})
	if mm := Check(results, f.Expected); len(mm) != 0 {
		t.Fatalf("unexpected mismatches: %v", mm)
	}
	if len(results) != 43 {
		t.Fatalf("replayed %d trials, want 43", len(results))
	}
	if results[2].Decision.Action != gate.ActionJump || results[42].Decision.Action != gate.ActionEnd {
		t.Fatalf("expected jump at #2 and end at #42, got %s and %s",
			results[2].Decision.Action, results[42].Decision.Action)
	}

	var contrast []int
	for _, res := range results[3:13] {
		contrast = append(contrast, res.Numbers[1])
	}
	if diff := cmp.Diff([]int{5, 5, 4, 4, 3, 3, 2, 2, 1, 1}, contrast); diff != "" {
		t.Fatalf("contrast staircase (-want +got):\n%s", diff)
	}

	for i, res := range results {
		// fixation 0.5 s plus stimulus 1 s at 60 Hz
		if res.Frames != 90 {
			t.Fatalf("trial #%d presented %d frames, want 90", i, res.Frames)
		}
		if res.PeakVisible < 1 {
			t.Fatalf("trial #%d showed nothing", i)
		}
	}

	s := Summarize(results, r)
	if s.Phase != run.PhaseEnded || s.Trials != 43 || s.Scored != 43 || s.Transitions != 1 || s.Frames != 43*90 {
		t.Fatalf("unexpected summary %+v", s)
	}
	if s.Accuracy() != 1 {
		t.Fatalf("accuracy %v, want 1", s.Accuracy())
	}
	if diff := cmp.Diff(SectionSummary{Trials: 3, Scored: 3, Correct: 3}, s.Sections["practice"]); diff != "" {
		t.Fatalf("practice summary (-want +got):\n%s", diff)
	}
	if r.Roots["main"] != 42 {
		t.Fatalf("main root %d, want 42", r.Roots["main"])
	}
}

func TestIncorrectAnswersRaiseTheStaircase(t *testing.T) {
	f := &Fixture{
		Definition: "staircase",
		Seeds:      map[string]uint64{"practice": 1, "main": 2},
		Fallback:   "incorrect",
		MaxTrials:  100,
	}
	for i := 0; i < 3; i++ {
		f.Responses = append(f.Responses, ScriptedResponse{Correct: boolp(true)})
	}
	results, r := replay(t, f, Options{})

	main := results[3:]
	// incorrect > 20 ends the test
	if len(main) != 21 {
		t.Fatalf("main ran %d trials, want 21", len(main))
	}
	last := main[len(main)-1]
	if last.Decision.Action != gate.ActionEnd {
		t.Fatalf("last decision %s, want end", last.Decision.Action)
	}
	if last.Numbers[1] != 6 {
		t.Fatalf("staircase at %d, want the easiest level 6", last.Numbers[1])
	}
	for i, res := range main {
		if res.Result.Correct {
			t.Fatalf("main trial %d scored correct", i)
		}
	}
	if r.Phase() != run.PhaseEnded {
		t.Fatalf("phase %s, want ended", r.Phase())
	}
}

func TestExportReproducesRun(t *testing.T) {
	store, err := state.NewStore(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	f := &Fixture{
		Definition: "blocked",
		Fallback:   "correct",
		Responses: []ScriptedResponse{
			{Key: "large"},
			{Correct: boolp(false)},
			{},
		},
	}
	first, r := replay(t, f, Options{Store: store})
	if len(first) != 24 {
		t.Fatalf("blocked run presented %d trials, want 24", len(first))
	}
	if first[2].Responded {
		t.Fatal("trial #2 was scripted without a response")
	}

	exported, err := Export(store, r.ID, "blocked")
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(exported.Responses) != 24 {
		t.Fatalf("exported %d responses, want 24", len(exported.Responses))
	}
	if diff := cmp.Diff(r.Roots, exported.Seeds); diff != "" {
		t.Fatalf("exported seeds (-run +fixture):\n%s", diff)
	}

	data, err := exported.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	path := filepath.Join(t.TempDir(), "exported.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	again, _ := replay(t, load(t, path), Options{})
	if mm := Check(again, exported.Expected); len(mm) != 0 {
		t.Fatalf("exported run did not reproduce: %v", mm)
	}
	for i := range first {
		if diff := cmp.Diff(first[i].Numbers, again[i].Numbers); diff != "" {
			t.Fatalf("trial #%d numbers differ (-first +again):\n%s", i, diff)
		}
		if diff := cmp.Diff(first[i].Values, again[i].Values); diff != "" {
			t.Fatalf("trial #%d values differ (-first +again):\n%s", i, diff)
		}
		if first[i].Result != again[i].Result {
			t.Fatalf("trial #%d result %+v, replayed %+v", i, first[i].Result, again[i].Result)
		}
	}
}

func TestScriptWithoutFallback(t *testing.T) {
	f := &Fixture{
		Definition: "factorial",
		Responses:  []ScriptedResponse{{Values: []float64{1}}, {Values: []float64{2}}},
	}
	test, err := catalog.Load("factorial")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	results, _, err := Replay(context.Background(), test, f, Options{})
	if err == nil || !strings.Contains(err.Error(), "no fallback") {
		t.Fatalf("expected a no fallback error, got %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("kept %d results, want 2", len(results))
	}
}

func TestMaxTrials(t *testing.T) {
	f := &Fixture{Definition: "staircase", Fallback: "none", MaxTrials: 5}
	test, err := f.Test()
	if err != nil {
		t.Fatalf("Test: %v", err)
	}
	results, _, err := Replay(context.Background(), test, f, Options{})
	if err == nil || !strings.Contains(err.Error(), "stopped after 5 trials") {
		t.Fatalf("expected the trial limit error, got %v", err)
	}
	if len(results) != 5 {
		t.Fatalf("kept %d results, want 5", len(results))
	}
}

func TestCheckReportsMismatches(t *testing.T) {
	trial := 0
	results := []TrialResult{{TrialRecord: run.TrialRecord{Section: "main", Trial: 0, Numbers: []int{1}}}}
	got := Check(results, []Expected{
		{Section: "practice", Trial: &trial, Numbers: []int{2}, Correct: boolp(true)},
		{Section: "main"},
	})
	fields := []string{}
	for _, m := range got {
		fields = append(fields, m.Field)
	}
	if diff := cmp.Diff([]string{"trials", "section", "numbers", "correct"}, fields); diff != "" {
		t.Fatalf("mismatch fields (-want +got):\n%s", diff)
	}
	if s := got[1].String(); s != "trial #0 section: want practice, got main" {
		t.Fatalf("unexpected message %q", s)
	}
}

func TestLoadFixtureResolvesRelativeDefinition(t *testing.T) {
	dir := t.TempDir()
	src, err := catalog.Source("factorial")
	if err != nil {
		t.Fatalf("Source: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "def.yaml"), src, 0o644); err != nil {
		t.Fatal(err)
	}
	fixture := "definition: def.yaml\nfallback: none\n"
	if err := os.WriteFile(filepath.Join(dir, "f.yaml"), []byte(fixture), 0o644); err != nil {
		t.Fatal(err)
	}

	f := load(t, filepath.Join(dir, "f.yaml"))
	if want := filepath.Join(dir, "def.yaml"); f.Definition != want {
		t.Fatalf("definition %q, want %q", f.Definition, want)
	}
	results, _ := replay(t, f, Options{})
	if len(results) != 12 {
		t.Fatalf("replayed %d trials, want 12", len(results))
	}
	for i, res := range results {
		if res.Responded {
			t.Fatalf("trial #%d has a response under fallback none", i)
		}
	}

	if err := os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("description: x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFixture(filepath.Join(dir, "bad.yaml")); err == nil || !strings.Contains(err.Error(), "definition is required") {
		t.Fatalf("expected a missing definition error, got %v", err)
	}
}
