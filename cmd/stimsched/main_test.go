package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/danielpatrickdp/stimsched/internal/codec"
	"github.com/danielpatrickdp/stimsched/internal/format"
	"github.com/danielpatrickdp/stimsched/internal/state"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errb bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errb)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestEnvOr(t *testing.T) {
	t.Setenv("STIMSCHED_TEST_KEY", "set")
	if got := envOr("STIMSCHED_TEST_KEY", "fallback"); got != "set" {
		t.Fatalf("envOr = %q, want set", got)
	}
	if got := envOr("STIMSCHED_TEST_UNSET", "fallback"); got != "fallback" {
		t.Fatalf("envOr = %q, want fallback", got)
	}
}

func TestParseSeeds(t *testing.T) {
	seeds, err := parseSeeds(map[string]string{"main": "42", "practice": "0xff"})
	if err != nil {
		t.Fatalf("parseSeeds: %v", err)
	}
	if diff := cmp.Diff(map[string]uint64{"main": 42, "practice": 255}, seeds); diff != "" {
		t.Fatalf("seeds (-want +got):\n%s", diff)
	}

	if _, err := parseSeeds(map[string]string{"main": "x"}); err == nil || !strings.Contains(err.Error(), `section "main"`) {
		t.Fatalf("expected a seed error naming the section, got %v", err)
	}

	seeds, err = parseSeeds(nil)
	if err != nil {
		t.Fatalf("parseSeeds: %v", err)
	}
	if seeds != nil {
		t.Fatalf("expected nil seeds, got %v", seeds)
	}
}

func TestExamplesCommand(t *testing.T) {
	out, err := execute(t, "examples")
	if err != nil {
		t.Fatalf("examples: %v", err)
	}
	if diff := cmp.Diff("blocked\nfactorial\nstaircase\n", out); diff != "" {
		t.Fatalf("catalog listing (-want +got):\n%s", diff)
	}

	out, err = execute(t, "examples", "staircase")
	if err != nil {
		t.Fatalf("examples staircase: %v", err)
	}
	if !strings.Contains(out, "name: contrast-staircase") {
		t.Fatalf("staircase source not printed:\n%s", out)
	}

	if _, err := execute(t, "examples", "nope"); err == nil {
		t.Fatal("expected an error for an unknown catalog entry")
	}
}

func TestCompileCommand(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "compile", "staircase", "blocked",
		"--format", "csv", "--seed", "main=11", "--out", dir, "--db", filepath.Join(dir, "unused.db"))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	for _, want := range []string{
		"section,root,trials,scene,objects,min_frames,max_frames\n",
		fmt.Sprintf("main,%s,40,fixation,", format.Seed(11)),
		"practice," + format.Seed(1) + ",4,stim,",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("layout is missing %q:\n%s", want, out)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "contrast-staircase", "main.stim.stim"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	exp, err := codec.DecodeScene(data)
	if err != nil {
		t.Fatalf("DecodeScene: %v", err)
	}
	if exp.Section != "main" || exp.Trials != 40 {
		t.Fatalf("decoded scene %s with %d trials, want main with 40", exp.Section, exp.Trials)
	}

	cases := []struct {
		name string
		args []string
		want string
	}{
		{"bad seed", []string{"compile", "staircase", "--seed", "main=oops"}, "seed for section"},
		{"missing file", []string{"compile", "missing-definition.yaml"}, "missing-definition.yaml"},
		{"bad device", []string{"compile", "staircase", "--frame-rate", "0"}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := execute(t, tc.args...)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected an error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestReplayInspectExport(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "runs.db")
	t.Setenv("STIMSCHED_DB", db)

	out, err := execute(t, "replay", "../../internal/replay/testdata/staircase.yaml",
		"--persist", "--format", "csv", "--csv", filepath.Join(dir, "results"))
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	want := "section,trials,scored,correct,accuracy\nmain,40,40,40,100.0%\npractice,3,3,3,100.0%\n"
	if diff := cmp.Diff(want, out); diff != "" {
		t.Fatalf("summary (-want +got):\n%s", diff)
	}

	csv, err := os.ReadFile(filepath.Join(dir, "results", "practice.csv"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.HasPrefix(string(csv), "trial,") {
		t.Fatalf("unexpected trial table header:\n%s", csv)
	}

	store, err := state.NewStore(db)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	runs, err := store.ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("persisted %d runs, want 1", len(runs))
	}
	id := runs[0].RunID

	out, err = execute(t, "inspect", "--format", "csv")
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if row := id + ",contrast-staircase,ended,60,43,"; !strings.Contains(out, row) {
		t.Fatalf("run list is missing %q:\n%s", row, out)
	}

	out, err = execute(t, "inspect", "--run", id, "--json")
	if err != nil {
		t.Fatalf("inspect --run: %v", err)
	}
	var detail struct {
		Status string            `json:"status"`
		Roots  map[string]uint64 `json:"roots"`
		Trials []trialRow        `json:"trials"`
	}
	if err := json.Unmarshal([]byte(out), &detail); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if detail.Status != "ended" || detail.Roots["main"] != 42 || len(detail.Trials) != 43 {
		t.Fatalf("unexpected detail status=%s main root=%d trials=%d",
			detail.Status, detail.Roots["main"], len(detail.Trials))
	}

	fixture := filepath.Join(dir, "exported.yaml")
	if _, err := execute(t, "export", "--run", id, "--definition", "staircase", "-o", fixture); err != nil {
		t.Fatalf("export: %v", err)
	}
	if _, err := execute(t, "replay", fixture, "--format", "csv"); err != nil {
		t.Fatalf("exported run did not replay cleanly: %v", err)
	}
}

func TestReplayReportsMismatches(t *testing.T) {
	dir := t.TempDir()
	fixture := filepath.Join(dir, "wrong.yaml")
	err := os.WriteFile(fixture, []byte(`
definition: staircase
seeds: {main: 42}
max_trials: 100
fallback: correct
expected:
  - {section: main}
`), 0o644)
	if err != nil {
		t.Fatal(err)
	}

	cmd := newRootCmd()
	var out, errb bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errb)
	cmd.SetArgs([]string{"replay", fixture, "--db", filepath.Join(dir, "runs.db")})
	err = cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "1 expectation(s) failed") {
		t.Fatalf("expected a failed expectation error, got %v", err)
	}
	if !strings.Contains(errb.String(), "trial #0 section: want main, got practice") {
		t.Fatalf("mismatch not reported:\n%s", errb.String())
	}
}
