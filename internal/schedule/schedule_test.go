package schedule

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/danielpatrickdp/stimsched/internal/experiment"
)

const baseTest = `
name: schedule
pools:
  - name: levels
    values: [0.1, 0.2, 0.3, 0.4]
  - name: offsets
    values: [[-10, 0], [10, 0]]
    jitter: 2
  - name: steps
    values: [1, 2, 3, 4, 5]
properties:
  origin: [0, 0]
sections:
  - name: main
    trials: 8
    variables:
      - name: level
        pool: levels
        target: stim.disk.contrast
        selection: {strategy: in_order, priority: high}
      - name: offset
        pool: offsets
        target: origin
        selection: {strategy: shuffled}
      - name: step
        pool: steps
        target: stim.disk.alpha
        selection: {strategy: adaptive, rule: one, start: 2}
    trial_value: {mode: variable, variable: level}
    response: {dimension: 1, margin: 0.05}
    scenes:
      - name: stim
        duration: {mode: fixed, seconds: 1}
        objects:
          - name: disk
            kind: shape
            properties:
              duration: 1
              contrast: 0.5
              alpha: 1
`

func decode(t *testing.T, src string) *experiment.Test {
	t.Helper()
	test, err := experiment.Decode([]byte(src))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return test
}

func build(t *testing.T, test *experiment.Test, root uint64) *TrialSchedule {
	t.Helper()
	ts, err := Build(test, &test.Sections[0], Options{Root: root})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return ts
}

func TestBuildInOrder(t *testing.T) {
	test := decode(t, baseTest)
	ts := build(t, test, 1)
	if ts.Trials != 8 || len(ts.Bindings) != 3 {
		t.Fatalf("unexpected schedule: %d trials, %d bindings", ts.Trials, len(ts.Bindings))
	}
	if diff := cmp.Diff([]int{0, 1, 2, 3, 0, 1, 2, 3}, ts.Bindings[0].Numbers); diff != "" {
		t.Fatalf("level indices mismatch (-want +got):\n%s", diff)
	}
	for i, v := range ts.TrialValues {
		if v != ts.Bindings[0].Values[i] {
			t.Fatalf("trial value %d = %+v, want %+v", i, v, ts.Bindings[0].Values[i])
		}
	}
	step := ts.Bindings[2]
	if step.Adaptive == nil {
		t.Fatal("expected adaptive controller on step")
	}
	for _, n := range step.Numbers {
		if n != 2 {
			t.Fatalf("adaptive binding should be prefilled with its start index, got %v", step.Numbers)
		}
	}
	if len(ts.Adaptive()) != 1 {
		t.Fatalf("expected one adaptive binding, got %d", len(ts.Adaptive()))
	}
}

func TestBuildDeterministic(t *testing.T) {
	test := decode(t, baseTest)
	a, b := build(t, test, 42), build(t, test, 42)
	for i := range a.Bindings {
		if diff := cmp.Diff(a.Bindings[i].Numbers, b.Bindings[i].Numbers); diff != "" {
			t.Fatalf("binding %d numbers differ:\n%s", i, diff)
		}
		if diff := cmp.Diff(a.Bindings[i].Values, b.Bindings[i].Values); diff != "" {
			t.Fatalf("binding %d values differ:\n%s", i, diff)
		}
	}
}

func TestJitterBoundsAndRebind(t *testing.T) {
	test := decode(t, baseTest)
	ts := build(t, test, 9)
	off := ts.Bindings[1]
	if off.Jitter == nil {
		t.Fatal("expected jitter offsets")
	}
	for trial, v := range off.Values {
		base := off.Pool.Values[off.Numbers[trial]]
		if math.Abs(v.X-base.X) > 2 || math.Abs(v.Y-base.Y) > 2 {
			t.Fatalf("trial %d: jittered %+v too far from %+v", trial, v, base)
		}
		if v.Kind != experiment.KindVector2 {
			t.Fatalf("jitter changed the value kind: %+v", v)
		}
	}

	before := off.Values[3]
	ts.Rebind(off, 3, 1-off.Numbers[3])
	ts.Rebind(off, 3, 1-off.Numbers[3])
	if off.Values[3] != before {
		t.Fatalf("rebinding back did not restore the jittered value: %+v vs %+v", off.Values[3], before)
	}
}

func TestRebindRefreshesTrialValue(t *testing.T) {
	test := decode(t, baseTest)
	ts := build(t, test, 1)
	ts.Rebind(ts.Bindings[0], 0, 3)
	if ts.TrialValues[0].X != 0.4 {
		t.Fatalf("expected trial value 0.4 after rebind, got %+v", ts.TrialValues[0])
	}
}

func TestBuildTrialBounds(t *testing.T) {
	test := decode(t, baseTest)
	sec := &test.Sections[0]

	sec.Trials = 0
	if _, err := Build(test, sec, Options{Root: 1}); !errors.Is(err, experiment.ErrDefinition) {
		t.Fatalf("expected definition error for zero trials, got %v", err)
	}

	sec.Trials = 10000
	_, err := Build(test, sec, Options{Root: 1})
	if !errors.Is(err, experiment.ErrCapacity) || !errors.Is(err, experiment.ErrDefinition) {
		t.Fatalf("expected capacity error, got %v", err)
	}
	var ce *experiment.CapacityError
	if !errors.As(err, &ce) || ce.Actual != 10000 || ce.Max != MaxTrials-1 {
		t.Fatalf("unexpected capacity error %+v", ce)
	}
}

func TestBuildRejectsSharedTarget(t *testing.T) {
	test := decode(t, baseTest)
	sec := &test.Sections[0]
	sec.Variables[2].Target = sec.Variables[0].Target
	_, err := Build(test, sec, Options{Root: 1})
	if !errors.Is(err, experiment.ErrDefinition) {
		t.Fatalf("expected definition error, got %v", err)
	}
	if !strings.Contains(err.Error(), `already fed by variable "level"`) {
		t.Fatalf("error should name the first variable: %v", err)
	}
}

func TestTrialValueModes(t *testing.T) {
	lookup := strings.Replace(baseTest, "{mode: variable, variable: level}", "{mode: lookup, variable: level, lookup: [1, 1, 0, 0]}", 1)
	ts := build(t, decode(t, lookup), 1)
	want := []float64{1, 1, 0, 0, 1, 1, 0, 0}
	for i, v := range ts.TrialValues {
		if v.X != want[i] {
			t.Fatalf("lookup trial value %d = %v, want %v", i, v.X, want[i])
		}
	}

	reordered := strings.Replace(baseTest, "{mode: variable, variable: level}", "{mode: reordered, variable: level, order: [3, 2, 1, 0]}", 1)
	ts = build(t, decode(t, reordered), 1)
	if ts.TrialValues[0].X != 0.4 || ts.TrialValues[3].X != 0.1 {
		t.Fatalf("unexpected reordered trial values %+v", ts.TrialValues[:4])
	}
}

func TestTrialValueDimensionMismatch(t *testing.T) {
	src := strings.Replace(baseTest, "{mode: variable, variable: level}", "{mode: variable, variable: offset}", 1)
	test := decode(t, src)
	_, err := Build(test, &test.Sections[0], Options{Root: 1})
	if err == nil || !strings.Contains(err.Error(), "response dimension is 1") {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
}

func TestScoringNeedsTrialValue(t *testing.T) {
	src := strings.Replace(baseTest, "    trial_value: {mode: variable, variable: level}\n", "", 1)
	test := decode(t, src)
	if _, err := Build(test, &test.Sections[0], Options{Root: 1}); err == nil {
		t.Fatal("expected error when scoring without a trial value")
	}
}

const blockTest = `
name: blocked
pools:
  - name: words
    values: [1, 2, 3, 4]
    blocks:
      kind: shared
      count: 2
      length: 5
      prob_change_block: 0
      prob_change_list: 0.3
      shared: [[0, 1], [2, 3]]
  - name: sides
    values: [-1, 1]
sections:
  - name: main
    variables:
      - {name: word, pool: words, target: stim.t.font_size, group: -1}
      - {name: side, pool: sides, target: stim.t.x, selection: {strategy: shuffled}}
    scenes:
      - name: stim
        duration: {mode: dynamic}
        objects:
          - name: t
            kind: text
            properties: {duration: 1, text: {text: 0}, font_size: 1, x: 0}
`

func TestBlockVariableSetsTrialCount(t *testing.T) {
	test, err := experiment.Decode([]byte(blockTest))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	ts := build(t, test, 5)
	if ts.Trials != 10 || len(ts.Blocks) != 10 {
		t.Fatalf("expected 10 trials with block series, got %d / %d", ts.Trials, len(ts.Blocks))
	}
	if !ts.Bindings[0].Block {
		t.Fatal("expected word to be the block binding")
	}
	for _, b := range ts.Blocks {
		if b != ts.Blocks[0] {
			t.Fatalf("block index changed with zero probability: %v", ts.Blocks)
		}
	}

	test.Sections[0].Trials = 12
	if _, err := Build(test, &test.Sections[0], Options{Root: 5}); err == nil || !strings.Contains(err.Error(), "block variable") {
		t.Fatalf("expected trial count conflict, got %v", err)
	}
}

func TestBlockVariableDivisibility(t *testing.T) {
	src := strings.Replace(blockTest, "values: [-1, 1]", "values: [-1, 0, 1]", 1)
	test, err := experiment.Decode([]byte(src))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	_, err = Build(test, &test.Sections[0], Options{Root: 5})
	if err == nil {
		t.Fatal("expected divisibility error")
	}
	for _, want := range []string{`"side"`, `pool "sides"`, `block variable "word"`} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}
