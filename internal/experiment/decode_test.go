package experiment

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const minimalTest = `
name: minimal
media:
  - {name: face, kind: image}
pools:
  - name: contrasts
    values: [0.1, 0.2, 0.4, 0.8]
  - name: colors
    values: [[1, 0, 0], [0, 1, 0]]
properties:
  size: {value: 2, unit: cm}
sections:
  - name: main
    trials: 8
    variables:
      - name: contrast
        pool: contrasts
        target: stim.disk.contrast
        selection: {strategy: in_order, priority: high}
      - name: color
        pool: colors
        target: stim.disk.color
        selection: {strategy: shuffled}
    scenes:
      - name: stim
        duration: {mode: fixed, seconds: 0.5}
        objects:
          - name: disk
            kind: shape
            shape: ellipse
            properties:
              duration: 0.5
              contrast: 0.5
              color: [1, 1, 1]
              width: {ref: size}
              height: {ref: size}
              x: {value: 0, func: {kind: sine, params: [0, 100, 1, 0]}}
          - name: photo
            kind: image
            properties:
              duration: 0.5
              media: {media: face}
`

func TestDecodeMinimal(t *testing.T) {
	test, err := Decode([]byte(minimalTest))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if test.Name != "minimal" {
		t.Fatalf("expected name minimal, got %q", test.Name)
	}
	if len(test.Pools) != 2 || test.Pools[1].Dimension != 3 {
		t.Fatalf("unexpected pools: %+v", test.Pools)
	}
	sec := test.Sections[0]
	if len(sec.Variables) != 2 {
		t.Fatalf("expected 2 variables, got %d", len(sec.Variables))
	}
	if sec.Variables[1].Selection.Strategy != Shuffled {
		t.Fatalf("expected shuffled, got %v", sec.Variables[1].Selection.Strategy)
	}
	if sec.Alternate != -1 {
		t.Fatalf("expected no alternate variable, got %d", sec.Alternate)
	}

	disk := sec.Scenes[0].Objects[0]
	w, _ := disk.Prop(RoleWidth)
	h, _ := disk.Prop(RoleHeight)
	if w != h {
		t.Fatalf("width and height should share the referenced property, got %d and %d", w, h)
	}
	if test.Property(w).Unit != UnitCentimeter {
		t.Fatalf("expected cm unit, got %v", test.Property(w).Unit)
	}

	target := test.Property(sec.Variables[0].Target)
	if target.Name != "stim.disk.contrast" {
		t.Fatalf("variable bound to %q", target.Name)
	}

	x, _ := disk.Prop(RoleX)
	fn := test.Property(x).Func
	if fn == nil || fn.Kind != FuncSine || len(fn.Params) != 4 {
		t.Fatalf("expected a 4-parameter sine on x, got %+v", fn)
	}
	if got := test.Property(fn.Params[1]).Value.X; got != 100 {
		t.Fatalf("expected amplitude 100, got %v", got)
	}

	photo := sec.Scenes[0].Objects[1]
	m, _ := photo.Prop(RoleMedia)
	if diff := cmp.Diff(Media(0), test.Property(m).Value); diff != "" {
		t.Fatalf("media value mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeRejects(t *testing.T) {
	cases := []struct {
		name    string
		replace [2]string
		want    string
	}{
		{"unknown strategy", [2]string{"strategy: shuffled", "strategy: sometimes"}, "unknown strategy"},
		{"unknown role", [2]string{"contrast: 0.5", "glow: 0.5"}, "unknown property role"},
		{"unknown pool", [2]string{"pool: colors", "pool: hues"}, "unknown pool"},
		{"unknown target", [2]string{"target: stim.disk.color", "target: stim.disk.tint"}, "target property"},
		{"dimension mismatch", [2]string{"target: stim.disk.color", "target: stim.disk.contrast"}, "has dimension 3"},
		{"role dimension", [2]string{"color: [1, 1, 1]", "color: 1"}, "needs 3 components"},
		{"unknown media", [2]string{"{media: face}", "{media: house}"}, "unknown media"},
		{"bad arity", [2]string{"params: [0, 100, 1, 0]", "params: [0, 100]"}, "takes 4 parameters"},
		{"zero duration", [2]string{"seconds: 0.5", "seconds: 0"}, "fixed duration must be positive"},
		{"unknown field", [2]string{"trials: 8", "trails: 8"}, "trails"},
		{"duplicate target", [2]string{"pool: colors\n        target: stim.disk.color", "pool: contrasts\n        target: stim.disk.contrast"}, `already fed by variable "contrast"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src := strings.Replace(minimalTest, tc.replace[0], tc.replace[1], 1)
			_, err := Decode([]byte(src))
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestDecodeRejectsTimeDependentSound(t *testing.T) {
	src := `
name: sweep
sections:
  - name: main
    trials: 1
    scenes:
      - name: stim
        duration: {mode: fixed, seconds: 1}
        objects:
          - name: tone
            kind: tone
            properties:
              duration: 1
              frequency: {value: 440, func: {kind: linear, params: [440, 100]}}
`
	_, err := Decode([]byte(src))
	if !errors.Is(err, ErrDefinition) {
		t.Fatalf("expected ErrDefinition, got %v", err)
	}
	if !strings.Contains(err.Error(), "role frequency cannot be time-dependent") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestDecodeEnumErrorIsDefinition(t *testing.T) {
	src := strings.Replace(minimalTest, "kind: shape", "kind: hologram", 1)
	_, err := Decode([]byte(src))
	if !errors.Is(err, ErrDefinition) {
		t.Fatalf("expected ErrDefinition, got %v", err)
	}
}

func TestDecodeAlternateAndTrialValue(t *testing.T) {
	src := strings.Replace(minimalTest, "    trials: 8\n", `    trials: 8
    alternate: color
    trial_value: {mode: lookup, variable: contrast, lookup: [0, 0, 1, 1]}
    response: {dimension: 1, margin: 0.1}
    conditions:
      - {metric: correct_ratio, op: ">=", threshold: 0.9, next: end}
`, 1)
	test, err := Decode([]byte(src))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	sec := test.Sections[0]
	if sec.Alternate != 1 {
		t.Fatalf("expected alternate index 1, got %d", sec.Alternate)
	}
	if sec.TrialValue.Mode != TrialValueLookup || len(sec.TrialValue.Lookup) != 4 {
		t.Fatalf("unexpected trial value %+v", sec.TrialValue)
	}
	want := []Condition{{Metric: MetricCorrectRatio, Op: OpGreaterEqual, Threshold: 0.9, Next: EndTest}}
	if diff := cmp.Diff(want, sec.Conditions); diff != "" {
		t.Fatalf("conditions mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeBlocks(t *testing.T) {
	src := `
name: blocked
pools:
  - name: words
    values: [1, 2, 3, 4]
    seed: 42
    blocks:
      kind: per_block
      count: 2
      length: 5
      prob_change_block: 0
      prob_change_list: 0.5
      blocks:
        - {name: easy, lists: [[0, 1]]}
        - {name: hard, lists: [[2], [3]]}
sections:
  - name: main
    variables:
      - {name: word, pool: words, target: stim.t.font_size, group: -1}
    scenes:
      - name: stim
        duration: {mode: dynamic}
        objects:
          - name: t
            kind: text
            properties: {duration: 1, text: {text: 0}, font_size: 1}
`
	test, err := Decode([]byte(src))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	bs := test.Pools[0].Blocks
	if bs == nil || bs.Identities() != 2 || bs.Trials() != 10 {
		t.Fatalf("unexpected block structure %+v", bs)
	}
	if test.Sections[0].BlockVariable() != 0 {
		t.Fatal("expected variable 0 to be block-controlled")
	}

	bad := strings.Replace(src, "[[2], [3]]", "[[2], [9]]", 1)
	if _, err := Decode([]byte(bad)); err == nil || !strings.Contains(err.Error(), "references value 9") {
		t.Fatalf("expected out-of-range sub-list error, got %v", err)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.yaml")
	if err := os.WriteFile(path, []byte(minimalTest), 0o644); err != nil {
		t.Fatal(err)
	}
	test, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(test.Sections) != 1 {
		t.Fatalf("expected 1 section, got %d", len(test.Sections))
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
