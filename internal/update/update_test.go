package update

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/danielpatrickdp/stimsched/internal/experiment"
	"github.com/danielpatrickdp/stimsched/internal/scene"
	"github.com/danielpatrickdp/stimsched/internal/schedule"
)

const frameTest = `
name: frames
pools:
  - name: durations
    values: [1, 2.5, 3]
sections:
  - name: main
    trials: 3
    variables:
      - name: dur
        pool: durations
        target: stim.tone.duration
        selection: {strategy: adaptive, rule: one, start: 0}
    scenes:
      - name: stim
        duration: {mode: dynamic}
        objects:
          - name: patch
            kind: shape
            properties:
              start: 0.25
              duration: 1
              width: 100
              height: 50
              color: {value: 0, func: {kind: linear, params: [0, 1]}}
          - name: orbit
            kind: shape
            polar: true
            properties:
              duration: 2
              x: 100
              y: {value: 0, func: {kind: linear, params: [0, 90]}}
              width: 20
              height: 20
          - name: tone
            kind: tone
            properties: {duration: 1, frequency: 440}
`

const (
	patch experiment.ObjectID = 1
	orbit experiment.ObjectID = 2
	tone  experiment.ObjectID = 3
)

func compile(t *testing.T, src string) (*scene.Schedule, *schedule.TrialSchedule) {
	t.Helper()
	test, err := experiment.Decode([]byte(src))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	sec := &test.Sections[0]
	ts, err := schedule.Build(test, sec, schedule.Options{Root: 3})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	s, err := scene.Compile(scene.Context{Test: test, Schedule: ts, Device: experiment.DefaultDevice()}, &sec.Scenes[0])
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return s, ts
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-3 }

func TestCurveElapsedFromObjectStart(t *testing.T) {
	s, _ := compile(t, frameTest)
	u := New()

	u.Apply(s, 0, 10)
	row := s.Row(0, patch)
	if row[scene.SlotColor] != 0 {
		t.Fatalf("color before start = %v, want 0", row[scene.SlotColor])
	}
	if row[scene.SlotVisible] != 0 {
		t.Fatal("patch should not be visible before its start frame")
	}

	m := u.Apply(s, 0, 45)
	for i := 0; i < 3; i++ {
		if !near(float64(row[scene.SlotColor+i]), 0.5) {
			t.Fatalf("color slot %d = %v at 0.5s, want 0.5", i, row[scene.SlotColor+i])
		}
	}
	if m.Curves != 1 {
		t.Fatalf("expected 1 curve evaluated, got %d", m.Curves)
	}
}

func TestPolarFollowsAngleCurve(t *testing.T) {
	s, _ := compile(t, frameTest)
	m := New().Apply(s, 0, 60)
	row := s.Row(0, orbit)
	if !near(float64(row[scene.SlotX]), 0) || !near(float64(row[scene.SlotY]), 100) {
		t.Fatalf("orbit at 1s = (%v, %v), want (0, 100)", row[scene.SlotX], row[scene.SlotY])
	}
	if m.Polar != 1 {
		t.Fatalf("expected one polar update, got %d", m.Polar)
	}
}

func TestBoundsAndVisibility(t *testing.T) {
	s, _ := compile(t, frameTest)
	m := New().Apply(s, 0, 60)
	if m.Visible != 2 {
		t.Fatalf("expected 2 visible objects, got %d", m.Visible)
	}
	row := s.Row(0, patch)
	got := []float32{row[scene.SlotBoundLeft], row[scene.SlotBoundTop], row[scene.SlotBoundRight], row[scene.SlotBoundBottom]}
	if diff := cmp.Diff([]float32{910, 515, 1010, 565}, got); diff != "" {
		t.Fatalf("patch bounds mismatch (-want +got):\n%s", diff)
	}
	orow := s.Row(0, orbit)
	if !near(float64(orow[scene.SlotBoundTop]), 430) || !near(float64(orow[scene.SlotBoundBottom]), 450) {
		t.Fatalf("orbit bounds top/bottom = %v/%v, want 430/450", orow[scene.SlotBoundTop], orow[scene.SlotBoundBottom])
	}
	if s.Row(0, tone)[scene.SlotVisible] != 0 {
		t.Fatal("tones are never visible")
	}

	New().Apply(s, 0, 80)
	if row[scene.SlotVisible] != 0 || row[scene.SlotBoundRight] != 0 {
		t.Fatal("patch should be hidden after its end frame")
	}
}

func TestRect(t *testing.T) {
	dev := experiment.DefaultDevice()
	row := make([]float32, scene.RowSize)
	row[scene.SlotWidth], row[scene.SlotHeight] = 100, 50

	row[scene.SlotX] = 1000
	b := Rect(row, dev)
	if b.Left != 1910 || b.Right != 1920 {
		t.Fatalf("expected right edge clipped to 1920, got %+v", b)
	}

	row[scene.SlotX] = 0
	row[scene.SlotRotation] = 90
	row[scene.SlotBorderWidth] = 5
	b = Rect(row, dev)
	if !near(b.Left, 960-30) || !near(b.Right, 960+30) || !near(b.Top, 540-55) || !near(b.Bottom, 540+55) {
		t.Fatalf("rotated bounds %+v", b)
	}

	row[scene.SlotX] = -5000
	if b := Rect(row, dev); !b.Empty() {
		t.Fatalf("off-screen object should have empty bounds, got %+v", b)
	}
}

func TestAdaptiveSubstitutionRederives(t *testing.T) {
	s, ts := compile(t, frameTest)
	b := ts.Adaptive()[0]
	u := New()

	if s.SceneEnd[1] != 120 {
		t.Fatalf("initial scene end %d, want 120", s.SceneEnd[1])
	}
	idx := b.Adaptive.Observe(1, false)
	ts.Rebind(b, 1, idx)

	m := u.Apply(s, 1, 0)
	if !m.Rederived || m.Substituted != 1 {
		t.Fatalf("expected a re-derive after substitution, got %+v", m)
	}
	if got := s.Row(1, tone)[scene.SlotDuration]; got != 150 {
		t.Fatalf("tone duration %v frames, want 150", got)
	}
	if s.SceneEnd[1] != 150 {
		t.Fatalf("scene end %d, want 150", s.SceneEnd[1])
	}
	cps := s.Checkpoints[1]
	if last := cps[len(cps)-1]; last.Action != scene.EndScene || last.Frame != 150 {
		t.Fatalf("terminal checkpoint %+v", last)
	}
	if end := s.Sounds[1][0].End; end != s.Device.Samples(150) {
		t.Fatalf("tone sample end %d, want %d", end, s.Device.Samples(150))
	}
	if s.SceneEnd[0] != 120 {
		t.Fatal("other trials must be untouched")
	}

	if m := u.Apply(s, 1, 0); m.Rederived {
		t.Fatal("unchanged values must not re-derive")
	}
}

func TestApplyIdempotent(t *testing.T) {
	s, ts := compile(t, frameTest)
	b := ts.Adaptive()[0]
	ts.Rebind(b, 2, 2)
	u := New()

	u.Apply(s, 2, 70)
	rows := slices.Clone(s.Rows)
	bg := slices.Clone(s.Background)
	groups := s.Groups
	cps := slices.Clone(s.Checkpoints[2])
	sounds := slices.Clone(s.Sounds[2])

	u.Apply(s, 2, 70)
	if diff := cmp.Diff(rows, s.Rows); diff != "" {
		t.Fatalf("rows changed on repeat:\n%s", diff)
	}
	if diff := cmp.Diff(bg, s.Background); diff != "" {
		t.Fatalf("background changed on repeat:\n%s", diff)
	}
	if groups != s.Groups {
		t.Fatal("compute groups changed on repeat")
	}
	if diff := cmp.Diff(cps, s.Checkpoints[2]); diff != "" {
		t.Fatalf("checkpoints changed on repeat:\n%s", diff)
	}
	if diff := cmp.Diff(sounds, s.Sounds[2]); diff != "" {
		t.Fatalf("sounds changed on repeat:\n%s", diff)
	}
}

func TestComputeGroupsFirstFreeLayer(t *testing.T) {
	var objs strings.Builder
	for i := 0; i < scene.GridLayers+1; i++ {
		fmt.Fprintf(&objs, "          - {name: s%d, kind: shape, properties: {duration: 1, x: -700, y: 300, width: 20, height: 20}}\n", i)
	}
	src := `
name: crowd
sections:
  - name: main
    trials: 1
    scenes:
      - name: stim
        duration: {mode: dynamic}
        objects:
` + objs.String()
	s, _ := compile(t, src)
	m := New().Apply(s, 0, 0)

	if m.Grouped != scene.GridLayers || m.Skipped != 1 {
		t.Fatalf("expected %d placements and 1 skip, got %+v", scene.GridLayers, m)
	}
	want := [scene.GridLayers]int32{1, 2, 3, 4, 5, 6, 7, 8}
	if s.Groups[0] != want {
		t.Fatalf("cell 0 layers = %v, want %v", s.Groups[0], want)
	}
	for c := 1; c < scene.GridCells; c++ {
		if s.Groups[c] != ([scene.GridLayers]int32{}) {
			t.Fatalf("cell %d should be empty, got %v", c, s.Groups[c])
		}
	}

	u := &Updater{}
	if m := u.Apply(s, 0, 0); m.Grouped != 0 {
		t.Fatal("groups pass should be skipped when disabled")
	}
}

func TestApplyDoesNotAllocate(t *testing.T) {
	s, ts := compile(t, frameTest)
	b := ts.Adaptive()[0]
	u := New()
	frame := 0
	allocs := testing.AllocsPerRun(100, func() {
		ts.Rebind(b, 1, frame%3)
		u.Apply(s, 1, frame)
		frame++
	})
	if allocs != 0 {
		t.Fatalf("Apply allocated %.1f times per frame", allocs)
	}
}
