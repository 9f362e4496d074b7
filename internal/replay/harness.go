package replay

import (
	"context"
	"fmt"
	"sort"

	"github.com/danielpatrickdp/stimsched/internal/eval"
	"github.com/danielpatrickdp/stimsched/internal/experiment"
	"github.com/danielpatrickdp/stimsched/internal/gate"
	"github.com/danielpatrickdp/stimsched/internal/run"
	"github.com/danielpatrickdp/stimsched/internal/state"
)

// DefaultMaxTrials bounds a replay whose section conditions loop.
const DefaultMaxTrials = 10000

// #region types

// Options configures a replay.
type Options struct {
	Store *state.Store // optional; the run is persisted when set
}

// TrialResult is the outcome of replaying one trial through every frame of
// every scene.
type TrialResult struct {
	run.TrialRecord
	Decision    gate.Decision
	Frames      int // frames presented across all scenes
	Rederived   int // frames on which timing was re-derived
	PeakVisible int // most visual objects on screen in one frame
	Skipped     int // objects that found no free compute-group layer
}

// SectionSummary aggregates one section.
type SectionSummary struct {
	Trials  int
	Scored  int
	Correct int
}

// Summary provides aggregate stats from a replay.
type Summary struct {
	RunID       string
	Phase       run.Phase
	Trials      int
	Scored      int
	Correct     int
	Frames      int
	Transitions int
	Sections    map[string]SectionSummary
}

// Accuracy returns Correct/Scored, or 0 when nothing was scored.
func (s Summary) Accuracy() float64 {
	if s.Scored == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Scored)
}

// Mismatch is one expectation the replay did not meet.
type Mismatch struct {
	Index int
	Field string
	Want  string
	Got   string
}

func (m Mismatch) String() string {
	return fmt.Sprintf("trial #%d %s: want %s, got %s", m.Index, m.Field, m.Want, m.Got)
}

// #endregion types

// #region replay

// Replay compiles test with the fixture's device and seeds and presents it
// to completion: every frame of every scene is applied, then the scripted
// response for the trial is submitted. It returns the per-trial results and
// the finished run.
func Replay(ctx context.Context, test *experiment.Test, f *Fixture, opts Options) ([]TrialResult, *run.Run, error) {
	r, err := run.Compile(ctx, test, f.DeviceOrDefault(), run.Options{
		Seeds:     f.Seeds,
		PoolSeeds: f.PoolSeeds,
		Store:     opts.Store,
	})
	if err != nil {
		return nil, nil, err
	}
	limit := f.MaxTrials
	if limit <= 0 {
		limit = DefaultMaxTrials
	}

	var results []TrialResult
	for i := 0; r.Phase() == run.PhasePresenting; i++ {
		if i >= limit {
			return results, r, fmt.Errorf("replay stopped after %d trials", limit)
		}
		if err := ctx.Err(); err != nil {
			return results, r, err
		}
		var res TrialResult
		if err := present(r, &res); err != nil {
			return results, r, err
		}
		resp, err := f.response(i, r)
		if err != nil {
			return results, r, err
		}
		out, err := r.Respond(resp)
		if err != nil {
			return results, r, fmt.Errorf("replay trial #%d: %w", i, err)
		}
		res.TrialRecord = out.Record
		res.Decision = out.Decision
		results = append(results, res)
	}
	return results, r, nil
}

// present runs every frame of every scene of the current trial.
func present(r *run.Run, res *TrialResult) error {
	trial := r.Trial()
	for {
		for frame := 0; ; frame++ {
			s, m, err := r.Frame(frame)
			if err != nil {
				return err
			}
			res.Frames++
			if m.Rederived {
				res.Rederived++
			}
			if m.Visible > res.PeakVisible {
				res.PeakVisible = m.Visible
			}
			if m.Skipped > res.Skipped {
				res.Skipped = m.Skipped
			}
			if frame+1 >= s.SceneEnd[trial] {
				break
			}
		}
		if !r.Advance() {
			return nil
		}
	}
}

// #endregion replay

// #region responses

// response resolves the i-th scripted answer against the current trial.
func (f *Fixture) response(i int, r *run.Run) (eval.Response, error) {
	var sr ScriptedResponse
	switch {
	case i < len(f.Responses):
		sr = f.Responses[i]
	case f.Fallback == "correct":
		ok := true
		sr.Correct = &ok
	case f.Fallback == "incorrect":
		ok := false
		sr.Correct = &ok
	case f.Fallback == "none":
	default:
		return eval.Response{}, fmt.Errorf("replay trial #%d: script has %d responses and no fallback", i, len(f.Responses))
	}

	sec := r.Section()
	spec := sec.ResponseSpec(r.Scene())
	if spec == nil || spec.Type == experiment.ResponseNone {
		return eval.Response{}, nil
	}
	switch {
	case sr.Key != "":
		return eval.Response{Key: sr.Key}, nil
	case len(sr.Values) > 0 && spec.Type == experiment.ResponseKey:
		key, ok := keyFor(spec, sr.Values[0], true)
		if !ok {
			return eval.Response{}, fmt.Errorf("replay trial #%d: no key maps to %v", i, sr.Values[0])
		}
		return eval.Response{Key: key}, nil
	case len(sr.Values) > 0:
		return eval.Response{Values: sr.Values}, nil
	case sr.Correct != nil:
		return derive(sec, r.Trial(), spec, *sr.Correct), nil
	}
	return eval.Response{}, nil
}

// derive builds a right or wrong answer from the trial value.
func derive(sec *run.SectionRun, trial int, spec *experiment.ResponseSpec, correct bool) eval.Response {
	var target experiment.Value
	if sec.Schedule.TrialValues != nil {
		target = sec.Schedule.TrialValues[trial]
	}
	if spec.Type == experiment.ResponseKey {
		key, _ := keyFor(spec, target.X, correct)
		return eval.Response{Key: key}
	}
	vals := make([]float64, spec.Type.Dimension())
	for c := range vals {
		vals[c] = target.Component(c)
	}
	if !correct && len(vals) > 0 {
		vals[0] += sec.Section.Response.Margin + 1
	}
	return eval.Response{Values: vals}
}

// keyFor returns the first key (in name order) whose value equals v, or
// differs from it when match is false.
func keyFor(spec *experiment.ResponseSpec, v float64, match bool) (string, bool) {
	keys := make([]string, 0, len(spec.Keys))
	for k := range spec.Keys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if (spec.Keys[k] == v) == match {
			return k, true
		}
	}
	if len(keys) > 0 {
		return keys[0], false
	}
	return "", false
}

// #endregion responses

// #region summarize

// Summarize computes aggregate stats from replay results.
func Summarize(results []TrialResult, r *run.Run) Summary {
	s := Summary{Sections: map[string]SectionSummary{}}
	if r != nil {
		s.RunID, s.Phase = r.ID, r.Phase()
	}
	for _, res := range results {
		s.Trials++
		s.Frames += res.Frames
		sec := s.Sections[res.Section]
		sec.Trials++
		if res.Result.Scored {
			s.Scored++
			sec.Scored++
			if res.Result.Correct {
				s.Correct++
				sec.Correct++
			}
		}
		s.Sections[res.Section] = sec
		if res.Decision.Action == gate.ActionJump {
			s.Transitions++
		}
	}
	return s
}

// Check compares results with expectations, index by index.
func Check(results []TrialResult, expected []Expected) []Mismatch {
	var out []Mismatch
	add := func(i int, field string, want, got any) {
		out = append(out, Mismatch{Index: i, Field: field, Want: fmt.Sprint(want), Got: fmt.Sprint(got)})
	}
	if len(expected) > len(results) {
		add(len(results), "trials", len(expected), len(results))
	}
	for i, exp := range expected {
		if i >= len(results) {
			break
		}
		res := results[i]
		if exp.Section != "" && exp.Section != res.Section {
			add(i, "section", exp.Section, res.Section)
		}
		if exp.Trial != nil && *exp.Trial != res.Trial {
			add(i, "trial", *exp.Trial, res.Trial)
		}
		if exp.Numbers != nil && fmt.Sprint(exp.Numbers) != fmt.Sprint(res.Numbers) {
			add(i, "numbers", exp.Numbers, res.Numbers)
		}
		if exp.Correct != nil && *exp.Correct != res.Result.Correct {
			add(i, "correct", *exp.Correct, res.Result.Correct)
		}
	}
	return out
}

// #endregion summarize
