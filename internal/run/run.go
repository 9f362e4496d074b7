package run

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/stimsched/internal/eval"
	"github.com/danielpatrickdp/stimsched/internal/experiment"
	"github.com/danielpatrickdp/stimsched/internal/gate"
	"github.com/danielpatrickdp/stimsched/internal/logging"
	"github.com/danielpatrickdp/stimsched/internal/scene"
	"github.com/danielpatrickdp/stimsched/internal/schedule"
	"github.com/danielpatrickdp/stimsched/internal/seed"
	"github.com/danielpatrickdp/stimsched/internal/state"
	"github.com/danielpatrickdp/stimsched/internal/update"
)

// #region run-struct
// Run is the state of one presentation of a test: every section compiled up
// front, the current section/trial/scene cursor and the results so far. It is
// an explicit value owned by the presentation loop and not safe for
// concurrent use.
type Run struct {
	ID     string
	Test   *experiment.Test
	Device experiment.Device
	Roots  map[string]uint64 // section name → root seed used

	sections  []*SectionRun
	poolRoots map[experiment.PoolID]uint64
	store     *state.Store
	updater   *update.Updater
	log       *slog.Logger

	phase   Phase
	cur     int
	trial   int
	scene   int
	records []TrialRecord
}
// #endregion run-struct

// #region compile
// Compile builds the trial schedule and scene schedules of every section of
// test. Unpinned section roots are drawn fresh and recorded in Run.Roots. The
// first error aborts the compile and is returned verbatim.
func Compile(ctx context.Context, test *experiment.Test, dev experiment.Device, opts Options) (*Run, error) {
	if err := dev.Validate(); err != nil {
		return nil, fmt.Errorf("compile run: %w", err)
	}
	if len(test.Sections) == 0 {
		return nil, experiment.Definitionf("test", "at least one section is required")
	}
	r := &Run{
		ID:        uuid.New().String(),
		Test:      test,
		Device:    dev,
		Roots:     make(map[string]uint64, len(test.Sections)),
		sections:  make([]*SectionRun, len(test.Sections)),
		poolRoots: map[experiment.PoolID]uint64{},
		store:     opts.Store,
		updater:   update.New(),
		log:       logging.New("run"),
		phase:     PhasePresenting,
	}
	for name, root := range opts.PoolSeeds {
		id := -1
		for i := range test.Pools {
			if test.Pools[i].Name == name {
				id = i
			}
		}
		if id < 0 {
			return nil, fmt.Errorf("compile run: pool seed for unknown pool %q", name)
		}
		r.poolRoots[experiment.PoolID(id)] = root
	}

	for i := range test.Sections {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("compile run: %w", err)
		}
		sec := &test.Sections[i]
		root, ok := opts.Seeds[sec.Name]
		switch {
		case ok:
		case sec.Seed != 0:
			root = sec.Seed
		default:
			root = seed.NewRoot()
		}
		r.Roots[sec.Name] = root
		sr, err := r.compileSection(i, root)
		if err != nil {
			return nil, err
		}
		r.sections[i] = sr
	}

	if err := r.persist(); err != nil {
		return nil, err
	}
	r.log.Info("run compiled", "run_id", r.ID, "test", test.Name, "sections", len(r.sections))
	r.event(logging.EventCompile, "", -1, map[string]any{"test": test.Name, "roots": r.Roots})
	r.enter(0)
	return r, nil
}

func (r *Run) compileSection(i int, root uint64) (*SectionRun, error) {
	sec := &r.Test.Sections[i]
	ts, err := schedule.Build(r.Test, sec, schedule.Options{Root: root, PoolRoots: r.poolRoots})
	if err != nil {
		return nil, err
	}
	sr := &SectionRun{
		Index:    i,
		Section:  sec,
		Root:     root,
		Schedule: ts,
		Scenes:   make([]*scene.Schedule, len(sec.Scenes)),
		Gate:     gate.NewGate(r.Test, i, ts.Trials),
		Scorer:   eval.NewScorer(sec.Response),
	}
	for j := range sec.Scenes {
		s, err := scene.Compile(scene.Context{Test: r.Test, Schedule: ts, Device: r.Device}, &sec.Scenes[j])
		if err != nil {
			return nil, err
		}
		sr.Scenes[j] = s
	}
	r.log.Debug("section compiled", "section", sec.Name, "trials", ts.Trials, "scenes", len(sr.Scenes))
	return sr, nil
}

// persist writes the run row and every compiled scene buffer.
func (r *Run) persist() error {
	if r.store == nil {
		return nil
	}
	err := r.store.CreateRun(state.RunRecord{
		RunID:  r.ID,
		Test:   r.Test.Name,
		Device: r.Device,
		Roots:  r.Roots,
		Status: string(r.phase),
	})
	if err != nil {
		return fmt.Errorf("persist run: %w", err)
	}
	for _, sr := range r.sections {
		for _, s := range sr.Scenes {
			err := r.store.SaveScene(state.SceneBuffer{
				RunID:      r.ID,
				Section:    sr.Section.Name,
				Scene:      s.Scene.Name,
				Trials:     s.Trials,
				Objects:    s.Objects,
				Rows:       s.Rows,
				Background: s.Background,
				SceneEnd:   s.SceneEnd,
			})
			if err != nil {
				return fmt.Errorf("persist run: %w", err)
			}
		}
	}
	return nil
}
// #endregion compile

// #region cursor
// Phase returns the lifecycle state of the run.
func (r *Run) Phase() Phase { return r.phase }

// Section returns the section currently presented.
// It is nil once the run has been aborted.
func (r *Run) Section() *SectionRun {
	if r.sections == nil {
		return nil
	}
	return r.sections[r.cur]
}

// Sections returns every compiled section in definition order.
func (r *Run) Sections() []*SectionRun { return r.sections }

// Trial returns the index of the trial currently presented.
func (r *Run) Trial() int { return r.trial }

// Scene returns the index of the scene currently presented.
func (r *Run) Scene() int { return r.scene }

// Records returns every trial recorded so far in presentation order.
func (r *Run) Records() []TrialRecord { return r.records }

// Advance moves to the next scene of the current trial. It returns false,
// leaving the cursor unchanged, on the trial's last scene.
func (r *Run) Advance() bool {
	if r.phase != PhasePresenting || r.scene+1 >= len(r.sections[r.cur].Scenes) {
		return false
	}
	r.scene++
	return true
}

// enter starts section i at trial 0. A section presented before is recompiled
// from its recorded root so its staircases start over.
func (r *Run) enter(i int) {
	sr := r.sections[i]
	if sr.entered {
		fresh, err := r.compileSection(i, sr.Root)
		experiment.Assertf(err == nil, "recompiling section %q: %v", sr.Section.Name, err)
		fresh.Records = sr.Records
		sr = fresh
		r.sections[i] = sr
	}
	sr.entered = true
	sr.Progress = gate.Progress{Block: -1}
	r.cur, r.trial, r.scene = i, 0, 0
	r.step(false)
}

// step positions every adaptive binding of the current section on the index
// for r.trial, given the correctness of the previous trial.
func (r *Run) step(prevCorrect bool) {
	ts := r.sections[r.cur].Schedule
	for _, b := range ts.Adaptive() {
		ts.Rebind(b, r.trial, b.Adaptive.Observe(r.trial, prevCorrect))
	}
}
// #endregion cursor

// #region frame
// Frame brings the current scene to frame and returns it for rendering.
func (r *Run) Frame(frame int) (*scene.Schedule, update.Metrics, error) {
	if r.phase != PhasePresenting {
		return nil, update.Metrics{}, ErrNotPresenting
	}
	s := r.sections[r.cur].Scenes[r.scene]
	return s, r.updater.Apply(s, r.trial, frame), nil
}
// #endregion frame

// #region respond
// Respond completes the current trial with resp: the response is interpreted
// and scored, the trial is recorded, the section conditions are evaluated and
// the cursor moves to the next trial, another section or the end of the test.
// An empty response records the trial as unanswered and unscored.
func (r *Run) Respond(resp eval.Response) (Outcome, error) {
	if r.phase != PhasePresenting {
		return Outcome{}, ErrNotPresenting
	}
	sr := r.sections[r.cur]
	ts := sr.Schedule
	rec := TrialRecord{
		Section: sr.Section.Name,
		Trial:   r.trial,
		Block:   -1,
		Frames:  make([]int, len(sr.Scenes)),
		Numbers: make([]int, len(ts.Bindings)),
		Values:  make([]experiment.Value, len(ts.Bindings)),
	}
	if ts.Blocks != nil {
		rec.Block = ts.Blocks[r.trial]
	}
	for i, s := range sr.Scenes {
		rec.Frames[i] = s.SceneEnd[r.trial]
	}
	for i, b := range ts.Bindings {
		rec.Numbers[i] = b.Numbers[r.trial]
		rec.Values[i] = b.Values[r.trial]
	}
	if ts.TrialValues != nil {
		rec.TrialValue = ts.TrialValues[r.trial]
	}

	if spec := sr.ResponseSpec(r.scene); spec != nil && spec.Type != experiment.ResponseNone && !resp.Empty() {
		v, err := eval.Interpret(resp, spec)
		if err != nil {
			return Outcome{}, fmt.Errorf("respond to trial %d of section %q: %w", r.trial, sr.Section.Name, err)
		}
		rec.Response, rec.Responded = v, true
		if ts.TrialValues != nil {
			res, err := sr.Scorer.Score(v, rec.TrialValue)
			if err != nil {
				return Outcome{}, fmt.Errorf("respond to trial %d of section %q: %w", r.trial, sr.Section.Name, err)
			}
			rec.Result = res
		}
	}

	if err := r.record(rec); err != nil {
		return Outcome{}, err
	}
	sr.Records = append(sr.Records, rec)
	r.records = append(r.records, rec)
	sr.Progress.Observe(rec.Result.Scored, rec.Result.Correct, rec.Block, rec.Response.Component(0))
	r.event(logging.EventRespond, sr.Section.Name, rec.Trial, map[string]any{
		"responded": rec.Responded,
		"scored":    rec.Result.Scored,
		"correct":   rec.Result.Correct,
		"numbers":   rec.Numbers,
	})

	d := sr.Gate.Evaluate(sr.Progress)
	switch d.Action {
	case gate.ActionContinue:
		r.trial++
		r.scene = 0
		r.step(rec.Result.Correct)
	case gate.ActionJump:
		r.transition(sr, d)
		r.enter(d.Section)
	case gate.ActionEnd:
		r.transition(sr, d)
		r.finish(PhaseEnded)
		r.event(logging.EventComplete, sr.Section.Name, rec.Trial, map[string]any{"trials": len(r.records)})
	}
	return Outcome{Record: rec, Decision: d}, nil
}

func (r *Run) record(rec TrialRecord) error {
	if r.store == nil {
		return nil
	}
	err := r.store.RecordTrial(state.TrialRow{
		RunID:      r.ID,
		Section:    rec.Section,
		Trial:      rec.Trial,
		Block:      rec.Block,
		Frames:     rec.Frames,
		Numbers:    rec.Numbers,
		Values:     rec.Values,
		Responded:  rec.Responded,
		Response:   rec.Response,
		TrialValue: rec.TrialValue,
		Scored:     rec.Result.Scored,
		Correct:    rec.Result.Correct,
		Distance:   rec.Result.Distance,
	})
	if err != nil {
		return fmt.Errorf("record trial: %w", err)
	}
	return nil
}

func (r *Run) transition(sr *SectionRun, d gate.Decision) {
	r.log.Info("section transition", "from", sr.Section.Name, "to", d.Target, "reason", d.Reason)
	r.event(logging.EventTransition, sr.Section.Name, r.trial, logging.TransitionRecord{
		From:      sr.Section.Name,
		To:        d.Target,
		Reason:    d.Reason,
		Trials:    sr.Progress.Trials,
		Correct:   sr.Progress.Correct,
		Streak:    sr.Progress.Streak,
		Metric:    d.Metric,
		Value:     d.Value,
		Threshold: d.Threshold,
	})
}
// #endregion respond

// #region abort
// Abort stops the run between trials. The in-progress trial is discarded and
// the compiled schedules are released; recorded trials are kept.
func (r *Run) Abort(reason string) error {
	if r.phase != PhasePresenting {
		return ErrNotPresenting
	}
	sec := r.sections[r.cur].Section.Name
	trial := r.trial
	r.finish(PhaseAborted)
	r.sections = nil
	r.log.Warn("run aborted", "run_id", r.ID, "section", sec, "trial", trial, "reason", reason)
	r.event(logging.EventAbort, sec, trial, map[string]any{"reason": reason})
	return nil
}

func (r *Run) finish(p Phase) {
	r.phase = p
	if r.store == nil {
		return
	}
	if err := r.store.SetStatus(r.ID, string(p)); err != nil {
		r.log.Error("set run status", "run_id", r.ID, "error", err)
	}
}
// #endregion abort

// #region events
// event appends a run_events row when a store is attached. Failures are
// logged and never interrupt the run.
func (r *Run) event(kind, section string, trial int, detail any) {
	if r.store == nil {
		return
	}
	body, err := json.Marshal(detail)
	if err != nil {
		r.log.Error("marshal event detail", "kind", kind, "error", err)
		return
	}
	err = logging.LogEvent(r.store.DB(), logging.RunEvent{
		RunID:   r.ID,
		Section: section,
		Trial:   trial,
		Kind:    kind,
		Detail:  string(body),
	})
	if err != nil {
		r.log.Error("log run event", "kind", kind, "error", err)
	}
}
// #endregion events
