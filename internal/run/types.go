package run

import (
	"errors"

	"github.com/danielpatrickdp/stimsched/internal/eval"
	"github.com/danielpatrickdp/stimsched/internal/experiment"
	"github.com/danielpatrickdp/stimsched/internal/gate"
	"github.com/danielpatrickdp/stimsched/internal/scene"
	"github.com/danielpatrickdp/stimsched/internal/schedule"
	"github.com/danielpatrickdp/stimsched/internal/state"
)

// ErrNotPresenting is returned by frame and response calls once a run has
// ended or been aborted.
var ErrNotPresenting = errors.New("run is not presenting")

// #region phase
// Phase is the lifecycle state of a run.
type Phase string

const (
	PhasePresenting Phase = state.StatusPresenting
	PhaseEnded      Phase = state.StatusEnded
	PhaseAborted    Phase = state.StatusAborted
)
// #endregion phase

// #region options
// Options configures a run. Every field is optional.
type Options struct {
	Seeds     map[string]uint64 // section name → pinned root; overrides the definition
	PoolSeeds map[string]uint64 // pool name → root of a block-controlled pool
	Store     *state.Store      // persists the run, its scenes, trials and events
}
// #endregion options

// #region records
// TrialRecord is the outcome of one presented trial.
type TrialRecord struct {
	Section    string
	Trial      int
	Block      int                // -1 when the section is unblocked
	Frames     []int              // end frame of every scene
	Numbers    []int              // pool index per binding
	Values     []experiment.Value // value per binding
	Responded  bool
	Response   experiment.Value
	TrialValue experiment.Value
	Result     eval.Result
}

// Outcome is what Respond reports back to the presentation loop.
type Outcome struct {
	Record   TrialRecord
	Decision gate.Decision
}
// #endregion records

// #region section-run
// SectionRun is one compiled section and its running tally.
type SectionRun struct {
	Index    int
	Section  *experiment.Section
	Root     uint64
	Schedule *schedule.TrialSchedule
	Scenes   []*scene.Schedule
	Gate     *gate.Gate
	Scorer   *eval.Scorer
	Progress gate.Progress
	Records  []TrialRecord

	entered bool
}

// ResponseSpec returns the response declaration that applies at scene i: the
// scene's own, else the last scene of the section that declares one.
func (sr *SectionRun) ResponseSpec(i int) *experiment.ResponseSpec {
	if r := sr.Section.Scenes[i].Response; r != nil {
		return r
	}
	for j := len(sr.Section.Scenes) - 1; j >= 0; j-- {
		if r := sr.Section.Scenes[j].Response; r != nil {
			return r
		}
	}
	return nil
}
// #endregion section-run
