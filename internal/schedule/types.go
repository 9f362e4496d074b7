package schedule

import (
	"github.com/danielpatrickdp/stimsched/internal/adaptive"
	"github.com/danielpatrickdp/stimsched/internal/experiment"
)

// MaxTrials bounds the trial count of one section (exclusive).
const MaxTrials = 10000

// #region binding
// Binding is the compiled form of one section variable: the pool it draws from,
// its per-trial pool indices and the resolved (jittered) values.
type Binding struct {
	Name     string
	Variable int // index into Section.Variables
	Target   experiment.PropertyID
	PoolID   experiment.PoolID
	Pool     *experiment.ValuePool
	Numbers  []int
	Values   []experiment.Value
	Jitter   [][3]float64 // per-trial offsets; nil when the pool has no jitter
	Adaptive *adaptive.Controller
	Block    bool
}

// Dimension returns the number of components the binding writes.
func (b *Binding) Dimension() int { return b.Pool.Dimension }
// #endregion binding

// #region trial-schedule
// TrialSchedule is the compiled trial plan of one section.
type TrialSchedule struct {
	Section     *experiment.Section
	Trials      int
	Root        uint64 // section root seed
	BlockRoot   uint64 // root of the block-controlled pool; 0 when absent
	Bindings    []*Binding
	Blocks      []int              // block identity per trial; nil when absent
	TrialValues []experiment.Value // scoring target per trial; nil when mode is none

	byTarget map[experiment.PropertyID]*Binding
}

// Options carries the seeds a section is built from.
type Options struct {
	Root      uint64                       // section root; required
	PoolRoots map[experiment.PoolID]uint64 // block pool roots; missing entries fall back to Root
}
// #endregion trial-schedule
