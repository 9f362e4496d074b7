package schedule

import (
	"fmt"

	"github.com/danielpatrickdp/stimsched/internal/adaptive"
	"github.com/danielpatrickdp/stimsched/internal/experiment"
	"github.com/danielpatrickdp/stimsched/internal/logging"
	"github.com/danielpatrickdp/stimsched/internal/resolve"
	"github.com/danielpatrickdp/stimsched/internal/seed"
)

// #region build
// Build compiles the trial schedule of sec. The block-controlled variable is
// resolved first because it fixes the trial count every other variable must
// divide. Any error aborts the whole section; nothing partial is returned.
func Build(test *experiment.Test, sec *experiment.Section, opts Options) (*TrialSchedule, error) {
	log := logging.New("schedule")

	ts := &TrialSchedule{
		Section:  sec,
		Root:     opts.Root,
		byTarget: map[experiment.PropertyID]*Binding{},
	}

	var blocks *resolve.BlockSeries
	blockVar := -1
	for i := range sec.Variables {
		if sec.Variables[i].Group != experiment.BlockGroup {
			continue
		}
		if blockVar >= 0 {
			return nil, experiment.Definitionf(experiment.SectionPath(sec.Name),
				"variables %q and %q are both block-controlled; at most one is allowed",
				sec.Variables[blockVar].Name, sec.Variables[i].Name)
		}
		blockVar = i
	}

	ts.Trials = sec.Trials
	if blockVar >= 0 {
		v := &sec.Variables[blockVar]
		pool := test.Pool(v.Pool)
		if pool.Blocks == nil {
			return nil, experiment.Definitionf(experiment.VariablePath(sec.Name, v.Name),
				"pool %q has no block structure", pool.Name)
		}
		n := pool.Blocks.Trials()
		if sec.Trials != 0 && sec.Trials != n {
			return nil, experiment.Definitionf(experiment.SectionPath(sec.Name),
				"section declares %d trials but block variable %q defines %d×%d = %d",
				sec.Trials, v.Name, pool.Blocks.NumberOfBlocks, pool.Blocks.LengthOfBlocks, n)
		}
		ts.Trials = n
		ts.BlockRoot = pool.Seed
		if ts.BlockRoot == 0 {
			ts.BlockRoot = opts.PoolRoots[v.Pool]
		}
		if ts.BlockRoot == 0 {
			ts.BlockRoot = opts.Root
		}
		blocks = resolve.Blocks(pool, ts.BlockRoot)
		ts.Blocks = blocks.Blocks
	}

	if ts.Trials <= 0 {
		return nil, experiment.Definitionf(experiment.SectionPath(sec.Name), "trial count must be positive, got %d", ts.Trials)
	}
	if ts.Trials >= MaxTrials {
		return nil, &experiment.CapacityError{Path: experiment.SectionPath(sec.Name), What: "trial", Actual: ts.Trials, Max: MaxTrials - 1}
	}

	r, err := resolve.New(test, sec, opts.Root, ts.Trials)
	if err != nil {
		return nil, err
	}

	for i := range sec.Variables {
		v := &sec.Variables[i]
		b := &Binding{
			Name:     v.Name,
			Variable: i,
			Target:   v.Target,
			PoolID:   v.Pool,
			Pool:     test.Pool(v.Pool),
		}
		if b.Pool.Dimension != test.Property(v.Target).Dimension() {
			return nil, experiment.Definitionf(experiment.VariablePath(sec.Name, v.Name),
				"pool %q has dimension %d but its target has dimension %d",
				b.Pool.Name, b.Pool.Dimension, test.Property(v.Target).Dimension())
		}
		if prev, ok := ts.byTarget[v.Target]; ok {
			return nil, experiment.Definitionf(experiment.VariablePath(sec.Name, v.Name),
				"target %q is already fed by variable %q", test.Property(v.Target).Name, prev.Name)
		}
		ts.byTarget[v.Target] = b
		if i == blockVar {
			b.Block = true
			b.Numbers = blocks.Indices
		} else {
			b.Numbers = r.Resolve(i)
		}
		if v.Selection.Strategy == experiment.Adaptive && i != blockVar {
			b.Adaptive = adaptive.NewController(v.Selection.Rule, v.Selection.StartIndex, b.Pool.Len())
		}
		if b.Pool.Jitter > 0 {
			b.Jitter = jitter(opts.Root, i, b.Pool, ts.Trials)
		}
		b.Values = make([]experiment.Value, ts.Trials)
		for t := range b.Values {
			b.Values[t] = b.value(t)
		}
		ts.Bindings = append(ts.Bindings, b)
	}

	if err := ts.buildTrialValues(); err != nil {
		return nil, err
	}

	log.Debug("section schedule built",
		"section", sec.Name,
		"trials", ts.Trials,
		"bindings", len(ts.Bindings),
		"root", fmt.Sprintf("%#x", ts.Root),
	)
	return ts, nil
}

// jitter draws one offset per component and trial from the binding's own
// stream, so adding a variable never perturbs the jitter of another.
func jitter(root uint64, variable int, pool *experiment.ValuePool, trials int) [][3]float64 {
	s := seed.NewStream(root, seed.Jitter, variable)
	out := make([][3]float64, trials)
	for t := range out {
		for c := 0; c < pool.Dimension && c < 3; c++ {
			out[t][c] = s.Uniform(pool.Jitter)
		}
	}
	return out
}

func (b *Binding) value(trial int) experiment.Value {
	v := b.Pool.Values[b.Numbers[trial]]
	if b.Jitter != nil {
		v = v.Offset(b.Jitter[trial])
	}
	return v
}
// #endregion build

// #region trial-values
func (ts *TrialSchedule) buildTrialValues() error {
	sec := ts.Section
	spec := sec.TrialValue
	if spec.Mode == experiment.TrialValueNone {
		if sec.Response.Dimension > 0 {
			return experiment.Definitionf(experiment.SectionPath(sec.Name),
				"response dimension %d requires a trial value to score against", sec.Response.Dimension)
		}
		return nil
	}
	ts.TrialValues = make([]experiment.Value, ts.Trials)
	for t := range ts.TrialValues {
		ts.TrialValues[t] = ts.trialValue(t)
	}
	if d := sec.Response.Dimension; d > 0 {
		for t, v := range ts.TrialValues {
			if v.Dimension() != d || !v.Numeric() {
				return experiment.Definitionf(experiment.SectionPath(sec.Name),
					"trial value of trial %d has dimension %d, response dimension is %d", t, v.Dimension(), d)
			}
		}
	}
	return nil
}

func (ts *TrialSchedule) trialValue(trial int) experiment.Value {
	spec := &ts.Section.TrialValue
	b := ts.Bindings[spec.Variable]
	switch spec.Mode {
	case experiment.TrialValueLookup:
		return spec.Lookup[b.Numbers[trial]]
	case experiment.TrialValueReordered:
		return b.Pool.Values[spec.Order[b.Numbers[trial]]]
	}
	return b.Values[trial]
}
// #endregion trial-values

// #region lookup
// Binding returns the binding that feeds property p, if any.
func (ts *TrialSchedule) Binding(p experiment.PropertyID) (*Binding, bool) {
	b, ok := ts.byTarget[p]
	return b, ok
}

// Value returns the value property p takes on trial, if a binding feeds it.
func (ts *TrialSchedule) Value(p experiment.PropertyID, trial int) (experiment.Value, bool) {
	b, ok := ts.byTarget[p]
	if !ok {
		return experiment.Value{}, false
	}
	return b.Values[trial], true
}

// Adaptive returns the bindings driven by an adaptive controller.
func (ts *TrialSchedule) Adaptive() []*Binding {
	var out []*Binding
	for _, b := range ts.Bindings {
		if b.Adaptive != nil {
			out = append(out, b)
		}
	}
	return out
}
// #endregion lookup

// #region rebind
// Rebind points binding b at pool index for trial, re-applying the stored
// jitter and refreshing the trial value when b feeds it.
func (ts *TrialSchedule) Rebind(b *Binding, trial, index int) {
	if index < 0 || index >= b.Pool.Len() {
		experiment.Assertf(false, "binding %q index %d outside pool of %d", b.Name, index, b.Pool.Len())
	}
	b.Numbers[trial] = index
	b.Values[trial] = b.value(trial)
	if ts.TrialValues != nil && ts.Section.TrialValue.Variable == b.Variable {
		ts.TrialValues[trial] = ts.trialValue(trial)
	}
}
// #endregion rebind
