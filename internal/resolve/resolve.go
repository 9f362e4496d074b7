package resolve

import (
	"fmt"
	"slices"

	"github.com/danielpatrickdp/stimsched/internal/experiment"
	"github.com/danielpatrickdp/stimsched/internal/seed"
)

// #region resolver
// Resolver produces per-trial pool indices for the variables of one section.
// Units are planned once in New; Resolve is then a lookup per variable.
type Resolver struct {
	test   *experiment.Test
	sec    *experiment.Section
	root   uint64
	trials int
	units  []*unit
	byVar  []*unit
}

// New plans the ordering units of sec for a run of trials trials drawing from
// root. Structural problems (mixed strategies in a group, indivisible trial
// counts, too few distinct values) are returned as DefinitionErrors.
func New(test *experiment.Test, sec *experiment.Section, root uint64, trials int) (*Resolver, error) {
	r := &Resolver{
		test:   test,
		sec:    sec,
		root:   root,
		trials: trials,
		byVar:  make([]*unit, len(sec.Variables)),
	}
	if err := r.plan(); err != nil {
		return nil, err
	}
	for _, u := range r.units {
		if err := r.prepare(u); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Trials returns the trial count the resolver was planned for.
func (r *Resolver) Trials() int { return r.trials }

// StyleOf returns the nesting style of variable i.
func (r *Resolver) StyleOf(i int) Style {
	if i == r.sec.Alternate {
		return StyleAlternate
	}
	switch r.sec.Variables[i].Selection.Priority {
	case experiment.PriorityMedium:
		return StyleMedium
	case experiment.PriorityLow:
		return StyleLow
	}
	return StyleHigh
}
// #endregion resolver

// #region plan
func (r *Resolver) plan() error {
	groups := map[int]*unit{}
	for i := range r.sec.Variables {
		v := &r.sec.Variables[i]
		if v.Group == experiment.BlockGroup {
			continue
		}
		kind := kindOf(v.Selection)
		if v.Group == experiment.Ungrouped || kind == unitSingle {
			if v.Group > 0 && (v.Selection.Strategy == experiment.Fixed || v.Selection.Strategy == experiment.Adaptive) {
				return experiment.Definitionf(experiment.VariablePath(r.sec.Name, v.Name),
					"%s variables cannot belong to group %d", v.Selection.Strategy, v.Group)
			}
			u := &unit{ordinal: len(r.units), kind: kind, members: []int{i}}
			u.shuffled = v.Selection.Strategy == experiment.Shuffled
			r.units = append(r.units, u)
			r.byVar[i] = u
			continue
		}
		u, ok := groups[v.Group]
		if !ok {
			u = &unit{ordinal: len(r.units), kind: kind, shuffled: v.Selection.Strategy == experiment.Shuffled}
			groups[v.Group] = u
			r.units = append(r.units, u)
		} else if u.kind != kind || (kind == unitOrdered && u.shuffled != (v.Selection.Strategy == experiment.Shuffled)) {
			first := r.sec.Variables[u.members[0]]
			return experiment.Definitionf(experiment.VariablePath(r.sec.Name, v.Name),
				"group %d mixes %s (variable %q) with %s", v.Group, first.Selection.Strategy, first.Name, v.Selection.Strategy)
		}
		u.members = append(u.members, i)
		r.byVar[i] = u
	}
	return nil
}

func kindOf(s experiment.Selection) unitKind {
	switch s.Strategy {
	case experiment.InOrder, experiment.Shuffled:
		return unitOrdered
	case experiment.Random:
		if s.Random == experiment.RandomDistinct {
			return unitDistinct
		}
	}
	return unitSingle
}
// #endregion plan

// #region prepare
func (r *Resolver) poolSize(i int) int {
	return r.test.Pool(r.sec.Variables[i].Pool).Len()
}

func (r *Resolver) prepare(u *unit) error {
	switch u.kind {
	case unitOrdered:
		return r.prepareOrdered(u)
	case unitDistinct:
		return r.prepareDistinct(u)
	}
	return r.checkSingle(u.members[0])
}

func (r *Resolver) prepareOrdered(u *unit) error {
	slices.SortStableFunc(u.members, func(a, b int) int { return int(r.StyleOf(a)) - int(r.StyleOf(b)) })
	u.cycle = 1
	u.strides = make([]int, len(u.members))
	for m, i := range u.members {
		k := r.poolSize(i)
		if r.trials%k != 0 {
			return r.divisibility(i, k)
		}
		u.strides[m] = u.cycle
		u.cycle *= k
	}
	if r.trials%u.cycle != 0 {
		v := r.sec.Variables[u.members[len(u.members)-1]]
		return experiment.Definitionf(experiment.VariablePath(r.sec.Name, v.Name),
			"%s is not divisible by the group cycle of %d value combinations", r.trialSource(), u.cycle)
	}
	u.base = make([]int, r.trials)
	if !u.shuffled {
		for t := range u.base {
			u.base[t] = t
		}
		return nil
	}
	chunks := r.trials / u.cycle
	coarse := seed.NewStream(r.root, seed.Order, u.ordinal).Perm(chunks)
	fine := seed.NewStream(r.root, seed.Shuffle, u.ordinal)
	for c := 0; c < chunks; c++ {
		perm := fine.Perm(u.cycle)
		for j, p := range perm {
			u.base[c*u.cycle+j] = coarse[c]*u.cycle + p
		}
	}
	return nil
}

func (r *Resolver) prepareDistinct(u *unit) error {
	k := r.poolSize(u.members[0])
	for _, i := range u.members[1:] {
		if r.poolSize(i) != k {
			v := r.sec.Variables[i]
			return experiment.Definitionf(experiment.VariablePath(r.sec.Name, v.Name),
				"distinct group members must share one pool size (%d vs %d)", r.poolSize(i), k)
		}
	}
	if len(u.members) > k {
		v := r.sec.Variables[u.members[0]]
		return experiment.Definitionf(experiment.VariablePath(r.sec.Name, v.Name),
			"distinct group of %d variables needs at least %d values, pool %q has %d",
			len(u.members), len(u.members), r.test.Pool(v.Pool).Name, k)
	}
	s := seed.NewStream(r.root, seed.Distinct, u.ordinal)
	u.perms = make([][]int, r.trials)
	for t := range u.perms {
		u.perms[t] = s.Perm(k)
	}
	return nil
}

func (r *Resolver) checkSingle(i int) error {
	v := &r.sec.Variables[i]
	k := r.poolSize(i)
	var idx int
	switch v.Selection.Strategy {
	case experiment.Fixed:
		idx = v.Selection.FixedIndex
	case experiment.Adaptive:
		idx = v.Selection.StartIndex
	default:
		return nil
	}
	if idx < 0 || idx >= k {
		return experiment.Definitionf(experiment.VariablePath(r.sec.Name, v.Name),
			"%s index %d is outside pool %q of %d values", v.Selection.Strategy, idx, r.test.Pool(v.Pool).Name, k)
	}
	return nil
}

func (r *Resolver) trialSource() string {
	if b := r.sec.BlockVariable(); b >= 0 {
		return fmt.Sprintf("trial count %d (set by block variable %q)", r.trials, r.sec.Variables[b].Name)
	}
	return fmt.Sprintf("section trial count %d", r.trials)
}

func (r *Resolver) divisibility(i, k int) error {
	v := r.sec.Variables[i]
	return experiment.Definitionf(experiment.VariablePath(r.sec.Name, v.Name),
		"%s is not divisible by the %d values of pool %q", r.trialSource(), k, r.test.Pool(v.Pool).Name)
}
// #endregion prepare

// #region resolve
// Resolve returns the per-trial pool indices of variable i. The block-controlled
// variable is resolved by Blocks instead.
func (r *Resolver) Resolve(i int) []int {
	v := &r.sec.Variables[i]
	u := r.byVar[i]
	experiment.Assertf(u != nil, "variable %q has no resolution unit", v.Name)
	out := make([]int, r.trials)
	switch u.kind {
	case unitOrdered:
		m := slices.Index(u.members, i)
		k := r.poolSize(i)
		for t := range out {
			out[t] = (u.base[t] / u.strides[m]) % k
		}
	case unitDistinct:
		m := slices.Index(u.members, i)
		for t := range out {
			out[t] = u.perms[t][m]
		}
	default:
		switch v.Selection.Strategy {
		case experiment.Random:
			s := seed.NewStream(r.root, seed.RandomDraw, i)
			k := r.poolSize(i)
			for t := range out {
				out[t] = s.IntN(k)
			}
		case experiment.Fixed:
			for t := range out {
				out[t] = v.Selection.FixedIndex
			}
		case experiment.Adaptive:
			for t := range out {
				out[t] = v.Selection.StartIndex
			}
		}
	}
	return out
}
// #endregion resolve
