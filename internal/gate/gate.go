package gate

import (
	"fmt"

	"github.com/danielpatrickdp/stimsched/internal/experiment"
)

// #region gate
// Gate decides, after every trial, whether a section continues, hands over to
// another section or ends the test.
type Gate struct {
	test    *experiment.Test
	section int
	trials  int
}

// NewGate creates the gate of section index sec presenting trials trials.
// The count is the compiled one, which a block-controlled variable sets.
func NewGate(test *experiment.Test, sec, trials int) *Gate {
	return &Gate{test: test, section: sec, trials: trials}
}

// Evaluate checks the section's conditions in order; the first that holds
// fires. When none fires and the section's trials are exhausted, the
// section's default next applies (the following section when unset).
func (g *Gate) Evaluate(p Progress) Decision {
	sec := &g.test.Sections[g.section]
	for i, c := range sec.Conditions {
		v := metric(c.Metric, p)
		if !c.Op.Compare(v, c.Threshold) {
			continue
		}
		d := g.target(c.Next)
		d.Condition = i
		d.Metric, d.Value, d.Threshold = c.Metric.String(), v, c.Threshold
		d.Reason = fmt.Sprintf("%s %s %g (value %g)", c.Metric, c.Op, c.Threshold, v)
		return d
	}
	if p.Trials < g.trials {
		return Decision{Action: ActionContinue, Section: g.section, Condition: -1}
	}
	d := g.target(sec.Next)
	d.Condition = -1
	d.Reason = fmt.Sprintf("section %q completed %d trials", sec.Name, p.Trials)
	return d
}

// target resolves a transition name; empty means the following section, or the
// end of the test after the last one.
func (g *Gate) target(name string) Decision {
	if name == "" {
		name = experiment.EndTest
		if g.section+1 < len(g.test.Sections) {
			name = g.test.Sections[g.section+1].Name
		}
	}
	if name == experiment.EndTest {
		return Decision{Action: ActionEnd, Section: -1, Target: experiment.EndTest}
	}
	idx := g.test.SectionIndex(name)
	experiment.Assertf(idx >= 0, "transition to unknown section %q", name)
	return Decision{Action: ActionJump, Section: idx, Target: name}
}
// #endregion gate

// #region metrics
func metric(m experiment.Metric, p Progress) float64 {
	switch m {
	case experiment.MetricTrials:
		return float64(p.Trials)
	case experiment.MetricCorrect:
		return float64(p.Correct)
	case experiment.MetricIncorrect:
		return float64(p.Incorrect)
	case experiment.MetricCorrectRatio:
		return p.CorrectRatio()
	case experiment.MetricStreak:
		return float64(p.Streak)
	case experiment.MetricBlock:
		return float64(p.Block)
	case experiment.MetricResponse:
		return p.Response
	}
	return 0
}
// #endregion metrics
