package adaptive

import "github.com/danielpatrickdp/stimsched/internal/experiment"

// #region state
// State is the staircase position of one adaptive variable.
type State struct {
	Index  int  // current index into the value pool
	Streak int  // consecutive correct responses since the last move
	First  bool // no response has been observed yet
}
// #endregion state

// #region step
// Step is a pure function that computes the next staircase state from the
// previous trial's correctness. The result always lies in [0, max].
func Step(s State, rule experiment.Rule, max int, correct bool) State {
	if s.First {
		s.Streak = 0
		s.First = false
	}
	switch rule {
	case experiment.RuleZero:
		if correct {
			s.Index = 0
		} else {
			s.Index = 1
		}
	case experiment.RuleOne:
		if correct {
			s.Index--
		} else {
			s.Index++
		}
	case experiment.RuleTwo, experiment.RuleThree:
		need := 1
		if rule == experiment.RuleThree {
			need = 2
		}
		switch {
		case !correct:
			s.Index++
			s.Streak = 0
		case s.Streak >= need:
			s.Index--
			s.Streak = 0
		default:
			s.Streak++
		}
	}
	s.Index = clamp(s.Index, 0, max)
	return s
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
// #endregion step

// #region controller
// Controller owns the staircase of one adaptive binding for the duration of a
// section run. It is not safe for concurrent use.
type Controller struct {
	Rule  experiment.Rule
	Start int
	Max   int

	state State
	trial int
}

// NewController returns a controller positioned on its start index.
func NewController(rule experiment.Rule, start, poolSize int) *Controller {
	c := &Controller{Rule: rule, Start: start, Max: poolSize - 1}
	c.Reset()
	return c
}

// Reset returns the staircase to its start index.
func (c *Controller) Reset() {
	c.state = State{Index: clamp(c.Start, 0, c.Max), First: true}
	c.trial = 0
}

// Observe advances the staircase for trial using the correctness of trial-1 and
// returns the index to present. Trial 0 always resets to the start index; a
// repeated call for the same trial returns the current index unchanged.
func (c *Controller) Observe(trial int, prevCorrect bool) int {
	switch {
	case trial == 0:
		c.Reset()
	case trial == c.trial:
	default:
		c.state = Step(c.state, c.Rule, c.Max, prevCorrect)
		c.trial = trial
	}
	return c.state.Index
}

// Index returns the current index.
func (c *Controller) Index() int { return c.state.Index }

// State returns a copy of the staircase state.
func (c *Controller) State() State { return c.state }
// #endregion controller
