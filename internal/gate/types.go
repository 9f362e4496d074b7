package gate

// #region action
// Action enumerates what the run does after a trial.
type Action string

const (
	ActionContinue Action = "continue" // present the next trial of the section
	ActionJump     Action = "jump"     // start another section
	ActionEnd      Action = "end"      // end the test
)
// #endregion action

// #region progress
// Progress is the running tally of a section the conditions inspect.
type Progress struct {
	Trials    int     // completed trials
	Correct   int
	Incorrect int
	Streak    int     // consecutive correct trials ending at the last one
	Block     int     // block identity of the last trial; -1 when unblocked
	Response  float64 // first component of the last response
}

// CorrectRatio returns Correct / (Correct + Incorrect), or 0 before any
// scored trial.
func (p Progress) CorrectRatio() float64 {
	n := p.Correct + p.Incorrect
	if n == 0 {
		return 0
	}
	return float64(p.Correct) / float64(n)
}

// Observe folds one trial into the tally. Unscored trials only count toward
// Trials.
func (p *Progress) Observe(scored, correct bool, block int, response float64) {
	p.Trials++
	p.Block = block
	p.Response = response
	if !scored {
		return
	}
	if correct {
		p.Correct++
		p.Streak++
		return
	}
	p.Incorrect++
	p.Streak = 0
}
// #endregion progress

// #region decision
// Decision is the output of a gate evaluation.
type Decision struct {
	Action    Action
	Section   int    // target section index; -1 unless Action is ActionJump
	Target    string // target section name or "end"
	Condition int    // index of the condition that fired; -1 for the default transition
	Reason    string

	// Set when a condition fired.
	Metric    string
	Value     float64
	Threshold float64
}
// #endregion decision
