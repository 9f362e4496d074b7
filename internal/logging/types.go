package logging

import "time"

// #region run-event
// Event kinds written to run_events.
const (
	EventCompile    = "compile"
	EventRespond    = "respond"
	EventTransition = "transition"
	EventAbort      = "abort"
	EventComplete   = "complete"
)

// RunEvent is a single row in the run_events table.
type RunEvent struct {
	RunID     string
	Section   string
	Trial     int // -1 when the event is not tied to a trial
	Kind      string
	Detail    string // JSON payload, optional
	CreatedAt time.Time
}
// #endregion run-event

// #region transition-record
// TransitionRecord captures the inputs of a section transition decision.
// Serialized as JSON into run_events.detail for later audit.
type TransitionRecord struct {
	From      string  `json:"from"`
	To        string  `json:"to"`
	Reason    string  `json:"reason"`
	Trials    int     `json:"trials"`
	Correct   int     `json:"correct"`
	Streak    int     `json:"streak"`
	Metric    string  `json:"metric,omitempty"`
	Value     float64 `json:"value,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
}
// #endregion transition-record
