package state

import (
	"time"

	"github.com/danielpatrickdp/stimsched/internal/experiment"
)

// #region run-record
// Run statuses.
const (
	StatusPresenting = "presenting"
	StatusEnded      = "ended"
	StatusAborted    = "aborted"
)

// RunRecord is one row of the runs table.
type RunRecord struct {
	RunID     string
	Test      string
	Device    experiment.Device
	Roots     map[string]uint64 // section name → root seed used
	Status    string
	CreatedAt time.Time
}
// #endregion run-record

// #region scene-buffer
// SceneBuffer is a compiled scene's numeric rows as persisted for an external
// renderer or later inspection.
type SceneBuffer struct {
	RunID      string
	Section    string
	Scene      string
	Trials     int
	Objects    int
	Rows       []float32
	Background []float32
	SceneEnd   []int
}
// #endregion scene-buffer

// #region trial-row
// TrialRow is the persisted outcome of one presented trial.
type TrialRow struct {
	RunID      string
	Section    string
	Trial      int
	Block      int // -1 when unblocked
	Frames     []int
	Numbers    []int
	Values     []experiment.Value
	Responded  bool
	Response   experiment.Value
	TrialValue experiment.Value
	Scored     bool
	Correct    bool
	Distance   float64
	CreatedAt  time.Time
}
// #endregion trial-row
