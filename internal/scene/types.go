package scene

import (
	"github.com/danielpatrickdp/stimsched/internal/experiment"
	"github.com/danielpatrickdp/stimsched/internal/schedule"
)

// #region context
// Context is everything a scene compile reads: the definition graph, the
// section's trial schedule and the device used for unit conversion.
type Context struct {
	Test     *experiment.Test
	Schedule *schedule.TrialSchedule
	Device   experiment.Device
}
// #endregion context

// #region checkpoints
// Action is the event a checkpoint signals to the renderer or audio engine.
type Action int

const (
	StartText Action = iota
	StartVideo
	StartAudio
	StartTone
	EndText
	EndVideo
	EndAudio
	EndTone
	EndScene
)

var actionNames = []string{
	"start_text", "start_video", "start_audio", "start_tone",
	"end_text", "end_video", "end_audio", "end_tone", "end_scene",
}

func (a Action) String() string {
	if a < 0 || int(a) >= len(actionNames) {
		return "unknown"
	}
	return actionNames[a]
}

// rank orders actions sharing a frame: starts, then ends, then the scene end.
func (a Action) rank() int {
	switch {
	case a == EndScene:
		return 2
	case a >= EndText:
		return 1
	}
	return 0
}

// Checkpoint is a discrete event at a frame of a trial.
type Checkpoint struct {
	Frame  int
	Action Action
	Object experiment.ObjectID
}
// #endregion checkpoints

// #region timing
// Timing is the derived activation window of one object on one trial.
type Timing struct {
	Activated bool
	Start     int // frames
	Duration  int // frames
	End       int // frames, Start+Duration
}
// #endregion timing

// #region sounds
// SoundKind distinguishes synthesized partials from media playback.
type SoundKind int

const (
	SoundTone SoundKind = iota
	SoundAudio
)

// Sound is one row of the per-trial sine-wave / audio control table.
type Sound struct {
	Kind      SoundKind
	Object    experiment.ObjectID
	Media     int // SoundAudio only
	Start     int // samples
	End       int // samples
	Frequency float64
	Amplitude float64
	Channel   int
	Ramp      int // samples
}
// #endregion sounds

// #region updates
// Curve holds per-trial control points of a closed-form time function.
type Curve struct {
	Func   experiment.FuncKind
	Points [][4]float64 // one set per trial
}

// Update recomputes row slots from a time function every frame.
type Update struct {
	Object     experiment.ObjectID
	Background bool
	Role       experiment.Role
	Slot       int
	Repeat     int // number of slots the scalar result is written to
	Scale      float64
	Curve      Curve
}

// PolarUpdate writes x/y from a radius and an angle (degrees) around the
// object's origin.
type PolarUpdate struct {
	Object experiment.ObjectID
	Radius Curve
	Angle  Curve
	Scale  float64 // applied to the radius
}

// Conversion is how a substituted value reaches its slot.
type Conversion int

const (
	ConvertLinear Conversion = iota // component × Scale
	ConvertFrames                   // seconds → frames
	ConvertFlag                     // non-zero → 1
)

// DependentVariable substitutes an adaptive binding's current value into either
// row slots or a curve control point.
type DependentVariable struct {
	Binding    *schedule.Binding
	Object     experiment.ObjectID
	Background bool
	Role       experiment.Role
	Slot       int // first slot; -1 when Points is set
	Dim        int
	Scale      float64
	Conversion Conversion
	Points     [][4]float64 // curve control points fed by the binding
	Param      int
}
// #endregion updates

// #region compute-groups
// Compute-group grid used by the renderer to cull per-object work.
const (
	GridColumns = 4
	GridRows    = 4
	GridLayers  = 8
	GridCells   = GridColumns * GridRows
)

// ComputeGroups holds, per grid cell, the object ids occupying each layer;
// 0 marks a free layer.
type ComputeGroups [GridCells][GridLayers]int32
// #endregion compute-groups

// #region schedule
// ObjectInfo is per-object compile metadata reused at frame time.
type ObjectInfo struct {
	Kind        experiment.ObjectKind
	WidthScale  float64 // pixels per authored width unit
	HeightScale float64
}

// Schedule is the compiled form of one scene. It exclusively owns its buffers;
// the per-frame updater mutates them in place.
type Schedule struct {
	Scene   *experiment.Scene
	Device  experiment.Device
	Trials  int
	Objects int // including the background slot

	Rows        []float32 // trial × object × RowSize
	Background  []float32 // trial × BackgroundRowSize
	Timing      []Timing  // trial × object
	SceneEnd    []int     // frames per trial
	Checkpoints [][]Checkpoint
	Sounds      [][]Sound

	Info       []ObjectInfo
	Updates    []Update
	Polar      []PolarUpdate
	Dependents []DependentVariable

	Groups ComputeGroups
}

// Row returns the parameter row of object o on trial.
func (s *Schedule) Row(trial int, o experiment.ObjectID) []float32 {
	off := (trial*s.Objects + int(o)) * RowSize
	return s.Rows[off : off+RowSize : off+RowSize]
}

// BackgroundRow returns the background row of trial.
func (s *Schedule) BackgroundRow(trial int) []float32 {
	off := trial * BackgroundRowSize
	return s.Background[off : off+BackgroundRowSize : off+BackgroundRowSize]
}

// TimingOf returns the derived timing of object o on trial.
func (s *Schedule) TimingOf(trial int, o experiment.ObjectID) Timing {
	return s.Timing[trial*s.Objects+int(o)]
}
// #endregion schedule
