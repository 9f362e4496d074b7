package update

import (
	"math"

	"github.com/danielpatrickdp/stimsched/internal/experiment"
	"github.com/danielpatrickdp/stimsched/internal/scene"
)

// #region apply
// Apply brings the rows of trial in s to frame. Adaptive values are copied in
// first (re-deriving timing and the sound table when they move it), then time
// curves and polar positions are evaluated, then visibility, bounds and the
// compute groups are rebuilt. Repeated calls with the same arguments leave the
// buffers unchanged; Apply allocates nothing.
func (u *Updater) Apply(s *scene.Schedule, trial, frame int) Metrics {
	if trial < 0 || trial >= s.Trials {
		experiment.Assertf(false, "trial %d outside schedule of %d trials", trial, s.Trials)
	}
	var m Metrics

	if u.substitute(s, trial, &m) {
		s.Rederive(trial)
		m.Rederived = true
	}
	u.curves(s, trial, frame, &m)
	u.polar(s, trial, frame, &m)
	u.dots(s, trial)
	u.visibility(s, trial, frame, &m)
	if u.Groups {
		u.groups(s, trial, &m)
	}
	return m
}

// elapsed is the time in seconds since object o started on trial.
func elapsed(s *scene.Schedule, trial int, o experiment.ObjectID, frame int) float64 {
	start := 0
	if o != experiment.BackgroundID {
		start = s.TimingOf(trial, o).Start
	}
	return float64(max(0, frame-start)) / s.Device.FrameRate
}

func target(s *scene.Schedule, trial int, o experiment.ObjectID, background bool) []float32 {
	if background {
		return s.BackgroundRow(trial)
	}
	return s.Row(trial, o)
}
// #endregion apply

// #region substitute
// substitute copies the current value of every adaptive binding into its slots
// or curve control point and reports whether a timing or audio slot moved.
func (u *Updater) substitute(s *scene.Schedule, trial int, m *Metrics) bool {
	rederive := false
	for i := range s.Dependents {
		d := &s.Dependents[i]
		v := d.Binding.Values[trial]
		m.Substituted++
		if d.Points != nil {
			d.Points[trial][d.Param] = v.Component(0)
			continue
		}
		if write(target(s, trial, d.Object, d.Background), d, v, s.Device) && derived(s, d) {
			rederive = true
		}
	}
	return rederive
}

// write stores v into the slots of d and reports whether any slot changed.
func write(dst []float32, d *scene.DependentVariable, v experiment.Value, dev experiment.Device) bool {
	switch d.Conversion {
	case scene.ConvertFrames:
		return set(dst, d.Slot, float32(dev.Frames(v.Component(0))))
	case scene.ConvertFlag:
		if v.Component(0) != 0 {
			return set(dst, d.Slot, 1)
		}
		return set(dst, d.Slot, 0)
	}
	changed := false
	for i := 0; i < d.Dim; i++ {
		if set(dst, d.Slot+i, float32(v.Component(i)*d.Scale)) {
			changed = true
		}
	}
	return changed
}

func set(dst []float32, slot int, x float32) bool {
	if dst[slot] == x {
		return false
	}
	dst[slot] = x
	return true
}

// derived reports whether the slot of d feeds timing, checkpoints or sounds.
func derived(s *scene.Schedule, d *scene.DependentVariable) bool {
	if d.Background {
		return false
	}
	if d.Role.Timing() {
		return true
	}
	switch s.Info[d.Object].Kind {
	case experiment.ObjectTone, experiment.ObjectAudio:
		return true
	}
	return false
}
// #endregion substitute

// #region curves
func (u *Updater) curves(s *scene.Schedule, trial, frame int, m *Metrics) {
	for i := range s.Updates {
		up := &s.Updates[i]
		if !up.Background && !s.TimingOf(trial, up.Object).Activated {
			continue
		}
		x := float32(up.Curve.At(trial, elapsed(s, trial, up.Object, frame)) * up.Scale)
		row := target(s, trial, up.Object, up.Background)
		for k := 0; k < up.Repeat; k++ {
			row[up.Slot+k] = x
		}
		m.Curves++
	}
}

func (u *Updater) polar(s *scene.Schedule, trial, frame int, m *Metrics) {
	for i := range s.Polar {
		p := &s.Polar[i]
		if !s.TimingOf(trial, p.Object).Activated {
			continue
		}
		x, y := p.At(trial, elapsed(s, trial, p.Object, frame))
		row := s.Row(trial, p.Object)
		row[scene.SlotX], row[scene.SlotY] = float32(x), float32(y)
		m.Polar++
	}
}

// dots refreshes the dot count of every dots object from its current density
// and size. Counts driven past the cap by a curve are clamped.
func (u *Updater) dots(s *scene.Schedule, trial int) {
	for o := 1; o < s.Objects; o++ {
		info := s.Info[o]
		if info.Kind != experiment.ObjectDots {
			continue
		}
		row := s.Row(trial, experiment.ObjectID(o))
		row[scene.SlotDotCount] = float32(min(scene.DotCount(row, info), scene.MaxDots))
	}
}
// #endregion curves

// #region bounds
// visibility marks the visual objects on screen at frame and stores their
// clipped bounds.
func (u *Updater) visibility(s *scene.Schedule, trial, frame int, m *Metrics) {
	for o := 1; o < s.Objects; o++ {
		if !s.Info[o].Kind.Visual() {
			continue
		}
		id := experiment.ObjectID(o)
		row := s.Row(trial, id)
		tm := s.TimingOf(trial, id)
		b := Bounds{}
		if tm.Activated && frame >= tm.Start && frame < tm.End {
			b = Rect(row, s.Device)
		}
		row[scene.SlotBoundLeft] = float32(b.Left)
		row[scene.SlotBoundTop] = float32(b.Top)
		row[scene.SlotBoundRight] = float32(b.Right)
		row[scene.SlotBoundBottom] = float32(b.Bottom)
		if b.Empty() {
			row[scene.SlotVisible] = 0
			continue
		}
		row[scene.SlotVisible] = 1
		m.Visible++
	}
}

// Rect returns the viewport rectangle covered by an object row: its rotated
// extent grown by the border, clipped to the screen.
func Rect(row []float32, dev experiment.Device) Bounds {
	w, h := float64(dev.Width), float64(dev.Height)
	cx := w/2 + float64(row[scene.SlotOriginX]+row[scene.SlotX])
	cy := h/2 - float64(row[scene.SlotOriginY]+row[scene.SlotY])
	border := float64(row[scene.SlotBorderWidth])
	hw := float64(row[scene.SlotWidth])/2 + border
	hh := float64(row[scene.SlotHeight])/2 + border

	sin, cos := math.Sincos(float64(row[scene.SlotRotation]) * math.Pi / 180)
	ex := math.Abs(hw*cos) + math.Abs(hh*sin)
	ey := math.Abs(hw*sin) + math.Abs(hh*cos)

	return Bounds{
		Left:   clamp(cx-ex, 0, w),
		Top:    clamp(cy-ey, 0, h),
		Right:  clamp(cx+ex, 0, w),
		Bottom: clamp(cy+ey, 0, h),
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
// #endregion bounds

// #region groups
// groups places every visible object into the first free layer of each grid
// cell its bounds overlap.
func (u *Updater) groups(s *scene.Schedule, trial int, m *Metrics) {
	s.Groups = scene.ComputeGroups{}
	cw := float64(s.Device.Width) / scene.GridColumns
	ch := float64(s.Device.Height) / scene.GridRows
	for o := 1; o < s.Objects; o++ {
		if !s.Info[o].Kind.Visual() {
			continue
		}
		row := s.Row(trial, experiment.ObjectID(o))
		if row[scene.SlotVisible] == 0 {
			continue
		}
		c0, c1 := span(float64(row[scene.SlotBoundLeft]), float64(row[scene.SlotBoundRight]), cw, scene.GridColumns)
		r0, r1 := span(float64(row[scene.SlotBoundTop]), float64(row[scene.SlotBoundBottom]), ch, scene.GridRows)
		for r := r0; r <= r1; r++ {
			for c := c0; c <= c1; c++ {
				if place(&s.Groups[r*scene.GridColumns+c], int32(o)) {
					m.Grouped++
				} else {
					m.Skipped++
				}
			}
		}
	}
}

// span returns the first and last grid index covered by [lo, hi).
func span(lo, hi, size float64, n int) (int, int) {
	first := min(max(int(lo/size), 0), n-1)
	last := min(max(int(math.Ceil(hi/size))-1, first), n-1)
	return first, last
}

func place(cell *[scene.GridLayers]int32, id int32) bool {
	for l := range cell {
		if cell[l] == 0 {
			cell[l] = id
			return true
		}
	}
	return false
}
// #endregion groups
