package scene

import (
	"math"

	"github.com/danielpatrickdp/stimsched/internal/experiment"
	"github.com/danielpatrickdp/stimsched/internal/logging"
	"github.com/danielpatrickdp/stimsched/internal/seed"
)

// #region compile
// Compile expands every object of sc into per-trial rows, registers the
// time-dependent and response-dependent update descriptors and derives timing,
// checkpoints and the sound table. On error nothing is returned.
func Compile(ctx Context, sc *experiment.Scene) (*Schedule, error) {
	log := logging.New("scene")
	ts := ctx.Schedule
	c := &compiler{
		ctx:  ctx,
		sc:   sc,
		path: experiment.ScenePath(ts.Section.Name, sc.Name),
	}
	if err := c.checkCounts(); err != nil {
		return nil, err
	}

	n := sc.NumObjects()
	s := &Schedule{
		Scene:       sc,
		Device:      ctx.Device,
		Trials:      ts.Trials,
		Objects:     n,
		Rows:        make([]float32, ts.Trials*n*RowSize),
		Background:  make([]float32, ts.Trials*BackgroundRowSize),
		Timing:      make([]Timing, ts.Trials*n),
		SceneEnd:    make([]int, ts.Trials),
		Checkpoints: make([][]Checkpoint, ts.Trials),
		Sounds:      make([][]Sound, ts.Trials),
		Info:        make([]ObjectInfo, n),
	}
	c.s = s

	for id := experiment.ObjectID(0); int(id) < n; id++ {
		if err := c.object(id); err != nil {
			return nil, err
		}
	}
	if err := c.checkPartials(); err != nil {
		return nil, err
	}

	events := 1
	for _, obj := range sc.Objects {
		if _, _, ok := actions(obj.Kind); ok {
			events += 2
		}
	}
	for t := 0; t < s.Trials; t++ {
		s.Checkpoints[t] = make([]Checkpoint, 0, events)
		s.Sounds[t] = make([]Sound, 0, MaxSounds)
		s.Rederive(t)
	}

	log.Debug("scene compiled",
		"section", ts.Section.Name,
		"scene", sc.Name,
		"objects", n-1,
		"updates", len(s.Updates),
		"polar", len(s.Polar),
		"dependents", len(s.Dependents),
	)
	return s, nil
}

type compiler struct {
	ctx  Context
	sc   *experiment.Scene
	s    *Schedule
	path string
}
// #endregion compile

// #region caps
func (c *compiler) checkCounts() error {
	var visual, video, audio int
	for _, obj := range c.sc.Objects {
		switch {
		case obj.Kind.Visual():
			visual++
		case obj.Kind == experiment.ObjectVideo:
			video++
		case obj.Kind == experiment.ObjectAudio:
			audio++
		}
	}
	switch {
	case visual > MaxVisualObjects:
		return &experiment.CapacityError{Path: c.path, What: "visual object", Actual: visual, Max: MaxVisualObjects}
	case video > MaxVideoObjects:
		return &experiment.CapacityError{Path: c.path, What: "video object", Actual: video, Max: MaxVideoObjects}
	case audio > MaxAudioObjects:
		return &experiment.CapacityError{Path: c.path, What: "audio object", Actual: audio, Max: MaxAudioObjects}
	}
	return nil
}

// checkPartials bounds the tone partials of every trial, counting adaptive
// harmonics at the largest value their pool can reach.
func (c *compiler) checkPartials() error {
	for t := 0; t < c.s.Trials; t++ {
		total := 0
		for i, obj := range c.sc.Objects {
			if obj.Kind != experiment.ObjectTone {
				continue
			}
			h := int(c.s.Row(t, experiment.ObjectID(i+1))[SlotHarmonics])
			if pid, ok := obj.Prop(experiment.RoleHarmonics); ok {
				h = int(math.Max(float64(h), c.adaptiveMax(pid, 0)))
			}
			total += h
		}
		if total > MaxTonePartials {
			return &experiment.CapacityError{Path: c.path, What: "tone partial", Actual: total, Max: MaxTonePartials}
		}
	}
	return nil
}

// adaptiveMax returns the largest component c any value of the adaptive
// binding feeding pid can take, or -Inf when pid is not adaptive.
func (c *compiler) adaptiveMax(pid experiment.PropertyID, comp int) float64 {
	b, ok := c.ctx.Schedule.Binding(pid)
	if !ok || b.Adaptive == nil {
		return math.Inf(-1)
	}
	m := math.Inf(-1)
	for _, v := range b.Pool.Values {
		m = math.Max(m, v.Component(comp))
	}
	if b.Jitter != nil {
		m += b.Pool.Jitter
	}
	return m
}
// #endregion caps

// #region values
// value returns the authored-unit value pid takes on trial.
func (c *compiler) value(pid experiment.PropertyID, trial int) experiment.Value {
	if v, ok := c.ctx.Schedule.Value(pid, trial); ok {
		return v
	}
	return c.ctx.Test.Property(pid).Value
}

func (c *compiler) scale(obj *experiment.Object, r experiment.Role) float64 {
	if !spatial(obj, r) {
		return 1
	}
	if pid, ok := obj.Prop(r); ok {
		return c.ctx.Device.Scale(c.ctx.Test.Property(pid).Unit)
	}
	return 1
}

func conversion(r experiment.Role) Conversion {
	switch r {
	case experiment.RoleStart, experiment.RoleDuration:
		return ConvertFrames
	case experiment.RoleActivated:
		return ConvertFlag
	}
	return ConvertLinear
}

// write stores v into dst starting at slot.
func write(dst []float32, slot int, v experiment.Value, dim int, scale float64, conv Conversion, dev experiment.Device) {
	switch conv {
	case ConvertFrames:
		dst[slot] = float32(dev.Frames(v.Component(0)))
	case ConvertFlag:
		if v.Component(0) != 0 {
			dst[slot] = 1
		} else {
			dst[slot] = 0
		}
	default:
		for i := 0; i < dim; i++ {
			dst[slot+i] = float32(v.Component(i) * scale)
		}
	}
}

// curve collects the per-trial control points of pid. A constant property
// becomes a FuncConstant curve so polar objects share one path.
func (c *compiler) curve(pid experiment.PropertyID) Curve {
	prop := c.ctx.Test.Property(pid)
	cv := Curve{Func: experiment.FuncConstant, Points: make([][4]float64, c.s.Trials)}
	if prop.Func == nil {
		for t := range cv.Points {
			cv.Points[t][0] = c.value(pid, t).X
		}
		return cv
	}
	cv.Func = prop.Func.Kind
	for i, param := range prop.Func.Params {
		for t := range cv.Points {
			cv.Points[t][i] = c.value(param, t).X
		}
	}
	return cv
}

// curveDependents registers the adaptive bindings feeding the control points
// of cv, which was built from pid.
func (c *compiler) curveDependents(id experiment.ObjectID, r experiment.Role, pid experiment.PropertyID, cv Curve) {
	prop := c.ctx.Test.Property(pid)
	params := []experiment.PropertyID{pid}
	if prop.Func != nil {
		params = prop.Func.Params
	}
	for i, param := range params {
		b, ok := c.ctx.Schedule.Binding(param)
		if !ok || b.Adaptive == nil {
			continue
		}
		c.s.Dependents = append(c.s.Dependents, DependentVariable{
			Binding:    b,
			Object:     id,
			Background: id == experiment.BackgroundID,
			Role:       r,
			Slot:       -1,
			Dim:        1,
			Scale:      1,
			Points:     cv.Points,
			Param:      i,
		})
	}
}
// #endregion values

// #region objects
func (c *compiler) object(id experiment.ObjectID) error {
	obj := c.sc.Object(id)
	opath := experiment.ObjectPath(c.ctx.Schedule.Section.Name, c.sc.Name, obj.Name)
	for _, r := range requiredRoles(obj.Kind) {
		if _, ok := obj.Prop(r); !ok {
			return experiment.Definitionf(opath, "%s objects require the %s role", obj.Kind, r)
		}
	}
	c.s.Info[id] = ObjectInfo{
		Kind:        obj.Kind,
		WidthScale:  c.scale(obj, experiment.RoleWidth),
		HeightScale: c.scale(obj, experiment.RoleHeight),
	}

	for i := range len(roleSlots) {
		r := experiment.Role(i)
		if obj.Polar && (r == experiment.RoleX || r == experiment.RoleY) {
			continue
		}
		if err := c.role(obj, id, r, opath); err != nil {
			return err
		}
	}
	if obj.Polar {
		c.polar(obj, id)
	}

	dev := c.ctx.Device
	scene := c.sceneIndex()
	for t := 0; t < c.s.Trials; t++ {
		noise := float32(seed.Derive(c.ctx.Schedule.Root, seed.Noise, (scene*c.s.Trials+t)*c.s.Objects+int(id)) >> 40)
		if id == experiment.BackgroundID {
			bg := c.s.BackgroundRow(t)
			bg[BgNoiseSeed] = noise
			bg[BgWidth] = float32(dev.Width)
			bg[BgHeight] = float32(dev.Height)
			continue
		}
		row := c.s.Row(t, id)
		row[SlotType] = float32(obj.Kind)
		row[SlotShape] = float32(obj.Shape)
		row[SlotNoiseSeed] = noise
	}

	switch obj.Kind {
	case experiment.ObjectDots:
		return c.dots(obj, id, opath)
	case experiment.ObjectTone:
		for t := 0; t < c.s.Trials; t++ {
			if h := c.s.Row(t, id)[SlotHarmonics]; h < 1 || h != float32(math.Round(float64(h))) {
				return experiment.Definitionf(opath, "harmonics must be a positive integer, got %v on trial %d", h, t)
			}
		}
	}
	return nil
}

func (c *compiler) sceneIndex() int {
	for i := range c.ctx.Schedule.Section.Scenes {
		if &c.ctx.Schedule.Section.Scenes[i] == c.sc {
			return i
		}
	}
	return 0
}

func (c *compiler) role(obj *experiment.Object, id experiment.ObjectID, r experiment.Role, opath string) error {
	pid, authored := obj.Prop(r)
	slot := roleSlots[r]
	bg := id == experiment.BackgroundID
	if bg {
		s, ok := backgroundSlots[r]
		if !ok {
			if authored {
				return experiment.Definitionf(opath, "the background does not accept the %s role", r)
			}
			return nil
		}
		slot = s
	}
	dst := func(t int) []float32 {
		if bg {
			return c.s.BackgroundRow(t)
		}
		return c.s.Row(t, id)
	}
	dim := r.Dimension()
	scale := c.scale(obj, r)
	conv := conversion(r)
	dev := c.ctx.Device

	if !authored {
		v := defaultValue(obj.Kind, r)
		for t := 0; t < c.s.Trials; t++ {
			write(dst(t), slot, v, dim, scale, conv, dev)
		}
		return nil
	}

	prop := c.ctx.Test.Property(pid)
	if prop.Func != nil {
		cv := c.curve(pid)
		u := Update{Object: id, Background: bg, Role: r, Slot: slot, Repeat: dim, Scale: scale, Curve: cv}
		for t := 0; t < c.s.Trials; t++ {
			x := float32(cv.At(t, 0) * scale)
			row := dst(t)
			for i := 0; i < dim; i++ {
				row[slot+i] = x
			}
		}
		c.s.Updates = append(c.s.Updates, u)
		c.curveDependents(id, r, pid, cv)
		return nil
	}

	if err := c.validate(obj, r, pid, opath); err != nil {
		return err
	}
	for t := 0; t < c.s.Trials; t++ {
		write(dst(t), slot, c.value(pid, t), dim, scale, conv, dev)
	}
	if b, ok := c.ctx.Schedule.Binding(pid); ok && b.Adaptive != nil {
		c.s.Dependents = append(c.s.Dependents, DependentVariable{
			Binding:    b,
			Object:     id,
			Background: bg,
			Role:       r,
			Slot:       slot,
			Dim:        dim,
			Scale:      scale,
			Conversion: conv,
			Param:      -1,
		})
	}
	return nil
}

// validate checks media and text references on every trial and, for adaptive
// bindings, on every value the staircase can reach.
func (c *compiler) validate(obj *experiment.Object, r experiment.Role, pid experiment.PropertyID, opath string) error {
	mk, isMedia := mediaKind(obj.Kind, r)
	if !isMedia && r != experiment.RoleText {
		return nil
	}
	check := func(v experiment.Value) error {
		if r == experiment.RoleText {
			if v.Kind != experiment.KindText {
				return experiment.Definitionf(opath, "the text role needs a text reference")
			}
			return nil
		}
		if v.Kind != experiment.KindMedia {
			return experiment.Definitionf(opath, "the %s role needs a media reference", r)
		}
		media := c.ctx.Test.Media
		if v.ID < 0 || v.ID >= len(media) {
			return experiment.Definitionf(opath, "media index %d outside the media list of %d entries", v.ID, len(media))
		}
		if media[v.ID].Kind != mk {
			return experiment.Definitionf(opath, "media %q is %s, the %s role needs %s", media[v.ID].Name, media[v.ID].Kind, r, mk)
		}
		return nil
	}
	for t := 0; t < c.s.Trials; t++ {
		if err := check(c.value(pid, t)); err != nil {
			return err
		}
	}
	if b, ok := c.ctx.Schedule.Binding(pid); ok && b.Adaptive != nil {
		for _, v := range b.Pool.Values {
			if err := check(v); err != nil {
				return err
			}
		}
	}
	return nil
}

// polar registers the radius/angle curves of a polar object and writes the
// Cartesian position of elapsed time 0.
func (c *compiler) polar(obj *experiment.Object, id experiment.ObjectID) {
	p := PolarUpdate{Object: id, Scale: 1}
	p.Radius = Curve{Func: experiment.FuncConstant, Points: make([][4]float64, c.s.Trials)}
	p.Angle = Curve{Func: experiment.FuncConstant, Points: make([][4]float64, c.s.Trials)}
	if pid, ok := obj.Prop(experiment.RoleX); ok {
		p.Radius = c.curve(pid)
		p.Scale = c.ctx.Device.Scale(c.ctx.Test.Property(pid).Unit)
		c.curveDependents(id, experiment.RoleX, pid, p.Radius)
	}
	if pid, ok := obj.Prop(experiment.RoleY); ok {
		p.Angle = c.curve(pid)
		c.curveDependents(id, experiment.RoleY, pid, p.Angle)
	}
	for t := 0; t < c.s.Trials; t++ {
		x, y := p.At(t, 0)
		row := c.s.Row(t, id)
		row[SlotX], row[SlotY] = float32(x), float32(y)
	}
	c.s.Polar = append(c.s.Polar, p)
}

// At returns the Cartesian offset from the origin for trial at elapsed t.
func (p *PolarUpdate) At(trial int, t float64) (x, y float64) {
	r := p.Radius.At(trial, t) * p.Scale
	a := p.Angle.At(trial, t) * math.Pi / 180
	return r * math.Cos(a), r * math.Sin(a)
}

// dots converts density to an absolute dot count per trial and enforces the cap.
func (c *compiler) dots(obj *experiment.Object, id experiment.ObjectID, opath string) error {
	info := c.s.Info[id]
	worst := 0
	for t := 0; t < c.s.Trials; t++ {
		row := c.s.Row(t, id)
		n := DotCount(row, info)
		row[SlotDotCount] = float32(n)
		worst = max(worst, n)
	}
	maxOf := func(r experiment.Role, cur float64) float64 {
		if pid, ok := obj.Prop(r); ok {
			return math.Max(cur, c.adaptiveMax(pid, 0))
		}
		return cur
	}
	for t := 0; t < c.s.Trials; t++ {
		row := c.s.Row(t, id)
		d := maxOf(experiment.RoleDotDensity, float64(row[SlotDotDensity]))
		w := maxOf(experiment.RoleWidth, float64(row[SlotWidth])/info.WidthScale)
		h := maxOf(experiment.RoleHeight, float64(row[SlotHeight])/info.HeightScale)
		worst = max(worst, int(math.Round(d*w*h)))
	}
	if worst > MaxDots {
		return &experiment.CapacityError{Path: opath, What: "dot", Actual: worst, Max: MaxDots}
	}
	return nil
}

// DotCount returns round(density × width × height) in authored units.
func DotCount(row []float32, info ObjectInfo) int {
	w := float64(row[SlotWidth]) / info.WidthScale
	h := float64(row[SlotHeight]) / info.HeightScale
	return int(math.Round(float64(row[SlotDotDensity]) * w * h))
}
// #endregion objects
