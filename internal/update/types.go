package update

// #region metrics
// Metrics counts what one Apply call touched.
type Metrics struct {
	Curves      int  // time-dependent updates evaluated
	Polar       int  // polar positions converted
	Substituted int  // adaptive values copied into rows or control points
	Rederived   bool // timing or audio changed and the trial was re-derived
	Visible     int  // visual objects on screen this frame
	Grouped     int  // compute-group placements
	Skipped     int  // placements dropped because a cell had no free layer
}
// #endregion metrics

// #region bounds
// Bounds is a viewport rectangle in pixels, origin top-left.
type Bounds struct {
	Left, Top, Right, Bottom float64
}

// Empty reports whether the rectangle has no area.
func (b Bounds) Empty() bool { return b.Right <= b.Left || b.Bottom <= b.Top }
// #endregion bounds

// #region updater
// Updater mutates a compiled scene in place for one (trial, frame).
type Updater struct {
	// Groups enables the compute-group pass. Renderers without a compute stage
	// turn it off.
	Groups bool
}

// New returns an Updater with every pass enabled.
func New() *Updater { return &Updater{Groups: true} }
// #endregion updater
