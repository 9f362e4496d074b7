package resolve

// #region styles
// Style is the nesting level of an ordered variable inside its unit; lower
// styles cycle faster.
type Style int

const (
	StyleAlternate Style = iota // the section's alternate variable, innermost
	StyleHigh
	StyleMedium
	StyleLow
)
// #endregion styles

// #region units
type unitKind int

const (
	unitOrdered unitKind = iota // InOrder / Shuffled sharing one base permutation
	unitDistinct                // Random-distinct sharing one permutation per trial
	unitSingle                  // Random-equal / Fixed / Adaptive, resolved alone
)

// unit is a set of variables resolved together. Ordered units are laid out as
// a mixed-radix counter over base(t): member m reads digit (base/stride) mod k.
type unit struct {
	ordinal  int
	kind     unitKind
	shuffled bool
	members  []int // section variable indices, sorted by style for ordered units
	strides  []int
	cycle    int   // product of member pool sizes
	base     []int // ordered: per-trial position in the cycle sequence
	perms    [][]int
}
// #endregion units

// #region block-series
// BlockSeries is the resolved walk of a block-controlled variable.
type BlockSeries struct {
	Indices []int // pool index per trial
	Blocks  []int // block identity per trial
	Lists   []int // active sub-list per trial
}
// #endregion block-series
