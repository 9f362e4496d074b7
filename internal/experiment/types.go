package experiment

// #region value

// ValueKind tags the payload carried by a Value.
type ValueKind int

const (
	KindScalar ValueKind = iota
	KindVector2
	KindVector3
	KindText
	KindMedia
)

// Value is one candidate entry of a ValuePool.
// Scalars use X; vectors use X, Y (and Z); text and media values use ID.
type Value struct {
	Kind ValueKind
	X    float64
	Y    float64
	Z    float64
	ID   int
}

// Scalar builds a one-dimensional value.
func Scalar(x float64) Value { return Value{Kind: KindScalar, X: x} }

// Vec2 builds a two-dimensional value.
func Vec2(x, y float64) Value { return Value{Kind: KindVector2, X: x, Y: y} }

// Vec3 builds a three-dimensional value.
func Vec3(x, y, z float64) Value { return Value{Kind: KindVector3, X: x, Y: y, Z: z} }

// Text builds a reference into the external text table.
func Text(id int) Value { return Value{Kind: KindText, ID: id} }

// Media builds a reference into Test.Media.
func Media(id int) Value { return Value{Kind: KindMedia, ID: id} }

// Dimension returns the number of numeric components (text and media count as 1).
func (v Value) Dimension() int {
	switch v.Kind {
	case KindVector2:
		return 2
	case KindVector3:
		return 3
	default:
		return 1
	}
}

// Numeric reports whether the value can be jittered and unit-converted.
func (v Value) Numeric() bool {
	return v.Kind == KindScalar || v.Kind == KindVector2 || v.Kind == KindVector3
}

// Component returns component i; text and media ids are returned as component 0.
func (v Value) Component(i int) float64 {
	switch {
	case !v.Numeric():
		if i == 0 {
			return float64(v.ID)
		}
		return 0
	case i == 0:
		return v.X
	case i == 1:
		return v.Y
	case i == 2:
		return v.Z
	}
	return 0
}

// Offset returns v with off added component-wise; non-numeric values are unchanged.
func (v Value) Offset(off [3]float64) Value {
	if !v.Numeric() {
		return v
	}
	v.X += off[0]
	if v.Kind != KindScalar {
		v.Y += off[1]
	}
	if v.Kind == KindVector3 {
		v.Z += off[2]
	}
	return v
}

// #endregion value

// #region pool

// PoolID indexes Test.Pools.
type PoolID int

// ValuePool is an ordered, immutable set of candidate values.
type ValuePool struct {
	Name      string
	Values    []Value
	Dimension int
	Jitter    float64 // uniform amplitude added per component; 0 disables
	Blocks    *BlockStructure
	Seed      uint64 // root seed for block streams; 0 = drawn per run
}

// Len returns the number of values in the pool.
func (p *ValuePool) Len() int { return len(p.Values) }

// BlockStructure describes the two-level block × sub-list design of a
// block-controlled variable.
type BlockStructure struct {
	Kind            BlockKind
	Blocks          []Block
	Shared          [][]int // sub-lists used by every block when Kind == BlockShared
	NumberOfBlocks  int
	LengthOfBlocks  int
	ProbChangeBlock float64
	ProbChangeList  float64
}

// Block is one block identity with its own sub-lists (BlockPerBlock only).
type Block struct {
	Name  string
	Lists [][]int
}

// Lists returns the sub-lists active while block b is current.
func (b *BlockStructure) Lists(block int) [][]int {
	if b.Kind == BlockShared {
		return b.Shared
	}
	return b.Blocks[block].Lists
}

// Identities returns the number of distinct block identities.
func (b *BlockStructure) Identities() int {
	if b.Kind == BlockPerBlock || len(b.Blocks) > 0 {
		return len(b.Blocks)
	}
	return 1
}

// Trials returns numberOfBlocks × lengthOfBlocks.
func (b *BlockStructure) Trials() int { return b.NumberOfBlocks * b.LengthOfBlocks }

// #endregion pool

// #region variable

const (
	// Ungrouped marks a variable that forms its own ordering unit.
	Ungrouped = 0
	// BlockGroup marks the section-wide block-controlled variable.
	BlockGroup = -1
)

// Selection is the strategy plus its parameters.
type Selection struct {
	Strategy   Strategy
	Priority   Priority     // InOrder / Shuffled
	Random     Distinctness // Random
	FixedIndex int          // Fixed
	Rule       Rule         // Adaptive
	StartIndex int          // Adaptive
}

// Variable binds a pool to a property through a selection strategy.
type Variable struct {
	Name      string
	Pool      PoolID
	Selection Selection
	Group     int
	Target    PropertyID
}

// #endregion variable

// #region property

// PropertyID indexes Test.Properties.
type PropertyID int

// NoProperty marks an absent property handle.
const NoProperty PropertyID = -1

// Property is a constant or time-dependent stimulus parameter.
type Property struct {
	Name  string
	Value Value
	Unit  Unit
	Func  *TimeFunc
}

// Dimension returns the number of components the property writes.
func (p *Property) Dimension() int { return p.Value.Dimension() }

// TimeFunc is a closed-form function of elapsed time whose control points are
// other properties (each resolved per trial).
type TimeFunc struct {
	Kind   FuncKind
	Params []PropertyID
}

// #endregion property

// #region object

// ObjectID addresses an object within a scene; 0 is the background.
type ObjectID int

// BackgroundID is the reserved background slot.
const BackgroundID ObjectID = 0

// Object is one stimulus of a scene.
type Object struct {
	Name  string
	Kind  ObjectKind
	Shape Shape
	Polar bool // x/y roles hold radius/angle (degrees)
	Props map[Role]PropertyID
}

// Prop returns the property bound to role r.
func (o *Object) Prop(r Role) (PropertyID, bool) {
	id, ok := o.Props[r]
	return id, ok
}

// #endregion object

// #region scene

// Duration selects how a scene ends.
type Duration struct {
	Mode    DurationMode
	Seconds float64
}

// ResponseSpec declares how a scene's response is read as a numeric value.
type ResponseSpec struct {
	Type ResponseType
	Keys map[string]float64
}

// Scene is a timed composition of objects.
type Scene struct {
	Name       string
	Duration   Duration
	Background Object
	Objects    []Object
	Response   *ResponseSpec
}

// NumObjects returns len(Objects)+1 to account for the background slot.
func (s *Scene) NumObjects() int { return len(s.Objects) + 1 }

// Object returns the object with the given id.
func (s *Scene) Object(id ObjectID) *Object {
	if id == BackgroundID {
		return &s.Background
	}
	return &s.Objects[id-1]
}

// #endregion scene

// #region section

// EndTest is the condition target that terminates the test.
const EndTest = "end"

// TrialValueSpec describes the auxiliary series used for scoring.
type TrialValueSpec struct {
	Mode     TrialValueMode
	Variable int // index into Section.Variables
	Lookup   []Value
	Order    []int
}

// ResponseRule configures correctness scoring for the section.
type ResponseRule struct {
	Dimension int // 0 disables scoring
	Margin    float64
}

// Condition is evaluated after every trial.
type Condition struct {
	Metric    Metric
	Op        Op
	Threshold float64
	Next      string // section name or EndTest
}

// Section is a repeated sequence of scenes sharing one trial schedule.
type Section struct {
	Name       string
	Trials     int
	Seed       uint64 // 0 = drawn per run
	Variables  []Variable
	Alternate  int // index into Variables; -1 when absent
	TrialValue TrialValueSpec
	Response   ResponseRule
	Conditions []Condition
	Next       string
	Scenes     []Scene
}

// BlockVariable returns the index of the block-controlled variable or -1.
func (s *Section) BlockVariable() int {
	for i := range s.Variables {
		if s.Variables[i].Group == BlockGroup {
			return i
		}
	}
	return -1
}

// #endregion section

// #region test

// MediaRef names an external media asset.
type MediaRef struct {
	Name string
	Kind MediaKind
}

// Test is the root of the experiment definition graph. It owns every pool and
// property; sections and objects refer to them by id.
type Test struct {
	Name       string
	Media      []MediaRef
	Pools      []ValuePool
	Properties []Property
	Sections   []Section
}

// Pool returns the pool with the given id.
func (t *Test) Pool(id PoolID) *ValuePool { return &t.Pools[id] }

// Property returns the property with the given id.
func (t *Test) Property(id PropertyID) *Property { return &t.Properties[id] }

// SectionIndex returns the index of the named section or -1.
func (t *Test) SectionIndex(name string) int {
	for i := range t.Sections {
		if t.Sections[i].Name == name {
			return i
		}
	}
	return -1
}

// #endregion test
