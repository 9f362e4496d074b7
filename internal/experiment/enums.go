package experiment

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Option names are decoded once at the YAML boundary; compiler code only ever
// switches on these enums.

// #region enum-helpers

func enumName(names []string, i int) string {
	if i < 0 || i >= len(names) {
		return fmt.Sprintf("unknown(%d)", i)
	}
	return names[i]
}

func parseEnum(kind string, names []string, s string) (int, error) {
	for i, n := range names {
		if n == s {
			return i, nil
		}
	}
	return 0, &DefinitionError{
		Msg: fmt.Sprintf("unknown %s %q (want one of: %s)", kind, s, strings.Join(names, ", ")),
	}
}

func decodeEnum(node *yaml.Node, kind string, names []string) (int, error) {
	var s string
	if err := node.Decode(&s); err != nil {
		return 0, &DefinitionError{Path: fmt.Sprintf("line %d", node.Line), Msg: fmt.Sprintf("%s: %v", kind, err)}
	}
	i, err := parseEnum(kind, names, s)
	if err != nil {
		err.(*DefinitionError).Path = fmt.Sprintf("line %d", node.Line)
		return 0, err
	}
	return i, nil
}

// #endregion enum-helpers

// #region strategy

// Strategy selects how a variable's per-trial indices are produced.
type Strategy int

const (
	InOrder Strategy = iota
	Shuffled
	Random
	Fixed
	Adaptive
)

var strategyNames = []string{"in_order", "shuffled", "random", "fixed", "adaptive"}

func (s Strategy) String() string { return enumName(strategyNames, int(s)) }

func (s *Strategy) UnmarshalYAML(n *yaml.Node) error {
	i, err := decodeEnum(n, "strategy", strategyNames)
	*s = Strategy(i)
	return err
}

// Priority picks the nesting level of an ordered variable within its unit.
type Priority int

const (
	PriorityHigh Priority = iota
	PriorityMedium
	PriorityLow
)

var priorityNames = []string{"high", "medium", "low"}

func (p Priority) String() string { return enumName(priorityNames, int(p)) }

func (p *Priority) UnmarshalYAML(n *yaml.Node) error {
	i, err := decodeEnum(n, "priority", priorityNames)
	*p = Priority(i)
	return err
}

// Distinctness selects between independent draws and per-trial distinct draws.
type Distinctness int

const (
	RandomEqual Distinctness = iota
	RandomDistinct
)

var distinctnessNames = []string{"equal", "distinct"}

func (d Distinctness) String() string { return enumName(distinctnessNames, int(d)) }

func (d *Distinctness) UnmarshalYAML(n *yaml.Node) error {
	i, err := decodeEnum(n, "random mode", distinctnessNames)
	*d = Distinctness(i)
	return err
}

// Rule is the staircase rule of an adaptive variable.
type Rule int

const (
	RuleZero  Rule = iota // 1-up/1-down between index 0 and 1
	RuleOne               // 1-down/1-up
	RuleTwo               // 2-down/1-up
	RuleThree             // 3-down/1-up
)

var ruleNames = []string{"zero", "one", "two", "three"}

func (r Rule) String() string { return enumName(ruleNames, int(r)) }

func (r *Rule) UnmarshalYAML(n *yaml.Node) error {
	i, err := decodeEnum(n, "adaptive rule", ruleNames)
	*r = Rule(i)
	return err
}

// #endregion strategy

// #region blocks

// BlockKind selects whether blocks share one set of sub-lists.
type BlockKind int

const (
	BlockShared BlockKind = iota
	BlockPerBlock
)

var blockKindNames = []string{"shared", "per_block"}

func (k BlockKind) String() string { return enumName(blockKindNames, int(k)) }

func (k *BlockKind) UnmarshalYAML(n *yaml.Node) error {
	i, err := decodeEnum(n, "block kind", blockKindNames)
	*k = BlockKind(i)
	return err
}

// #endregion blocks

// #region units

// Unit is the authored unit of a property.
type Unit int

const (
	UnitNone Unit = iota
	UnitPixel
	UnitCentimeter
	UnitInch
	UnitDegree
	UnitSecond
)

var unitNames = []string{"none", "pixel", "cm", "inch", "degree", "second"}

func (u Unit) String() string { return enumName(unitNames, int(u)) }

func (u *Unit) UnmarshalYAML(n *yaml.Node) error {
	i, err := decodeEnum(n, "unit", unitNames)
	*u = Unit(i)
	return err
}

// FuncKind names the closed-form time function of a property.
type FuncKind int

const (
	FuncConstant  FuncKind = iota // p0
	FuncLinear                    // p0 + p1·t
	FuncQuadratic                 // p0 + p1·t + p2·t²
	FuncSine                      // p0 + p1·sin(2π·p2·t + p3)
	FuncSquare                    // p0 + p1·sign(sin(2π·p2·t + p3))
	FuncTriangle                  // p0 + p1·tri(p2·t + p3/2π)
)

var funcNames = []string{"constant", "linear", "quadratic", "sine", "square", "triangle"}

// funcArity is the number of control points each FuncKind reads.
var funcArity = []int{1, 2, 3, 4, 4, 4}

func (k FuncKind) String() string { return enumName(funcNames, int(k)) }

// Arity returns the number of control points the function reads.
func (k FuncKind) Arity() int { return funcArity[k] }

func (k *FuncKind) UnmarshalYAML(n *yaml.Node) error {
	i, err := decodeEnum(n, "function", funcNames)
	*k = FuncKind(i)
	return err
}

// #endregion units

// #region objects

// ObjectKind is the stimulus category of an object.
type ObjectKind int

const (
	ObjectBackground ObjectKind = iota
	ObjectShape
	ObjectImage
	ObjectDots
	ObjectVideo
	ObjectAudio
	ObjectTone
	ObjectText
)

var objectKindNames = []string{"background", "shape", "image", "dots", "video", "audio", "tone", "text"}

func (k ObjectKind) String() string { return enumName(objectKindNames, int(k)) }

// Visual reports whether the object is drawn from an object parameter row.
func (k ObjectKind) Visual() bool {
	return k == ObjectShape || k == ObjectImage || k == ObjectDots
}

func (k *ObjectKind) UnmarshalYAML(n *yaml.Node) error {
	i, err := decodeEnum(n, "object kind", objectKindNames)
	*k = ObjectKind(i)
	return err
}

// Shape is the outline of a visual object.
type Shape int

const (
	ShapeRectangle Shape = iota
	ShapeEllipse
	ShapeCross
	ShapePolygon
	ShapeRing
)

var shapeNames = []string{"rectangle", "ellipse", "cross", "polygon", "ring"}

func (s Shape) String() string { return enumName(shapeNames, int(s)) }

func (s *Shape) UnmarshalYAML(n *yaml.Node) error {
	i, err := decodeEnum(n, "shape", shapeNames)
	*s = Shape(i)
	return err
}

// MediaKind is the type of an external media asset.
type MediaKind int

const (
	MediaImage MediaKind = iota
	MediaVideo
	MediaAudio
)

var mediaKindNames = []string{"image", "video", "audio"}

func (k MediaKind) String() string { return enumName(mediaKindNames, int(k)) }

func (k *MediaKind) UnmarshalYAML(n *yaml.Node) error {
	i, err := decodeEnum(n, "media kind", mediaKindNames)
	*k = MediaKind(i)
	return err
}

// Role names the stimulus parameter a property feeds.
type Role int

const (
	RoleActivated Role = iota
	RoleStart
	RoleDuration
	RoleX
	RoleY
	RoleWidth
	RoleHeight
	RoleRotation
	RoleOriginX
	RoleOriginY
	RoleColor
	RoleAlpha
	RoleBorderWidth
	RoleBorderColor
	RoleContrast
	RoleContrastA
	RoleNoise
	RoleNoiseSize
	RoleNoiseIntensity
	RoleNoiseSpeed
	RoleModulator
	RoleModFrequency
	RoleModAmplitude
	RoleModPhase
	RoleShapeA
	RoleShapeB
	RoleImage
	RoleDotDensity
	RoleDotSize
	RoleDotSpeed
	RoleDotDirection
	RoleDotCoherence
	RoleMedia
	RoleVolume
	RoleChannel
	RoleFrequency
	RoleAmplitude
	RoleHarmonics
	RoleRamp
	RoleText
	RoleFont
	RoleFontSize
	numRoles
)

var roleNames = []string{
	"activated", "start", "duration", "x", "y", "width", "height", "rotation",
	"origin_x", "origin_y", "color", "alpha", "border_width", "border_color",
	"contrast", "contrast_a", "noise", "noise_size", "noise_intensity", "noise_speed",
	"modulator", "mod_frequency", "mod_amplitude", "mod_phase", "shape_a", "shape_b",
	"image", "dot_density", "dot_size", "dot_speed", "dot_direction", "dot_coherence",
	"media", "volume", "channel", "frequency", "amplitude", "harmonics", "ramp",
	"text", "font", "font_size",
}

func (r Role) String() string { return enumName(roleNames, int(r)) }

// Dimension returns the number of components the role expects.
func (r Role) Dimension() int {
	if r == RoleColor || r == RoleBorderColor {
		return 3
	}
	return 1
}

// Timing reports whether the role feeds per-trial timing.
func (r Role) Timing() bool {
	return r == RoleActivated || r == RoleStart || r == RoleDuration
}

// Sound reports whether the role feeds the sound table, which is fixed per
// trial at compile time.
func (r Role) Sound() bool {
	switch r {
	case RoleVolume, RoleChannel, RoleFrequency, RoleAmplitude, RoleHarmonics, RoleRamp:
		return true
	}
	return false
}

// ParseRole decodes a role name.
func ParseRole(s string) (Role, error) {
	i, err := parseEnum("property role", roleNames, s)
	return Role(i), err
}

// #endregion objects

// #region scene-enums

// DurationMode selects fixed or dynamic scene length.
type DurationMode int

const (
	DurationFixed DurationMode = iota
	DurationDynamic
)

var durationModeNames = []string{"fixed", "dynamic"}

func (m DurationMode) String() string { return enumName(durationModeNames, int(m)) }

func (m *DurationMode) UnmarshalYAML(n *yaml.Node) error {
	i, err := decodeEnum(n, "duration mode", durationModeNames)
	*m = DurationMode(i)
	return err
}

// ResponseType is the SectionValueType of a scene response.
type ResponseType int

const (
	ResponseNone ResponseType = iota
	ResponseKey
	ResponseScalar
	ResponsePosition
	ResponseColor
)

var responseTypeNames = []string{"none", "key", "scalar", "position", "color"}

func (t ResponseType) String() string { return enumName(responseTypeNames, int(t)) }

// Dimension returns the numeric dimension a response of this type yields.
func (t ResponseType) Dimension() int {
	switch t {
	case ResponsePosition:
		return 2
	case ResponseColor:
		return 3
	case ResponseNone:
		return 0
	default:
		return 1
	}
}

func (t *ResponseType) UnmarshalYAML(n *yaml.Node) error {
	i, err := decodeEnum(n, "response type", responseTypeNames)
	*t = ResponseType(i)
	return err
}

// TrialValueMode selects how the scoring series is derived.
type TrialValueMode int

const (
	TrialValueNone TrialValueMode = iota
	TrialValueVariable
	TrialValueLookup
	TrialValueReordered
)

var trialValueModeNames = []string{"none", "variable", "lookup", "reordered"}

func (m TrialValueMode) String() string { return enumName(trialValueModeNames, int(m)) }

func (m *TrialValueMode) UnmarshalYAML(n *yaml.Node) error {
	i, err := decodeEnum(n, "trial value mode", trialValueModeNames)
	*m = TrialValueMode(i)
	return err
}

// Metric is the quantity a Condition inspects.
type Metric int

const (
	MetricTrials Metric = iota
	MetricCorrect
	MetricIncorrect
	MetricCorrectRatio
	MetricStreak
	MetricBlock
	MetricResponse
)

var metricNames = []string{"trials", "correct", "incorrect", "correct_ratio", "streak", "block", "response"}

func (m Metric) String() string { return enumName(metricNames, int(m)) }

func (m *Metric) UnmarshalYAML(n *yaml.Node) error {
	i, err := decodeEnum(n, "condition metric", metricNames)
	*m = Metric(i)
	return err
}

// Op is a Condition comparator.
type Op int

const (
	OpLess Op = iota
	OpLessEqual
	OpGreater
	OpGreaterEqual
	OpEqual
	OpNotEqual
)

var opNames = []string{"<", "<=", ">", ">=", "==", "!="}

func (o Op) String() string { return enumName(opNames, int(o)) }

func (o *Op) UnmarshalYAML(n *yaml.Node) error {
	i, err := decodeEnum(n, "condition op", opNames)
	*o = Op(i)
	return err
}

// Compare applies the comparator.
func (o Op) Compare(a, b float64) bool {
	switch o {
	case OpLess:
		return a < b
	case OpLessEqual:
		return a <= b
	case OpGreater:
		return a > b
	case OpGreaterEqual:
		return a >= b
	case OpEqual:
		return a == b
	case OpNotEqual:
		return a != b
	}
	return false
}

// #endregion scene-enums
