package experiment

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// #region raw-types

type rawTest struct {
	Name       string       `yaml:"name"`
	Media      []MediaRef   `yaml:"media"`
	Pools      []rawPool    `yaml:"pools"`
	Properties yaml.Node    `yaml:"properties"`
	Sections   []rawSection `yaml:"sections"`
}

type rawPool struct {
	Name      string     `yaml:"name"`
	Dimension int        `yaml:"dimension"`
	Values    []rawValue `yaml:"values"`
	Jitter    float64    `yaml:"jitter"`
	Seed      uint64     `yaml:"seed"`
	Blocks    *rawBlocks `yaml:"blocks"`
}

type rawBlocks struct {
	Kind            BlockKind  `yaml:"kind"`
	Count           int        `yaml:"count"`
	Length          int        `yaml:"length"`
	ProbChangeBlock float64    `yaml:"prob_change_block"`
	ProbChangeList  float64    `yaml:"prob_change_list"`
	Shared          [][]int    `yaml:"shared"`
	Blocks          []rawBlock `yaml:"blocks"`
}

type rawBlock struct {
	Name  string  `yaml:"name"`
	Lists [][]int `yaml:"lists"`
}

type rawSection struct {
	Name       string          `yaml:"name"`
	Trials     int             `yaml:"trials"`
	Seed       uint64          `yaml:"seed"`
	Alternate  string          `yaml:"alternate"`
	Variables  []rawVariable   `yaml:"variables"`
	TrialValue *rawTrialValue  `yaml:"trial_value"`
	Response   rawResponseRule `yaml:"response"`
	Conditions []Condition     `yaml:"conditions"`
	Next       string          `yaml:"next"`
	Scenes     []rawScene      `yaml:"scenes"`
}

type rawVariable struct {
	Name      string       `yaml:"name"`
	Pool      string       `yaml:"pool"`
	Target    string       `yaml:"target"`
	Group     int          `yaml:"group"`
	Selection rawSelection `yaml:"selection"`
}

type rawSelection struct {
	Strategy Strategy     `yaml:"strategy"`
	Priority Priority     `yaml:"priority"`
	Random   Distinctness `yaml:"random"`
	Index    int          `yaml:"index"`
	Rule     Rule         `yaml:"rule"`
	Start    int          `yaml:"start"`
}

type rawTrialValue struct {
	Mode     TrialValueMode `yaml:"mode"`
	Variable string         `yaml:"variable"`
	Lookup   []rawValue     `yaml:"lookup"`
	Order    []int          `yaml:"order"`
}

type rawResponseRule struct {
	Dimension int     `yaml:"dimension"`
	Margin    float64 `yaml:"margin"`
}

type rawScene struct {
	Name       string       `yaml:"name"`
	Duration   Duration     `yaml:"duration"`
	Background *rawObject   `yaml:"background"`
	Objects    []rawObject  `yaml:"objects"`
	Response   *rawResponse `yaml:"response"`
}

type rawResponse struct {
	Type ResponseType       `yaml:"type"`
	Keys map[string]float64 `yaml:"keys"`
}

type rawObject struct {
	Name       string     `yaml:"name"`
	Kind       ObjectKind `yaml:"kind"`
	Shape      Shape      `yaml:"shape"`
	Polar      bool       `yaml:"polar"`
	Properties yaml.Node  `yaml:"properties"`
}

// #endregion raw-types

// #region raw-values

func line(n *yaml.Node) string { return fmt.Sprintf("line %d", n.Line) }

// rawValue accepts 0.5, [x, y], [r, g, b], {text: 3} or {media: name}.
type rawValue struct {
	Value
	media string
}

func (v *rawValue) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		var x float64
		if err := n.Decode(&x); err != nil {
			return Definitionf(line(n), "value: %v", err)
		}
		v.Value = Scalar(x)
	case yaml.SequenceNode:
		var xs []float64
		if err := n.Decode(&xs); err != nil {
			return Definitionf(line(n), "vector value: %v", err)
		}
		switch len(xs) {
		case 2:
			v.Value = Vec2(xs[0], xs[1])
		case 3:
			v.Value = Vec3(xs[0], xs[1], xs[2])
		default:
			return Definitionf(line(n), "vector values need 2 or 3 components, got %d", len(xs))
		}
	case yaml.MappingNode:
		var m struct {
			Text  *int   `yaml:"text"`
			Media string `yaml:"media"`
		}
		if err := n.Decode(&m); err != nil {
			return Definitionf(line(n), "value: %v", err)
		}
		switch {
		case m.Text != nil:
			v.Value = Text(*m.Text)
		case m.Media != "":
			v.Value = Value{Kind: KindMedia}
			v.media = m.Media
		default:
			return Definitionf(line(n), "mapping values need a text or media key")
		}
	default:
		return Definitionf(line(n), "unsupported value node")
	}
	return nil
}

// rawProperty accepts a bare value, {ref: name}, or {value, unit, func}.
type rawProperty struct {
	line  string
	ref   string
	value *rawValue
	unit  Unit
	fn    *rawFunc
}

type rawFunc struct {
	Kind   FuncKind      `yaml:"kind"`
	Params []rawProperty `yaml:"params"`
}

func isBareValue(n *yaml.Node) bool {
	if n.Kind != yaml.MappingNode {
		return true
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if k := n.Content[i].Value; k == "text" || k == "media" {
			return true
		}
	}
	return false
}

func (p *rawProperty) UnmarshalYAML(n *yaml.Node) error {
	p.line = line(n)
	if isBareValue(n) {
		var v rawValue
		if err := n.Decode(&v); err != nil {
			return err
		}
		p.value = &v
		return nil
	}
	var m struct {
		Ref   string    `yaml:"ref"`
		Value *rawValue `yaml:"value"`
		Unit  Unit      `yaml:"unit"`
		Func  *rawFunc  `yaml:"func"`
	}
	if err := n.Decode(&m); err != nil {
		return err
	}
	if m.Ref != "" && (m.Value != nil || m.Func != nil) {
		return Definitionf(p.line, "a property reference cannot also define a value or function")
	}
	p.ref, p.value, p.unit, p.fn = m.Ref, m.Value, m.Unit, m.Func
	return nil
}

// #endregion raw-values

// #region decode

// Decode parses a YAML experiment definition into the in-memory graph.
// Every option string is resolved to its enum here; unknown names and dangling
// references are DefinitionErrors.
func Decode(data []byte) (*Test, error) {
	var raw rawTest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode test: %w", err)
	}
	b := &builder{
		test:  &Test{Name: raw.Name, Media: raw.Media},
		pools: map[string]PoolID{},
		props: map[string]PropertyID{},
		media: map[string]int{},
	}
	if err := b.build(&raw); err != nil {
		return nil, err
	}
	return b.test, nil
}

// Load reads and decodes a definition file.
func Load(path string) (*Test, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read test %s: %w", path, err)
	}
	t, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return t, nil
}

// #endregion decode

// #region builder

type builder struct {
	test  *Test
	pools map[string]PoolID
	props map[string]PropertyID
	media map[string]int
}

func (b *builder) build(raw *rawTest) error {
	if raw.Name == "" {
		return Definitionf("test", "name is required")
	}
	for i, m := range b.test.Media {
		if _, dup := b.media[m.Name]; dup {
			return Definitionf(fmt.Sprintf("media %q", m.Name), "duplicate media name")
		}
		b.media[m.Name] = i
	}
	for i := range raw.Pools {
		if err := b.pool(&raw.Pools[i]); err != nil {
			return err
		}
	}
	if err := b.namedProperties(&raw.Properties); err != nil {
		return err
	}
	if len(raw.Sections) == 0 {
		return Definitionf("test", "at least one section is required")
	}
	for i := range raw.Sections {
		if err := b.section(&raw.Sections[i]); err != nil {
			return err
		}
	}
	return b.checkTransitions()
}

func (b *builder) value(rv rawValue, path string) (Value, error) {
	if rv.Kind != KindMedia {
		return rv.Value, nil
	}
	id, ok := b.media[rv.media]
	if !ok {
		return Value{}, Definitionf(path, "reference to unknown media %q", rv.media)
	}
	return Media(id), nil
}

func (b *builder) pool(rp *rawPool) error {
	path := fmt.Sprintf("pool %q", rp.Name)
	if rp.Name == "" {
		return Definitionf("pool", "name is required")
	}
	if _, dup := b.pools[rp.Name]; dup {
		return Definitionf(path, "duplicate pool name")
	}
	if len(rp.Values) == 0 {
		return Definitionf(path, "pool has no values")
	}
	pool := ValuePool{Name: rp.Name, Jitter: rp.Jitter, Seed: rp.Seed}
	for _, rv := range rp.Values {
		v, err := b.value(rv, path)
		if err != nil {
			return err
		}
		pool.Values = append(pool.Values, v)
	}
	pool.Dimension = rp.Dimension
	if pool.Dimension == 0 {
		pool.Dimension = pool.Values[0].Dimension()
	}
	for i, v := range pool.Values {
		if v.Dimension() != pool.Dimension {
			return Definitionf(path, "value %d has dimension %d, pool dimension is %d", i, v.Dimension(), pool.Dimension)
		}
		if v.Kind != pool.Values[0].Kind {
			return Definitionf(path, "value %d mixes value kinds", i)
		}
	}
	if rp.Jitter < 0 {
		return Definitionf(path, "jitter must not be negative")
	}
	if rp.Jitter > 0 && !pool.Values[0].Numeric() {
		return Definitionf(path, "jitter requires numeric values")
	}
	if rp.Blocks != nil {
		bs, err := blocks(rp.Blocks, len(pool.Values), path)
		if err != nil {
			return err
		}
		pool.Blocks = bs
	}
	b.pools[rp.Name] = PoolID(len(b.test.Pools))
	b.test.Pools = append(b.test.Pools, pool)
	return nil
}

func blocks(rb *rawBlocks, n int, path string) (*BlockStructure, error) {
	bs := &BlockStructure{
		Kind:            rb.Kind,
		Shared:          rb.Shared,
		NumberOfBlocks:  rb.Count,
		LengthOfBlocks:  rb.Length,
		ProbChangeBlock: rb.ProbChangeBlock,
		ProbChangeList:  rb.ProbChangeList,
	}
	if bs.NumberOfBlocks <= 0 || bs.LengthOfBlocks <= 0 {
		return nil, Definitionf(path, "blocks need a positive count and length, got %d×%d", bs.NumberOfBlocks, bs.LengthOfBlocks)
	}
	if bs.ProbChangeBlock < 0 || bs.ProbChangeBlock > 1 || bs.ProbChangeList < 0 || bs.ProbChangeList > 1 {
		return nil, Definitionf(path, "block transition probabilities must lie in [0, 1]")
	}
	for _, blk := range rb.Blocks {
		bs.Blocks = append(bs.Blocks, Block{Name: blk.Name, Lists: blk.Lists})
	}
	checkLists := func(lists [][]int, where string) error {
		if len(lists) == 0 {
			return Definitionf(path, "%s has no sub-lists", where)
		}
		for li, l := range lists {
			if len(l) == 0 {
				return Definitionf(path, "%s sub-list %d is empty", where, li)
			}
			for _, idx := range l {
				if idx < 0 || idx >= n {
					return Definitionf(path, "%s sub-list %d references value %d, pool has %d", where, li, idx, n)
				}
			}
		}
		return nil
	}
	switch bs.Kind {
	case BlockShared:
		if err := checkLists(bs.Shared, "shared block"); err != nil {
			return nil, err
		}
	case BlockPerBlock:
		if len(bs.Blocks) == 0 {
			return nil, Definitionf(path, "per_block structure defines no blocks")
		}
		for i, blk := range bs.Blocks {
			if err := checkLists(blk.Lists, fmt.Sprintf("block %d", i)); err != nil {
				return nil, err
			}
		}
	}
	return bs, nil
}

func (b *builder) namedProperties(n *yaml.Node) error {
	if n.Kind == 0 {
		return nil
	}
	if n.Kind != yaml.MappingNode {
		return Definitionf(line(n), "properties must be a mapping of name to property")
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		name := n.Content[i].Value
		var rp rawProperty
		if err := n.Content[i+1].Decode(&rp); err != nil {
			return err
		}
		if rp.ref != "" {
			return Definitionf(fmt.Sprintf("property %q", name), "named properties cannot be references")
		}
		if _, err := b.addProperty(name, name, &rp, fmt.Sprintf("property %q", name)); err != nil {
			return err
		}
	}
	return nil
}

// addProperty appends rp to the arena under key, or resolves its reference.
func (b *builder) addProperty(key, name string, rp *rawProperty, path string) (PropertyID, error) {
	if rp.ref != "" {
		id, ok := b.props[rp.ref]
		if !ok {
			return NoProperty, Definitionf(path, "reference to unknown property %q", rp.ref)
		}
		return id, nil
	}
	if _, dup := b.props[key]; dup {
		return NoProperty, Definitionf(path, "duplicate property %q", name)
	}
	if rp.value == nil && rp.fn == nil {
		return NoProperty, Definitionf(path, "property %q needs a value, a function or a ref", name)
	}
	p := Property{Name: name, Unit: rp.unit, Value: Scalar(0)}
	if rp.value != nil {
		v, err := b.value(*rp.value, path)
		if err != nil {
			return NoProperty, err
		}
		p.Value = v
	}
	if rp.fn != nil {
		if !p.Value.Numeric() {
			return NoProperty, Definitionf(path, "property %q: time functions need a numeric value", name)
		}
		if len(rp.fn.Params) != rp.fn.Kind.Arity() {
			return NoProperty, Definitionf(path, "property %q: %s function takes %d parameters, got %d",
				name, rp.fn.Kind, rp.fn.Kind.Arity(), len(rp.fn.Params))
		}
		tf := &TimeFunc{Kind: rp.fn.Kind}
		for i := range rp.fn.Params {
			pid, err := b.addProperty(fmt.Sprintf("%s.p%d", key, i), fmt.Sprintf("%s.p%d", name, i), &rp.fn.Params[i], path)
			if err != nil {
				return NoProperty, err
			}
			param := &b.test.Properties[pid]
			if param.Func != nil || param.Value.Kind != KindScalar {
				return NoProperty, Definitionf(path, "property %q: function parameter %d must be a constant scalar", name, i)
			}
			tf.Params = append(tf.Params, pid)
		}
		p.Func = tf
	}
	id := PropertyID(len(b.test.Properties))
	b.test.Properties = append(b.test.Properties, p)
	b.props[key] = id
	return id, nil
}

func (b *builder) section(rs *rawSection) error {
	path := SectionPath(rs.Name)
	if rs.Name == "" {
		return Definitionf("section", "name is required")
	}
	if b.test.SectionIndex(rs.Name) >= 0 {
		return Definitionf(path, "duplicate section name")
	}
	sec := Section{
		Name:       rs.Name,
		Trials:     rs.Trials,
		Seed:       rs.Seed,
		Alternate:  -1,
		Response:   ResponseRule{Dimension: rs.Response.Dimension, Margin: rs.Response.Margin},
		Conditions: rs.Conditions,
		Next:       rs.Next,
	}
	if sec.Response.Dimension < 0 || sec.Response.Dimension > 3 {
		return Definitionf(path, "response dimension must be 0..3, got %d", sec.Response.Dimension)
	}
	if len(rs.Scenes) == 0 {
		return Definitionf(path, "at least one scene is required")
	}
	for i := range rs.Scenes {
		sc, err := b.scene(rs.Name, &rs.Scenes[i])
		if err != nil {
			return err
		}
		sec.Scenes = append(sec.Scenes, sc)
	}
	for i := range rs.Variables {
		v, err := b.variable(rs.Name, &rs.Variables[i])
		if err != nil {
			return err
		}
		for _, prev := range sec.Variables {
			if prev.Name == v.Name {
				return Definitionf(VariablePath(rs.Name, v.Name), "duplicate variable name")
			}
			if prev.Target == v.Target {
				return Definitionf(VariablePath(rs.Name, v.Name), "target %q is already fed by variable %q",
					rs.Variables[i].Target, prev.Name)
			}
		}
		sec.Variables = append(sec.Variables, v)
	}
	if rs.Alternate != "" {
		sec.Alternate = variableIndex(sec.Variables, rs.Alternate)
		if sec.Alternate < 0 {
			return Definitionf(path, "alternate variable %q is not defined", rs.Alternate)
		}
	}
	if rs.TrialValue != nil {
		tv, err := b.trialValue(&sec, rs.TrialValue)
		if err != nil {
			return err
		}
		sec.TrialValue = tv
	}
	b.test.Sections = append(b.test.Sections, sec)
	return nil
}

func variableIndex(vars []Variable, name string) int {
	for i := range vars {
		if vars[i].Name == name {
			return i
		}
	}
	return -1
}

func (b *builder) scene(section string, rs *rawScene) (Scene, error) {
	path := ScenePath(section, rs.Name)
	if rs.Name == "" {
		return Scene{}, Definitionf(SectionPath(section), "scene name is required")
	}
	sc := Scene{Name: rs.Name, Duration: rs.Duration}
	if sc.Duration.Mode == DurationFixed && sc.Duration.Seconds <= 0 {
		return Scene{}, Definitionf(path, "fixed duration must be positive, got %v", sc.Duration.Seconds)
	}
	bg := rs.Background
	if bg == nil {
		bg = &rawObject{}
	}
	bg.Name = "background"
	obj, err := b.object(section, rs.Name, bg, ObjectBackground)
	if err != nil {
		return Scene{}, err
	}
	sc.Background = obj
	for i := range rs.Objects {
		ro := &rs.Objects[i]
		if ro.Name == "" {
			return Scene{}, Definitionf(path, "object %d has no name", i+1)
		}
		if ro.Kind == ObjectBackground {
			return Scene{}, Definitionf(ObjectPath(section, rs.Name, ro.Name), "only the scene background may have kind background")
		}
		for _, prev := range sc.Objects {
			if prev.Name == ro.Name {
				return Scene{}, Definitionf(ObjectPath(section, rs.Name, ro.Name), "duplicate object name")
			}
		}
		obj, err := b.object(section, rs.Name, ro, ro.Kind)
		if err != nil {
			return Scene{}, err
		}
		sc.Objects = append(sc.Objects, obj)
	}
	if rs.Response != nil {
		sc.Response = &ResponseSpec{Type: rs.Response.Type, Keys: rs.Response.Keys}
		if sc.Response.Type == ResponseKey && len(sc.Response.Keys) == 0 {
			return Scene{}, Definitionf(path, "key responses need a key table")
		}
	}
	return sc, nil
}

func (b *builder) object(section, scene string, ro *rawObject, kind ObjectKind) (Object, error) {
	path := ObjectPath(section, scene, ro.Name)
	obj := Object{Name: ro.Name, Kind: kind, Shape: ro.Shape, Polar: ro.Polar, Props: map[Role]PropertyID{}}
	n := &ro.Properties
	if n.Kind == 0 {
		return obj, nil
	}
	if n.Kind != yaml.MappingNode {
		return Object{}, Definitionf(path, "properties must be a mapping of role to property")
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		key := n.Content[i].Value
		role, err := ParseRole(key)
		if err != nil {
			return Object{}, Definitionf(path, "%v", err)
		}
		var rp rawProperty
		if err := n.Content[i+1].Decode(&rp); err != nil {
			return Object{}, err
		}
		name := fmt.Sprintf("%s.%s.%s", scene, ro.Name, key)
		id, err := b.addProperty(section+"/"+name, name, &rp, path)
		if err != nil {
			return Object{}, err
		}
		prop := &b.test.Properties[id]
		if prop.Func != nil && (role.Timing() || role.Sound()) {
			return Object{}, Definitionf(path, "role %s cannot be time-dependent", role)
		}
		if prop.Func == nil && prop.Dimension() != role.Dimension() {
			return Object{}, Definitionf(path, "role %s needs %d components, property %q has %d",
				role, role.Dimension(), prop.Name, prop.Dimension())
		}
		obj.Props[role] = id
	}
	return obj, nil
}

func (b *builder) variable(section string, rv *rawVariable) (Variable, error) {
	path := VariablePath(section, rv.Name)
	if rv.Name == "" {
		return Variable{}, Definitionf(SectionPath(section), "variable name is required")
	}
	pid, ok := b.pools[rv.Pool]
	if !ok {
		return Variable{}, Definitionf(path, "reference to unknown pool %q", rv.Pool)
	}
	target, ok := b.props[section+"/"+rv.Target]
	if !ok {
		target, ok = b.props[rv.Target]
	}
	if !ok {
		return Variable{}, Definitionf(path, "target property %q is not defined", rv.Target)
	}
	pool := b.test.Pool(pid)
	prop := b.test.Property(target)
	if prop.Func != nil {
		return Variable{}, Definitionf(path, "property %q is time-dependent; target one of its parameters instead", prop.Name)
	}
	if pool.Dimension != prop.Dimension() {
		return Variable{}, Definitionf(path, "pool %q has dimension %d but property %q has dimension %d",
			pool.Name, pool.Dimension, prop.Name, prop.Dimension())
	}
	if pool.Values[0].Numeric() != prop.Value.Numeric() {
		return Variable{}, Definitionf(path, "pool %q and property %q carry different value kinds", pool.Name, prop.Name)
	}
	if rv.Group < BlockGroup {
		return Variable{}, Definitionf(path, "group must be -1, 0 or positive, got %d", rv.Group)
	}
	if rv.Group == BlockGroup && pool.Blocks == nil {
		return Variable{}, Definitionf(path, "block-controlled variable needs a pool with blocks (pool %q has none)", pool.Name)
	}
	if rv.Group != BlockGroup && pool.Blocks != nil {
		return Variable{}, Definitionf(path, "pool %q has blocks; only the block-controlled variable (group -1) may use it", pool.Name)
	}
	return Variable{
		Name: rv.Name,
		Pool: pid,
		Selection: Selection{
			Strategy:   rv.Selection.Strategy,
			Priority:   rv.Selection.Priority,
			Random:     rv.Selection.Random,
			FixedIndex: rv.Selection.Index,
			Rule:       rv.Selection.Rule,
			StartIndex: rv.Selection.Start,
		},
		Group:  rv.Group,
		Target: target,
	}, nil
}

func (b *builder) trialValue(sec *Section, rt *rawTrialValue) (TrialValueSpec, error) {
	path := SectionPath(sec.Name)
	tv := TrialValueSpec{Mode: rt.Mode, Variable: -1, Order: rt.Order}
	if tv.Mode == TrialValueNone {
		return tv, nil
	}
	tv.Variable = variableIndex(sec.Variables, rt.Variable)
	if tv.Variable < 0 {
		return tv, Definitionf(path, "trial value variable %q is not defined", rt.Variable)
	}
	n := b.test.Pool(sec.Variables[tv.Variable].Pool).Len()
	switch tv.Mode {
	case TrialValueLookup:
		if len(rt.Lookup) != n {
			return tv, Definitionf(path, "trial value lookup has %d entries, pool has %d values", len(rt.Lookup), n)
		}
		for _, rv := range rt.Lookup {
			v, err := b.value(rv, path)
			if err != nil {
				return tv, err
			}
			tv.Lookup = append(tv.Lookup, v)
		}
	case TrialValueReordered:
		if len(rt.Order) != n {
			return tv, Definitionf(path, "trial value order has %d entries, pool has %d values", len(rt.Order), n)
		}
		for _, idx := range rt.Order {
			if idx < 0 || idx >= n {
				return tv, Definitionf(path, "trial value order references value %d, pool has %d", idx, n)
			}
		}
	}
	return tv, nil
}

func (b *builder) checkTransitions() error {
	valid := func(name string) bool {
		return name == "" || name == EndTest || b.test.SectionIndex(name) >= 0
	}
	for _, sec := range b.test.Sections {
		if !valid(sec.Next) {
			return Definitionf(SectionPath(sec.Name), "next section %q does not exist", sec.Next)
		}
		for i, c := range sec.Conditions {
			if c.Next == "" || !valid(c.Next) {
				return Definitionf(SectionPath(sec.Name), "condition %d targets unknown section %q", i, c.Next)
			}
		}
	}
	return nil
}

// #endregion builder
