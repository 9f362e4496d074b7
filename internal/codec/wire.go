package codec

import (
	"fmt"
	"math"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/danielpatrickdp/stimsched/internal/experiment"
	"github.com/danielpatrickdp/stimsched/internal/scene"
)

// Messages are encoded in protobuf wire format so any protobuf runtime can
// read them with the matching .proto declaration; there is no generated code
// on this side.

// #region export
// Export takes a snapshot of a compiled scene.
func Export(section string, s *scene.Schedule) *SceneExport {
	return &SceneExport{
		Section:           section,
		Scene:             s.Scene.Name,
		Device:            s.Device,
		Trials:            s.Trials,
		Objects:           s.Objects,
		RowSize:           scene.RowSize,
		BackgroundRowSize: scene.BackgroundRowSize,
		Rows:              s.Rows,
		Background:        s.Background,
		SceneEnd:          s.SceneEnd,
		Checkpoints:       s.Checkpoints,
		Sounds:            s.Sounds,
	}
}

// EncodeScene serializes a compiled scene.
func EncodeScene(section string, s *scene.Schedule) []byte {
	return Export(section, s).marshal(nil)
}

// DecodeScene parses and checks an encoded scene.
func DecodeScene(b []byte) (*SceneExport, error) {
	e := new(SceneExport)
	if err := e.unmarshal(b); err != nil {
		return nil, err
	}
	return e, nil
}
// #endregion export

// #region field-helpers
type field struct {
	num protowire.Number
	typ protowire.Type
	u   uint64
	b   []byte
}

func (f field) want(typ protowire.Type) error {
	if f.typ != typ {
		return fmt.Errorf("field %d: wire type %d, want %d", f.num, f.typ, typ)
	}
	return nil
}

func (f field) asInt() int { return int(f.u) }

func (f field) asSint() int { return int(protowire.DecodeZigZag(f.u)) }

func (f field) asDouble() float64 { return math.Float64frombits(f.u) }

func (f field) asString() string { return string(f.b) }

// fields walks the top-level fields of one message.
func fields(b []byte, fn func(f field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.u, n = protowire.ConsumeVarint(b)
		case protowire.Fixed32Type:
			var v uint32
			v, n = protowire.ConsumeFixed32(b)
			f.u = uint64(v)
		case protowire.Fixed64Type:
			f.u, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			f.b, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendSint(b []byte, num protowire.Number, v int) []byte {
	return appendVarint(b, num, protowire.EncodeZigZag(int64(v)))
}

func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// appendMessage writes m as a length-delimited field, even when empty.
func appendMessage(b []byte, num protowire.Number, m message) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, m.marshal(nil))
}

func appendFloats(b []byte, num protowire.Number, v []float32) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	b = protowire.AppendVarint(b, uint64(len(v)*4))
	for _, f := range v {
		b = protowire.AppendFixed32(b, math.Float32bits(f))
	}
	return b
}

func appendInts(b []byte, num protowire.Number, v []int) []byte {
	if len(v) == 0 {
		return b
	}
	var packed []byte
	for _, x := range v {
		packed = protowire.AppendVarint(packed, protowire.EncodeZigZag(int64(x)))
	}
	return appendBytes(b, num, packed)
}

func consumeFloats(f field, dst []float32) ([]float32, error) {
	if err := f.want(protowire.BytesType); err != nil {
		return nil, err
	}
	if len(f.b)%4 != 0 {
		return nil, fmt.Errorf("field %d: packed float32 length %d is not a multiple of 4", f.num, len(f.b))
	}
	b := f.b
	for len(b) > 0 {
		v, n := protowire.ConsumeFixed32(b)
		dst = append(dst, math.Float32frombits(v))
		b = b[n:]
	}
	return dst, nil
}

func consumeInts(f field, dst []int) ([]int, error) {
	if err := f.want(protowire.BytesType); err != nil {
		return nil, err
	}
	b := f.b
	for len(b) > 0 {
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		dst = append(dst, int(protowire.DecodeZigZag(v)))
		b = b[n:]
	}
	return dst, nil
}
// #endregion field-helpers

// #region device
type deviceMsg experiment.Device

func (d *deviceMsg) marshal(b []byte) []byte {
	b = appendDouble(b, 1, d.FrameRate)
	b = appendVarint(b, 2, uint64(d.Width))
	b = appendVarint(b, 3, uint64(d.Height))
	b = appendVarint(b, 4, uint64(d.SampleRate))
	b = appendDouble(b, 5, d.PixelsPerCm)
	return appendDouble(b, 6, d.ViewingDistanceCm)
}

func (d *deviceMsg) unmarshal(b []byte) error {
	return fields(b, func(f field) error {
		switch f.num {
		case 1:
			d.FrameRate = f.asDouble()
		case 2:
			d.Width = f.asInt()
		case 3:
			d.Height = f.asInt()
		case 4:
			d.SampleRate = f.asInt()
		case 5:
			d.PixelsPerCm = f.asDouble()
		case 6:
			d.ViewingDistanceCm = f.asDouble()
		}
		return nil
	})
}
// #endregion device

// #region trial-events
type checkpointMsg scene.Checkpoint

func (c *checkpointMsg) marshal(b []byte) []byte {
	b = appendVarint(b, 1, uint64(c.Frame))
	b = appendVarint(b, 2, uint64(c.Action))
	return appendVarint(b, 3, uint64(c.Object))
}

func (c *checkpointMsg) unmarshal(b []byte) error {
	return fields(b, func(f field) error {
		switch f.num {
		case 1:
			c.Frame = f.asInt()
		case 2:
			c.Action = scene.Action(f.u)
		case 3:
			c.Object = experiment.ObjectID(f.u)
		}
		return nil
	})
}

type soundMsg scene.Sound

func (s *soundMsg) marshal(b []byte) []byte {
	b = appendVarint(b, 1, uint64(s.Kind))
	b = appendVarint(b, 2, uint64(s.Object))
	b = appendSint(b, 3, s.Media)
	b = appendVarint(b, 4, uint64(s.Start))
	b = appendVarint(b, 5, uint64(s.End))
	b = appendDouble(b, 6, s.Frequency)
	b = appendDouble(b, 7, s.Amplitude)
	b = appendSint(b, 8, s.Channel)
	return appendVarint(b, 9, uint64(s.Ramp))
}

func (s *soundMsg) unmarshal(b []byte) error {
	return fields(b, func(f field) error {
		switch f.num {
		case 1:
			s.Kind = scene.SoundKind(f.u)
		case 2:
			s.Object = experiment.ObjectID(f.u)
		case 3:
			s.Media = f.asSint()
		case 4:
			s.Start = f.asInt()
		case 5:
			s.End = f.asInt()
		case 6:
			s.Frequency = f.asDouble()
		case 7:
			s.Amplitude = f.asDouble()
		case 8:
			s.Channel = f.asSint()
		case 9:
			s.Ramp = f.asInt()
		}
		return nil
	})
}

// trialMsg groups the checkpoints and sounds of one trial.
type trialMsg struct {
	checkpoints []scene.Checkpoint
	sounds      []scene.Sound
}

func (t *trialMsg) marshal(b []byte) []byte {
	for i := range t.checkpoints {
		b = appendMessage(b, 1, (*checkpointMsg)(&t.checkpoints[i]))
	}
	for i := range t.sounds {
		b = appendMessage(b, 2, (*soundMsg)(&t.sounds[i]))
	}
	return b
}

func (t *trialMsg) unmarshal(b []byte) error {
	return fields(b, func(f field) error {
		switch f.num {
		case 1:
			if err := f.want(protowire.BytesType); err != nil {
				return err
			}
			var c checkpointMsg
			if err := c.unmarshal(f.b); err != nil {
				return err
			}
			t.checkpoints = append(t.checkpoints, scene.Checkpoint(c))
		case 2:
			if err := f.want(protowire.BytesType); err != nil {
				return err
			}
			var s soundMsg
			if err := s.unmarshal(f.b); err != nil {
				return err
			}
			t.sounds = append(t.sounds, scene.Sound(s))
		}
		return nil
	})
}
// #endregion trial-events

// #region scene-message
func (e *SceneExport) marshal(b []byte) []byte {
	b = appendString(b, 1, e.Section)
	b = appendString(b, 2, e.Scene)
	b = appendMessage(b, 3, (*deviceMsg)(&e.Device))
	b = appendVarint(b, 4, uint64(e.Trials))
	b = appendVarint(b, 5, uint64(e.Objects))
	b = appendVarint(b, 6, uint64(e.RowSize))
	b = appendFloats(b, 7, e.Rows)
	b = appendFloats(b, 8, e.Background)
	b = appendInts(b, 9, e.SceneEnd)
	for t := 0; t < e.Trials; t++ {
		var tm trialMsg
		if t < len(e.Checkpoints) {
			tm.checkpoints = e.Checkpoints[t]
		}
		if t < len(e.Sounds) {
			tm.sounds = e.Sounds[t]
		}
		b = appendMessage(b, 10, &tm)
	}
	return appendVarint(b, 11, uint64(e.BackgroundRowSize))
}

func (e *SceneExport) unmarshal(b []byte) error {
	err := fields(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			e.Section = f.asString()
		case 2:
			e.Scene = f.asString()
		case 3:
			if err = f.want(protowire.BytesType); err == nil {
				err = (*deviceMsg)(&e.Device).unmarshal(f.b)
			}
		case 4:
			e.Trials = f.asInt()
		case 5:
			e.Objects = f.asInt()
		case 6:
			e.RowSize = f.asInt()
		case 7:
			e.Rows, err = consumeFloats(f, e.Rows)
		case 8:
			e.Background, err = consumeFloats(f, e.Background)
		case 9:
			e.SceneEnd, err = consumeInts(f, e.SceneEnd)
		case 10:
			if err = f.want(protowire.BytesType); err != nil {
				break
			}
			var tm trialMsg
			if err = tm.unmarshal(f.b); err == nil {
				e.Checkpoints = append(e.Checkpoints, tm.checkpoints)
				e.Sounds = append(e.Sounds, tm.sounds)
			}
		case 11:
			e.BackgroundRowSize = f.asInt()
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("decode scene: %w", err)
	}
	return e.check()
}

// check verifies that the buffers match the declared shape.
func (e *SceneExport) check() error {
	switch {
	case e.Trials <= 0:
		return fmt.Errorf("decode scene %q: no trials", e.Scene)
	case len(e.Rows) != e.Trials*e.Objects*e.RowSize:
		return fmt.Errorf("decode scene %q: rows hold %d floats, want %d×%d×%d",
			e.Scene, len(e.Rows), e.Trials, e.Objects, e.RowSize)
	case len(e.Background) != e.Trials*e.BackgroundRowSize:
		return fmt.Errorf("decode scene %q: background holds %d floats, want %d×%d",
			e.Scene, len(e.Background), e.Trials, e.BackgroundRowSize)
	case len(e.SceneEnd) != e.Trials || len(e.Checkpoints) != e.Trials:
		return fmt.Errorf("decode scene %q: per-trial tables do not cover %d trials", e.Scene, e.Trials)
	}
	return nil
}
// #endregion scene-message

// #region rpc-messages
func appendSeeds(b []byte, num protowire.Number, seeds map[string]uint64) []byte {
	names := make([]string, 0, len(seeds))
	for name := range seeds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		var entry []byte
		entry = appendString(entry, 1, name)
		entry = protowire.AppendTag(entry, 2, protowire.Fixed64Type)
		entry = protowire.AppendFixed64(entry, seeds[name])
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendBytes(b, entry)
	}
	return b
}

func consumeSeed(f field, dst map[string]uint64) (map[string]uint64, error) {
	if err := f.want(protowire.BytesType); err != nil {
		return dst, err
	}
	var name string
	var root uint64
	err := fields(f.b, func(g field) error {
		switch g.num {
		case 1:
			name = g.asString()
		case 2:
			root = g.u
		}
		return nil
	})
	if err != nil {
		return dst, err
	}
	if dst == nil {
		dst = map[string]uint64{}
	}
	dst[name] = root
	return dst, nil
}

func (r *CompileRequest) marshal(b []byte) []byte {
	b = appendBytes(b, 1, r.Definition)
	b = appendString(b, 2, r.Catalog)
	if r.Device != nil {
		b = appendMessage(b, 3, (*deviceMsg)(r.Device))
	}
	return appendSeeds(b, 4, r.Seeds)
}

func (r *CompileRequest) unmarshal(b []byte) error {
	return fields(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			r.Definition = append([]byte(nil), f.b...)
		case 2:
			r.Catalog = f.asString()
		case 3:
			if err = f.want(protowire.BytesType); err == nil {
				r.Device = new(experiment.Device)
				err = (*deviceMsg)(r.Device).unmarshal(f.b)
			}
		case 4:
			r.Seeds, err = consumeSeed(f, r.Seeds)
		}
		return err
	})
}

func (r *CompileResponse) marshal(b []byte) []byte {
	b = appendString(b, 1, r.RunID)
	b = appendString(b, 2, r.Test)
	b = appendSeeds(b, 3, r.Roots)
	for _, s := range r.Scenes {
		b = appendMessage(b, 4, s)
	}
	return b
}

func (r *CompileResponse) unmarshal(b []byte) error {
	return fields(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			r.RunID = f.asString()
		case 2:
			r.Test = f.asString()
		case 3:
			r.Roots, err = consumeSeed(f, r.Roots)
		case 4:
			if err = f.want(protowire.BytesType); err == nil {
				s := new(SceneExport)
				if err = s.unmarshal(f.b); err == nil {
					r.Scenes = append(r.Scenes, s)
				}
			}
		}
		return err
	})
}
// #endregion rpc-messages
