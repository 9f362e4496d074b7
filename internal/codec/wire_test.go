package codec

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/danielpatrickdp/stimsched/internal/catalog"
	"github.com/danielpatrickdp/stimsched/internal/experiment"
	"github.com/danielpatrickdp/stimsched/internal/run"
	"github.com/danielpatrickdp/stimsched/internal/scene"
)

func compiledScene(t *testing.T, name string) (string, *scene.Schedule) {
	t.Helper()
	test, err := catalog.Load(name)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	r, err := run.Compile(context.Background(), test, experiment.DefaultDevice(), run.Options{})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	sr := r.Sections()[0]
	return sr.Section.Name, sr.Scenes[0]
}

func TestSceneRoundTrip(t *testing.T) {
	section, s := compiledScene(t, "factorial")
	got, err := DecodeScene(EncodeScene(section, s))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := Export(section, s)
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
	if len(got.Sounds[0]) == 0 {
		t.Fatal("expected tone partials and audio entries in the sound table")
	}
}

func TestDecodeSceneRejectsShapeMismatch(t *testing.T) {
	section, s := compiledScene(t, "staircase")
	e := Export(section, s)
	e.Rows = e.Rows[:len(e.Rows)-scene.RowSize]
	if _, err := DecodeScene(e.marshal(nil)); err == nil {
		t.Fatal("expected an error for truncated rows")
	}

	e = Export(section, s)
	e.Trials = 0
	if _, err := DecodeScene(e.marshal(nil)); err == nil {
		t.Fatal("expected an error for a scene without trials")
	}
}

func TestDecodeSceneRejectsGarbage(t *testing.T) {
	if _, err := DecodeScene([]byte{0xff, 0xff, 0xff}); err == nil {
		t.Fatal("expected a parse error")
	}

	// field 7 (rows) sent as a varint
	b := protowire.AppendTag(nil, 7, protowire.VarintType)
	b = protowire.AppendVarint(b, 1)
	if _, err := DecodeScene(b); err == nil {
		t.Fatal("expected a wire type error")
	}
}

func TestUnknownFieldsAreSkipped(t *testing.T) {
	section, s := compiledScene(t, "staircase")
	b := EncodeScene(section, s)
	b = protowire.AppendTag(b, 99, protowire.BytesType)
	b = protowire.AppendString(b, "from a newer encoder")
	got, err := DecodeScene(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Scene != s.Scene.Name || got.Trials != s.Trials {
		t.Fatalf("unexpected header: %s/%d", got.Scene, got.Trials)
	}
}

func TestCompileRequestRoundTrip(t *testing.T) {
	dev := experiment.DefaultDevice()
	dev.FrameRate = 120
	in := &CompileRequest{
		Definition: []byte("name: x"),
		Device:     &dev,
		Seeds:      map[string]uint64{"main": 1<<63 + 5, "practice": 2},
	}
	out := new(CompileRequest)
	if err := out.unmarshal(in.marshal(nil)); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("request mismatch (-want +got):\n%s", diff)
	}
}
