package codec

import (
	"github.com/danielpatrickdp/stimsched/internal/experiment"
	"github.com/danielpatrickdp/stimsched/internal/scene"
)

// #region scene-export
// SceneExport is the renderer-facing snapshot of one compiled scene: the
// parameter rows, per-trial scene ends, checkpoints and sound tables. It
// shares buffers with the schedule it was taken from.
type SceneExport struct {
	Section           string
	Scene             string
	Device            experiment.Device
	Trials            int
	Objects           int
	RowSize           int
	BackgroundRowSize int
	Rows              []float32
	Background        []float32
	SceneEnd          []int
	Checkpoints       [][]scene.Checkpoint
	Sounds            [][]scene.Sound
}
// #endregion scene-export

// #region rpc-messages
// CompileRequest asks the service to compile a definition. Exactly one of
// Definition (YAML) and Catalog (embedded example name) is set.
type CompileRequest struct {
	Definition []byte
	Catalog    string
	Device     *experiment.Device // nil uses the server's device
	Seeds      map[string]uint64  // section name → pinned root
}

// CompileResponse carries the run identity, the roots actually used and
// every compiled scene in section order.
type CompileResponse struct {
	RunID  string
	Test   string
	Roots  map[string]uint64
	Scenes []*SceneExport
}
// #endregion rpc-messages

// message is implemented by every type the wire codec carries.
type message interface {
	marshal(b []byte) []byte
	unmarshal(b []byte) error
}
