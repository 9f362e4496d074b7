package replay

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/stimsched/internal/catalog"
	"github.com/danielpatrickdp/stimsched/internal/experiment"
	"github.com/danielpatrickdp/stimsched/internal/state"
)

// #region fixture-types

// Fixture is a scripted participant: which definition to run, on which
// device, with which seeds, and what to answer on every trial.
type Fixture struct {
	Description string             `yaml:"description,omitempty"`
	Definition  string             `yaml:"definition"`
	Device      *experiment.Device `yaml:"device,omitempty"`
	Seeds       map[string]uint64  `yaml:"seeds,omitempty"`
	PoolSeeds   map[string]uint64  `yaml:"pool_seeds,omitempty"`
	MaxTrials   int                `yaml:"max_trials,omitempty"`
	// Fallback answers trials past the end of Responses: "correct",
	// "incorrect" or "none". Empty stops the replay with an error.
	Fallback  string            `yaml:"fallback,omitempty"`
	Responses []ScriptedResponse `yaml:"responses,omitempty"`
	Expected  []Expected        `yaml:"expected,omitempty"`
}

// ScriptedResponse is one answer. Key and Values are sent as given (a key
// scene also accepts Values, matched against its key table). Correct alone
// asks for a right or wrong answer derived from the trial value. An empty
// entry means no response.
type ScriptedResponse struct {
	Key     string    `yaml:"key,omitempty"`
	Values  []float64 `yaml:"values,omitempty"`
	Correct *bool     `yaml:"correct,omitempty"`
}

// Expected pins the outcome of the i-th presented trial. Unset fields are
// not checked.
type Expected struct {
	Section string `yaml:"section,omitempty"`
	Trial   *int   `yaml:"trial,omitempty"`
	Numbers []int  `yaml:"numbers,omitempty"`
	Correct *bool  `yaml:"correct,omitempty"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads a YAML fixture file. A relative definition path is
// resolved against the fixture's directory.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	if f.Definition == "" {
		return nil, fmt.Errorf("parse fixture %s: definition is required", path)
	}
	if _, err := catalog.Source(f.Definition); err != nil && !filepath.IsAbs(f.Definition) {
		f.Definition = filepath.Join(filepath.Dir(path), f.Definition)
	}
	return &f, nil
}

// Test loads the definition the fixture names.
func (f *Fixture) Test() (*experiment.Test, error) {
	return catalog.Open(f.Definition)
}

// DeviceOrDefault returns the fixture device, or the default device.
func (f *Fixture) DeviceOrDefault() experiment.Device {
	if f.Device != nil {
		return *f.Device
	}
	return experiment.DefaultDevice()
}

// Marshal renders the fixture as YAML.
func (f *Fixture) Marshal() ([]byte, error) {
	return yaml.Marshal(f)
}

// #endregion fixture-loader

// #region export

// Export builds a fixture that reproduces a stored run: its device and
// roots, every recorded response and the observed outcome of each trial.
func Export(store *state.Store, runID, definition string) (*Fixture, error) {
	rec, err := store.GetRun(runID)
	if err != nil {
		return nil, fmt.Errorf("export fixture: %w", err)
	}
	rows, err := store.ListTrials(runID)
	if err != nil {
		return nil, fmt.Errorf("export fixture: %w", err)
	}
	dev := rec.Device
	f := &Fixture{
		Description: fmt.Sprintf("exported from run %s of %s", runID, rec.Test),
		Definition:  definition,
		Device:      &dev,
		Seeds:       rec.Roots,
	}
	for _, row := range rows {
		var resp ScriptedResponse
		if row.Responded {
			for i := 0; i < row.Response.Dimension(); i++ {
				resp.Values = append(resp.Values, row.Response.Component(i))
			}
		}
		f.Responses = append(f.Responses, resp)

		trial := row.Trial
		exp := Expected{Section: row.Section, Trial: &trial, Numbers: row.Numbers}
		if row.Scored {
			correct := row.Correct
			exp.Correct = &correct
		}
		f.Expected = append(f.Expected, exp)
	}
	return f, nil
}

// #endregion export
