// Package catalog ships a few ready-made experiment definitions with the
// binary so the CLI and tests have something to compile without a file.
package catalog

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/danielpatrickdp/stimsched/internal/experiment"
)

//go:embed definitions/*.yaml
var definitions embed.FS

// Names lists the embedded definitions, sorted.
func Names() []string {
	entries, err := fs.ReadDir(definitions, "definitions")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}

// Source returns the raw YAML of an embedded definition.
func Source(name string) ([]byte, error) {
	data, err := definitions.ReadFile(path.Join("definitions", name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("catalog: no definition named %q (have %s)", name, strings.Join(Names(), ", "))
	}
	return data, nil
}

// Load decodes an embedded definition.
func Load(name string) (*experiment.Test, error) {
	data, err := Source(name)
	if err != nil {
		return nil, err
	}
	test, err := experiment.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", name, err)
	}
	return test, nil
}

// Open loads ref as a catalog name when one matches, else as a file path.
func Open(ref string) (*experiment.Test, error) {
	if _, err := Source(ref); err == nil {
		return Load(ref)
	}
	return experiment.Load(ref)
}
