package loader

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultEntrypoint is the executable a package unit is assumed to ship
// when its manifest does not name one.
const DefaultEntrypoint = "main"

// Manifest is the plugin.yaml file that marks a directory as a package
// unit and points at its entrypoint executable.
type Manifest struct {
	Entrypoint string `yaml:"entrypoint" json:"entrypoint"`
}

// ManifestName is the file that marks a directory as a package unit.
const ManifestName = "plugin.yaml"

func readManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read manifest")
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, "failed to parse manifest")
	}
	if m.Entrypoint == "" {
		m.Entrypoint = DefaultEntrypoint
	}
	return &m, nil
}
