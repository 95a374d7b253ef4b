package model

import (
	"time"

	"github.com/oneconcern/profilestore/pkg/errors"
	"gopkg.in/yaml.v2"
)

// ManifestKey is the name of the manifest in an exported bundle
const ManifestKey = "bundle.yaml"

// ErrMalformedManifest indicates a bundle manifest which cannot be decoded
var ErrMalformedManifest = errors.New("malformed bundle manifest")

// Manifest describes an exported bundle of profiles.
//
// Bundle keys are profile file paths relative to the profiles root,
// encoded with the layout recorded in the manifest.
type Manifest struct {
	Version      string    `yaml:"version"`
	Revision     string    `yaml:"revision,omitempty"`
	Hierarchical bool      `yaml:"hierarchical"`
	Profiles     []string  `yaml:"profiles"`
	Files        int       `yaml:"files"`
	Size         int64     `yaml:"size"`
	Exported     time.Time `yaml:"exported"`
}

// Marshal the manifest as YAML
func (m Manifest) Marshal() ([]byte, error) {
	return yaml.Marshal(m)
}

// UnmarshalManifest decodes a YAML manifest
func UnmarshalManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, ErrMalformedManifest.Wrap(err)
	}
	return m, nil
}
