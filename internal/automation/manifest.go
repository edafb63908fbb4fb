package automation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// manifestNames are tried in order; the first present wins.
var manifestNames = []string{"manifest.yaml", "manifest.yml", "manifest.json"}

var errNoManifest = errors.New("no manifest found")

// Manifest is the on-disk automation declaration.
type Manifest struct {
	Version       string           `yaml:"version" json:"version"`
	Author        string           `yaml:"author" json:"author"`
	Description   string           `yaml:"description" json:"description"`
	Extensions    []string         `yaml:"extensions" json:"extensions"`
	DownloadFirst bool             `yaml:"downloadFirst" json:"downloadFirst"`
	Options       []ManifestOption `yaml:"options" json:"options"`
	Type          string           `yaml:"type" json:"type"`
	// Executable overrides the executable lookup, relative to the manifest.
	Executable string `yaml:"executable" json:"executable"`
	// Hash pins the expected BLAKE3 digest of the executable.
	Hash string `yaml:"hash" json:"hash"`
}

// ManifestOption declares one user option.
type ManifestOption struct {
	Name    string `yaml:"name" json:"name"`
	Type    string `yaml:"type" json:"type"`
	Default string `yaml:"default" json:"default"`
}

// readManifest locates and decodes the manifest in dir.
func readManifest(dir string) (Manifest, string, error) {
	for _, name := range manifestNames {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return Manifest{}, path, fmt.Errorf("reading %s: %w", path, err)
		}
		var m Manifest
		if filepath.Ext(name) == ".json" {
			m, err = parseJSONManifest(data)
		} else {
			m, err = parseYAMLManifest(data)
		}
		if err != nil {
			return Manifest{}, path, fmt.Errorf("%s: %w", path, err)
		}
		return m, path, nil
	}
	return Manifest{}, "", errNoManifest
}

func parseYAMLManifest(data []byte) (Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return Manifest{}, fmt.Errorf("parsing manifest: %w", err)
	}
	return m, nil
}

// parseJSONManifest accepts JSON with comments and trailing commas.
func parseJSONManifest(data []byte) (Manifest, error) {
	var m Manifest
	dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return Manifest{}, fmt.Errorf("parsing manifest: %w", err)
	}
	return m, nil
}
