// Package adapterinfo exposes the adapter identity declared in plugin.yaml.
package adapterinfo

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed plugin.yaml
var manifest []byte

// Metadata captures static identifiers for the adapter. Centralising the values
// makes it easy to clone this repository for new adapters.
type Metadata struct {
	Name        string `yaml:"name"`
	BinaryName  string `yaml:"binary"`
	Slug        string `yaml:"slug"`
	Description string `yaml:"description"`
	GeneratorID string `yaml:"generator"`
	Version     string `yaml:"version"`
}

// Info describes the current adapter.
var Info = mustParse(manifest)

func mustParse(raw []byte) Metadata {
	var m Metadata
	if err := yaml.Unmarshal(raw, &m); err != nil {
		panic(fmt.Sprintf("adapterinfo: decode plugin.yaml: %v", err))
	}
	return m
}

// Version returns the adapter release version.
func Version() string { return Info.Version }

// TranscriptMetadata produces the standard metadata payload attached
// to emitted transcripts.
func TranscriptMetadata(modelVariant, language string) map[string]string {
	return map[string]string{
		"generator":     Info.GeneratorID,
		"model_variant": modelVariant,
		"language":      language,
		"version":       Info.Version,
	}
}
