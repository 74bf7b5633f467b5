package models

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed embedded_manifest.yaml
var embeddedManifest []byte

// Variant describes one downloadable ggml model file.
type Variant struct {
	DisplayName string `yaml:"display_name" json:"display_name"`
	Filename    string `yaml:"filename" json:"filename"`
	URL         string `yaml:"url,omitempty" json:"url,omitempty"`
	SHA256      string `yaml:"sha256,omitempty" json:"sha256,omitempty"`
	SizeBytes   int64  `yaml:"size_bytes,omitempty" json:"size_bytes,omitempty"`
}

// Manifest maps variant names to model files.
type Manifest struct {
	Variants map[string]Variant `yaml:"variants" json:"variants"`
}

// ErrUnknownVariant reports a variant name missing from the manifest.
var ErrUnknownVariant = errors.New("models: unknown variant")

// DefaultManifest returns the manifest compiled into the binary.
func DefaultManifest() (Manifest, error) {
	return LoadManifest(bytes.NewReader(embeddedManifest))
}

// LoadManifest decodes a YAML manifest. JSON manifests are accepted too.
func LoadManifest(r io.Reader) (Manifest, error) {
	var m Manifest
	if err := yaml.NewDecoder(r).Decode(&m); err != nil {
		return Manifest{}, fmt.Errorf("models: decode manifest: %w", err)
	}
	for name, v := range m.Variants {
		if strings.TrimSpace(v.Filename) == "" {
			return Manifest{}, fmt.Errorf("models: variant %q has no filename", name)
		}
		if strings.ContainsAny(v.Filename, `/\`) {
			return Manifest{}, fmt.Errorf("models: variant %q filename must not contain a path", name)
		}
	}
	return m, nil
}

// WriteManifest encodes m as YAML.
func WriteManifest(w io.Writer, m Manifest) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("models: encode manifest: %w", err)
	}
	return enc.Close()
}

// Lookup returns the named variant.
func (m Manifest) Lookup(name string) (Variant, error) {
	v, ok := m.Variants[strings.TrimSpace(name)]
	if !ok {
		return Variant{}, fmt.Errorf("%w %q (known: %s)", ErrUnknownVariant, name, strings.Join(m.Names(), ", "))
	}
	return v, nil
}

// Names lists the variant names in sorted order.
func (m Manifest) Names() []string {
	names := make([]string, 0, len(m.Variants))
	for name := range m.Variants {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
