package rag

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const manifestFile = "manifest.yaml"

// Manifest describes a completed build. It is written after every passage has
// been stored, so an index without one was never finished.
type Manifest struct {
	Collection  string    `yaml:"collection"`
	Model       string    `yaml:"model"`
	Dimension   int       `yaml:"dimension"`
	Metric      string    `yaml:"metric"`
	Count       int       `yaml:"count"`
	Fingerprint uint32    `yaml:"fingerprint"`
	Sources     []string  `yaml:"sources"`
	BuiltAt     time.Time `yaml:"built_at"`
}

var errNoManifest = errors.New("manifest not found")

func readManifest(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, errNoManifest
	}
	if err != nil {
		return nil, fmt.Errorf("unable to open manifest: %w", err)
	}
	defer f.Close()

	m := &Manifest{}
	if err := yaml.NewDecoder(f).Decode(m); err != nil {
		return nil, fmt.Errorf("unable to parse manifest: %w", err)
	}

	return m, nil
}

// writeManifest replaces the manifest atomically so a crash never leaves a
// truncated file behind.
func writeManifest(path string, m *Manifest) error {
	raw, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("unable to encode manifest: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("unable to create index dir: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("unable to write manifest: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("unable to write manifest: %w", err)
	}

	return nil
}
