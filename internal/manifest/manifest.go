// Package manifest loads batch submissions described as YAML files, the
// shape used by the CLI and the directory watcher for repeatable surveys.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/octapulse-dev/octapulse-core/internal/blobstore"
	"github.com/octapulse-dev/octapulse-core/internal/domain"
)

// Manifest describes one batch submission. Omitted booleans keep the
// engine defaults, which is why they are pointers.
type Manifest struct {
	Name                       string   `yaml:"name"`
	GridSizeInches             float64  `yaml:"grid_size_inches"`
	IncludeVisualizations      *bool    `yaml:"include_visualizations"`
	IncludeColorAnalysis       *bool    `yaml:"include_color_analysis"`
	IncludeLateralLineAnalysis *bool    `yaml:"include_lateral_line_analysis"`
	Concurrency                int      `yaml:"concurrency"`
	Images                     []string `yaml:"images"`
}

// Parse decodes a manifest document
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if len(m.Images) == 0 {
		return nil, errors.New("manifest lists no images")
	}
	return &m, nil
}

// Load reads and decodes a manifest file
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Config converts the manifest options into a batch configuration
func (m *Manifest) Config() domain.BatchConfig {
	cfg := domain.DefaultBatchConfig()
	if m.GridSizeInches > 0 {
		cfg.GridSizeInches = m.GridSizeInches
	}
	if m.Concurrency > 0 {
		cfg.Concurrency = m.Concurrency
	}
	if m.IncludeVisualizations != nil {
		cfg.IncludeVisualizations = *m.IncludeVisualizations
	}
	if m.IncludeColorAnalysis != nil {
		cfg.IncludeColorAnalysis = *m.IncludeColorAnalysis
	}
	if m.IncludeLateralLineAnalysis != nil {
		cfg.IncludeLateralLineAnalysis = *m.IncludeLateralLineAnalysis
	}
	return cfg
}

// ExpandImages resolves glob patterns relative to baseDir and returns a
// deduplicated image list. Plain paths pass through untouched so the
// orchestrator can report the ones that do not exist; store references
// are never rewritten.
func (m *Manifest) ExpandImages(baseDir string) ([]string, error) {
	seen := make(map[string]struct{}, len(m.Images))
	out := make([]string, 0, len(m.Images))
	add := func(path string) {
		if _, dup := seen[path]; dup {
			return
		}
		seen[path] = struct{}{}
		out = append(out, path)
	}

	for _, entry := range m.Images {
		if blobstore.IsStoreRef(entry) {
			add(entry)
			continue
		}
		path := entry
		if !filepath.IsAbs(path) && baseDir != "" {
			path = filepath.Join(baseDir, path)
		}
		if !strings.ContainsAny(path, "*?[") {
			add(path)
			continue
		}
		matches, err := filepath.Glob(path)
		if err != nil {
			return nil, fmt.Errorf("bad image pattern %q: %w", entry, err)
		}
		for _, match := range matches {
			add(match)
		}
	}
	return out, nil
}
