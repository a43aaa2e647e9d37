// Package sourceconfig loads the per-source ScraperConfig registry from a
// YAML file on disk, grounded on raito's internal/config/config.go YAML
// loading style (same yaml.v3 unmarshal-into-struct pattern), repurposed
// from app-wide configuration to a map of source_id -> ScraperConfig.
package sourceconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"eventcrawl/internal/event"
)

// Registry holds every configured HTML source's ScraperConfig, keyed by
// source_id, plus an optional detail-page config used by the deep-fetcher.
type Registry struct {
	Sources map[string]SourceEntry `yaml:"sources"`
}

// SourceEntry pairs a source's listing-page ScraperConfig with an optional
// detail-page selector set consulted by the deep-fetcher (§4.10).
type SourceEntry struct {
	Config event.ScraperConfig         `yaml:"config"`
	Detail map[string]event.FieldSelector `yaml:"detail,omitempty"`
}

// Load reads and parses a YAML registry file at path. A missing file
// returns an empty Registry rather than an error, since not every
// deployment configures HTML sources ahead of time — a /crawl/trigger
// request can also supply its scraper_config inline.
func Load(path string) (*Registry, error) {
	reg := &Registry{Sources: map[string]SourceEntry{}}
	if path == "" {
		return reg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return reg, nil
		}
		return nil, fmt.Errorf("read source registry %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, reg); err != nil {
		return nil, fmt.Errorf("parse source registry %s: %w", path, err)
	}
	if reg.Sources == nil {
		reg.Sources = map[string]SourceEntry{}
	}
	return reg, nil
}

// Get looks up a source's configured entry by id.
func (r *Registry) Get(sourceID string) (SourceEntry, bool) {
	entry, ok := r.Sources[sourceID]
	return entry, ok
}
