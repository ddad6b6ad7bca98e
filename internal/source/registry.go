// Package source loads and validates the external source registry.
// The pipeline only reads the registry; it never mutates it.
package source

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"

	"kbingest/internal/domain"
)

// Registry is the parsed sources.json document.
type Registry struct {
	Version string                `json:"version"`
	Sources []domain.SourceConfig `json:"sources"`
}

// Load reads and validates the registry file. A load or validation failure
// is fatal to the run.
func Load(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source registry: %w", err)
	}

	var reg Registry
	if err := json.Unmarshal(raw, &reg); err != nil {
		return nil, fmt.Errorf("parse source registry %s: %w", path, err)
	}

	if errs := validate(&reg); len(errs) > 0 {
		return nil, fmt.Errorf("invalid source registry: %s", strings.Join(errs, "; "))
	}

	return &reg, nil
}

func validate(reg *Registry) []string {
	var errs []string

	if reg.Version == "" {
		errs = append(errs, "missing 'version' field")
	}

	seen := map[string]struct{}{}
	for i, src := range reg.Sources {
		prefix := fmt.Sprintf("sources[%d]", i)

		if src.ID == "" || src.Name == "" || src.URL == "" {
			errs = append(errs, prefix+": id, name and url are required")
			continue
		}
		if _, dup := seen[src.ID]; dup {
			errs = append(errs, fmt.Sprintf("%s: duplicate id %q", prefix, src.ID))
		}
		seen[src.ID] = struct{}{}

		if !domain.ValidSourceType(src.Type) {
			errs = append(errs, fmt.Sprintf("%s: invalid type %q", prefix, src.Type))
		}
		if len(src.Categories) == 0 {
			errs = append(errs, prefix+": 'categories' must be non-empty")
		}
	}

	return errs
}

// Enabled returns enabled sources, optionally filtered by type and/or
// explicit ids. Order follows the registry, which fixes the dedup order
// for the whole run.
func (r *Registry) Enabled(sourceType domain.SourceType, ids []string) []domain.SourceConfig {
	var out []domain.SourceConfig
	for _, src := range r.Sources {
		if !src.Enabled {
			continue
		}
		if sourceType != "" && src.Type != sourceType {
			continue
		}
		if len(ids) > 0 && !slices.Contains(ids, src.ID) {
			continue
		}
		out = append(out, src)
	}
	return out
}
